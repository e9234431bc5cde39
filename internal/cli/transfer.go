package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rescale/drivectl/internal/models"
	"github.com/rescale/drivectl/internal/progress"
	"github.com/rescale/drivectl/internal/sink"
	"github.com/rescale/drivectl/internal/state"
	"github.com/rescale/drivectl/internal/upload"
)

func newDownloadCmd() *cobra.Command {
	var (
		dest string
		view string
	)

	cmd := &cobra.Command{
		Use:   "download <file-id> [file-id...]",
		Short: "Download files as one zip archive",
		Long: `Download the given files as a single zip archive.

The destination is a local path (default ./files.zip; a directory gets
files.zip inside it), or a remote location:
  s3://bucket/key          uploaded with the AWS credential chain, or
                           DRIVE_S3_ACCESS_KEY_ID / DRIVE_S3_SECRET_ACCESS_KEY
  azblob://account/container/blob
                           uploaded with [sink] azure_sas_token or AZURE_STORAGE_KEY

Examples:
  drivectl download 65f1a2 65f1a3
  drivectl download 65f1a2 -o ~/Downloads
  drivectl download 65f1a2 -o s3://backups/drive/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := requireApp(ctx)
			if err != nil {
				return err
			}
			v, err := state.ParseView(view)
			if err != nil {
				return err
			}
			records, err := loadRecords(ctx, a, v, args)
			if err != nil {
				return err
			}
			return runDownload(ctx, a, records, dest, progress.NewCLIProgress(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&dest, "output", "o", "", "Archive destination (path, s3:// or azblob://)")
	cmd.Flags().StringVar(&view, "view", string(state.ViewMyDrive), "View the files are in")
	return cmd
}

// preparedSink refuses writes once Prepare has failed, which ends the
// download stream early.
type preparedSink struct {
	sink.Sink
	err error
}

func (p *preparedSink) Write(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	return p.Sink.Write(b)
}

// runDownload streams the archive of records into dest.
func runDownload(ctx context.Context, a *App, records []models.FileRecord, dest string, rep progress.Reporter, out io.Writer) error {
	if len(records) == 0 {
		return fmt.Errorf("nothing to download")
	}

	s, err := sink.Open(ctx, dest, a.Config, a.Logger.Component("sink"))
	if err != nil {
		return err
	}
	target := &preparedSink{Sink: s}

	sizeHint := func(size int64) {
		target.err = s.Prepare(size)
		rep.Start(size, "Downloading "+filepath.Base(s.Location()))
	}

	n, err := a.Store.DownloadFiles(ctx, records, progress.NewProgressWriter(target, rep), sizeHint)
	if err == nil {
		err = target.err
	}
	if err != nil {
		rep.Error(err)
		_ = s.Abort()
		return fmt.Errorf("download failed: %w", err)
	}
	rep.Finish()

	if err := s.Close(); err != nil {
		_ = s.Abort()
		return err
	}

	fmt.Fprintf(out, "✓ Downloaded %d file(s) (%s) to %s\n", len(records), models.FormatSize(n), s.Location())
	a.Notifier.DownloadComplete(len(records), s.Location())
	return nil
}

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file> [file...]",
		Short: "Upload files to my drive",
		Long: `Upload files to your drive. Each file is scanned by the server; unsafe
files are rejected and never appear in the list.

Glob patterns are expanded even when quoted.

Examples:
  drivectl upload report.pdf slides.pptx
  drivectl upload '*.csv'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := requireApp(ctx)
			if err != nil {
				return err
			}
			paths, err := expandGlobPatterns(args)
			if err != nil {
				return err
			}
			res, err := runUpload(ctx, a, paths, progress.NewUploadUI(len(paths)))
			if err != nil {
				return err
			}
			printUploadSummary(cmd.OutOrStdout(), res)
			if len(res.Rejected) > 0 {
				return fmt.Errorf("%d of %d file(s) not uploaded", len(res.Rejected), len(paths))
			}
			return nil
		},
	}
	return cmd
}

// runUpload refreshes the storage plan for the quota check, then uploads.
func runUpload(ctx context.Context, a *App, paths []string, ui progress.ProgressUI) (*upload.BatchResult, error) {
	if err := a.Store.FetchUserStoragePlanAndConsumption(ctx); err != nil {
		a.Logger.Debug().Err(err).Msg("continuing without quota check")
	}

	o := upload.NewOrchestrator(a.Client, a.Store, a.Queue, a.Notifier, a.Bus, a.Logger.Component("upload"),
		upload.Options{Concurrency: a.Config.UploadConcurrency, UI: ui})
	return o.UploadBatch(ctx, paths)
}

func printUploadSummary(out io.Writer, res *upload.BatchResult) {
	fmt.Fprintln(out)
	if n := len(res.Accepted); n > 0 {
		fmt.Fprintf(out, "✓ Uploaded %d file(s)\n", n)
		for _, rec := range res.Accepted {
			fmt.Fprintf(out, "  %s  %s\n", rec.ID, rec.Name)
		}
	}
	if n := len(res.Rejected); n > 0 {
		fmt.Fprintf(out, "✗ %d file(s) not uploaded\n", n)
		for _, t := range res.Rejected {
			fmt.Fprintf(out, "  %s: %s\n", t.Name, t.Error)
		}
	}
	if res.Suspended {
		fmt.Fprintln(out, "\nYour account has been suspended. Contact support to restore access.")
	}
}

// expandGlobPatterns expands glob patterns like *.zip, even when quoted
// Returns deduplicated list of file paths
func expandGlobPatterns(patterns []string) ([]string, error) {
	var expandedFiles []string
	seenFiles := make(map[string]bool)

	add := func(p string) error {
		absPath, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %s: %w", p, err)
		}
		if !seenFiles[absPath] {
			expandedFiles = append(expandedFiles, absPath)
			seenFiles[absPath] = true
		}
		return nil
	}

	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[]") {
			if err := add(pattern); err != nil {
				return nil, err
			}
			continue
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match pattern: %s", pattern)
		}
		for _, match := range matches {
			if err := add(match); err != nil {
				return nil, err
			}
		}
	}

	return expandedFiles, nil
}
