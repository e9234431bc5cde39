package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/drivectl/internal/filter"
	"github.com/rescale/drivectl/internal/models"
	"github.com/rescale/drivectl/internal/state"
)

func newLsCmd() *cobra.Command {
	var (
		view       string
		query      string
		typeName   string
		dateName   string
		mode       string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List files in a view",
		Long: `List the files of one view, newest first.

Views: my-drive, shared-with-me, recent, starred, trash.
--query searches by name (my-drive and trash only). --type and --date
filter the fetched list locally.

Examples:
  drivectl ls
  drivectl ls --view trash
  drivectl ls --query report --type documents --date month
  drivectl ls --view starred --json`,
		Args: cobra.NoArgs,
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
			tf, err := filter.ParseTypeFilter(typeName)
			if err != nil {
				return err
			}
			df, err := filter.ParseDateFilter(dateName)
			if err != nil {
				return err
			}
			m, err := state.ParseViewMode(mode)
			if err != nil {
				return err
			}

			a.Store.SetSearchQuery(query)
			a.Store.SetFileTypeFilter(tf)
			a.Store.SetDateFilter(df)
			if err := a.Store.SetActiveView(ctx, v); err != nil {
				return err
			}

			now := time.Now()
			files := a.Store.Visible(now)
			out := cmd.OutOrStdout()
			if outputJSON {
				return writeJSON(out, files)
			}
			if m == state.ModeGrid {
				renderGrid(out, files, nil)
			} else {
				renderList(out, files, nil, now)
			}
			fmt.Fprintf(out, "\n%d file(s) in %s\n", len(files), v)
			return nil
		},
	}

	cmd.Flags().StringVar(&view, "view", string(state.ViewMyDrive), "View to list")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search by name")
	cmd.Flags().StringVarP(&typeName, "type", "t", string(filter.TypeAll), "Type filter (all, folders, documents, images, videos, presentations, spreadsheets)")
	cmd.Flags().StringVarP(&dateName, "date", "d", string(filter.DateAll), "Date filter (all, year, month, week, today)")
	cmd.Flags().StringVar(&mode, "mode", string(state.ModeList), "Rendering (list or grid)")
	cmd.Flags().BoolVarP(&outputJSON, "json", "J", false, "Output as JSON")

	return cmd
}

// loadRecords fetches view and resolves ids against it, so every batch acts
// only on records the server just listed.
func loadRecords(ctx context.Context, a *App, view state.View, ids []string) ([]models.FileRecord, error) {
	if err := a.Store.SetActiveView(ctx, view); err != nil {
		return nil, err
	}
	records := make([]models.FileRecord, 0, len(ids))
	var missing []string
	for _, id := range ids {
		rec, ok := a.Store.File(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		records = append(records, rec)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s not in %s", state.ErrFileNotFound, strings.Join(missing, ", "), view)
	}
	return records, nil
}

func newStarCmd() *cobra.Command {
	var view string

	cmd := &cobra.Command{
		Use:   "star <file-id>",
		Short: "Star or unstar a file",
		Long: `Toggle the star on a file. The change is shown at once and rolled back
if the file service refuses it.`,
		Args: cobra.ExactArgs(1),
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
			if _, err := loadRecords(ctx, a, v, args); err != nil {
				return err
			}

			res, err := a.Store.ToggleStar(ctx, args[0])
			if err != nil {
				return err
			}
			if res.Outcome == state.StarRolledBack {
				return fmt.Errorf("star not saved: %w", res.Err)
			}
			if res.Starred {
				fmt.Fprintf(cmd.OutOrStdout(), "★ Starred %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "☆ Unstarred %s\n", args[0])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&view, "view", string(state.ViewMyDrive), "View the file is in")
	return cmd
}

func newTrashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trash <file-id> [file-id...]",
		Short: "Move files to the recycle bin",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := requireApp(ctx)
			if err != nil {
				return err
			}
			records, err := loadRecords(ctx, a, state.ViewMyDrive, args)
			if err != nil {
				return err
			}
			if err := a.Store.MoveFilesToTrash(ctx, records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Moved %d file(s) to trash\n", len(records))
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file-id> [file-id...]",
		Short: "Restore files from the recycle bin",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := requireApp(ctx)
			if err != nil {
				return err
			}
			records, err := loadRecords(ctx, a, state.ViewTrash, args)
			if err != nil {
				return err
			}
			if err := a.Store.RestoreFiles(ctx, records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Restored %d file(s)\n", len(records))
			return nil
		},
	}
}

func newRmCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rm <file-id> [file-id...]",
		Short: "Permanently delete files from the recycle bin",
		Long: `Permanently delete files that are in the recycle bin.
This cannot be undone. Without --yes you are asked to confirm.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := requireApp(ctx)
			if err != nil {
				return err
			}
			records, err := loadRecords(ctx, a, state.ViewTrash, args)
			if err != nil {
				return err
			}
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
				fmt.Sprintf("Permanently delete %d file(s)?", len(records))) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			if err := a.Store.DeleteFilesPermanently(ctx, records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %d file(s)\n", len(records))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newTagsCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Show the tags and categories found in your files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := requireApp(ctx)
			if err != nil {
				return err
			}
			if err := a.Store.FetchTagsAndCategories(ctx); err != nil {
				return err
			}
			snap := a.Store.Snapshot()
			out := cmd.OutOrStdout()
			if outputJSON {
				return writeJSON(out, models.TagsAndCategories{Tags: snap.Tags, Categories: snap.Categories})
			}
			fmt.Fprintf(out, "Tags:       %s\n", joinOrNone(snap.Tags))
			fmt.Fprintf(out, "Categories: %s\n", joinOrNone(snap.Categories))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&outputJSON, "json", "J", false, "Output as JSON")
	return cmd
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
