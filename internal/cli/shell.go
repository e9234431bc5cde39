package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/drivectl/internal/filter"
	"github.com/rescale/drivectl/internal/models"
	"github.com/rescale/drivectl/internal/progress"
	"github.com/rescale/drivectl/internal/selection"
	"github.com/rescale/drivectl/internal/state"
)

const shellHelp = `Commands:
  view <name>              switch view (my-drive, shared-with-me, recent, starred, trash)
  search [query]           search my-drive or trash by name; no query clears it
  type <filter>            all, folders, documents, images, videos, presentations, spreadsheets
  date <filter>            all, year, month, week, today
  mode grid|list           change rendering
  ls                       show the current list
  refresh                  reload the current view
  select <n...>            select rows by number
  toggle <n>               toggle one row
  clear                    clear the selection
  drag x0 y0 x1 y1 [--add] rubber band selection over the grid
  star <n>                 star or unstar a row
  trash | restore | rm     act on the selection
  download [dest]          download the selection as a zip
  upload <file...>         upload files to my drive
  plan                     show storage usage
  help                     show this help
  exit | quit              leave the shell`

var errNeedSelection = errors.New("nothing selected")

// shell is the interactive drive session. Row numbers refer to the last
// rendering.
type shell struct {
	store   *state.Store
	out     io.Writer
	scanner *bufio.Scanner
	now     func() time.Time
	rows    []models.FileRecord
	gesture selection.Gesture

	download func(ctx context.Context, records []models.FileRecord, dest string) error
	upload   func(ctx context.Context, paths []string) error
	plan     func(ctx context.Context) error

	// onError sees every command error before it is printed.
	onError func(error) error
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Browse and manage your drive interactively",
		Long: `Start an interactive session over your drive. The shell keeps the
current view, filters and selection between commands; type 'help' for the
command list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := requireApp(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			sh := newShell(a.Store, cmd.InOrStdin(), out)
			sh.download = func(ctx context.Context, records []models.FileRecord, dest string) error {
				return runDownload(ctx, a, records, dest, progress.NewCLIProgress(), out)
			}
			sh.upload = func(ctx context.Context, paths []string) error {
				paths, err := expandGlobPatterns(paths)
				if err != nil {
					return err
				}
				res, err := runUpload(ctx, a, paths, progress.NewUploadUI(len(paths)))
				if err != nil {
					return err
				}
				printUploadSummary(out, res)
				return nil
			}
			sh.onError = a.signOutOnUnauthorized
			sh.plan = func(ctx context.Context) error {
				if err := a.Store.FetchUserStoragePlanAndConsumption(ctx); err != nil {
					return err
				}
				printPlan(out, a.Store.Snapshot())
				return nil
			}

			if err := a.Store.SetActiveView(ctx, state.ViewMyDrive); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
			return sh.run(ctx)
		},
	}
}

func newShell(store *state.Store, in io.Reader, out io.Writer) *shell {
	return &shell{
		store:   store,
		out:     out,
		scanner: bufio.NewScanner(in),
		now:     time.Now,
	}
}

// run reads commands until exit, EOF or ctx ends. Command errors are printed
// and never end the session.
func (s *shell) run(ctx context.Context) error {
	fmt.Fprintln(s.out, "drivectl shell. Type 'help' for commands.")
	s.render()

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(s.out, s.prompt())
		if !s.scanner.Scan() {
			fmt.Fprintln(s.out)
			return s.scanner.Err()
		}
		fields := strings.Fields(s.scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}
		if err := s.exec(ctx, fields[0], fields[1:]); err != nil {
			if s.onError != nil {
				err = s.onError(err)
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

func (s *shell) prompt() string {
	p := "drive:" + string(s.store.ActiveView())
	if n := len(s.store.Selected()); n > 0 {
		p += fmt.Sprintf(" [%d selected]", n)
	}
	return p + "> "
}

func (s *shell) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
	case "view":
		if len(args) != 1 {
			return fmt.Errorf("usage: view <name>")
		}
		v, err := state.ParseView(args[0])
		if err != nil {
			return err
		}
		if err := s.store.SetActiveView(ctx, v); err != nil {
			return err
		}
		s.render()
	case "search":
		s.store.SetSearchQuery(strings.Join(args, " "))
		if err := s.store.Refresh(ctx); err != nil {
			return err
		}
		s.render()
	case "type":
		if len(args) != 1 {
			return fmt.Errorf("usage: type <filter>")
		}
		tf, err := filter.ParseTypeFilter(args[0])
		if err != nil {
			return err
		}
		s.store.SetFileTypeFilter(tf)
		s.render()
	case "date":
		if len(args) != 1 {
			return fmt.Errorf("usage: date <filter>")
		}
		df, err := filter.ParseDateFilter(args[0])
		if err != nil {
			return err
		}
		s.store.SetDateFilter(df)
		s.render()
	case "mode":
		if len(args) != 1 {
			return fmt.Errorf("usage: mode grid|list")
		}
		m, err := state.ParseViewMode(args[0])
		if err != nil {
			return err
		}
		s.store.SetViewMode(m)
		s.render()
	case "ls":
		s.render()
	case "refresh":
		if err := s.store.Refresh(ctx); err != nil {
			return err
		}
		s.render()
	case "select":
		ids, err := s.rowIDs(args)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("usage: select <n...>")
		}
		s.store.SetSelection(ids)
		s.render()
	case "toggle":
		if len(args) != 1 {
			return fmt.Errorf("usage: toggle <n>")
		}
		ids, err := s.rowIDs(args)
		if err != nil {
			return err
		}
		s.store.ToggleSelection(ids[0])
		s.render()
	case "clear":
		s.store.ClearSelection()
		s.render()
	case "drag":
		return s.drag(args)
	case "star":
		return s.star(ctx, args)
	case "trash", "restore", "rm":
		return s.batch(ctx, cmd)
	case "download":
		return s.downloadSelection(ctx, args)
	case "upload":
		if len(args) == 0 {
			return fmt.Errorf("usage: upload <file...>")
		}
		if s.upload == nil {
			return fmt.Errorf("upload is not available")
		}
		if err := s.upload(ctx, args); err != nil {
			return err
		}
		if s.store.ActiveView() == state.ViewMyDrive {
			s.render()
		}
	case "plan":
		if s.plan == nil {
			return fmt.Errorf("plan is not available")
		}
		return s.plan(ctx)
	default:
		return fmt.Errorf("unknown command %q (type 'help')", cmd)
	}
	return nil
}

// render prints the visible list in the current mode and remembers the rows.
func (s *shell) render() {
	now := s.now()
	s.rows = s.store.Visible(now)
	snap := s.store.Snapshot()

	fmt.Fprintln(s.out)
	if snap.Mode == state.ModeGrid {
		renderGrid(s.out, s.rows, s.store.IsSelected)
	} else {
		renderList(s.out, s.rows, s.store.IsSelected, now)
	}

	status := fmt.Sprintf("%d file(s) in %s", len(s.rows), snap.View)
	if snap.SearchQuery != "" {
		status += fmt.Sprintf(", search %q", snap.SearchQuery)
	}
	if snap.TypeFilter != filter.TypeAll {
		status += ", type " + string(snap.TypeFilter)
	}
	if snap.DateFilter != filter.DateAll {
		status += ", date " + string(snap.DateFilter)
	}
	fmt.Fprintf(s.out, "\n%s\n", status)
}

// rowIDs maps 1-based row numbers of the last rendering to ids.
func (s *shell) rowIDs(args []string) ([]string, error) {
	ids := make([]string, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 1 || n > len(s.rows) {
			return nil, fmt.Errorf("no row %q (1-%d)", a, len(s.rows))
		}
		ids = append(ids, s.rows[n-1].ID)
	}
	return ids, nil
}

func (s *shell) drag(args []string) error {
	additive := false
	var coords []int
	for _, a := range args {
		if a == "--add" {
			additive = true
			continue
		}
		n, err := strconv.Atoi(a)
		if err != nil {
			return fmt.Errorf("bad coordinate %q", a)
		}
		coords = append(coords, n)
	}
	if len(coords) != 4 {
		return fmt.Errorf("usage: drag x0 y0 x1 y1 [--add]")
	}

	s.gesture.Begin(selection.Point{X: coords[0], Y: coords[1]}, additive, s.store.Selected())
	s.gesture.Move(selection.Point{X: coords[2], Y: coords[3]}, gridBoxes(s.rows))
	s.store.SetSelection(s.gesture.End())
	s.render()
	return nil
}

func (s *shell) star(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: star <n>")
	}
	ids, err := s.rowIDs(args)
	if err != nil {
		return err
	}
	res, err := s.store.ToggleStar(ctx, ids[0])
	if err != nil {
		return err
	}
	if res.Outcome == state.StarRolledBack {
		return fmt.Errorf("star not saved: %w", res.Err)
	}
	s.render()
	return nil
}

func (s *shell) batch(ctx context.Context, cmd string) error {
	records := s.store.SelectedFiles()
	if len(records) == 0 {
		return errNeedSelection
	}

	var err error
	switch cmd {
	case "trash":
		err = s.store.MoveFilesToTrash(ctx, records)
	case "restore":
		err = s.store.RestoreFiles(ctx, records)
	case "rm":
		if !s.ask(fmt.Sprintf("Permanently delete %d file(s)?", len(records))) {
			fmt.Fprintln(s.out, "Aborted.")
			return nil
		}
		err = s.store.DeleteFilesPermanently(ctx, records)
	}
	if err != nil {
		return err
	}
	s.render()
	return nil
}

// ask reads the answer from the session input.
func (s *shell) ask(question string) bool {
	fmt.Fprintf(s.out, "%s [y/N]: ", question)
	if !s.scanner.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s.scanner.Text())) {
	case "y", "yes":
		return true
	}
	return false
}

func (s *shell) downloadSelection(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("usage: download [dest]")
	}
	records := s.store.SelectedFiles()
	if len(records) == 0 {
		return errNeedSelection
	}
	if s.download == nil {
		return fmt.Errorf("download is not available")
	}
	dest := ""
	if len(args) == 1 {
		dest = args[0]
	}
	return s.download(ctx, records, dest)
}
