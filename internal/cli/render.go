package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rescale/drivectl/internal/models"
	"github.com/rescale/drivectl/internal/selection"
)

// Grid geometry, in terminal cells. drag coordinates use the same units,
// with 0,0 at the top-left of the first card.
const (
	gridColumns = 4
	gridCellW   = 24
	gridCellH   = 2
	gridGap     = 1
)

// renderList prints one numbered row per record. Row numbers start at 1.
func renderList(w io.Writer, files []models.FileRecord, selected func(string) bool, now time.Time) {
	if len(files) == 0 {
		fmt.Fprintln(w, "No files.")
		return
	}
	fmt.Fprintf(w, "%-4s %-2s %-40s %-12s %10s  %-14s %s\n", "#", "", "NAME", "TYPE", "SIZE", "MODIFIED", "OWNER")
	for i, f := range files {
		fmt.Fprintf(w, "%-4d %-2s %-40s %-12s %10s  %-14s %s\n",
			i+1, marks(f, selected), truncateName(f.Name, 40), truncateName(strings.ToLower(f.Extension()), 12),
			models.FormatSize(f.Size), modified(f, now), f.Owner)
	}
}

// renderGrid prints records as cards, gridColumns per row.
func renderGrid(w io.Writer, files []models.FileRecord, selected func(string) bool) {
	if len(files) == 0 {
		fmt.Fprintln(w, "No files.")
		return
	}
	pad := strings.Repeat(" ", gridGap)
	for start := 0; start < len(files); start += gridColumns {
		end := min(start+gridColumns, len(files))
		var top, bottom []string
		for i := start; i < end; i++ {
			f := files[i]
			head := fmt.Sprintf("%d%s %s", i+1, marks(f, selected), f.Name)
			sub := fmt.Sprintf("%s · %s", strings.ToUpper(f.Extension()), models.FormatSize(f.Size))
			top = append(top, cell(head))
			bottom = append(bottom, cell(sub))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(top, pad), " "))
		fmt.Fprintln(w, strings.TrimRight(strings.Join(bottom, pad), " "))
		if end < len(files) {
			fmt.Fprintln(w)
		}
	}
}

// gridBoxes returns the card rectangles renderGrid draws for files.
func gridBoxes(files []models.FileRecord) map[string]selection.Rect {
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	return selection.GridLayout(ids, gridColumns, gridCellW, gridCellH, gridGap)
}

func cell(s string) string {
	s = truncateName(s, gridCellW)
	if n := len([]rune(s)); n < gridCellW {
		s += strings.Repeat(" ", gridCellW-n)
	}
	return s
}

func marks(f models.FileRecord, selected func(string) bool) string {
	m := ""
	if selected != nil && selected(f.ID) {
		m += "*"
	}
	if f.Starred {
		m += "★"
	}
	return m
}

func modified(f models.FileRecord, now time.Time) string {
	t, ok := f.ProcessedTime()
	if !ok {
		return "-"
	}
	return models.RelativeTime(t, now)
}

// truncateName shortens s to n runes, ending with an ellipsis.
func truncateName(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
