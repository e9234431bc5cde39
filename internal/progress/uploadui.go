package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/rescale/drivectl/internal/constants"
)

// UploadUI manages multiple concurrent upload progress bars using mpb
type UploadUI struct {
	progress   *mpb.Progress
	out        io.Writer // plain text output when not a terminal
	isTerminal bool
	totalFiles int
	started    int32 // atomic file index (1, 2, 3, ...)
	completed  int32
	failed     int32
}

// FileBar represents a single file upload progress bar
type FileBar struct {
	bar        *mpb.Bar
	ui         *UploadUI
	index      int
	filepath   string
	size       int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
}

// NewUploadUI creates a new upload UI on stderr for totalFiles files.
func NewUploadUI(totalFiles int) *UploadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal {
		enableANSI(os.Stderr)
	}
	return newUploadUI(os.Stderr, totalFiles, isTerminal)
}

func newUploadUI(out io.Writer, totalFiles int, isTerminal bool) *UploadUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(constants.ProgressUpdateInterval),
			mpb.WithWidth(100),
		)
	} else {
		// Non-TTY: no bars, one line per start and finish
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UploadUI{
		progress:   p,
		out:        out,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// AddFileBar creates a new progress bar for a file upload
func (u *UploadUI) AddFileBar(localPath string, size int64) FileBarHandle {
	index := int(atomic.AddInt32(&u.started, 1))
	sourcePath := truncatePath(localPath, 2)

	fb := &FileBar{
		ui:         u,
		index:      index,
		filepath:   localPath,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("[%d/%d] %s (%s)",
					index, u.totalFiles, sourcePath, formatMiB(size)), decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Uploading [%d/%d]: %s (%s)\n", index, u.totalFiles, sourcePath, formatMiB(size))
	}

	return fb
}

// UpdateBytes moves the bar to sent bytes. Updates are throttled to the
// refresh rate; EwmaIncrBy is fed elapsed time so speed stays accurate.
func (f *FileBar) UpdateBytes(sent int64) {
	if f.bar == nil {
		return
	}

	now := time.Now()
	elapsed := now.Sub(f.lastUpdate)
	if elapsed < constants.ProgressUpdateInterval && sent < f.size {
		return
	}
	f.bar.EwmaIncrBy(int(sent-f.lastBytes), elapsed)
	f.lastBytes = sent
	f.lastUpdate = now
}

// Complete marks the upload as finished and prints a summary
func (f *FileBar) Complete(name string, err error) {
	elapsed := time.Since(f.startTime)

	var msg string
	if err == nil {
		if f.bar != nil {
			f.bar.SetCurrent(f.size)
			f.bar.SetTotal(f.size, true)
		}
		if name == "" {
			name = filepath.Base(f.filepath)
		}
		msg = fmt.Sprintf("✓ %s → %s (%s, %s)\n",
			truncatePath(f.filepath, 2), name, formatMiB(f.size), elapsed.Round(time.Millisecond))
		atomic.AddInt32(&f.ui.completed, 1)
	} else {
		if f.bar != nil {
			f.bar.Abort(false) // keep the failed bar visible
		}
		msg = fmt.Sprintf("✗ %s: %v\n", truncatePath(f.filepath, 2), err)
		atomic.AddInt32(&f.ui.failed, 1)
	}

	// write through mpb so the message lands above the bars
	_, _ = io.WriteString(f.ui.Writer(), msg)
}

// Wait blocks until all progress bars complete
func (u *UploadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that safely prints above the progress bars.
func (u *UploadUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal returns true if output is to a terminal (progress bars are active).
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

// Counts returns how many uploads were accepted and how many failed.
func (u *UploadUI) Counts() (completed, failed int) {
	return int(atomic.LoadInt32(&u.completed)), int(atomic.LoadInt32(&u.failed))
}

func formatMiB(size int64) string {
	return fmt.Sprintf("%.1f MiB", float64(size)/(1024*1024))
}

// truncatePath truncates a file path to show only the last N components
// Example: truncatePath("/a/b/c/d/file.txt", 3) → "…/c/d/file.txt"
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}
