// Package progress reports transfer progress: mpb bars for concurrent
// uploads, a progressbar for the archive download, and byte counting
// readers and writers that feed them.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives progress of a single stream.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
	SetDescription(desc string)
}

// CLIProgress implements progress reporting for CLI mode using progress bars.
type CLIProgress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewCLIProgress creates a new CLI progress reporter on stderr.
func NewCLIProgress() *CLIProgress {
	return &CLIProgress{out: os.Stderr}
}

// NewCLIProgressTo creates a CLI progress reporter writing to out.
func NewCLIProgressTo(out io.Writer) *CLIProgress {
	return &CLIProgress{out: out}
}

// Start initializes the progress bar. A total of -1 renders a spinner,
// which is what an archive without Content-Length gets.
func (p *CLIProgress) Start(total int64, description string) {
	out := p.out
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update updates the progress bar to the current position.
func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// Finish completes the progress bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error displays an error message.
func (p *CLIProgress) Error(err error) {
	if err != nil {
		if p.bar != nil {
			_ = p.bar.Exit()
		}
		fmt.Fprintf(p.out, "\nError: %v\n", err)
	}
}

// SetDescription updates the progress bar description.
func (p *CLIProgress) SetDescription(desc string) {
	if p.bar != nil {
		p.bar.Describe(desc)
	}
}

// NoOpProgress is a progress reporter that does nothing.
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op progress reporter.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

func (p *NoOpProgress) Start(total int64, description string) {}
func (p *NoOpProgress) Update(current int64)                  {}
func (p *NoOpProgress) Finish()                               {}
func (p *NoOpProgress) Error(err error)                       {}
func (p *NoOpProgress) SetDescription(desc string)            {}

// Reader wraps an io.Reader and reports the running byte count after every
// read. Uploads use it to drive the per-task percent.
type Reader struct {
	reader  io.Reader
	onBytes func(total int64)
	current atomic.Int64
}

// NewReader creates a byte counting reader. onBytes may be nil.
func NewReader(r io.Reader, onBytes func(total int64)) *Reader {
	return &Reader{reader: r, onBytes: onBytes}
}

// NewProgressReader reports reads of r to reporter.
func NewProgressReader(r io.Reader, reporter Reporter) *Reader {
	return NewReader(r, reporter.Update)
}

// Read implements io.Reader interface with progress reporting.
func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		total := pr.current.Add(int64(n))
		if pr.onBytes != nil {
			pr.onBytes(total)
		}
	}
	return n, err
}

// BytesRead returns the bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.current.Load()
}

// Writer wraps an io.Writer and reports the running byte count. The archive
// download streams through it.
type Writer struct {
	writer   io.Writer
	reporter Reporter
	current  int64
}

// NewProgressWriter creates a byte counting writer.
func NewProgressWriter(w io.Writer, reporter Reporter) *Writer {
	return &Writer{writer: w, reporter: reporter}
}

// Write implements io.Writer with progress reporting.
func (pw *Writer) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.current += int64(n)
	pw.reporter.Update(pw.current)
	return n, err
}
