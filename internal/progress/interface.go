package progress

import "io"

// ProgressUI renders one bar per file of a concurrent upload batch.
type ProgressUI interface {
	// AddFileBar creates a new progress bar for a file upload
	AddFileBar(localPath string, size int64) FileBarHandle

	// Wait blocks until all progress bars complete
	Wait()

	// Writer returns an io.Writer that safely outputs above the progress bars.
	Writer() io.Writer

	// IsTerminal returns true if output is to a terminal (progress bars are active)
	IsTerminal() bool
}

// FileBarHandle is one file's bar.
type FileBarHandle interface {
	// UpdateBytes sets the bytes sent so far
	UpdateBytes(sent int64)

	// Complete finishes the bar. name is the server's name for an accepted
	// file; err carries the rejection or failure.
	Complete(name string, err error)
}

// NopUI discards everything. Used when the caller renders progress itself,
// as the shell does from queue events.
type NopUI struct{}

func (NopUI) AddFileBar(string, int64) FileBarHandle { return nopBar{} }
func (NopUI) Wait()                                  {}
func (NopUI) Writer() io.Writer                      { return io.Discard }
func (NopUI) IsTerminal() bool                       { return false }

type nopBar struct{}

func (nopBar) UpdateBytes(int64)      {}
func (nopBar) Complete(string, error) {}
