// Package transfer tracks upload tasks for display. The queue observes
// uploads; execution belongs to the caller.
package transfer

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is where an upload stands.
type TaskStatus string

const (
	StatusUploading TaskStatus = "uploading"
	StatusCompleted TaskStatus = "completed"
	StatusError     TaskStatus = "error"
)

// UploadTask is one file of an upload batch. The ID is local only and never
// sent to a service.
type UploadTask struct {
	ID       string
	Name     string // local base name, then the server's name once accepted
	Path     string // local path
	Size     int64
	Progress int // 0 to 100
	Status   TaskStatus
	Error    string // rejection or failure reason

	// Speed in bytes/sec, smoothed with an EMA
	Speed float64

	CreatedAt  time.Time
	FinishedAt time.Time

	// speed calculation internals
	lastBytes      int64
	lastUpdateTime time.Time
}

// newUploadTask creates a task in the uploading state.
func newUploadTask(name, path string, size int64) *UploadTask {
	return &UploadTask{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      path,
		Size:      size,
		Status:    StatusUploading,
		CreatedAt: time.Now(),
	}
}

// IsTerminal returns true once the task completed or failed.
func (t *UploadTask) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusError
}

// percent maps bytes sent to a whole percentage. Done uploads report 100
// only through Complete, so the bar never shows 100 before the verdict.
func percent(sent, total int64) int {
	if total <= 0 {
		return 0
	}
	if sent >= total {
		return 99
	}
	return int(sent * 100 / total)
}

// updateBytes records sent bytes, recomputing progress and speed.
func (t *UploadTask) updateBytes(sent int64, now time.Time) {
	t.Progress = percent(sent, t.Size)

	// first real progress
	if t.lastBytes == 0 && sent > 0 {
		t.lastUpdateTime = now
		t.lastBytes = sent
		t.Speed = 0
		return
	}

	if t.lastBytes > 0 && sent > t.lastBytes {
		elapsed := now.Sub(t.lastUpdateTime).Seconds()
		if elapsed > 0.1 { // need at least 100ms between samples
			instantRate := float64(sent-t.lastBytes) / elapsed

			const speedSmoothingAlpha = 0.25
			if t.Speed > 0 {
				t.Speed = speedSmoothingAlpha*instantRate + (1-speedSmoothingAlpha)*t.Speed
			} else {
				t.Speed = instantRate
			}

			t.lastBytes = sent
			t.lastUpdateTime = now
		}
	}
}
