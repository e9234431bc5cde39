package transfer

import (
	"sync"
	"time"

	"github.com/rescale/drivectl/internal/constants"
	"github.com/rescale/drivectl/internal/events"
)

// QueueStats holds statistics about the upload queue.
type QueueStats struct {
	Uploading int
	Completed int
	Failed    int
}

// Total returns total number of tasks in queue.
func (s QueueStats) Total() int {
	return s.Uploading + s.Completed + s.Failed
}

// Queue is a passive upload tracker that publishes events for display.
// Finished tasks drop out on their own: completed ones after CompletedTTL,
// failed ones after FailedTTL, long enough to read the reason.
type Queue struct {
	tasks     []*UploadTask
	tasksByID map[string]*UploadTask
	timers    map[string]*time.Timer
	closed    bool
	mu        sync.RWMutex

	completedTTL time.Duration
	failedTTL    time.Duration

	eventBus *events.EventBus
}

// QueueOption customizes a Queue.
type QueueOption func(*Queue)

// WithTTLs overrides how long finished tasks stay visible.
func WithTTLs(completed, failed time.Duration) QueueOption {
	return func(q *Queue) {
		q.completedTTL = completed
		q.failedTTL = failed
	}
}

// NewQueue creates a new upload queue with the specified event bus.
func NewQueue(eventBus *events.EventBus, opts ...QueueOption) *Queue {
	q := &Queue{
		tasks:        make([]*UploadTask, 0),
		tasksByID:    make(map[string]*UploadTask),
		timers:       make(map[string]*time.Timer),
		completedTTL: constants.CompletedTaskTTL,
		failedTTL:    constants.FailedTaskTTL,
		eventBus:     eventBus,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add registers a new upload and returns a copy of its task.
func (q *Queue) Add(name, path string, size int64) UploadTask {
	task := newUploadTask(name, path, size)

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.tasksByID[task.ID] = task
	snap := *task
	q.mu.Unlock()

	q.publish(events.EventUploadQueued, snap)
	return snap
}

// UpdateProgress sets the percent of one task. Other tasks are untouched.
// Values are clamped to 0..99; only Complete reaches 100.
func (q *Queue) UpdateProgress(taskID string, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 99 {
		pct = 99
	}
	q.update(taskID, func(t *UploadTask) bool {
		if t.Progress == pct {
			return false
		}
		t.Progress = pct
		return true
	})
}

// UpdateBytes records bytes sent for one task and derives percent and speed.
// An event is published only when the percent moved by ProgressEmitStep.
func (q *Queue) UpdateBytes(taskID string, sent int64) {
	q.update(taskID, func(t *UploadTask) bool {
		before := t.Progress
		t.updateBytes(sent, time.Now())
		return t.Progress-before >= constants.ProgressEmitStep
	})
}

func (q *Queue) update(taskID string, apply func(*UploadTask) bool) {
	q.mu.Lock()
	task, ok := q.tasksByID[taskID]
	if !ok || task.IsTerminal() {
		q.mu.Unlock()
		return
	}
	changed := apply(task)
	snap := *task
	q.mu.Unlock()

	if changed {
		q.publish(events.EventUploadProgress, snap)
	}
}

// Complete marks the task accepted. name, when not empty, replaces the
// display name with the server's.
func (q *Queue) Complete(taskID, name string) {
	q.finish(taskID, events.EventUploadCompleted, func(t *UploadTask) {
		t.Status = StatusCompleted
		t.Progress = 100
		if name != "" {
			t.Name = name
		}
	})
}

// Fail marks the task rejected or failed with reason. Progress resets to 0.
func (q *Queue) Fail(taskID, reason string) {
	q.finish(taskID, events.EventUploadFailed, func(t *UploadTask) {
		t.Status = StatusError
		t.Progress = 0
		t.Error = reason
	})
}

func (q *Queue) finish(taskID string, eventType events.EventType, apply func(*UploadTask)) {
	q.mu.Lock()
	task, ok := q.tasksByID[taskID]
	if !ok || task.IsTerminal() {
		q.mu.Unlock()
		return
	}
	apply(task)
	task.Speed = 0
	task.FinishedAt = time.Now()
	ttl := q.completedTTL
	if task.Status == StatusError {
		ttl = q.failedTTL
	}
	if !q.closed {
		q.timers[taskID] = time.AfterFunc(ttl, func() { q.expire(taskID) })
	}
	snap := *task
	q.mu.Unlock()

	q.publish(eventType, snap)
}

func (q *Queue) expire(taskID string) {
	q.mu.Lock()
	delete(q.timers, taskID)
	task, ok := q.removeLocked(taskID)
	q.mu.Unlock()

	if ok {
		q.publish(events.EventUploadExpired, task)
	}
}

// Remove drops a task right away. It returns false for an unknown id.
func (q *Queue) Remove(taskID string) bool {
	q.mu.Lock()
	if t, ok := q.timers[taskID]; ok {
		t.Stop()
		delete(q.timers, taskID)
	}
	_, ok := q.removeLocked(taskID)
	q.mu.Unlock()
	return ok
}

func (q *Queue) removeLocked(taskID string) (UploadTask, bool) {
	task, ok := q.tasksByID[taskID]
	if !ok {
		return UploadTask{}, false
	}
	delete(q.tasksByID, taskID)
	for i, t := range q.tasks {
		if t.ID == taskID {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			break
		}
	}
	return *task, true
}

// Get returns a copy of a specific task by ID.
func (q *Queue) Get(taskID string) (UploadTask, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	task, ok := q.tasksByID[taskID]
	if !ok {
		return UploadTask{}, false
	}
	return *task, true
}

// Tasks returns a copy of all tasks in creation order.
func (q *Queue) Tasks() []UploadTask {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]UploadTask, len(q.tasks))
	for i, task := range q.tasks {
		result[i] = *task
	}
	return result
}

// Stats returns current queue statistics.
func (q *Queue) Stats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := QueueStats{}
	for _, task := range q.tasks {
		switch task.Status {
		case StatusUploading:
			stats.Uploading++
		case StatusCompleted:
			stats.Completed++
		case StatusError:
			stats.Failed++
		}
	}
	return stats
}

// Close stops every pending expiry. Finished tasks stay in the queue.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
}

func (q *Queue) publish(eventType events.EventType, task UploadTask) {
	if q.eventBus == nil {
		return
	}
	q.eventBus.Publish(&events.UploadEvent{
		BaseEvent: events.NewBase(eventType),
		TaskID:    task.ID,
		Name:      task.Name,
		Size:      task.Size,
		Progress:  task.Progress,
		Status:    string(task.Status),
		Reason:    task.Error,
	})
}
