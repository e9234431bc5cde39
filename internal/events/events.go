package events

import (
	"time"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventLog          EventType = "log"
	EventNotification EventType = "notification"

	// Upload queue events
	EventUploadQueued    EventType = "upload_queued"
	EventUploadProgress  EventType = "upload_progress"
	EventUploadCompleted EventType = "upload_completed"
	EventUploadFailed    EventType = "upload_failed"
	EventUploadExpired   EventType = "upload_expired" // task dropped from the visible queue

	// Account and session events
	EventSessionChanged   EventType = "session_changed"
	EventAccountSuspended EventType = "account_suspended"
)

// Level is the severity of a log entry or notification.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	SuccessLevel
	WarnLevel
	ErrorLevel
	AlertLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case SuccessLevel:
		return "SUCCESS"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case AlertLevel:
		return "ALERT"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// NewBase stamps a BaseEvent with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// LogEvent represents log messages
type LogEvent struct {
	BaseEvent
	Level   Level
	Message string
	Source  string
	Error   error
}

// NotificationEvent is the single user-facing message channel. Toasts,
// rejection notices and the suspension alert all travel as notifications.
type NotificationEvent struct {
	BaseEvent
	Level   Level
	Title   string
	Message string
	Error   error
}

// UploadEvent carries the state of one upload task.
type UploadEvent struct {
	BaseEvent
	TaskID   string
	Name     string
	Size     int64
	Progress int    // 0-100
	Status   string // "uploading", "completed", "error"
	Reason   string // rejection or failure reason
}

// SessionChangedEvent is published when the auth session moves between states.
type SessionChangedEvent struct {
	BaseEvent
	State string // "anonymous", "token-only", "authenticated"
	Email string
}

// AccountSuspendedEvent is raised on top of the per-file rejection when the
// processing service reports a banned account.
type AccountSuspendedEvent struct {
	BaseEvent
	FileName string
	Reason   string
}
