// Package notify is the single route for user-facing messages: every caught
// error and every success toast goes through a Notifier.
// Desktop delivery uses github.com/gen2brain/beeep.
package notify

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/rescale/drivectl/internal/constants"
	"github.com/rescale/drivectl/internal/events"
	"github.com/rescale/drivectl/internal/logging"
)

// Notifier logs a message, publishes it on the bus and optionally shows it
// on the desktop.
type Notifier struct {
	logger  *logging.Logger
	bus     *events.EventBus
	enabled bool
	mu      sync.RWMutex

	// desktop delivery, swapped in tests
	notify func(title, message string) error
	alert  func(title, message string) error
}

// Config holds notification configuration.
type Config struct {
	// Desktop enables beeep notifications. The bus always receives messages.
	Desktop bool
}

// DefaultConfig returns the default notification configuration.
func DefaultConfig() *Config {
	return &Config{Desktop: true}
}

// NewNotifier creates a new notifier with the given configuration.
func NewNotifier(cfg *Config, bus *events.EventBus, logger *logging.Logger) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Notifier{
		logger:  logger,
		bus:     bus,
		enabled: cfg.Desktop,
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		alert: func(title, message string) error {
			return beeep.Alert(title, message, "")
		},
	}
}

// SetEnabled enables or disables desktop notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether desktop notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// Info reports a neutral message.
func (n *Notifier) Info(title, message string) {
	n.emit(events.InfoLevel, title, message, nil)
}

// Success reports a completed action.
func (n *Notifier) Success(title, message string) {
	n.emit(events.SuccessLevel, title, message, nil)
}

// Warning reports something the user should know but that did not fail.
func (n *Notifier) Warning(title, message string) {
	n.emit(events.WarnLevel, title, message, nil)
}

// Error reports a failed action. The message shown is err's text.
func (n *Notifier) Error(title string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	n.emit(events.ErrorLevel, title, msg, err)
}

// Alert reports a critical condition, such as account suspension. On the
// desktop it uses beeep.Alert, which also plays a sound on most platforms.
func (n *Notifier) Alert(title, message string) {
	n.emit(events.AlertLevel, title, message, nil)
}

// DownloadComplete reports an archive written to dest.
func (n *Notifier) DownloadComplete(count int, dest string) {
	n.Success("Download complete", fmt.Sprintf("%d file(s) saved to %s", count, shortenPath(dest)))
}

// Beep plays the system beep when desktop notifications are enabled.
func (n *Notifier) Beep() {
	if !n.IsEnabled() {
		return
	}
	_ = beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
}

func (n *Notifier) emit(level events.Level, title, message string, err error) {
	if n == nil {
		return
	}

	ev := n.logger.Info()
	switch level {
	case events.WarnLevel:
		ev = n.logger.Warn()
	case events.ErrorLevel, events.AlertLevel:
		ev = n.logger.Error()
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Str("level", level.String()).Str("title", title).Msg(message)

	n.bus.Publish(&events.NotificationEvent{
		BaseEvent: events.NewBase(events.EventNotification),
		Level:     level,
		Title:     title,
		Message:   message,
		Error:     err,
	})

	if !n.IsEnabled() {
		return
	}
	if err := n.desktop(level, title, message); err != nil {
		n.logger.Debug().Err(err).Str("title", title).Msg("desktop notification failed")
	}
}

func (n *Notifier) desktop(level events.Level, title, message string) error {
	title = constants.ApplicationName + ": " + title
	message = truncate(message, 200)
	if level == events.AlertLevel {
		if err := n.alert(title, message); err == nil {
			return nil
		}
		// fall back to a regular notification
	}
	return n.notify(title, message)
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// shortenPath abbreviates a long path for display in notifications.
func shortenPath(path string) string {
	const maxLen = 60

	if len(path) <= maxLen {
		return path
	}

	_, file := filepath.Split(path)
	parentDir := filepath.Base(filepath.Dir(path))
	short := filepath.Join("...", parentDir, file)

	vol := filepath.VolumeName(path)
	if vol != "" && len(vol)+len(short)+1 <= maxLen {
		short = vol + string(filepath.Separator) + short
	}

	if len(short) > maxLen {
		return "..." + path[len(path)-(maxLen-3):]
	}

	return short
}
