// Package events provides the in-process event bus that connects the drive
// store, the upload queue and the notifier to whatever renders them.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescale/drivectl/internal/constants"
)

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to one or more event types.
// The returned channel is closed when the bus closes.
func (eb *EventBus) Subscribe(types ...EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	for _, t := range types {
		eb.subscribers[t] = append(eb.subscribers[t], ch)
	}
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers. It never blocks: a subscriber
// with a full buffer loses the event and the drop counter is incremented.
// Publishing on a nil bus is a no-op so components can run without one.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		eb.send(ch, event)
	}
	for _, ch := range eb.all {
		eb.send(ch, event)
	}
}

func (eb *EventBus) send(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		eb.droppedEvents.Add(1)
	}
}

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level Level, source, message string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()},
		Level:     level,
		Message:   message,
		Source:    source,
		Error:     err,
	})
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	// a channel subscribed to several types must be closed once
	seen := make(map[chan Event]bool)
	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			if !seen[ch] {
				seen[ch] = true
				close(ch)
			}
		}
	}
	for _, ch := range eb.all {
		close(ch)
	}
}

// Unsubscribe removes a subscription channel from every event type and from
// the all-events list. The channel is not closed.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		kept := subscribers[:0]
		for _, subCh := range subscribers {
			if subCh != ch {
				kept = append(kept, subCh)
			}
		}
		eb.subscribers[eventType] = kept
	}

	kept := eb.all[:0]
	for _, subCh := range eb.all {
		if subCh != ch {
			kept = append(kept, subCh)
		}
	}
	eb.all = kept
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
