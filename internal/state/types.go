// Package state provides the observable drive view-state store.
// The store emits events when state changes, so the CLI and the shell can
// subscribe and re-render.
package state

import (
	"time"

	"github.com/rescale/drivectl/internal/events"
	"github.com/rescale/drivectl/internal/filter"
	"github.com/rescale/drivectl/internal/models"
)

// State event types
const (
	// File list events
	EventFileListChanged  events.EventType = "file_list_changed"
	EventFileListLoading  events.EventType = "file_list_loading"
	EventSelectionChanged events.EventType = "selection_changed"
	EventFileLoading      events.EventType = "file_loading" // per-record action in flight
	EventViewChanged      events.EventType = "view_changed"

	// Account events
	EventStorageChanged events.EventType = "storage_changed"
)

// FileListChangedEvent is published when the file list changes.
type FileListChangedEvent struct {
	events.BaseEvent
	View  View
	Files []models.FileRecord
}

// FileListLoadingEvent is published when the global loading flag flips.
type FileListLoadingEvent struct {
	events.BaseEvent
	View    View
	Loading bool
}

// SelectionChangedEvent is published when the selection changes.
type SelectionChangedEvent struct {
	events.BaseEvent
	SelectedIDs []string
}

// FileLoadingEvent is published when one record's action starts or ends.
type FileLoadingEvent struct {
	events.BaseEvent
	FileID  string
	Loading bool
}

// ViewChangedEvent is published when the view or any local filter changes.
type ViewChangedEvent struct {
	events.BaseEvent
	View          View
	SearchQuery   string
	TypeFilter    filter.TypeFilter
	DateFilter    filter.DateFilter
	Mode          ViewMode
	CurrentFolder string
}

// StorageChangedEvent is published after the plan and usage are fetched.
type StorageChangedEvent struct {
	events.BaseEvent
	Plan  string
	Used  int64
	Total int64
}

// NewFileListChangedEvent creates a new FileListChangedEvent.
func NewFileListChangedEvent(view View, files []models.FileRecord) *FileListChangedEvent {
	return &FileListChangedEvent{
		BaseEvent: events.BaseEvent{
			EventType: EventFileListChanged,
			Time:      time.Now(),
		},
		View:  view,
		Files: files,
	}
}

// NewFileListLoadingEvent creates a new FileListLoadingEvent.
func NewFileListLoadingEvent(view View, loading bool) *FileListLoadingEvent {
	return &FileListLoadingEvent{
		BaseEvent: events.BaseEvent{
			EventType: EventFileListLoading,
			Time:      time.Now(),
		},
		View:    view,
		Loading: loading,
	}
}

// NewSelectionChangedEvent creates a new SelectionChangedEvent.
func NewSelectionChangedEvent(selectedIDs []string) *SelectionChangedEvent {
	return &SelectionChangedEvent{
		BaseEvent: events.BaseEvent{
			EventType: EventSelectionChanged,
			Time:      time.Now(),
		},
		SelectedIDs: selectedIDs,
	}
}

// NewFileLoadingEvent creates a new FileLoadingEvent.
func NewFileLoadingEvent(id string, loading bool) *FileLoadingEvent {
	return &FileLoadingEvent{
		BaseEvent: events.BaseEvent{
			EventType: EventFileLoading,
			Time:      time.Now(),
		},
		FileID:  id,
		Loading: loading,
	}
}

// NewViewChangedEvent creates a new ViewChangedEvent from a snapshot.
func NewViewChangedEvent(s Snapshot) *ViewChangedEvent {
	return &ViewChangedEvent{
		BaseEvent: events.BaseEvent{
			EventType: EventViewChanged,
			Time:      time.Now(),
		},
		View:          s.View,
		SearchQuery:   s.SearchQuery,
		TypeFilter:    s.TypeFilter,
		DateFilter:    s.DateFilter,
		Mode:          s.Mode,
		CurrentFolder: s.CurrentFolder,
	}
}

// NewStorageChangedEvent creates a new StorageChangedEvent.
func NewStorageChangedEvent(plan string, used, total int64) *StorageChangedEvent {
	return &StorageChangedEvent{
		BaseEvent: events.BaseEvent{
			EventType: EventStorageChanged,
			Time:      time.Now(),
		},
		Plan:  plan,
		Used:  used,
		Total: total,
	}
}
