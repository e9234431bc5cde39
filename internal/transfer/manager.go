package transfer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/rescale/drivectl/internal/constants"
)

// Manager bounds how many uploads run at once.
type Manager struct {
	slots  *semaphore.Weighted
	max    int
	active atomic.Int64
	total  atomic.Uint64
}

// NewManager creates a manager with maxConcurrent slots. Values outside
// 1..MaxUploadConcurrency fall back to the default or the cap.
func NewManager(maxConcurrent int) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = constants.DefaultUploadConcurrency
	}
	if maxConcurrent > constants.MaxUploadConcurrency {
		maxConcurrent = constants.MaxUploadConcurrency
	}
	return &Manager{
		slots: semaphore.NewWeighted(int64(maxConcurrent)),
		max:   maxConcurrent,
	}
}

// Acquire blocks until a slot is free or ctx is done.
// The returned Transfer must be completed to release the slot.
func (m *Manager) Acquire(ctx context.Context, name string) (*Transfer, error) {
	if err := m.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for upload slot: %w", err)
	}
	m.active.Add(1)
	return &Transfer{
		id:   fmt.Sprintf("transfer-%d", m.total.Add(1)),
		name: name,
		mgr:  m,
	}, nil
}

// GetStats returns current transfer manager statistics
func (m *Manager) GetStats() ManagerStats {
	active := int(m.active.Load())
	return ManagerStats{
		MaxConcurrent:   m.max,
		ActiveTransfers: active,
		AvailableSlots:  m.max - active,
	}
}

// ManagerStats holds statistics about the transfer manager
type ManagerStats struct {
	MaxConcurrent   int
	ActiveTransfers int
	AvailableSlots  int
}

// Transfer is a held upload slot
type Transfer struct {
	id        string
	name      string
	mgr       *Manager
	mu        sync.Mutex
	completed bool
}

// Complete releases the slot. Calling it twice is harmless.
func (t *Transfer) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.completed {
		t.mgr.active.Add(-1)
		t.mgr.slots.Release(1)
		t.completed = true
	}
}

// GetID returns the transfer ID
func (t *Transfer) GetID() string {
	return t.id
}

// String returns a string representation of the transfer
func (t *Transfer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("Transfer[id=%s name=%s completed=%v]", t.id, t.name, t.completed)
}
