package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager hands out per-thread run slots.
type Manager struct {
	mu     sync.Mutex
	active map[string]*Run
}

// NewManager creates an empty run tracker.
func NewManager() *Manager {
	return &Manager{
		active: make(map[string]*Run),
	}
}

// Begin claims the run slot for a thread, returning ErrThreadBusy when
// another run holds it. The release function frees the slot; it is
// idempotent, so a deferred call after an explicit one is harmless.
func (m *Manager) Begin(threadID string, kind Kind, question string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.active[threadID]; busy {
		return nil, ErrThreadBusy
	}

	run := &Run{
		ThreadID:  threadID,
		RunID:     uuid.NewString(),
		Kind:      kind,
		Question:  question,
		StartedAt: time.Now(),
	}
	m.active[threadID] = run

	release := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Only the run that claimed the slot may free it.
		if current, ok := m.active[threadID]; ok && current.RunID == run.RunID {
			delete(m.active, threadID)
		}
	}
	return release, nil
}

// IsActive reports whether a run currently holds the thread.
func (m *Manager) IsActive(threadID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[threadID]
	return ok
}

// Active returns a snapshot of in-flight runs, oldest first.
func (m *Manager) Active() []Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]Run, 0, len(m.active))
	for _, r := range m.active {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ThreadID < runs[j].ThreadID
		}
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs
}
