// Package session tracks in-flight engine runs and enforces the single
// writer rule: at most one run (query or resume) may hold a conversation
// thread at a time. Slots live in memory; the engine process is the only
// writer of run state, so there is nothing to coordinate across instances.
package session

import (
	"errors"
	"time"
)

// ErrThreadBusy is returned by Begin when a run already holds the thread.
// The API layer maps it to HTTP 409.
var ErrThreadBusy = errors.New("a run is already active for this thread")

// Kind says what the run is doing with the thread.
type Kind string

const (
	KindQuery  Kind = "query"
	KindResume Kind = "resume"
)

// Run is a snapshot of one in-flight engine run.
type Run struct {
	ThreadID  string    `json:"thread_id"`
	RunID     string    `json:"run_id"`
	Kind      Kind      `json:"kind"`
	Question  string    `json:"question,omitempty"`
	StartedAt time.Time `json:"started_at"`
}
