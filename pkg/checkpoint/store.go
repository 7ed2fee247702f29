// Package checkpoint persists engine state across the human-approval gap.
// A run that stops at the approval gate writes its full state here keyed by
// thread ID; the resume path reloads it, possibly days later and possibly in
// a different process.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ecomops/opsloop/pkg/config"
	"github.com/ecomops/opsloop/pkg/models"
)

// ErrNotFound is returned by Get and Delete when no checkpoint exists for the
// thread ID.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists one state blob per thread. Last writer wins: the engine is
// the only writer for a given thread at any moment.
type Store interface {
	Put(ctx context.Context, threadID string, state *models.GraphState) error
	Get(ctx context.Context, threadID string) (*models.GraphState, error)
	Delete(ctx context.Context, threadID string) error
	Close() error
}

// New selects a backend from config. The postgres backend reuses the core
// database handle; memory and redis ignore it.
func New(cfg config.CheckpointConfig, db *sql.DB) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if db == nil {
			return nil, errors.New("checkpoint: postgres backend requires a database handle")
		}
		return NewPostgresStore(db), nil
	case "redis":
		return NewRedisStore(cfg.RedisURL, cfg.TTL)
	default:
		return nil, fmt.Errorf("checkpoint: unknown backend %q", cfg.Backend)
	}
}

// MemoryStore keeps checkpoints in a map. States are stored as JSON so every
// Put/Get hands out an isolated copy; callers can keep mutating their state
// without corrupting the stored snapshot.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store. The test default, and a
// valid single-process deployment choice when durability across restarts is
// not required.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, threadID string, state *models.GraphState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal checkpoint %s: %w", threadID, err)
	}
	s.mu.Lock()
	s.data[threadID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, threadID string) (*models.GraphState, error) {
	s.mu.RLock()
	data, ok := s.data[threadID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var state models.GraphState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint %s: %w", threadID, err)
	}
	return &state, nil
}

func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[threadID]; !ok {
		return ErrNotFound
	}
	delete(s.data, threadID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
