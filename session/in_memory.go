package session

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/core"
)

// InMemoryStore is a volatile StateStore implementation storing checkpoints
// in a process local map. It is safe for concurrent access and best suited
// for tests or single-process runs. States are cloned on the way in and out
// to prevent external mutation of stored checkpoints.
type InMemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*core.Checkpoint
	locks       *lockTable
}

var _ core.StateStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in‑memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		checkpoints: make(map[string]*core.Checkpoint),
		locks:       newLockTable(),
	}
}

// Load returns a copy of the stored state or an empty state for unknown ids.
func (s *InMemoryStore) Load(_ context.Context, conversationID string) (*core.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cp, ok := s.checkpoints[conversationID]; ok {
		return cp.State.Clone(), nil
	}
	return core.NewConversationState(), nil
}

// Save overwrites the checkpoint for the id with a copy of state.
func (s *InMemoryStore) Save(_ context.Context, conversationID string, state *core.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := 1
	if prev, ok := s.checkpoints[conversationID]; ok {
		step = prev.Step + 1
	}
	s.checkpoints[conversationID] = &core.Checkpoint{
		ConversationID: conversationID,
		State:          state.Clone(),
		Step:           step,
		UpdatedAt:      time.Now().UTC(),
	}
	return nil
}

// Lock acquires the per-conversation lock.
func (s *InMemoryStore) Lock(ctx context.Context, conversationID string) (func(), error) {
	return s.locks.Lock(ctx, conversationID)
}

// Checkpoint returns a copy of the stored checkpoint and whether it exists.
func (s *InMemoryStore) Checkpoint(conversationID string) (*core.Checkpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[conversationID]
	if !ok {
		return nil, false
	}
	clone := *cp
	clone.State = cp.State.Clone()
	return &clone, true
}

// Delete removes the checkpoint for the id. Deleting an unknown id is a no-op.
func (s *InMemoryStore) Delete(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, conversationID)
}
