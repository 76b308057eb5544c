package conversation

import (
	"context"
	"sync"
)

// Store keeps conversation state per chat for the lifetime of the process.
type Store interface {
	// Load returns Idle when the chat has no state.
	Load(ctx context.Context, chatID int64) (State, error)
	Save(ctx context.Context, chatID int64, state State) error
	Clear(ctx context.Context, chatID int64) error
}

// MemoryStore is an in-process Store safe for concurrent use across chats.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[int64]State
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]State)}
}

// Load returns the state for chatID.
func (s *MemoryStore) Load(_ context.Context, chatID int64) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, ok := s.states[chatID]; ok {
		return state, nil
	}
	return Idle{}, nil
}

// Save replaces the state for chatID. Saving Idle clears it.
func (s *MemoryStore) Save(_ context.Context, chatID int64, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == nil || state.Kind() == KindIdle {
		delete(s.states, chatID)
		return nil
	}
	if b, ok := state.(Browsing); ok {
		b.ProductIDs = append([]string(nil), b.ProductIDs...)
		state = b
	}
	s.states[chatID] = state
	return nil
}

// Clear removes the state for chatID.
func (s *MemoryStore) Clear(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, chatID)
	return nil
}

// Len returns the number of chats with non-idle state.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
