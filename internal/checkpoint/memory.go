package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-process checkpoint store for tests and ephemeral setups.
// Snapshots are kept as encoded JSON so loads exercise the same round-trip
// path as the durable stores.
//
// Memory is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	state map[string][]byte
}

// NewMemory creates an empty in-memory checkpoint store.
func NewMemory() *Memory {
	return &Memory{state: make(map[string][]byte)}
}

var _ Store = (*Memory)(nil)

// Load returns the snapshot for threadKey, or an empty state when absent.
func (m *Memory) Load(_ context.Context, threadKey string) (*State, error) {
	m.mu.RLock()
	raw, ok := m.state[threadKey]
	m.mu.RUnlock()
	if !ok {
		return &State{}, nil
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: decoding thread %s: %v", ErrIO, threadKey, err)
	}
	return &state, nil
}

// Save replaces the snapshot for threadKey.
func (m *Memory) Save(_ context.Context, threadKey string, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: encoding thread %s: %v", ErrIO, threadKey, err)
	}

	m.mu.Lock()
	m.state[threadKey] = raw
	m.mu.Unlock()
	return nil
}

// Delete removes the snapshot for threadKey; absent threads are not errors.
func (m *Memory) Delete(_ context.Context, threadKey string) error {
	m.mu.Lock()
	delete(m.state, threadKey)
	m.mu.Unlock()
	return nil
}
