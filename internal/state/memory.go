package state

import (
	"context"
	"sync"

	"pattern-alerts/internal/alert"
)

// MemoryStore holds alert state in process memory. It is used by the
// simulate command and by tests; nothing survives the process, so the
// first cycle always notifies.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]alert.State
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]alert.State)}
}

// Load returns the held state, or the first-run state when none was saved.
func (m *MemoryStore) Load(ctx context.Context, instrument string) (alert.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[instrument]; ok {
		return st, nil
	}
	return alert.NewState(instrument), nil
}

// Save replaces the held state.
func (m *MemoryStore) Save(ctx context.Context, st alert.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.Instrument] = st
	return nil
}

var _ Store = (*MemoryStore)(nil)
