package checkpoint

import (
	"context"
	"fmt"
	"sync"

	"agentstation/internal/state"
)

// MemoryStore is an in-process Store used by tests and the offline demo
// mode. Snapshots are stored as serialized bytes so Get returns an
// independent copy, matching the durable store's semantics.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, threadID string, st *state.AgentState) error {
	data, err := st.Marshal()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[threadKey(threadID)] = data
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, threadID string) (*state.AgentState, error) {
	s.mu.RLock()
	data, ok := s.data[threadKey(threadID)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	return state.Unmarshal(data)
}

func (s *MemoryStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, threadKey(threadID))
	return nil
}

func (s *MemoryStore) Close() error { return nil }
