package state

import (
	"context"
	"sync"

	"slotgate/pkg/platform/sentinel"
)

// InMemoryStore keeps slots in a process-local map. It is the default for
// tests and single-node deployments.
type InMemoryStore struct {
	mu    sync.RWMutex
	slots map[Slot][]byte
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{slots: make(map[Slot][]byte)}
}

func (s *InMemoryStore) Get(_ context.Context, slot Slot) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.slots[slot]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *InMemoryStore) Apply(_ context.Context, writes []Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		v := make([]byte, len(w.Value))
		copy(v, w.Value)
		s.slots[w.Slot] = v
	}
	return nil
}

// InMemoryFactory hands out an independent map-backed store per instance.
type InMemoryFactory struct {
	mu     sync.Mutex
	stores map[string]*InMemoryStore
}

func NewInMemoryFactory() *InMemoryFactory {
	return &InMemoryFactory{stores: make(map[string]*InMemoryStore)}
}

func (f *InMemoryFactory) ForInstance(id string) Store {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.stores[id]; ok {
		return st
	}
	st := NewInMemory()
	f.stores[id] = st
	return st
}
