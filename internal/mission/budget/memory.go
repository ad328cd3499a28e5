package budget

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps samples for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	samples map[Kind][]float64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{samples: make(map[Kind][]float64)}
}

func (m *MemoryStore) Samples(_ context.Context, kind Kind, window int) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.samples[kind]
	if window > 0 && len(s) > window {
		s = s[len(s)-window:]
	}
	out := slices.Clone(s)
	slices.Reverse(out)
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, kind Kind, values ...float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[kind] = append(m.samples[kind], values...)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
