package audit

import (
	"context"
	"sync"
)

// InMemory keeps entries in process memory. It backs tests and the dev
// server; production uses the pg-backed recorder.
type InMemory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (m *InMemory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *InMemory) List(_ context.Context, f Filter) ([]Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]Entry, 0, len(m.entries))
	// newest first
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		matched = append(matched, e)
	}
	total := len(matched)

	offset := f.Offset
	if offset > total {
		offset = total
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
