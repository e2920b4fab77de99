package audit

import (
	"context"
	"sync"

	"loginguard/internal/models"
)

// MemoryStore keeps the most recent events in process memory. Data is lost on
// restart.
type MemoryStore struct {
	mu        sync.RWMutex
	events    []*models.BlockEvent // oldest first
	maxEvents int
	closed    bool
}

// NewMemoryStore creates a store holding at most maxEvents events. Zero means
// unbounded.
func NewMemoryStore(maxEvents int) *MemoryStore {
	return &MemoryStore{maxEvents: maxEvents}
}

func (m *MemoryStore) Record(ctx context.Context, ev *models.BlockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	// Store a copy to prevent external modification
	evCopy := *ev
	m.events = append(m.events, &evCopy)
	if m.maxEvents > 0 && len(m.events) > m.maxEvents {
		drop := len(m.events) - m.maxEvents
		copy(m.events, m.events[drop:])
		for i := len(m.events) - drop; i < len(m.events); i++ {
			m.events[i] = nil
		}
		m.events = m.events[:len(m.events)-drop]
	}
	return nil
}

func (m *MemoryStore) List(ctx context.Context, filter models.BlockEventFilter) ([]*models.BlockEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	out := make([]*models.BlockEvent, 0)
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		if !filter.Matches(ev) {
			continue
		}
		evCopy := *ev
		out = append(out, &evCopy)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.events = nil
	return nil
}
