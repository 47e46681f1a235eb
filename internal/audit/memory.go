package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process append-only Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryStore) Query(_ context.Context, params QueryParams) ([]Entry, int, error) {
	m.mu.Lock()
	matched := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if matchesParams(e, params) {
			matched = append(matched, e)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	total := len(matched)
	if params.Offset > 0 {
		if params.Offset >= len(matched) {
			return []Entry{}, total, nil
		}
		matched = matched[params.Offset:]
	}
	if params.Limit > 0 && params.Limit < len(matched) {
		matched = matched[:params.Limit]
	}
	return matched, total, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

// Entries returns every entry in append order.
func (m *MemoryStore) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func matchesParams(e Entry, p QueryParams) bool {
	if p.ActorID != nil && e.ActorID != *p.ActorID {
		return false
	}
	if p.RiskID != nil && (e.RiskID == nil || *e.RiskID != *p.RiskID) {
		return false
	}
	if p.Action != nil && e.Action != *p.Action {
		return false
	}
	if p.Outcome != nil && string(e.Outcome) != *p.Outcome {
		return false
	}
	if p.Type != nil && string(e.Type) != *p.Type {
		return false
	}
	if p.StartTime != nil && e.Timestamp.Before(*p.StartTime) {
		return false
	}
	if p.EndTime != nil && e.Timestamp.After(*p.EndTime) {
		return false
	}
	return true
}
