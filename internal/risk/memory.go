package risk

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. Compare-and-set runs under a single mutex.
type MemoryStore struct {
	mu    sync.Mutex
	risks map[string]Risk
}

// NewMemoryStore creates an empty in-memory risk store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{risks: make(map[string]Risk)}
}

func (m *MemoryStore) Load(_ context.Context, id string) (Risk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.risks[id]
	if !ok {
		return Risk{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) Create(_ context.Context, r Risk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.risks[r.ID]; exists {
		return fmt.Errorf("insert risk: duplicate id %s", r.ID)
	}
	if r.Version == 0 {
		r.Version = 1
	}
	if r.Lock == nil {
		r.Lock = Unlocked{}
	}
	m.risks[r.ID] = r
	return nil
}

func (m *MemoryStore) AtomicUpdate(_ context.Context, id string, expectedVersion int64, mutate func(*Risk) error) (Risk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.risks[id]
	if !ok {
		return Risk{}, ErrNotFound
	}
	if current.Version != expectedVersion {
		return Risk{}, ErrVersionConflict
	}
	next, err := applyMutation(current, mutate)
	if err != nil {
		return Risk{}, err
	}
	m.risks[id] = next
	return next, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.risks[id]; !ok {
		return ErrNotFound
	}
	delete(m.risks, id)
	return nil
}

func (m *MemoryStore) List(_ context.Context, filter Filter) ([]Risk, int, error) {
	m.mu.Lock()
	matched := make([]Risk, 0, len(m.risks))
	for _, r := range m.risks {
		if matches(r, filter) {
			matched = append(matched, r)
		}
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []Risk{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func matches(r Risk, filter Filter) bool {
	if filter.DepartmentID != "" && r.DepartmentID != filter.DepartmentID {
		return false
	}
	if filter.Severity != "" && r.Severity != filter.Severity {
		return false
	}
	if filter.Status != "" && r.Status != filter.Status {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Search)); q != "" {
		return strings.Contains(strings.ToLower(r.ExpectedProblem), q) ||
			strings.Contains(strings.ToLower(r.Impact), q) ||
			strings.Contains(strings.ToLower(r.MitigationNotes), q)
	}
	return true
}
