package risk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRisk(id, dept string, created time.Time) Risk {
	return Risk{
		ID:                          id,
		DepartmentID:                dept,
		ExpectedProblem:             "Power failure in " + dept,
		Impact:                      "Service interruption",
		Severity:                    SeverityMedium,
		EstimatedResolutionDuration: 2,
		ResolutionDurationUnit:      UnitWeeks,
		Status:                      StatusOpen,
		CreatedBy:                   "alice",
		UpdatedBy:                   "alice",
		CreatedAt:                   created,
		UpdatedAt:                   created,
	}
}

func TestMemoryCreateDefaults(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.Create(context.Background(), seedRisk("r-1", "it", time.Now())))

	r, err := m.Load(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Version)
	assert.Equal(t, Unlocked{}, r.Lock)
	assert.Equal(t, 336, r.ResolutionHours())

	assert.Error(t, m.Create(context.Background(), seedRisk("r-1", "it", time.Now())))
}

func TestMemoryAtomicUpdateKeepsImmutableFields(t *testing.T) {
	m := NewMemoryStore()
	created := time.Now()
	require.NoError(t, m.Create(context.Background(), seedRisk("r-1", "it", created)))

	r, err := m.AtomicUpdate(context.Background(), "r-1", 1, func(r *Risk) error {
		r.DepartmentID = "hr"
		r.CreatedBy = "mallory"
		r.UpdatedBy = "bob"
		r.UpdatedAt = created.Add(-time.Hour)
		r.Severity = SeverityCritical
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "it", r.DepartmentID)
	assert.Equal(t, "alice", r.CreatedBy)
	assert.Equal(t, "bob", r.UpdatedBy)
	assert.Equal(t, SeverityCritical, r.Severity)
	assert.False(t, r.UpdatedAt.Before(created), "updated_at must not go backwards")
	assert.Equal(t, int64(2), r.Version)
}

func TestMemoryAtomicUpdateConflictAndNotFound(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.Create(context.Background(), seedRisk("r-1", "it", time.Now())))

	_, err := m.AtomicUpdate(context.Background(), "r-1", 7, func(*Risk) error { return nil })
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = m.AtomicUpdate(context.Background(), "nope", 1, func(*Risk) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAtomicUpdateMutationErrorLeavesRecord(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.Create(context.Background(), seedRisk("r-1", "it", time.Now())))
	boom := errors.New("rejected")

	_, err := m.AtomicUpdate(context.Background(), "r-1", 1, func(r *Risk) error {
		r.Status = StatusClosed
		return boom
	})
	assert.ErrorIs(t, err, boom)

	r, err := m.Load(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, r.Status)
	assert.Equal(t, int64(1), r.Version)
}

func TestMemoryCompareAndSetSingleWinner(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.Create(context.Background(), seedRisk("r-1", "it", time.Now())))

	const workers = 32
	var wins, conflicts int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := m.AtomicUpdate(context.Background(), "r-1", 1, func(r *Risk) error {
				r.Lock = Locked{By: "admin", At: time.Now()}
				return nil
			})
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, ErrVersionConflict):
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(workers-1), conflicts)
}

func TestMemoryListFiltersAndOrders(t *testing.T) {
	m := NewMemoryStore()
	base := time.Now()
	first := seedRisk("r-1", "it", base)
	second := seedRisk("r-2", "it", base.Add(time.Minute))
	second.Severity = SeverityCritical
	second.MitigationNotes = "Install backup generator"
	third := seedRisk("r-3", "hr", base.Add(2*time.Minute))
	for _, r := range []Risk{first, second, third} {
		require.NoError(t, m.Create(context.Background(), r))
	}

	all, total, err := m.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"r-3", "r-2", "r-1"}, ids(all))

	it, total, err := m.List(context.Background(), Filter{DepartmentID: "it"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"r-2", "r-1"}, ids(it))

	found, _, err := m.List(context.Background(), Filter{Search: "GENERATOR"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r-2"}, ids(found))

	page, total, err := m.List(context.Background(), Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"r-2"}, ids(page))

	empty, _, err := m.List(context.Background(), Filter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDurationUnitHours(t *testing.T) {
	assert.Equal(t, 5, UnitHours.Hours(5))
	assert.Equal(t, 48, UnitDays.Hours(2))
	assert.Equal(t, 168, UnitWeeks.Hours(1))
	assert.Equal(t, 0, DurationUnit("MONTHS").Hours(1))
}

func ids(risks []Risk) []string {
	out := make([]string, 0, len(risks))
	for _, r := range risks {
		out = append(out, r.ID)
	}
	return out
}
