package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin  = identity.Identity{ID: "admin", Role: identity.Admin{}}
	viewer = identity.Identity{ID: "viewer", Role: identity.Viewer{}}
	itUser = identity.Identity{ID: "alice", Role: identity.DepartmentUser{Department: "dept-it"}}
)

func seededStore(t *testing.T, n int) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	base := time.Now()
	for i := 0; i < n; i++ {
		outcome := OutcomeAllowed
		if i%2 == 1 {
			outcome = OutcomeDenied
		}
		require.NoError(t, store.Append(context.Background(), Entry{
			ID:        fmt.Sprintf("e-%04d", i),
			Type:      TypeDecision,
			ActorID:   "alice",
			RiskID:    StringPtr("r-1"),
			Action:    "EDIT",
			Outcome:   outcome,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
	return store
}

func TestQueryRestrictedToAdminAndViewer(t *testing.T) {
	svc := NewService(seededStore(t, 3))

	_, _, err := svc.Query(context.Background(), itUser, QueryParams{})
	assert.Equal(t, "role_not_permitted", apperr.ReasonOf(err))

	_, err = svc.Export(context.Background(), identity.Identity{ID: "ghost"}, QueryParams{})
	assert.Equal(t, "unknown_role", apperr.ReasonOf(err))

	entries, total, err := svc.Query(context.Background(), viewer, QueryParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, entries, 3)
}

func TestQueryClampsLimit(t *testing.T) {
	svc := NewService(seededStore(t, 1200))

	entries, total, err := svc.Query(context.Background(), admin, QueryParams{})
	require.NoError(t, err)
	assert.Equal(t, 1200, total)
	assert.Len(t, entries, 100)

	entries, _, err = svc.Query(context.Background(), admin, QueryParams{Limit: 5000})
	require.NoError(t, err)
	assert.Len(t, entries, 1000)
}

func TestQueryFiltersOutcomeNewestFirst(t *testing.T) {
	svc := NewService(seededStore(t, 4))
	denied := string(OutcomeDenied)

	entries, total, err := svc.Query(context.Background(), admin, QueryParams{Outcome: &denied})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, entries, 2)
	assert.Equal(t, "e-0003", entries[0].ID)
	assert.Equal(t, "e-0001", entries[1].ID)
}

func TestGetEntry(t *testing.T) {
	svc := NewService(seededStore(t, 1))

	e, err := svc.Get(context.Background(), admin, "e-0000")
	require.NoError(t, err)
	assert.Equal(t, "r-1", *e.RiskID)

	_, err = svc.Get(context.Background(), admin, "missing")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
