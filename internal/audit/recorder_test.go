package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failingStore struct {
	MemoryStore
}

func (f *failingStore) Append(context.Context, Entry) error {
	return errors.New("disk full")
}

func TestRecorderFillsIDAndTimestamp(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, zap.NewNop(), nil)

	rec.Record(context.Background(), Entry{Type: TypeDecision, ActorID: "alice", Action: "VIEW", Outcome: OutcomeAllowed})

	entries := store.Entries()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestRecorderSwallowsStoreFailure(t *testing.T) {
	failures := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_audit_write_failures_total"})
	core, logs := observer.New(zap.ErrorLevel)
	rec := NewRecorder(&failingStore{}, zap.New(core), failures)

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), Entry{Type: TypeTransition, ActorID: "admin", Action: "LOCK", Outcome: OutcomeAllowed})
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(failures))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Failed to record audit entry", logs.All()[0].Message)
}

func TestRecorderIgnoresCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec.Record(ctx, Entry{Type: TypeDecision, ActorID: "alice", Action: "EDIT", Outcome: OutcomeDenied, Timestamp: time.Now()})
	assert.Len(t, store.Entries(), 1)
}

func TestNopRecorderDropsEntries(t *testing.T) {
	assert.NotPanics(t, func() {
		NopRecorder().Record(context.Background(), Entry{Type: TypeDecision, ActorID: "alice", Action: "VIEW"})
	})
}
