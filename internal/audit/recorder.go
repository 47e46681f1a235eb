package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Recorder appends audit entries on a best-effort basis. Record never fails
// the caller: a store error is logged and counted.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

type recorder struct {
	store    Store
	logger   *zap.Logger
	failures prometheus.Counter
	now      func() time.Time
}

// NewRecorder creates a Recorder writing to store. failures may be nil.
func NewRecorder(store Store, logger *zap.Logger, failures prometheus.Counter) Recorder {
	return &recorder{
		store:    store,
		logger:   logger,
		failures: failures,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *recorder) Record(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	// A cancelled request must not drop its audit trail.
	if err := r.store.Append(context.WithoutCancel(ctx), e); err != nil {
		if r.failures != nil {
			r.failures.Inc()
		}
		r.logger.Error("Failed to record audit entry",
			zap.Error(err),
			zap.String("type", string(e.Type)),
			zap.String("actor", e.ActorID),
			zap.String("action", e.Action),
			zap.String("outcome", string(e.Outcome)),
		)
	}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Entry) {}

// NopRecorder returns a Recorder that drops every entry.
func NopRecorder() Recorder {
	return nopRecorder{}
}
