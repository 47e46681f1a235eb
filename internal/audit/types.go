package audit

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no entry matches the id.
var ErrNotFound = errors.New("audit entry not found")

// EntryType distinguishes policy decisions from applied mutations.
type EntryType string

const (
	TypeDecision   EntryType = "decision"
	TypeTransition EntryType = "transition"
)

// Outcome is the result recorded for an entry.
type Outcome string

const (
	OutcomeAllowed Outcome = "ALLOWED"
	OutcomeDenied  Outcome = "DENIED"
)

// Entry is an append-only audit record. RiskID is nil for actions that do
// not target an existing risk, and keeps its value after the risk is deleted.
type Entry struct {
	ID        string    `json:"id" db:"id"`
	Type      EntryType `json:"type" db:"type"`
	ActorID   string    `json:"actor_id" db:"actor_id"`
	RiskID    *string   `json:"risk_id,omitempty" db:"risk_id"`
	Action    string    `json:"action" db:"action"`
	Outcome   Outcome   `json:"outcome" db:"outcome"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	Detail    string    `json:"detail,omitempty" db:"detail"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// QueryParams holds parameters for querying audit entries.
type QueryParams struct {
	ActorID   *string
	RiskID    *string
	Action    *string
	Outcome   *string
	Type      *string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Store defines audit storage operations. There is no update or delete.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Query(ctx context.Context, params QueryParams) ([]Entry, int, error)
	Get(ctx context.Context, id string) (Entry, error)
}

// StringPtr returns a pointer to s, or nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
