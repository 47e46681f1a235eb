package risk

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no risk matches the id.
	ErrNotFound = errors.New("risk not found")
	// ErrVersionConflict is returned when the stored version no longer matches
	// the version the caller read.
	ErrVersionConflict = errors.New("risk was modified concurrently")
	// ErrInconsistentLock is returned for a stored row whose lock columns are
	// partially set.
	ErrInconsistentLock = errors.New("inconsistent lock columns")
)

// Severity grades the impact of a risk.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every severity from lowest to highest.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	for _, known := range Severities {
		if s == known {
			return true
		}
	}
	return false
}

// Status is the lifecycle position of a risk.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusClosed     Status = "CLOSED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// DurationUnit is the unit of an estimated resolution duration.
type DurationUnit string

const (
	UnitHours DurationUnit = "HOURS"
	UnitDays  DurationUnit = "DAYS"
	UnitWeeks DurationUnit = "WEEKS"
)

// Hours converts n units to hours. Unknown units convert to 0.
func (u DurationUnit) Hours(n int) int {
	switch u {
	case UnitHours:
		return n
	case UnitDays:
		return n * 24
	case UnitWeeks:
		return n * 24 * 7
	default:
		return 0
	}
}

// LockState is either Unlocked or Locked. Locked always carries both the
// locking identity and the time; there is no partially locked value.
type LockState interface {
	IsLocked() bool
	isLockState()
}

// Unlocked is the lock state of an editable risk.
type Unlocked struct{}

// Locked freezes a risk until an Admin unlocks it.
type Locked struct {
	By string
	At time.Time
}

func (Unlocked) IsLocked() bool { return false }
func (Locked) IsLocked() bool   { return true }

func (Unlocked) isLockState() {}
func (Locked) isLockState()   {}

// Risk is a single risk record owned by one department.
type Risk struct {
	ID                          string       `json:"id"`
	DepartmentID                string       `json:"department_id"`
	ExpectedProblem             string       `json:"expected_problem"`
	Impact                      string       `json:"impact"`
	Severity                    Severity     `json:"severity"`
	EstimatedResolutionDuration int          `json:"estimated_resolution_duration"`
	ResolutionDurationUnit      DurationUnit `json:"resolution_duration_unit"`
	MitigationNotes             string       `json:"mitigation_notes,omitempty"`
	Status                      Status       `json:"status"`
	Lock                        LockState    `json:"-"`
	CreatedBy                   string       `json:"created_by"`
	UpdatedBy                   string       `json:"updated_by"`
	CreatedAt                   time.Time    `json:"created_at"`
	UpdatedAt                   time.Time    `json:"updated_at"`
	Version                     int64        `json:"version"`
}

// ResolutionHours returns the estimated resolution time in hours.
func (r Risk) ResolutionHours() int {
	return r.ResolutionDurationUnit.Hours(r.EstimatedResolutionDuration)
}

// IsLocked reports whether the risk is currently locked.
func (r Risk) IsLocked() bool {
	return r.Lock != nil && r.Lock.IsLocked()
}

// Filter narrows a risk listing. Empty fields match everything.
type Filter struct {
	DepartmentID string
	Severity     Severity
	Status       Status
	Search       string
	Limit        int
	Offset       int
}

// Store is the persistence collaborator for risks.
type Store interface {
	Load(ctx context.Context, id string) (Risk, error)
	Create(ctx context.Context, r Risk) error
	// AtomicUpdate applies mutate to the stored risk only if its version still
	// equals expectedVersion, and bumps the version on commit. An error from
	// mutate aborts the update and is returned unchanged.
	AtomicUpdate(ctx context.Context, id string, expectedVersion int64, mutate func(*Risk) error) (Risk, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter Filter) ([]Risk, int, error)
}

// applyMutation runs mutate on a copy of current and restores the fields that
// never change after creation.
func applyMutation(current Risk, mutate func(*Risk) error) (Risk, error) {
	next := current
	if err := mutate(&next); err != nil {
		return Risk{}, err
	}
	next.ID = current.ID
	next.DepartmentID = current.DepartmentID
	next.CreatedBy = current.CreatedBy
	next.CreatedAt = current.CreatedAt
	if next.Lock == nil {
		next.Lock = Unlocked{}
	}
	if next.UpdatedAt.Before(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt
	}
	next.Version = current.Version + 1
	return next, nil
}
