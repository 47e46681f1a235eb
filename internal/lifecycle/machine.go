// Package lifecycle holds the status state machine of a risk and its
// orthogonal lock axis. Every function here mutates only the risk it is given;
// persisting the result is the caller's job.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/dhawalhost/riskregister/internal/risk"
)

// Machine moves a risk forward through an ordered list of statuses, one step
// at a time.
type Machine struct {
	order []risk.Status
	rank  map[risk.Status]int
}

// NewMachine builds a machine over the given status order.
func NewMachine(order ...risk.Status) (*Machine, error) {
	if len(order) < 2 {
		return nil, fmt.Errorf("lifecycle needs at least two statuses, got %d", len(order))
	}
	rank := make(map[risk.Status]int, len(order))
	for i, s := range order {
		if s == "" {
			return nil, fmt.Errorf("lifecycle status %d is empty", i)
		}
		if _, dup := rank[s]; dup {
			return nil, fmt.Errorf("lifecycle status %s listed twice", s)
		}
		rank[s] = i
	}
	return &Machine{order: append([]risk.Status(nil), order...), rank: rank}, nil
}

// DefaultMachine is Open → InProgress → Resolved → Closed.
func DefaultMachine() *Machine {
	m, err := NewMachine(risk.Statuses...)
	if err != nil {
		panic(err)
	}
	return m
}

// Initial is the status of a newly created risk.
func (m *Machine) Initial() risk.Status {
	return m.order[0]
}

// Terminal is the last status of the machine.
func (m *Machine) Terminal() risk.Status {
	return m.order[len(m.order)-1]
}

// Next returns the only status reachable from from.
func (m *Machine) Next(from risk.Status) (risk.Status, bool) {
	i, ok := m.rank[from]
	if !ok || i == len(m.order)-1 {
		return "", false
	}
	return m.order[i+1], true
}

// Known reports whether s belongs to the machine.
func (m *Machine) Known(s risk.Status) bool {
	_, ok := m.rank[s]
	return ok
}

// CanTransition reports whether from → to is exactly one step forward.
func (m *Machine) CanTransition(from, to risk.Status) bool {
	next, ok := m.Next(from)
	return ok && next == to
}

// Transition moves r to the next status. A locked risk is refused before
// the status order is checked.
func (m *Machine) Transition(r *risk.Risk, to risk.Status, actor string, now time.Time) error {
	if r.IsLocked() {
		return apperr.PermissionDenied("locked")
	}
	if !m.CanTransition(r.Status, to) {
		return apperr.InvalidTransition(string(r.Status), string(to))
	}
	r.Status = to
	touch(r, actor, now)
	return nil
}

// Lock freezes r. Locking a locked risk is a conflict.
func Lock(r *risk.Risk, actor string, now time.Time) error {
	if r.IsLocked() {
		return apperr.Conflict("risk is already locked")
	}
	r.Lock = risk.Locked{By: actor, At: now}
	touch(r, actor, now)
	return nil
}

// Unlock clears the lock of r. Unlocking an unlocked risk is a conflict.
func Unlock(r *risk.Risk, actor string, now time.Time) error {
	if !r.IsLocked() {
		return apperr.Conflict("risk is not locked")
	}
	r.Lock = risk.Unlocked{}
	touch(r, actor, now)
	return nil
}

func touch(r *risk.Risk, actor string, now time.Time) {
	r.UpdatedBy = actor
	if now.After(r.UpdatedAt) {
		r.UpdatedAt = now
	}
}
