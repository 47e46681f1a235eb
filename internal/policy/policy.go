package policy

import (
	"fmt"

	"github.com/dhawalhost/riskregister/internal/apperr"
)

// Action is an operation an identity may request on a risk.
type Action string

const (
	ActionView       Action = "VIEW"
	ActionCreate     Action = "CREATE"
	ActionEdit       Action = "EDIT"
	ActionTransition Action = "TRANSITION"
	ActionDelete     Action = "DELETE"
	ActionLock       Action = "LOCK"
	ActionUnlock     Action = "UNLOCK"
)

// Actions lists every action the engine decides on.
var Actions = []Action{
	ActionView, ActionCreate, ActionEdit, ActionTransition, ActionDelete, ActionLock, ActionUnlock,
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// ParseAction converts a wire value to an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// Reason is the machine-readable code attached to every decision.
type Reason string

const (
	ReasonAllowed          Reason = "allowed"
	ReasonLocked           Reason = "locked"
	ReasonRoleNotPermitted Reason = "role_not_permitted"
	ReasonDepartmentScope  Reason = "department_scope"
	ReasonNoDepartment     Reason = "no_department"
	ReasonUnknownAction    Reason = "unknown_action"
	ReasonUnknownRole      Reason = "unknown_role"
	// ReasonNotFound is recorded for requests naming a risk that does not
	// exist. The engine never returns it.
	ReasonNotFound Reason = "not_found"
)

// Target is the part of a risk the decision depends on. For Create it names
// the department the new risk would belong to.
type Target struct {
	Department string
	Locked     bool
}

// Decision is the outcome of evaluating one request.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Err returns nil for an allowed decision and a PermissionDenied error otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.PermissionDenied(string(d.Reason))
}

func allow() Decision {
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}
