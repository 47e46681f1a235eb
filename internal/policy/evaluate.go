package policy

import "github.com/dhawalhost/riskregister/internal/identity"

// lockGated lists the actions refused while a risk is locked.
var lockGated = map[Action]bool{
	ActionEdit:       true,
	ActionTransition: true,
}

// departmentUserActions lists what a DepartmentUser may do inside their own department.
var departmentUserActions = map[Action]bool{
	ActionView:       true,
	ActionCreate:     true,
	ActionEdit:       true,
	ActionTransition: true,
}

// Evaluate applies the decision table. It has no side effects. Eligibility
// (role, then department) is checked before the lock gate.
func Evaluate(actor identity.Identity, target Target, action Action) Decision {
	if !action.Valid() {
		return deny(ReasonUnknownAction)
	}

	var eligible Decision
	switch role := actor.Role.(type) {
	case identity.Admin:
		eligible = allow()
	case identity.DepartmentUser:
		eligible = evaluateDepartmentUser(role, target, action)
	case identity.Viewer:
		if action == ActionView {
			eligible = allow()
		} else {
			eligible = deny(ReasonRoleNotPermitted)
		}
	default:
		return deny(ReasonUnknownRole)
	}

	if !eligible.Allowed {
		return eligible
	}
	if lockGated[action] && target.Locked {
		return deny(ReasonLocked)
	}
	return eligible
}

func evaluateDepartmentUser(role identity.DepartmentUser, target Target, action Action) Decision {
	if !departmentUserActions[action] {
		return deny(ReasonRoleNotPermitted)
	}
	if role.Department == "" {
		return deny(ReasonNoDepartment)
	}
	if role.Department != target.Department {
		return deny(ReasonDepartmentScope)
	}
	return allow()
}
