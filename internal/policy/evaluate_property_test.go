package policy

import (
	"testing"

	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var departments = []string{"", deptIT, deptHR, "dept-fin"}

func roleAt(kind, dept int) identity.Role {
	switch kind {
	case 0:
		return identity.Admin{}
	case 1:
		return identity.DepartmentUser{Department: departments[dept]}
	default:
		return identity.Viewer{}
	}
}

func TestEvaluateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	roleGen := gen.IntRange(0, 2)
	deptGen := gen.IntRange(0, len(departments)-1)
	actionGen := gen.IntRange(0, len(Actions)-1)

	properties.Property("locked risks refuse edits and transitions for every role", prop.ForAll(
		func(kind, actorDept, targetDept, action int) bool {
			a := Actions[action]
			if a != ActionEdit && a != ActionTransition {
				return true
			}
			actor := identity.Identity{ID: "x", Role: roleAt(kind, actorDept)}
			d := Evaluate(actor, Target{Department: departments[targetDept], Locked: true}, a)
			return !d.Allowed
		},
		roleGen, deptGen, deptGen, actionGen,
	))

	properties.Property("a department user without a department is never allowed", prop.ForAll(
		func(targetDept, action int, locked bool) bool {
			actor := identity.Identity{ID: "x", Role: identity.DepartmentUser{}}
			d := Evaluate(actor, Target{Department: departments[targetDept], Locked: locked}, Actions[action])
			return !d.Allowed
		},
		deptGen, actionGen, gen.Bool(),
	))

	properties.Property("a department user is never allowed outside their department", prop.ForAll(
		func(actorDept, targetDept, action int, locked bool) bool {
			if actorDept == targetDept {
				return true
			}
			actor := identity.Identity{ID: "x", Role: identity.DepartmentUser{Department: departments[actorDept]}}
			d := Evaluate(actor, Target{Department: departments[targetDept], Locked: locked}, Actions[action])
			return !d.Allowed
		},
		deptGen, deptGen, actionGen, gen.Bool(),
	))

	properties.Property("viewers may only view", prop.ForAll(
		func(targetDept, action int, locked bool) bool {
			actor := identity.Identity{ID: "x", Role: identity.Viewer{}}
			d := Evaluate(actor, Target{Department: departments[targetDept], Locked: locked}, Actions[action])
			return d.Allowed == (Actions[action] == ActionView)
		},
		deptGen, actionGen, gen.Bool(),
	))

	properties.Property("evaluation is deterministic and carries a reason", prop.ForAll(
		func(kind, actorDept, targetDept, action int, locked bool) bool {
			actor := identity.Identity{ID: "x", Role: roleAt(kind, actorDept)}
			target := Target{Department: departments[targetDept], Locked: locked}
			first := Evaluate(actor, target, Actions[action])
			second := Evaluate(actor, target, Actions[action])
			if first != second || first.Reason == "" {
				return false
			}
			return first.Allowed == (first.Reason == ReasonAllowed)
		},
		roleGen, deptGen, deptGen, actionGen, gen.Bool(),
	))

	properties.TestingRun(t)
}
