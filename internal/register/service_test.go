package register

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/dhawalhost/riskregister/internal/audit"
	"github.com/dhawalhost/riskregister/internal/department"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/dhawalhost/riskregister/internal/lifecycle"
	"github.com/dhawalhost/riskregister/internal/policy"
	"github.com/dhawalhost/riskregister/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDepartments map[string]department.Department

func (f fakeDepartments) Get(_ context.Context, id string) (department.Department, error) {
	d, ok := f[id]
	if !ok {
		return department.Department{}, department.ErrNotFound
	}
	return d, nil
}

const (
	deptIT      = "dept-it"
	deptHR      = "dept-hr"
	deptArchive = "dept-archive"
)

var (
	adminA = identity.Identity{ID: "admin-a", Role: identity.Admin{}}
	adminB = identity.Identity{ID: "admin-b", Role: identity.Admin{}}
	u1     = identity.Identity{ID: "u1", Role: identity.DepartmentUser{Department: deptIT}}
	u2     = identity.Identity{ID: "u2", Role: identity.DepartmentUser{Department: deptHR}}
	noDept = identity.Identity{ID: "u3", Role: identity.DepartmentUser{}}
	viewer = identity.Identity{ID: "auditor", Role: identity.Viewer{}}
)

type fixture struct {
	svc   Service
	risks *risk.MemoryStore
	audit *audit.MemoryStore
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		risks: risk.NewMemoryStore(),
		audit: audit.NewMemoryStore(),
		clock: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	recorder := audit.NewRecorder(f.audit, zap.NewNop(), nil)
	var mu sync.Mutex
	f.svc = NewService(Config{
		Risks: f.risks,
		Departments: fakeDepartments{
			deptIT:      {ID: deptIT, Code: "IT", Name: "Information Technology", Active: true},
			deptHR:      {ID: deptHR, Code: "HR", Name: "Human Resources", Active: true},
			deptArchive: {ID: deptArchive, Code: "ARC", Name: "Archive", Active: false},
		},
		Engine:   policy.NewEngine(policy.Config{Recorder: recorder, Logger: zap.NewNop()}),
		Machine:  lifecycle.DefaultMachine(),
		Recorder: recorder,
		Logger:   zap.NewNop(),
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			f.clock = f.clock.Add(time.Minute)
			return f.clock
		},
	})
	return f
}

func validInput() CreateInput {
	return CreateInput{
		ExpectedProblem:             "Ransomware on file server",
		Impact:                      "Loss of shared documents",
		Severity:                    "HIGH",
		EstimatedResolutionDuration: 2,
		ResolutionDurationUnit:      "DAYS",
	}
}

func (f *fixture) entries(typ audit.EntryType) []audit.Entry {
	var out []audit.Entry
	for _, e := range f.audit.Entries() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestDepartmentScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r1, err := f.svc.CreateRisk(ctx, u1, validInput())
	require.NoError(t, err)
	assert.Equal(t, deptIT, r1.DepartmentID)
	assert.Equal(t, risk.StatusOpen, r1.Status)
	assert.False(t, r1.IsLocked())

	d, err := f.svc.Decide(ctx, u2, r1.ID, policy.ActionEdit)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, policy.ReasonDepartmentScope, d.Reason)

	locked, err := f.svc.Lock(ctx, adminA, r1.ID)
	require.NoError(t, err)
	assert.True(t, locked.IsLocked())

	d, err = f.svc.Decide(ctx, adminA, r1.ID, policy.ActionTransition)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, policy.ReasonLocked, d.Reason)

	_, err = f.svc.Transition(ctx, adminA, r1.ID, risk.StatusInProgress)
	assert.Equal(t, "locked", apperr.ReasonOf(err))

	_, err = f.svc.Unlock(ctx, adminA, r1.ID)
	require.NoError(t, err)

	moved, err := f.svc.Transition(ctx, adminA, r1.ID, risk.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, risk.StatusInProgress, moved.Status)
	assert.Equal(t, adminA.ID, moved.UpdatedBy)
}

func TestConcurrentLockSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.CreateRisk(ctx, adminA, func() CreateInput {
		in := validInput()
		in.DepartmentID = deptIT
		return in
	}())
	require.NoError(t, err)

	admins := []identity.Identity{adminA, adminB}
	errs := make([]error, len(admins))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, a := range admins {
		wg.Add(1)
		go func(i int, a identity.Identity) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Lock(ctx, a, r.ID)
		}(i, a)
	}
	close(start)
	wg.Wait()

	var winners []string
	for i, err := range errs {
		if err == nil {
			winners = append(winners, admins[i].ID)
			continue
		}
		assert.True(t, apperr.IsKind(err, apperr.KindConflict), "loser must see a conflict, got %v", err)
	}
	require.Len(t, winners, 1)

	stored, err := f.risks.Load(ctx, r.ID)
	require.NoError(t, err)
	lock, ok := stored.Lock.(risk.Locked)
	require.True(t, ok)
	assert.Equal(t, winners[0], lock.By)
}

func TestTransitionRacingLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		r, err := f.svc.CreateRisk(ctx, u1, validInput())
		require.NoError(t, err)

		var (
			wg               sync.WaitGroup
			locked, moved    risk.Risk
			lockErr, moveErr error
		)
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			locked, lockErr = f.svc.Lock(ctx, adminA, r.ID)
		}()
		go func() {
			defer wg.Done()
			<-start
			moved, moveErr = f.svc.Transition(ctx, u1, r.ID, risk.StatusInProgress)
		}()
		close(start)
		wg.Wait()

		for _, err := range []error{lockErr, moveErr} {
			if err == nil {
				continue
			}
			ok := apperr.IsKind(err, apperr.KindConflict) || apperr.ReasonOf(err) == "locked"
			assert.True(t, ok, "loser must see a conflict or the lock, got %v", err)
		}

		stored, err := f.risks.Load(ctx, r.ID)
		require.NoError(t, err)
		if moveErr == nil {
			assert.False(t, moved.IsLocked(), "status changed on a locked risk")
			assert.Equal(t, risk.StatusInProgress, stored.Status)
		} else {
			assert.Equal(t, risk.StatusOpen, stored.Status)
		}
		if lockErr == nil {
			assert.True(t, stored.IsLocked())
			if moveErr == nil {
				assert.Greater(t, locked.Version, moved.Version, "transition committed after the lock")
				assert.Equal(t, risk.StatusInProgress, locked.Status)
			}
		}
	}
}

func TestLockTwiceIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.CreateRisk(ctx, u1, validInput())
	require.NoError(t, err)

	_, err = f.svc.Lock(ctx, adminA, r.ID)
	require.NoError(t, err)
	_, err = f.svc.Lock(ctx, adminB, r.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	_, err = f.svc.Unlock(ctx, adminA, r.ID)
	require.NoError(t, err)
	_, err = f.svc.Unlock(ctx, adminA, r.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestLockRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.CreateRisk(ctx, u1, validInput())
	require.NoError(t, err)

	_, err = f.svc.Lock(ctx, u1, r.ID)
	assert.Equal(t, "role_not_permitted", apperr.ReasonOf(err))

	stored, err := f.risks.Load(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsLocked())
}

func TestAuditCompleteness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.CreateRisk(ctx, u1, validInput())
	require.NoError(t, err)

	calls := []struct {
		actor  identity.Identity
		action policy.Action
	}{
		{u1, policy.ActionView},
		{u2, policy.ActionView},
		{viewer, policy.ActionEdit},
		{noDept, policy.ActionTransition},
		{adminA, policy.ActionDelete},
		{u1, policy.ActionLock},
	}
	before := len(f.entries(audit.TypeDecision))
	var outcomes []bool
	for _, c := range calls {
		d, err := f.svc.Decide(ctx, c.actor, r.ID, c.action)
		require.NoError(t, err)
		outcomes = append(outcomes, d.Allowed)
	}

	decisions := f.entries(audit.TypeDecision)[before:]
	require.Len(t, decisions, len(calls))
	for i, e := range decisions {
		assert.Equal(t, calls[i].actor.ID, e.ActorID)
		assert.Equal(t, string(calls[i].action), e.Action)
		want := audit.OutcomeDenied
		if outcomes[i] {
			want = audit.OutcomeAllowed
		}
		assert.Equal(t, want, e.Outcome)
	}
}

func TestEveryAllowedMutationIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateRisk(ctx, u1, validInput())
	require.NoError(t, err)
	notes := "Offline backups tested weekly"
	r, err = f.svc.Edit(ctx, u1, r.ID, r.Version, EditInput{MitigationNotes: &notes})
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, u1, r.ID, risk.StatusInProgress)
	require.NoError(t, err)
	_, err = f.svc.Lock(ctx, adminA, r.ID)
	require.NoError(t, err)
	_, err = f.svc.Unlock(ctx, adminA, r.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, adminA, r.ID))

	var actions []string
	for _, e := range f.entries(audit.TypeTransition) {
		require.NotNil(t, e.RiskID)
		assert.Equal(t, r.ID, *e.RiskID)
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"CREATE", "EDIT", "TRANSITION", "LOCK", "UNLOCK", "DELETE"}, actions)

	// The trail survives deletion.
	riskID := r.ID
	trail, _, err := f.audit.Query(ctx, audit.QueryParams{RiskID: &riskID})
	require.NoError(t, err)
	assert.NotEmpty(t, trail)
}

func TestCreateRiskRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := validInput()
	other.DepartmentID = deptHR
	_, err := f.svc.CreateRisk(ctx, u1, other)
	assert.Equal(t, "department_scope", apperr.ReasonOf(err))

	_, err = f.svc.CreateRisk(ctx, noDept, validInput())
	assert.Equal(t, "no_department", apperr.ReasonOf(err))

	_, err = f.svc.CreateRisk(ctx, viewer, validInput())
	assert.Equal(t, "role_not_permitted", apperr.ReasonOf(err))

	_, err = f.svc.CreateRisk(ctx, adminA, validInput())
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "admin must name a department")

	archived := validInput()
	archived.DepartmentID = deptArchive
	_, err = f.svc.CreateRisk(ctx, adminA, archived)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	missing := validInput()
	missing.DepartmentID = "dept-missing"
	_, err = f.svc.CreateRisk(ctx, adminA, missing)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	bad := validInput()
	bad.Severity = "EXTREME"
	_, err = f.svc.CreateRisk(ctx, u1, bad)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	bad = validInput()
	bad.EstimatedResolutionDuration = 0
	_, err = f.svc.CreateRisk(ctx, u1, bad)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	bad = validInput()
	bad.EstimatedResolutionDuration = 1 << 40
	bad.ResolutionDurationUnit = "WEEKS"
	_, err = f.svc.CreateRisk(ctx, u1, bad)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	longest := validInput()
	longest.EstimatedResolutionDuration = 10000
	longest.ResolutionDurationUnit = "WEEKS"
	capped, err := f.svc.CreateRisk(ctx, u1, longest)
	require.NoError(t, err)
	assert.Equal(t, 1680000, capped.ResolutionHours())

	r, err := f.svc.CreateRisk(ctx, adminA, other)
	require.NoError(t, err)
	assert.Equal(t, deptHR, r.DepartmentID)
	assert.Equal(t, adminA.ID, r.CreatedBy)
	assert.Equal(t, int64(1), r.Version)
	assert.Equal(t, 48, r.ResolutionHours())
}

func TestEditRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.CreateRisk(ctx, u1, validInput())
	require.NoError(t, err)

	sev := "CRITICAL"
	_, err = f.svc.Edit(ctx, u2, r.ID, r.Version, EditInput{Severity: &sev})
	assert.Equal(t, "department_scope", apperr.ReasonOf(err))

	_, err = f.svc.Edit(ctx, u1, r.ID, r.Version+3, EditInput{Severity: &sev})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	_, err = f.svc.Edit(ctx, u1, r.ID, r.Version, EditInput{})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	blank := ""
	_, err = f.svc.Edit(ctx, u1, r.ID, r.Version, EditInput{Impact: &blank})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	huge := 20_000_000
	_, err = f.svc.Edit(ctx, u1, r.ID, r.Version, EditInput{EstimatedResolutionDuration: &huge})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	edited, err := f.svc.Edit(ctx, u1, r.ID, r.Version, EditInput{Severity: &sev})
	require.NoError(t, err)
	assert.Equal(t, risk.SeverityCritical, edited.Severity)
	assert.Equal(t, r.Version+1, edited.Version)
	assert.True(t, edited.UpdatedAt.After(r.UpdatedAt))

	_, err = f.svc.Lock(ctx, adminA, r.ID)
	require.NoError(t, err)
	low := "LOW"
	current, err := f.risks.Load(ctx, r.ID)
	require.NoError(t, err)
	_, err = f.svc.Edit(ctx, adminA, r.ID, current.Version, EditInput{Severity: &low})
	assert.Equal(t, "locked", apperr.ReasonOf(err))
}

func TestTransitionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.CreateRisk(ctx, u1, validInput())
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, u1, r.ID, risk.StatusResolved)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))

	_, err = f.svc.Transition(ctx, viewer, r.ID, risk.StatusInProgress)
	assert.True(t, apperr.IsKind(err, apperr.KindPermissionDenied))

	for _, to := range []risk.Status{risk.StatusInProgress, risk.StatusResolved, risk.StatusClosed} {
		_, err = f.svc.Transition(ctx, u1, r.ID, to)
		require.NoError(t, err)
	}
	_, err = f.svc.Transition(ctx, u1, r.ID, risk.StatusClosed)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))

	_, err = f.svc.Transition(ctx, u1, "missing", risk.StatusInProgress)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestDeleteRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.CreateRisk(ctx, u1, validInput())
	require.NoError(t, err)

	assert.Equal(t, "role_not_permitted", apperr.ReasonOf(f.svc.Delete(ctx, u1, r.ID)))

	_, err = f.svc.Lock(ctx, adminA, r.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, adminA, r.ID))

	_, err = f.svc.View(ctx, adminA, r.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestListScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateRisk(ctx, u1, validInput())
	require.NoError(t, err)
	hrInput := validInput()
	hrInput.Severity = "LOW"
	hrInput.ExpectedProblem = "Payroll data leak"
	_, err = f.svc.CreateRisk(ctx, u2, hrInput)
	require.NoError(t, err)

	all, total, err := f.svc.List(ctx, viewer, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)

	own, _, err := f.svc.List(ctx, u1, ListFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, deptIT, own[0].DepartmentID)

	foreign, total, err := f.svc.List(ctx, u1, ListFilter{DepartmentID: deptHR})
	require.NoError(t, err)
	assert.Empty(t, foreign)
	assert.Equal(t, 0, total)

	none, _, err := f.svc.List(ctx, noDept, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)

	low, _, err := f.svc.List(ctx, adminA, ListFilter{Severity: "low"})
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, deptHR, low[0].DepartmentID)

	found, _, err := f.svc.List(ctx, adminA, ListFilter{Search: "payroll"})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	_, _, err = f.svc.List(ctx, adminA, ListFilter{Status: "REOPENED"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, _, err = f.svc.List(ctx, identity.Identity{ID: "ghost"}, ListFilter{})
	assert.True(t, apperr.IsKind(err, apperr.KindPermissionDenied))
}

func TestViewScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.CreateRisk(ctx, u1, validInput())
	require.NoError(t, err)

	_, err = f.svc.View(ctx, u2, r.ID)
	assert.Equal(t, "department_scope", apperr.ReasonOf(err))

	got, err := f.svc.View(ctx, viewer, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
}

func TestMissingRiskLookupIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.View(ctx, u2, "no-such-risk")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = f.svc.Decide(ctx, viewer, "no-such-risk", policy.ActionEdit)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.True(t, apperr.IsKind(f.svc.Delete(ctx, adminA, "no-such-risk"), apperr.KindNotFound))

	decisions := f.entries(audit.TypeDecision)
	require.Len(t, decisions, 3)
	for i, want := range []struct {
		actor  string
		action policy.Action
	}{{u2.ID, policy.ActionView}, {viewer.ID, policy.ActionEdit}, {adminA.ID, policy.ActionDelete}} {
		e := decisions[i]
		assert.Equal(t, want.actor, e.ActorID)
		assert.Equal(t, string(want.action), e.Action)
		assert.Equal(t, audit.OutcomeDenied, e.Outcome)
		assert.Equal(t, string(policy.ReasonNotFound), e.Reason)
		require.NotNil(t, e.RiskID)
		assert.Equal(t, "no-such-risk", *e.RiskID)
	}
	assert.Empty(t, f.entries(audit.TypeTransition))
}
