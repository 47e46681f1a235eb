// Package register is the entry point collaborators use to act on risks. Each
// operation loads the risk, asks the policy engine, applies the change under a
// compare-and-set and records the outcome.
package register

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/dhawalhost/riskregister/internal/audit"
	"github.com/dhawalhost/riskregister/internal/department"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/dhawalhost/riskregister/internal/lifecycle"
	"github.com/dhawalhost/riskregister/internal/policy"
	"github.com/dhawalhost/riskregister/internal/risk"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Service is the risk register facade.
type Service interface {
	Decide(ctx context.Context, actor identity.Identity, riskID string, action policy.Action) (policy.Decision, error)
	View(ctx context.Context, actor identity.Identity, riskID string) (risk.Risk, error)
	List(ctx context.Context, actor identity.Identity, filter ListFilter) ([]risk.Risk, int, error)
	CreateRisk(ctx context.Context, actor identity.Identity, input CreateInput) (risk.Risk, error)
	Edit(ctx context.Context, actor identity.Identity, riskID string, expectedVersion int64, input EditInput) (risk.Risk, error)
	Transition(ctx context.Context, actor identity.Identity, riskID string, to risk.Status) (risk.Risk, error)
	Lock(ctx context.Context, actor identity.Identity, riskID string) (risk.Risk, error)
	Unlock(ctx context.Context, actor identity.Identity, riskID string) (risk.Risk, error)
	Delete(ctx context.Context, actor identity.Identity, riskID string) error
}

// DepartmentLookup resolves the department a new risk is filed under.
type DepartmentLookup interface {
	Get(ctx context.Context, id string) (department.Department, error)
}

// Config wires the collaborators of the register service.
type Config struct {
	Risks       risk.Store
	Departments DepartmentLookup
	Engine      *policy.Engine
	Machine     *lifecycle.Machine
	Recorder    audit.Recorder
	Logger      *zap.Logger
	Tracer      trace.Tracer
	// Mutations counts mutation attempts by action and result. Optional.
	Mutations *prometheus.CounterVec
	Now       func() time.Time
}

type service struct {
	risks       risk.Store
	departments DepartmentLookup
	engine      *policy.Engine
	machine     *lifecycle.Machine
	recorder    audit.Recorder
	logger      *zap.Logger
	tracer      trace.Tracer
	mutations   *prometheus.CounterVec
	validate    *validator.Validate
	now         func() time.Time
}

// NewService creates the register service.
func NewService(cfg Config) Service {
	s := &service{
		risks:       cfg.Risks,
		departments: cfg.Departments,
		engine:      cfg.Engine,
		machine:     cfg.Machine,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
		tracer:      cfg.Tracer,
		mutations:   cfg.Mutations,
		validate:    validator.New(),
		now:         cfg.Now,
	}
	if s.machine == nil {
		s.machine = lifecycle.DefaultMachine()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.recorder == nil {
		s.recorder = audit.NopRecorder()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("riskregister/register")
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *service) startSpan(ctx context.Context, name string, actor identity.Identity, riskID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "register."+name, trace.WithAttributes(
		attribute.String("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.RoleKind())),
		attribute.String("risk.id", riskID),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// load fetches the risk an action targets. A missing risk is recorded as a
// denied decision so lookups of unknown ids stay visible in the trail.
func (s *service) load(ctx context.Context, actor identity.Identity, id string, action policy.Action) (risk.Risk, error) {
	r, err := s.risks.Load(ctx, id)
	if err == nil {
		return r, nil
	}
	if errors.Is(err, risk.ErrNotFound) {
		s.recorder.Record(ctx, audit.Entry{
			Type:    audit.TypeDecision,
			ActorID: actor.ID,
			RiskID:  audit.StringPtr(id),
			Action:  string(action),
			Outcome: audit.OutcomeDenied,
			Reason:  string(policy.ReasonNotFound),
		})
		s.logger.Info("risk lookup missed",
			zap.String("actor", actor.ID),
			zap.String("risk", id),
			zap.String("action", string(action)),
		)
	}
	return risk.Risk{}, storeError(err, id)
}

func (s *service) decide(ctx context.Context, actor identity.Identity, r risk.Risk, action policy.Action, detail string) error {
	return s.engine.Decide(ctx, policy.Request{
		Actor:  actor,
		RiskID: r.ID,
		Target: policy.Target{Department: r.DepartmentID, Locked: r.IsLocked()},
		Action: action,
		Detail: detail,
	}).Err()
}

func (s *service) Decide(ctx context.Context, actor identity.Identity, riskID string, action policy.Action) (policy.Decision, error) {
	ctx, span := s.startSpan(ctx, "Decide", actor, riskID)
	r, err := s.load(ctx, actor, riskID, action)
	if err != nil {
		endSpan(span, err)
		return policy.Decision{}, err
	}
	d := s.engine.Decide(ctx, policy.Request{
		Actor:  actor,
		RiskID: r.ID,
		Target: policy.Target{Department: r.DepartmentID, Locked: r.IsLocked()},
		Action: action,
	})
	span.SetAttributes(attribute.Bool("decision.allowed", d.Allowed), attribute.String("decision.reason", string(d.Reason)))
	endSpan(span, nil)
	return d, nil
}

func (s *service) View(ctx context.Context, actor identity.Identity, riskID string) (r risk.Risk, err error) {
	ctx, span := s.startSpan(ctx, "View", actor, riskID)
	defer func() { endSpan(span, err) }()

	r, err = s.load(ctx, actor, riskID, policy.ActionView)
	if err != nil {
		return risk.Risk{}, err
	}
	if err = s.decide(ctx, actor, r, policy.ActionView, ""); err != nil {
		return risk.Risk{}, err
	}
	return r, nil
}

func (s *service) List(ctx context.Context, actor identity.Identity, filter ListFilter) ([]risk.Risk, int, error) {
	f := risk.Filter{
		DepartmentID: filter.DepartmentID,
		Severity:     risk.Severity(strings.ToUpper(filter.Severity)),
		Status:       risk.Status(strings.ToUpper(filter.Status)),
		Search:       filter.Search,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}
	if f.Severity != "" && !f.Severity.Valid() {
		return nil, 0, apperr.Validation(fmt.Sprintf("unknown severity %q", filter.Severity))
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation(fmt.Sprintf("unknown status %q", filter.Status))
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	switch role := actor.Role.(type) {
	case identity.Admin, identity.Viewer:
	case identity.DepartmentUser:
		if role.Department == "" {
			return []risk.Risk{}, 0, nil
		}
		if f.DepartmentID != "" && f.DepartmentID != role.Department {
			return []risk.Risk{}, 0, nil
		}
		f.DepartmentID = role.Department
	default:
		return nil, 0, apperr.PermissionDenied(string(policy.ReasonUnknownRole))
	}

	risks, total, err := s.risks.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return risks, total, nil
}

func (s *service) CreateRisk(ctx context.Context, actor identity.Identity, input CreateInput) (r risk.Risk, err error) {
	ctx, span := s.startSpan(ctx, "CreateRisk", actor, "")
	defer func() {
		s.count(policy.ActionCreate, err)
		endSpan(span, err)
	}()

	if input.DepartmentID == "" {
		if dept, ok := actor.Department(); ok {
			input.DepartmentID = dept
		}
	}
	d := s.engine.Decide(ctx, policy.Request{
		Actor:  actor,
		Target: policy.Target{Department: input.DepartmentID},
		Action: policy.ActionCreate,
	})
	if err = d.Err(); err != nil {
		return risk.Risk{}, err
	}

	input.ExpectedProblem = strings.TrimSpace(input.ExpectedProblem)
	input.Impact = strings.TrimSpace(input.Impact)
	if input.DepartmentID == "" {
		return risk.Risk{}, apperr.Validation("department_id is required")
	}
	if err = s.validate.Struct(input); err != nil {
		return risk.Risk{}, apperr.Validationf(err, "invalid risk input")
	}
	dept, err := s.departments.Get(ctx, input.DepartmentID)
	if errors.Is(err, department.ErrNotFound) || apperr.IsKind(err, apperr.KindNotFound) {
		return risk.Risk{}, apperr.NotFound("department", input.DepartmentID)
	}
	if err != nil {
		return risk.Risk{}, err
	}
	if !dept.Active {
		return risk.Risk{}, apperr.Validation(fmt.Sprintf("department %s is inactive", dept.Code))
	}

	now := s.now()
	r = risk.Risk{
		ID:                          uuid.NewString(),
		DepartmentID:                dept.ID,
		ExpectedProblem:             input.ExpectedProblem,
		Impact:                      input.Impact,
		Severity:                    risk.Severity(input.Severity),
		EstimatedResolutionDuration: input.EstimatedResolutionDuration,
		ResolutionDurationUnit:      risk.DurationUnit(input.ResolutionDurationUnit),
		MitigationNotes:             input.MitigationNotes,
		Status:                      s.machine.Initial(),
		Lock:                        risk.Unlocked{},
		CreatedBy:                   actor.ID,
		UpdatedBy:                   actor.ID,
		CreatedAt:                   now,
		UpdatedAt:                   now,
		Version:                     1,
	}
	if err = s.risks.Create(ctx, r); err != nil {
		return risk.Risk{}, err
	}
	s.recordTransition(ctx, actor, r.ID, policy.ActionCreate, fmt.Sprintf("department=%s status=%s", dept.Code, r.Status))
	return r, nil
}

func (s *service) Edit(ctx context.Context, actor identity.Identity, riskID string, expectedVersion int64, input EditInput) (r risk.Risk, err error) {
	ctx, span := s.startSpan(ctx, "Edit", actor, riskID)
	defer func() {
		s.count(policy.ActionEdit, err)
		endSpan(span, err)
	}()

	current, err := s.load(ctx, actor, riskID, policy.ActionEdit)
	if err != nil {
		return risk.Risk{}, err
	}
	if err = s.decide(ctx, actor, current, policy.ActionEdit, ""); err != nil {
		return risk.Risk{}, err
	}
	if input.empty() {
		return risk.Risk{}, apperr.Validation("no fields to update")
	}
	if err = s.validate.Struct(input); err != nil {
		return risk.Risk{}, apperr.Validationf(err, "invalid risk input")
	}
	if current.Version != expectedVersion {
		return risk.Risk{}, apperr.Conflict(fmt.Sprintf("risk is at version %d, not %d", current.Version, expectedVersion))
	}

	now := s.now()
	r, err = s.risks.AtomicUpdate(ctx, riskID, expectedVersion, func(r *risk.Risk) error {
		if r.IsLocked() {
			return apperr.PermissionDenied(string(policy.ReasonLocked))
		}
		input.apply(r)
		r.UpdatedBy = actor.ID
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return risk.Risk{}, storeError(err, riskID)
	}
	s.recordTransition(ctx, actor, riskID, policy.ActionEdit, fmt.Sprintf("version=%d", r.Version))
	return r, nil
}

func (s *service) Transition(ctx context.Context, actor identity.Identity, riskID string, to risk.Status) (r risk.Risk, err error) {
	ctx, span := s.startSpan(ctx, "Transition", actor, riskID)
	span.SetAttributes(attribute.String("risk.status.to", string(to)))
	defer func() {
		s.count(policy.ActionTransition, err)
		endSpan(span, err)
	}()

	current, err := s.load(ctx, actor, riskID, policy.ActionTransition)
	if err != nil {
		return risk.Risk{}, err
	}
	if err = s.decide(ctx, actor, current, policy.ActionTransition, "to="+string(to)); err != nil {
		return risk.Risk{}, err
	}
	if !s.machine.CanTransition(current.Status, to) {
		return risk.Risk{}, apperr.InvalidTransition(string(current.Status), string(to))
	}

	now := s.now()
	r, err = s.risks.AtomicUpdate(ctx, riskID, current.Version, func(r *risk.Risk) error {
		return s.machine.Transition(r, to, actor.ID, now)
	})
	if err != nil {
		return risk.Risk{}, storeError(err, riskID)
	}
	s.recordTransition(ctx, actor, riskID, policy.ActionTransition, fmt.Sprintf("%s -> %s", current.Status, r.Status))
	return r, nil
}

func (s *service) Lock(ctx context.Context, actor identity.Identity, riskID string) (r risk.Risk, err error) {
	ctx, span := s.startSpan(ctx, "Lock", actor, riskID)
	defer func() {
		s.count(policy.ActionLock, err)
		endSpan(span, err)
	}()
	return s.toggleLock(ctx, actor, riskID, policy.ActionLock, lifecycle.Lock)
}

func (s *service) Unlock(ctx context.Context, actor identity.Identity, riskID string) (r risk.Risk, err error) {
	ctx, span := s.startSpan(ctx, "Unlock", actor, riskID)
	defer func() {
		s.count(policy.ActionUnlock, err)
		endSpan(span, err)
	}()
	return s.toggleLock(ctx, actor, riskID, policy.ActionUnlock, lifecycle.Unlock)
}

func (s *service) toggleLock(ctx context.Context, actor identity.Identity, riskID string, action policy.Action,
	apply func(*risk.Risk, string, time.Time) error) (risk.Risk, error) {
	current, err := s.load(ctx, actor, riskID, action)
	if err != nil {
		return risk.Risk{}, err
	}
	if err := s.decide(ctx, actor, current, action, ""); err != nil {
		return risk.Risk{}, err
	}

	now := s.now()
	r, err := s.risks.AtomicUpdate(ctx, riskID, current.Version, func(r *risk.Risk) error {
		return apply(r, actor.ID, now)
	})
	if err != nil {
		return risk.Risk{}, storeError(err, riskID)
	}
	s.recordTransition(ctx, actor, riskID, action, "")
	return r, nil
}

func (s *service) Delete(ctx context.Context, actor identity.Identity, riskID string) (err error) {
	ctx, span := s.startSpan(ctx, "Delete", actor, riskID)
	defer func() {
		s.count(policy.ActionDelete, err)
		endSpan(span, err)
	}()

	current, err := s.load(ctx, actor, riskID, policy.ActionDelete)
	if err != nil {
		return err
	}
	if err = s.decide(ctx, actor, current, policy.ActionDelete, ""); err != nil {
		return err
	}
	if err = s.risks.Delete(ctx, riskID); err != nil {
		return storeError(err, riskID)
	}
	s.recordTransition(ctx, actor, riskID, policy.ActionDelete, "status="+string(current.Status))
	return nil
}

func (s *service) recordTransition(ctx context.Context, actor identity.Identity, riskID string, action policy.Action, detail string) {
	s.recorder.Record(ctx, audit.Entry{
		Type:    audit.TypeTransition,
		ActorID: actor.ID,
		RiskID:  audit.StringPtr(riskID),
		Action:  string(action),
		Outcome: audit.OutcomeAllowed,
		Reason:  string(policy.ReasonAllowed),
		Detail:  detail,
	})
	s.logger.Info("risk mutated",
		zap.String("actor", actor.ID),
		zap.String("risk", riskID),
		zap.String("action", string(action)),
		zap.String("detail", detail),
	)
}

func (s *service) count(action policy.Action, err error) {
	if s.mutations == nil {
		return
	}
	result := "committed"
	if err != nil {
		result = string(apperr.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	s.mutations.WithLabelValues(string(action), result).Inc()
}

func storeError(err error, riskID string) error {
	switch {
	case errors.Is(err, risk.ErrNotFound):
		return apperr.NotFound("risk", riskID)
	case errors.Is(err, risk.ErrVersionConflict):
		return apperr.Conflict("risk was modified concurrently, reload and retry")
	default:
		return err
	}
}
