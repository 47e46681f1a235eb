package policy

import (
	"context"
	"time"

	"github.com/dhawalhost/riskregister/internal/audit"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Request is a single question put to the engine: may Actor perform Action on
// the risk identified by RiskID? RiskID is empty for Create.
type Request struct {
	Actor  identity.Identity
	RiskID string
	Target Target
	Action Action
	Detail string
}

// Config wires the collaborators of an Engine.
type Config struct {
	Recorder audit.Recorder
	Logger   *zap.Logger
	// Decisions counts outcomes by action, outcome and reason. Optional.
	Decisions *prometheus.CounterVec
}

// Engine evaluates requests and records exactly one audit entry per call.
type Engine struct {
	recorder  audit.Recorder
	logger    *zap.Logger
	decisions *prometheus.CounterVec
}

// NewEngine creates an Engine. A nil Recorder discards entries.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = audit.NopRecorder()
	}
	return &Engine{
		recorder:  recorder,
		logger:    logger,
		decisions: cfg.Decisions,
	}
}

// Decide evaluates req and records the outcome.
func (e *Engine) Decide(ctx context.Context, req Request) Decision {
	start := time.Now()
	decision := Evaluate(req.Actor, req.Target, req.Action)

	outcome := audit.OutcomeAllowed
	if !decision.Allowed {
		outcome = audit.OutcomeDenied
	}
	e.recorder.Record(ctx, audit.Entry{
		Type:    audit.TypeDecision,
		ActorID: req.Actor.ID,
		RiskID:  audit.StringPtr(req.RiskID),
		Action:  string(req.Action),
		Outcome: outcome,
		Reason:  string(decision.Reason),
		Detail:  req.Detail,
	})

	if e.decisions != nil {
		e.decisions.WithLabelValues(string(req.Action), string(outcome), string(decision.Reason)).Inc()
	}
	e.logger.Info("authorization decision",
		zap.String("actor", req.Actor.ID),
		zap.String("role", string(req.Actor.RoleKind())),
		zap.String("action", string(req.Action)),
		zap.String("risk", req.RiskID),
		zap.String("department", req.Target.Department),
		zap.Bool("locked", req.Target.Locked),
		zap.Bool("allowed", decision.Allowed),
		zap.String("reason", string(decision.Reason)),
		zap.Int64("duration_us", time.Since(start).Microseconds()),
	)
	return decision
}
