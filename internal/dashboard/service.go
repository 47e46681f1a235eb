package dashboard

import (
	"context"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/dhawalhost/riskregister/internal/risk"
	"go.uber.org/zap"
)

// Service builds role-scoped dashboards.
type Service interface {
	Summary(ctx context.Context, actor identity.Identity) (Summary, error)
}

type service struct {
	store  Store
	risks  RecentLister
	logger *zap.Logger
}

// NewService creates a dashboard service.
func NewService(store Store, risks RecentLister, logger *zap.Logger) Service {
	return &service{store: store, risks: risks, logger: logger}
}

// Summary returns organization-wide figures for Admin and Viewer and the
// caller's own department for a DepartmentUser. A DepartmentUser without a
// department gets an empty summary.
func (s *service) Summary(ctx context.Context, actor identity.Identity) (Summary, error) {
	var departmentID string
	var withBreakdown bool
	switch role := actor.Role.(type) {
	case identity.Admin, identity.Viewer:
		withBreakdown = true
	case identity.DepartmentUser:
		if role.Department == "" {
			return emptySummary(ScopeNone), nil
		}
		departmentID = role.Department
	default:
		return Summary{}, apperr.PermissionDenied("unknown_role")
	}

	out := emptySummary(ScopeAll)
	if departmentID != "" {
		out.Scope = ScopeDepartment
		out.DepartmentID = departmentID
	}

	buckets, err := s.store.Buckets(ctx, departmentID)
	if err != nil {
		return Summary{}, err
	}
	out.fold(buckets)

	if withBreakdown {
		depts, err := s.store.Departments(ctx)
		if err != nil {
			return Summary{}, err
		}
		out.Departments = depts
	}

	recent, _, err := s.risks.List(ctx, risk.Filter{DepartmentID: departmentID, Limit: recentLimit})
	if err != nil {
		return Summary{}, err
	}
	out.Recent = recent

	s.logger.Debug("dashboard computed",
		zap.String("actor", actor.ID),
		zap.String("scope", out.Scope),
		zap.Int("total", out.Total),
	)
	return out, nil
}
