package audit

import (
	"context"
	"errors"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/dhawalhost/riskregister/internal/identity"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
	maxExportRows     = 10000
)

// Service exposes the audit trail to Admin and Viewer identities.
type Service interface {
	// Query retrieves entries with filtering and pagination.
	Query(ctx context.Context, actor identity.Identity, params QueryParams) ([]Entry, int, error)

	// Export retrieves up to 10 000 matching entries.
	Export(ctx context.Context, actor identity.Identity, params QueryParams) ([]Entry, error)

	// Get retrieves a single entry.
	Get(ctx context.Context, actor identity.Identity, id string) (Entry, error)
}

type service struct {
	store Store
}

// NewService creates a new audit service.
func NewService(store Store) Service {
	return &service{store: store}
}

func authorize(actor identity.Identity) error {
	switch actor.Role.(type) {
	case identity.Admin, identity.Viewer:
		return nil
	case identity.DepartmentUser:
		return apperr.PermissionDenied("role_not_permitted")
	default:
		return apperr.PermissionDenied("unknown_role")
	}
}

func (s *service) Query(ctx context.Context, actor identity.Identity, params QueryParams) ([]Entry, int, error) {
	if err := authorize(actor); err != nil {
		return nil, 0, err
	}
	if params.Limit <= 0 {
		params.Limit = defaultQueryLimit
	}
	if params.Limit > maxQueryLimit {
		params.Limit = maxQueryLimit
	}
	if params.Offset < 0 {
		params.Offset = 0
	}
	return s.store.Query(ctx, params)
}

func (s *service) Export(ctx context.Context, actor identity.Identity, params QueryParams) ([]Entry, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	params.Limit = maxExportRows
	params.Offset = 0
	entries, _, err := s.store.Query(ctx, params)
	return entries, err
}

func (s *service) Get(ctx context.Context, actor identity.Identity, id string) (Entry, error) {
	if err := authorize(actor); err != nil {
		return Entry{}, err
	}
	e, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Entry{}, apperr.NotFound("audit entry", id)
	}
	return e, err
}
