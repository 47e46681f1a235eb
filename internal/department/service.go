package department

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service defines department operations. Mutations are reserved to Admin.
type Service interface {
	Get(ctx context.Context, id string) (Department, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, includeInactive bool) ([]Department, error)
	Create(ctx context.Context, actor identity.Identity, input CreateInput) (Department, error)
	Activate(ctx context.Context, actor identity.Identity, id string) (Department, error)
	Deactivate(ctx context.Context, actor identity.Identity, id string) (Department, error)
	Stats(ctx context.Context, actor identity.Identity, id string) (Stats, error)
}

type service struct {
	store    Store
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a department service.
func NewService(store Store, logger *zap.Logger) Service {
	return &service{
		store:    store,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Get(ctx context.Context, id string) (Department, error) {
	d, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Department{}, apperr.NotFound("department", id)
	}
	return d, err
}

func (s *service) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) List(ctx context.Context, includeInactive bool) ([]Department, error) {
	return s.store.List(ctx, includeInactive)
}

func (s *service) Create(ctx context.Context, actor identity.Identity, input CreateInput) (Department, error) {
	if !actor.IsAdmin() {
		return Department{}, apperr.PermissionDenied("role_not_permitted")
	}
	input.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	input.Name = strings.TrimSpace(input.Name)
	if err := s.validate.Struct(input); err != nil {
		return Department{}, apperr.Validationf(err, "invalid department input")
	}

	now := s.now()
	d := Department{
		ID:           uuid.NewString(),
		Code:         input.Code,
		Name:         input.Name,
		Description:  input.Description,
		HeadName:     input.HeadName,
		ContactEmail: input.ContactEmail,
		ContactPhone: input.ContactPhone,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, d); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return Department{}, apperr.Validation(err.Error())
		}
		return Department{}, err
	}
	s.logger.Info("department created", zap.String("actor", actor.ID), zap.String("code", d.Code))
	return d, nil
}

func (s *service) Activate(ctx context.Context, actor identity.Identity, id string) (Department, error) {
	return s.setActive(ctx, actor, id, true)
}

func (s *service) Deactivate(ctx context.Context, actor identity.Identity, id string) (Department, error) {
	return s.setActive(ctx, actor, id, false)
}

func (s *service) setActive(ctx context.Context, actor identity.Identity, id string, active bool) (Department, error) {
	if !actor.IsAdmin() {
		return Department{}, apperr.PermissionDenied("role_not_permitted")
	}
	now := s.now()
	if err := s.store.SetActive(ctx, id, active, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Department{}, apperr.NotFound("department", id)
		}
		return Department{}, err
	}
	s.logger.Info("department activation changed",
		zap.String("actor", actor.ID),
		zap.String("department", id),
		zap.Bool("active", active),
	)
	return s.Get(ctx, id)
}

func (s *service) Stats(ctx context.Context, actor identity.Identity, id string) (Stats, error) {
	switch role := actor.Role.(type) {
	case identity.Admin, identity.Viewer:
	case identity.DepartmentUser:
		if role.Department == "" {
			return Stats{}, apperr.PermissionDenied("no_department")
		}
		if role.Department != id {
			return Stats{}, apperr.PermissionDenied("department_scope")
		}
	default:
		return Stats{}, apperr.PermissionDenied("unknown_role")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return Stats{}, err
	}
	return s.store.Stats(ctx, id)
}
