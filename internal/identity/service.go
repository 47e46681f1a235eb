package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DepartmentChecker resolves department references during role assignment.
type DepartmentChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Service defines identity operations. Role and department changes go only
// through AssignRole.
type Service interface {
	Get(ctx context.Context, id string) (Identity, error)
	List(ctx context.Context, actor Identity) ([]Identity, error)
	Create(ctx context.Context, actor Identity, input CreateInput) (Identity, error)
	AssignRole(ctx context.Context, actor Identity, targetID string, input AssignRoleInput) (Identity, error)
}

// CreateInput registers a new identity record. Credentials are managed elsewhere.
type CreateInput struct {
	Username   string `json:"username" validate:"required,min=3,max=150"`
	Email      string `json:"email" validate:"omitempty,email"`
	Role       string `json:"role" validate:"required,oneof=ADMIN DEPARTMENT_USER VIEWER"`
	Department string `json:"department_id" validate:"omitempty,uuid"`
}

// AssignRoleInput replaces the role (and department) of an identity.
type AssignRoleInput struct {
	Role       string `json:"role" validate:"required,oneof=ADMIN DEPARTMENT_USER VIEWER"`
	Department string `json:"department_id" validate:"omitempty,uuid"`
}

type service struct {
	store       Store
	departments DepartmentChecker
	validate    *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates an identity service.
func NewService(store Store, departments DepartmentChecker, logger *zap.Logger) Service {
	return &service{
		store:       store,
		departments: departments,
		validate:    validator.New(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Get(ctx context.Context, id string) (Identity, error) {
	ident, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, apperr.NotFound("identity", id)
	}
	return ident, err
}

func (s *service) List(ctx context.Context, actor Identity) ([]Identity, error) {
	if !actor.IsAdmin() {
		return nil, apperr.PermissionDenied("role_not_permitted")
	}
	return s.store.List(ctx)
}

func (s *service) Create(ctx context.Context, actor Identity, input CreateInput) (Identity, error) {
	if !actor.IsAdmin() {
		return Identity{}, apperr.PermissionDenied("role_not_permitted")
	}
	input.Username = strings.TrimSpace(input.Username)
	if err := s.validate.Struct(input); err != nil {
		return Identity{}, apperr.Validationf(err, "invalid identity input")
	}
	role, err := s.resolveRole(ctx, input.Role, input.Department)
	if err != nil {
		return Identity{}, err
	}
	if _, err := s.store.GetByUsername(ctx, input.Username); err == nil {
		return Identity{}, apperr.Validation("username already exists")
	} else if !errors.Is(err, ErrNotFound) {
		return Identity{}, err
	}

	now := s.now()
	ident := Identity{
		ID:        uuid.NewString(),
		Username:  input.Username,
		Email:     input.Email,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, ident); err != nil {
		return Identity{}, err
	}
	s.logger.Info("identity created",
		zap.String("actor", actor.ID),
		zap.String("identity", ident.ID),
		zap.String("role", string(role.Kind())),
	)
	return ident, nil
}

func (s *service) AssignRole(ctx context.Context, actor Identity, targetID string, input AssignRoleInput) (Identity, error) {
	if !actor.IsAdmin() {
		return Identity{}, apperr.PermissionDenied("role_not_permitted")
	}
	if err := s.validate.Struct(input); err != nil {
		return Identity{}, apperr.Validationf(err, "invalid role assignment")
	}
	role, err := s.resolveRole(ctx, input.Role, input.Department)
	if err != nil {
		return Identity{}, err
	}
	target, err := s.Get(ctx, targetID)
	if err != nil {
		return Identity{}, err
	}

	now := s.now()
	if err := s.store.UpdateRole(ctx, targetID, role, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, apperr.NotFound("identity", targetID)
		}
		return Identity{}, err
	}
	s.logger.Info("role assigned",
		zap.String("actor", actor.ID),
		zap.String("identity", targetID),
		zap.String("from", string(target.RoleKind())),
		zap.String("to", string(role.Kind())),
	)
	target.Role = role
	target.UpdatedAt = now
	return target, nil
}

func (s *service) resolveRole(ctx context.Context, kind, department string) (Role, error) {
	if RoleKind(kind) != KindDepartmentUser {
		department = ""
	}
	if department != "" {
		ok, err := s.departments.Exists(ctx, department)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.NotFound("department", department)
		}
	}
	role, err := NewRole(RoleKind(kind), department)
	if err != nil {
		return nil, apperr.Validationf(err, "invalid role")
	}
	return role, nil
}
