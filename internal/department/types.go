package department

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when no department matches.
var ErrNotFound = errors.New("department not found")

// ErrDuplicate is returned by a Store when code or name is already taken.
var ErrDuplicate = errors.New("department code or name already exists")

// Department is an organizational unit owning risks.
type Department struct {
	ID           string    `json:"id" db:"id"`
	Code         string    `json:"code" db:"code"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description,omitempty" db:"description"`
	HeadName     string    `json:"head_name,omitempty" db:"head_name"`
	ContactEmail string    `json:"contact_email,omitempty" db:"contact_email"`
	ContactPhone string    `json:"contact_phone,omitempty" db:"contact_phone"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Stats summarizes a department.
type Stats struct {
	DepartmentID string `json:"department_id" db:"department_id"`
	ActiveUsers  int    `json:"active_users" db:"active_users"`
	TotalRisks   int    `json:"total_risks" db:"total_risks"`
	OpenRisks    int    `json:"open_risks" db:"open_risks"`
}

// CreateInput holds the fields of a new department.
type CreateInput struct {
	Code         string `json:"code" validate:"required,max=20,alphanum"`
	Name         string `json:"name" validate:"required,max=100"`
	Description  string `json:"description" validate:"max=2000"`
	HeadName     string `json:"head_name" validate:"max=100"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
	ContactPhone string `json:"contact_phone" validate:"max=20"`
}

// Store defines department persistence operations.
type Store interface {
	Get(ctx context.Context, id string) (Department, error)
	List(ctx context.Context, includeInactive bool) ([]Department, error)
	Create(ctx context.Context, d Department) error
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
	Stats(ctx context.Context, id string) (Stats, error)
}
