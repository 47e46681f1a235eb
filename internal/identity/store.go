package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned by a Store when no identity matches.
var ErrNotFound = errors.New("identity not found")

// Store defines identity persistence operations.
type Store interface {
	Get(ctx context.Context, id string) (Identity, error)
	GetByUsername(ctx context.Context, username string) (Identity, error)
	List(ctx context.Context) ([]Identity, error)
	Create(ctx context.Context, ident Identity) error
	UpdateRole(ctx context.Context, id string, role Role, updatedAt time.Time) error
}

type record struct {
	ID         string         `db:"id"`
	Username   string         `db:"username"`
	Email      string         `db:"email"`
	Role       string         `db:"role"`
	Department sql.NullString `db:"department_id"`
	Active     bool           `db:"active"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r record) toIdentity() (Identity, error) {
	role, err := NewRole(RoleKind(r.Role), r.Department.String)
	if err != nil {
		return Identity{}, fmt.Errorf("identity %s: %w", r.ID, err)
	}
	return Identity{
		ID:        r.ID,
		Username:  r.Username,
		Email:     r.Email,
		Role:      role,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// roleColumns splits a role into its persisted role name and department column.
func roleColumns(role Role) (string, sql.NullString) {
	if du, ok := role.(DepartmentUser); ok && du.Department != "" {
		return string(du.Kind()), sql.NullString{String: du.Department, Valid: true}
	}
	return string(role.Kind()), sql.NullString{}
}

const selectUsers = `SELECT id, username, email, role, department_id, active, created_at, updated_at FROM users`

type store struct {
	db *sqlx.DB
}

// NewStore creates a SQL-backed identity store.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func (s *store) get(ctx context.Context, where string, arg any) (Identity, error) {
	var rec record
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(selectUsers+" WHERE "+where+" = ?"), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load identity: %w", err)
	}
	return rec.toIdentity()
}

func (s *store) Get(ctx context.Context, id string) (Identity, error) {
	return s.get(ctx, "id", id)
}

func (s *store) GetByUsername(ctx context.Context, username string) (Identity, error) {
	return s.get(ctx, "username", username)
}

func (s *store) List(ctx context.Context) ([]Identity, error) {
	var recs []record
	if err := s.db.SelectContext(ctx, &recs, selectUsers+" ORDER BY username"); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	out := make([]Identity, 0, len(recs))
	for _, rec := range recs {
		ident, err := rec.toIdentity()
		if err != nil {
			return nil, err
		}
		out = append(out, ident)
	}
	return out, nil
}

func (s *store) Create(ctx context.Context, ident Identity) error {
	role, dept := roleColumns(ident.Role)
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO users (id, username, email, role, department_id, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		ident.ID, ident.Username, ident.Email, role, dept, ident.Active, ident.CreatedAt, ident.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (s *store) UpdateRole(ctx context.Context, id string, role Role, updatedAt time.Time) error {
	kind, dept := roleColumns(role)
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE users SET role = ?, department_id = ?, updated_at = ? WHERE id = ?`),
		kind, dept, updatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
