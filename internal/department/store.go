package department

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dhawalhost/riskregister/pkg/database"
	"github.com/jmoiron/sqlx"
)

const selectDepartments = `SELECT id, code, name, description, head_name, contact_email, contact_phone, active, created_at, updated_at FROM departments`

const statsQuery = `SELECT
	(SELECT COUNT(*) FROM users WHERE department_id = ? AND active = ?) AS active_users,
	(SELECT COUNT(*) FROM risks WHERE department_id = ?) AS total_risks,
	(SELECT COUNT(*) FROM risks WHERE department_id = ? AND status = ?) AS open_risks`

type store struct {
	db *sqlx.DB
}

// NewStore creates a SQL-backed department store.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func (s *store) Get(ctx context.Context, id string) (Department, error) {
	var d Department
	err := s.db.GetContext(ctx, &d, s.db.Rebind(selectDepartments+" WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Department{}, ErrNotFound
	}
	if err != nil {
		return Department{}, fmt.Errorf("load department: %w", err)
	}
	return d, nil
}

func (s *store) List(ctx context.Context, includeInactive bool) ([]Department, error) {
	query := selectDepartments
	var args []any
	if !includeInactive {
		query += " WHERE active = ?"
		args = append(args, true)
	}
	query += " ORDER BY name"

	var out []Department
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return out, nil
}

func (s *store) Create(ctx context.Context, d Department) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO departments (id, code, name, description, head_name, contact_email, contact_phone, active, created_at, updated_at)
		 VALUES (:id, :code, :name, :description, :head_name, :contact_email, :contact_phone, :active, :created_at, :updated_at)`, d)
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert department: %w", err)
	}
	return nil
}

func (s *store) SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE departments SET active = ?, updated_at = ? WHERE id = ?`),
		active, updatedAt, id)
	if err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *store) Stats(ctx context.Context, id string) (Stats, error) {
	st := Stats{DepartmentID: id}
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(statsQuery), id, true, id, id, "OPEN").
		Scan(&st.ActiveUsers, &st.TotalRisks, &st.OpenRisks)
	if err != nil {
		return Stats{}, fmt.Errorf("department stats: %w", err)
	}
	return st, nil
}
