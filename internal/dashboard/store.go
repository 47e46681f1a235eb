package dashboard

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const bucketQuery = `SELECT status, severity, COUNT(*) AS n,
	COALESCE(SUM(CASE WHEN locked THEN 1 ELSE 0 END), 0) AS locked_n,
	COALESCE(SUM(CASE resolution_duration_unit
		WHEN 'WEEKS' THEN CAST(estimated_resolution_duration AS BIGINT) * 168
		WHEN 'DAYS' THEN CAST(estimated_resolution_duration AS BIGINT) * 24
		ELSE CAST(estimated_resolution_duration AS BIGINT) END), 0) AS hours
	FROM risks`

const departmentQuery = `SELECT d.id, d.code, d.name,
	COUNT(r.id) AS total,
	COALESCE(SUM(CASE WHEN r.status = ? THEN 1 ELSE 0 END), 0) AS open,
	COALESCE(SUM(CASE WHEN r.severity = ? THEN 1 ELSE 0 END), 0) AS critical
	FROM departments d LEFT JOIN risks r ON r.department_id = d.id
	WHERE d.active = ?
	GROUP BY d.id, d.code, d.name
	ORDER BY d.name`

type store struct {
	db *sqlx.DB
}

// NewStore creates a SQL-backed dashboard store.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func (s *store) Buckets(ctx context.Context, departmentID string) ([]Bucket, error) {
	query := bucketQuery
	var args []any
	if departmentID != "" {
		query += " WHERE department_id = ?"
		args = append(args, departmentID)
	}
	query += " GROUP BY status, severity"

	var out []Bucket
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("risk buckets: %w", err)
	}
	return out, nil
}

func (s *store) Departments(ctx context.Context) ([]DepartmentSummary, error) {
	var out []DepartmentSummary
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(departmentQuery), "OPEN", "CRITICAL", true); err != nil {
		return nil, fmt.Errorf("department breakdown: %w", err)
	}
	return out, nil
}
