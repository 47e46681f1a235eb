package risk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const riskColumns = `id, department_id, expected_problem, impact, severity, estimated_resolution_duration,
	resolution_duration_unit, mitigation_notes, status, locked, locked_by, locked_at,
	created_by, updated_by, created_at, updated_at, version`

type record struct {
	ID                          string         `db:"id"`
	DepartmentID                string         `db:"department_id"`
	ExpectedProblem             string         `db:"expected_problem"`
	Impact                      string         `db:"impact"`
	Severity                    string         `db:"severity"`
	EstimatedResolutionDuration int            `db:"estimated_resolution_duration"`
	ResolutionDurationUnit      string         `db:"resolution_duration_unit"`
	MitigationNotes             string         `db:"mitigation_notes"`
	Status                      string         `db:"status"`
	Locked                      bool           `db:"locked"`
	LockedBy                    sql.NullString `db:"locked_by"`
	LockedAt                    sql.NullTime   `db:"locked_at"`
	CreatedBy                   string         `db:"created_by"`
	UpdatedBy                   string         `db:"updated_by"`
	CreatedAt                   time.Time      `db:"created_at"`
	UpdatedAt                   time.Time      `db:"updated_at"`
	Version                     int64          `db:"version"`
}

func newRecord(r Risk) record {
	rec := record{
		ID:                          r.ID,
		DepartmentID:                r.DepartmentID,
		ExpectedProblem:             r.ExpectedProblem,
		Impact:                      r.Impact,
		Severity:                    string(r.Severity),
		EstimatedResolutionDuration: r.EstimatedResolutionDuration,
		ResolutionDurationUnit:      string(r.ResolutionDurationUnit),
		MitigationNotes:             r.MitigationNotes,
		Status:                      string(r.Status),
		CreatedBy:                   r.CreatedBy,
		UpdatedBy:                   r.UpdatedBy,
		CreatedAt:                   r.CreatedAt,
		UpdatedAt:                   r.UpdatedAt,
		Version:                     r.Version,
	}
	if l, ok := r.Lock.(Locked); ok {
		rec.Locked = true
		rec.LockedBy = sql.NullString{String: l.By, Valid: true}
		rec.LockedAt = sql.NullTime{Time: l.At, Valid: true}
	}
	return rec
}

func (rec record) toRisk() (Risk, error) {
	var lock LockState
	switch {
	case rec.Locked && rec.LockedBy.Valid && rec.LockedAt.Valid:
		lock = Locked{By: rec.LockedBy.String, At: rec.LockedAt.Time}
	case !rec.Locked && !rec.LockedBy.Valid && !rec.LockedAt.Valid:
		lock = Unlocked{}
	default:
		return Risk{}, fmt.Errorf("risk %s: %w", rec.ID, ErrInconsistentLock)
	}
	return Risk{
		ID:                          rec.ID,
		DepartmentID:                rec.DepartmentID,
		ExpectedProblem:             rec.ExpectedProblem,
		Impact:                      rec.Impact,
		Severity:                    Severity(rec.Severity),
		EstimatedResolutionDuration: rec.EstimatedResolutionDuration,
		ResolutionDurationUnit:      DurationUnit(rec.ResolutionDurationUnit),
		MitigationNotes:             rec.MitigationNotes,
		Status:                      Status(rec.Status),
		Lock:                        lock,
		CreatedBy:                   rec.CreatedBy,
		UpdatedBy:                   rec.UpdatedBy,
		CreatedAt:                   rec.CreatedAt,
		UpdatedAt:                   rec.UpdatedAt,
		Version:                     rec.Version,
	}, nil
}

type store struct {
	db *sqlx.DB
}

// NewStore creates a SQL-backed risk store.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func (s *store) Load(ctx context.Context, id string) (Risk, error) {
	var rec record
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(`SELECT `+riskColumns+` FROM risks WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Risk{}, ErrNotFound
	}
	if err != nil {
		return Risk{}, fmt.Errorf("load risk: %w", err)
	}
	return rec.toRisk()
}

func (s *store) Create(ctx context.Context, r Risk) error {
	if r.Version == 0 {
		r.Version = 1
	}
	if r.Lock == nil {
		r.Lock = Unlocked{}
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO risks (`+riskColumns+`) VALUES (
		:id, :department_id, :expected_problem, :impact, :severity, :estimated_resolution_duration,
		:resolution_duration_unit, :mitigation_notes, :status, :locked, :locked_by, :locked_at,
		:created_by, :updated_by, :created_at, :updated_at, :version)`, newRecord(r))
	if err != nil {
		return fmt.Errorf("insert risk: %w", err)
	}
	return nil
}

func (s *store) AtomicUpdate(ctx context.Context, id string, expectedVersion int64, mutate func(*Risk) error) (Risk, error) {
	current, err := s.Load(ctx, id)
	if err != nil {
		return Risk{}, err
	}
	if current.Version != expectedVersion {
		return Risk{}, ErrVersionConflict
	}
	next, err := applyMutation(current, mutate)
	if err != nil {
		return Risk{}, err
	}

	rec := newRecord(next)
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE risks SET
		expected_problem = ?, impact = ?, severity = ?, estimated_resolution_duration = ?,
		resolution_duration_unit = ?, mitigation_notes = ?, status = ?,
		locked = ?, locked_by = ?, locked_at = ?, updated_by = ?, updated_at = ?,
		version = version + 1
		WHERE id = ? AND version = ?`),
		rec.ExpectedProblem, rec.Impact, rec.Severity, rec.EstimatedResolutionDuration,
		rec.ResolutionDurationUnit, rec.MitigationNotes, rec.Status,
		rec.Locked, rec.LockedBy, rec.LockedAt, rec.UpdatedBy, rec.UpdatedAt,
		id, expectedVersion,
	)
	if err != nil {
		return Risk{}, fmt.Errorf("update risk: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Risk{}, fmt.Errorf("update risk: %w", err)
	}
	if n == 0 {
		var exists int
		err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT COUNT(*) FROM risks WHERE id = ?`), id)
		if err != nil {
			return Risk{}, fmt.Errorf("update risk: %w", err)
		}
		if exists == 0 {
			return Risk{}, ErrNotFound
		}
		return Risk{}, ErrVersionConflict
	}
	return next, nil
}

func (s *store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM risks WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete risk: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete risk: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *store) List(ctx context.Context, filter Filter) ([]Risk, int, error) {
	where, args := filterClause(filter)

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM risks`+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count risks: %w", err)
	}

	query := `SELECT ` + riskColumns + ` FROM risks` + where + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}
	var recs []record
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list risks: %w", err)
	}
	out := make([]Risk, 0, len(recs))
	for _, rec := range recs {
		r, err := rec.toRisk()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, nil
}

func filterClause(filter Filter) (string, []any) {
	var conds []string
	var args []any
	if filter.DepartmentID != "" {
		conds = append(conds, "department_id = ?")
		args = append(args, filter.DepartmentID)
	}
	if filter.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		conds = append(conds, "(LOWER(expected_problem) LIKE ? OR LOWER(impact) LIKE ? OR LOWER(mitigation_notes) LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
