package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const entryColumns = `id, type, actor_id, risk_id, action, outcome, reason, detail, timestamp`

type store struct {
	db *sqlx.DB
}

// NewStore creates a SQL-backed audit store.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func (s *store) Append(ctx context.Context, e Entry) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO audit_entries (`+entryColumns+`)
		 VALUES (:id, :type, :actor_id, :risk_id, :action, :outcome, :reason, :detail, :timestamp)`, e)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *store) Query(ctx context.Context, params QueryParams) ([]Entry, int, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if params.ActorID != nil {
		add("actor_id = ?", *params.ActorID)
	}
	if params.RiskID != nil {
		add("risk_id = ?", *params.RiskID)
	}
	if params.Action != nil {
		add("action = ?", *params.Action)
	}
	if params.Outcome != nil {
		add("outcome = ?", *params.Outcome)
	}
	if params.Type != nil {
		add("type = ?", *params.Type)
	}
	if params.StartTime != nil {
		add("timestamp >= ?", *params.StartTime)
	}
	if params.EndTime != nil {
		add("timestamp <= ?", *params.EndTime)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM audit_entries`+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	query := `SELECT ` + entryColumns + ` FROM audit_entries` + where + ` ORDER BY timestamp DESC, id`
	if params.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, params.Limit, params.Offset)
	}
	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, s.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	return entries, total, nil
}

func (s *store) Get(ctx context.Context, id string) (Entry, error) {
	var e Entry
	err := s.db.GetContext(ctx, &e, s.db.Rebind(`SELECT `+entryColumns+` FROM audit_entries WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load audit entry: %w", err)
	}
	return e, nil
}
