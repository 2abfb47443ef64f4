package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/daoyou-zhang/daoyoucode/internal/core"
)

const defaultHistoryLimit = 50

// ExecutionQuery selects execution history rows.
type ExecutionQuery struct {
	All    bool
	Skill  string
	UserID string
	// Before matches executions that started strictly before the instant.
	Before time.Time
	Limit  int
}

// ValidateForDelete requires an explicit scope before rows are removed.
func (q ExecutionQuery) ValidateForDelete() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Skill) != "" || strings.TrimSpace(q.UserID) != "" || !q.Before.IsZero() {
		return nil
	}
	return errors.New("must specify --all, --skill, --user, or --older-than")
}

func (q ExecutionQuery) whereClause() (string, []any) {
	if q.All {
		return "", nil
	}
	var (
		conds []string
		args  []any
	)
	if skill := strings.TrimSpace(q.Skill); skill != "" {
		conds = append(conds, "skill = ?")
		args = append(args, skill)
	}
	if user := strings.TrimSpace(q.UserID); user != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, user)
	}
	if !q.Before.IsZero() {
		conds = append(conds, "started_at < ?")
		args = append(args, q.Before.UTC().UnixMilli())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// RecordExecution persists one finished execution.
func (s *Store) RecordExecution(ctx context.Context, rec core.ExecutionRecord) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("execution id is required")
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO executions (id, skill, mode, user_id, requested_model, model, success, error, tokens_used, cost, cached, duration, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		rec.ID, rec.Skill, string(rec.Mode), nullString(rec.UserID), rec.RequestedModel, nullString(rec.Model),
		boolToInt(rec.Success), nullString(rec.Error), rec.TokensUsed, rec.Cost, boolToInt(rec.Cached),
		rec.Duration, rec.StartedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// ListExecutions returns matching executions, newest first.
func (s *Store) ListExecutions(ctx context.Context, q ExecutionQuery) ([]core.ExecutionRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	where, args := q.whereClause()
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, skill, mode, user_id, requested_model, model, success, error, tokens_used, cost, cached, duration, started_at
		FROM executions
		%s
		ORDER BY started_at DESC, id
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	records := []core.ExecutionRecord{}
	for rows.Next() {
		var (
			rec       core.ExecutionRecord
			mode      string
			userID    sql.NullString
			model     sql.NullString
			errText   sql.NullString
			success   int
			cached    int
			startedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.Skill, &mode, &userID, &rec.RequestedModel, &model, &success,
			&errText, &rec.TokensUsed, &rec.Cost, &cached, &rec.Duration, &startedAt); err != nil {
			return nil, fmt.Errorf("scan executions: %w", err)
		}
		rec.Mode = core.Mode(mode)
		rec.UserID = userID.String
		rec.Model = model.String
		rec.Error = errText.String
		rec.Success = success != 0
		rec.Cached = cached != 0
		rec.StartedAt = time.UnixMilli(startedAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return records, nil
}

// CountExecutions counts matching executions.
func (s *Store) CountExecutions(ctx context.Context, q ExecutionQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := q.whereClause()
	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM executions
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count executions: %w", err)
	}
	return count, nil
}

// PruneExecutions deletes matching executions and reports how many were removed.
func (s *Store) PruneExecutions(ctx context.Context, q ExecutionQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := q.ValidateForDelete(); err != nil {
		return 0, err
	}

	where, args := q.whereClause()
	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM executions
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("prune executions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune executions: %w", err)
	}
	return affected, nil
}

func nullString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
