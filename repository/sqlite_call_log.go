package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/nexus/database"
	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
)

type sqliteCallLogRepo struct {
	db database.TxQuerier
}

func NewSQLiteCallLogRepo(db database.TxQuerier) CallLogRepository {
	return &sqliteCallLogRepo{db: db}
}

func (r *sqliteCallLogRepo) Create(ctx context.Context, log *models.CallLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}

	query := `
		INSERT INTO call_logs (id, session_id, caller_id, callee_id, kind, conversation_ref, duration_ms, end_reason, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var convRef sql.NullString
	if log.ConversationRef != "" {
		convRef = sql.NullString{String: log.ConversationRef, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		log.ID, log.SessionID, log.CallerID, log.CalleeID, string(log.Kind), convRef,
		log.DurationMs, string(log.EndReason), log.StartedAt.UTC(), log.EndedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: call log already recorded for session", pkg.ErrConflict)
		}
		return fmt.Errorf("failed to create call log: %w", err)
	}
	return nil
}

func (r *sqliteCallLogRepo) ListByUser(ctx context.Context, userID string, before time.Time, limit int) ([]models.CallLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id, session_id, caller_id, callee_id, kind, conversation_ref, duration_ms, end_reason, started_at, ended_at
		FROM call_logs
		WHERE (caller_id = ? OR callee_id = ?)`
	args := []any{userID, userID}

	if !before.IsZero() {
		query += ` AND ended_at < ?`
		args = append(args, before.UTC())
	}
	query += ` ORDER BY ended_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list call logs: %w", err)
	}
	defer rows.Close()

	var logs []models.CallLog
	for rows.Next() {
		var (
			l       models.CallLog
			convRef sql.NullString
		)
		if err := rows.Scan(
			&l.ID, &l.SessionID, &l.CallerID, &l.CalleeID, &l.Kind, &convRef,
			&l.DurationMs, &l.EndReason, &l.StartedAt, &l.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call log row: %w", err)
		}
		l.ConversationRef = convRef.String
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call log rows: %w", err)
	}
	return logs, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
