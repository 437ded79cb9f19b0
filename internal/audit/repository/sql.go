package repository

import (
	"context"
	"database/sql"
	"fmt"

	"paywallet/internal/audit/domain"
	"paywallet/internal/db"
)

// SQLRepository stores audit logs in the local store (SQLite or Postgres).
type SQLRepository struct {
	db *db.DB
}

// NewSQLRepository returns an audit log repository backed by d.
func NewSQLRepository(d *db.DB) *SQLRepository {
	return &SQLRepository{db: d}
}

// Create persists a. The audit log must have ID set.
func (r *SQLRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO audit_logs (id, user_id, attempt_id, action, resource, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.UserID, a.AttemptID, a.Action, a.Resource, meta, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create audit log %s: %w", a.ID, err)
	}
	return nil
}

// ListByAttempt returns the trail of one attempt, oldest first.
func (r *SQLRepository) ListByAttempt(ctx context.Context, attemptID string) ([]*domain.AuditLog, error) {
	return r.list(ctx, r.db.Rebind(`
		SELECT id, user_id, attempt_id, action, resource, metadata, created_at
		FROM audit_logs WHERE attempt_id = ? ORDER BY created_at, id`), attemptID)
}

// ListByUser returns up to limit most recent entries of userID, newest first.
func (r *SQLRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, r.db.Rebind(`
		SELECT id, user_id, attempt_id, action, resource, metadata, created_at
		FROM audit_logs WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`), userID, limit)
}

func (r *SQLRepository) list(ctx context.Context, query string, args ...any) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		var meta sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &a.AttemptID, &a.Action, &a.Resource, &meta, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		a.Metadata = meta.String
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}
	return out, nil
}
