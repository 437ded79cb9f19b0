// Package audit keeps a local, append-only trail of authorization attempt transitions.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paywallet/internal/audit/domain"
	auditrepo "paywallet/internal/audit/repository"
	"paywallet/internal/logging"
)

// AuditLogger writes a single audit event. LogEvent is best-effort: failures are logged and
// do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, attemptID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo   auditrepo.Repository
	logger *zap.Logger
	nowF   func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. repo may be nil, which disables the trail.
func NewLogger(repo auditrepo.Repository, logger *zap.Logger) *Logger {
	return &Logger{
		repo:   repo,
		logger: logging.OrNop(logger).Named("audit"),
		nowF:   func() time.Time { return time.Now().UTC() },
	}
}

// LogEvent writes one audit log entry. Errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, attemptID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		AttemptID: attemptID,
		Action:    action,
		Resource:  resource,
		Metadata:  metadata,
		CreatedAt: l.nowF(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.Warn("failed to log event",
			zap.String("action", action), zap.String("resource", resource),
			logging.AttemptID(attemptID), zap.Error(err))
	}
}

// Trail returns the recorded transitions of one attempt, oldest first.
func (l *Logger) Trail(ctx context.Context, attemptID string) ([]*domain.AuditLog, error) {
	if l == nil || l.repo == nil {
		return nil, nil
	}
	return l.repo.ListByAttempt(ctx, attemptID)
}

// Recent returns up to limit entries of userID, newest first.
func (l *Logger) Recent(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error) {
	if l == nil || l.repo == nil {
		return nil, nil
	}
	return l.repo.ListByUser(ctx, userID, limit)
}
