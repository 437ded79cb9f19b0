package repository

import (
	"context"

	"paywallet/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByAttempt(ctx context.Context, attemptID string) ([]*domain.AuditLog, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error)
}
