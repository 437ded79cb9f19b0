package repository

import (
	"context"

	"paywallet/internal/ledger/domain"
)

// Store keeps the last authoritative snapshot per user. Load returns nil, nil when none exists.
type Store interface {
	Load(ctx context.Context, userID string) (*domain.Snapshot, error)
	Save(ctx context.Context, s *domain.Snapshot) error
	Delete(ctx context.Context, userID string) error
}
