package repository

import (
	"context"

	"paywallet/internal/otp/domain"
)

// Store keeps at most one challenge per (subject, purpose).
type Store interface {
	// Put stores c under its key, superseding any existing challenge for the same key.
	Put(ctx context.Context, c *domain.Challenge) error
	// Get returns the challenge for the key, or nil if none. Expired challenges are still returned.
	Get(ctx context.Context, subjectUserID string, purpose domain.Purpose) (*domain.Challenge, error)
	// Delete removes the challenge for the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, subjectUserID string, purpose domain.Purpose) error
}
