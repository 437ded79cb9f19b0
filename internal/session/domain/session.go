package domain

import (
	"time"

	identitydomain "paywallet/internal/identity/domain"
)

// Session is the persisted sign-in of one principal on this machine.
type Session struct {
	Principal identitydomain.Principal `json:"principal"`
	// ExpiresAt is taken from the access token when it is a JWT; zero means no known expiry.
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the session has a known expiry that has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
