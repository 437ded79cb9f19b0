// Package session persists the signed-in principal and per-user preferences in the local
// metadata store, so a restarted process can rehydrate the session.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	identitydomain "paywallet/internal/identity/domain"
	"paywallet/internal/logging"
	"paywallet/internal/session/domain"
	"paywallet/internal/session/repository"
)

// Key is the fixed metadata key of the persisted session.
const Key = "user"

const (
	saltKey         = "session_salt"
	favoritesPrefix = "favorites:"
)

var encryptedPrefix = []byte("enc:v1:")

// Store reads and writes the session. It is a plain cache: a missing or unreadable session just
// means the user signs in again.
type Store struct {
	repo   repository.Repository
	secret []byte
	logger *zap.Logger
	nowF   func() time.Time

	mu  sync.Mutex
	key []byte
}

// Option configures a Store.
type Option func(*Store)

// WithSecret encrypts stored values with a key derived from secret. Empty disables encryption.
func WithSecret(secret string) Option {
	return func(s *Store) {
		if secret != "" {
			s.secret = []byte(secret)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.logger = l } }

// WithClock sets the clock.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.nowF = now } }

// NewStore returns a Store over repo.
func NewStore(repo repository.Repository, opts ...Option) *Store {
	s := &Store{repo: repo, nowF: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(s)
	}
	s.logger = logging.OrNop(s.logger).Named("session")
	return s
}

// Save persists p as the current session.
func (s *Store) Save(ctx context.Context, p identitydomain.Principal) (*domain.Session, error) {
	sess := &domain.Session{
		Principal: p,
		ExpiresAt: tokenExpiry(p.AccessToken),
		CreatedAt: s.nowF(),
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := s.put(ctx, Key, raw); err != nil {
		return nil, err
	}
	return sess, nil
}

// Load rehydrates the current session. ok is false when there is none, when it cannot be read,
// or when its access token has expired; unusable sessions are removed.
func (s *Store) Load(ctx context.Context) (sess *domain.Session, ok bool, err error) {
	raw, err := s.get(ctx, Key)
	if err != nil {
		s.logger.Warn("dropping unreadable session", zap.Error(err))
		return nil, false, s.repo.Delete(ctx, Key)
	}
	if raw == nil {
		return nil, false, nil
	}
	sess = &domain.Session{}
	if err := json.Unmarshal(raw, sess); err != nil || sess.Principal.UserID == "" {
		s.logger.Warn("dropping malformed session", zap.Error(err))
		return nil, false, s.repo.Delete(ctx, Key)
	}
	if sess.Expired(s.nowF()) {
		s.logger.Info("session expired", logging.UserID(sess.Principal.UserID))
		return nil, false, s.repo.Delete(ctx, Key)
	}
	return sess, true, nil
}

// Clear removes the current session. Preferences are kept.
func (s *Store) Clear(ctx context.Context) error {
	return s.repo.Delete(ctx, Key)
}

// Favorites returns the favourite contact emails of ownerID.
func (s *Store) Favorites(ctx context.Context, ownerID string) ([]string, error) {
	raw, err := s.get(ctx, favoritesPrefix+ownerID)
	if err != nil || raw == nil {
		return nil, err
	}
	var emails []string
	if err := json.Unmarshal(raw, &emails); err != nil {
		return nil, fmt.Errorf("session: decode favorites: %w", err)
	}
	return emails, nil
}

// SaveFavorites replaces the favourite contact emails of ownerID.
func (s *Store) SaveFavorites(ctx context.Context, ownerID string, emails []string) error {
	if emails == nil {
		emails = []string{}
	}
	raw, err := json.Marshal(emails)
	if err != nil {
		return err
	}
	return s.put(ctx, favoritesPrefix+ownerID, raw)
}

func (s *Store) put(ctx context.Context, key string, plaintext []byte) error {
	if s.secret == nil {
		return s.repo.Set(ctx, key, plaintext)
	}
	k, err := s.encryptionKey(ctx)
	if err != nil {
		return err
	}
	sealed, err := seal(k, plaintext)
	if err != nil {
		return err
	}
	return s.repo.Set(ctx, key, append(append([]byte(nil), encryptedPrefix...), sealed...))
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.repo.Get(ctx, key)
	if err != nil || raw == nil {
		return raw, err
	}
	encrypted := bytes.HasPrefix(raw, encryptedPrefix)
	switch {
	case !encrypted && s.secret == nil:
		return raw, nil
	case encrypted && s.secret == nil:
		return nil, fmt.Errorf("session: %s is encrypted and no secret is configured", key)
	case !encrypted:
		return nil, fmt.Errorf("session: %s is not encrypted", key)
	}
	k, err := s.encryptionKey(ctx)
	if err != nil {
		return nil, err
	}
	return open(k, raw[len(encryptedPrefix):])
}

// encryptionKey derives the key once per process from the secret and the stored salt.
func (s *Store) encryptionKey(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		return s.key, nil
	}
	salt, err := s.repo.Get(ctx, saltKey)
	if err != nil {
		return nil, err
	}
	if salt == nil {
		if salt, err = newSalt(); err != nil {
			return nil, err
		}
		if err := s.repo.Set(ctx, saltKey, salt); err != nil {
			return nil, err
		}
	}
	s.key = deriveKey(s.secret, salt)
	return s.key, nil
}

// tokenExpiry reads exp from a JWT access token without verifying it; the backend verifies
// tokens, this only avoids rehydrating a session that is certainly dead.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time.UTC()
}
