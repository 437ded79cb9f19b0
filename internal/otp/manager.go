package otp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paywallet/internal/failure"
	"paywallet/internal/logging"
	"paywallet/internal/otp/domain"
	"paywallet/internal/otp/repository"
)

const (
	// DefaultTTL is the lifetime of an issued challenge.
	DefaultTTL = 5 * time.Minute
	// DefaultResendCooldown is how long after issue a resend becomes available.
	DefaultResendCooldown = 60 * time.Second
)

// Sender delivers a plaintext code to the subject. Implementations must not log the code.
type Sender interface {
	SendChallenge(ctx context.Context, subjectUserID string, purpose domain.Purpose, code string) (deliveredVia string, err error)
}

// Handle describes an issued challenge without exposing its code.
type Handle struct {
	ID                string
	SubjectUserID     string
	Purpose           domain.Purpose
	DeliveredVia      string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	ResendAvailableAt time.Time
}

func handleOf(c *domain.Challenge) Handle {
	return Handle{
		ID:                c.ID,
		SubjectUserID:     c.SubjectUserID,
		Purpose:           c.Purpose,
		DeliveredVia:      c.DeliveredVia,
		IssuedAt:          c.IssuedAt,
		ExpiresAt:         c.ExpiresAt,
		ResendAvailableAt: c.ResendAvailableAt,
	}
}

// Manager is the single source of truth for whether a valid code exists for a (subject, purpose).
type Manager struct {
	store       repository.Store
	sender      Sender
	ttl         time.Duration
	cooldown    time.Duration
	maxAttempts int
	logger      *zap.Logger
	nowF        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option { return func(m *Manager) { m.ttl = d } }

// WithResendCooldown overrides DefaultResendCooldown.
func WithResendCooldown(d time.Duration) Option { return func(m *Manager) { m.cooldown = d } }

// WithMaxAttempts caps wrong codes per challenge. n <= 0 means unlimited until expiry.
func WithMaxAttempts(n int) Option { return func(m *Manager) { m.maxAttempts = n } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithClock replaces time.Now for TTL and cooldown checks.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.nowF = now } }

// NewManager returns a Manager backed by store and delivering codes through sender.
func NewManager(store repository.Store, sender Sender, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		sender:   sender,
		ttl:      DefaultTTL,
		cooldown: DefaultResendCooldown,
		nowF:     func() time.Time { return time.Now().UTC() },
		locks:    make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = logging.OrNop(m.logger).Named("otp")
	return m
}

// keyLock serialises every operation on one (subject, purpose).
func (m *Manager) keyLock(subjectUserID string, purpose domain.Purpose) *sync.Mutex {
	k := domain.Key(subjectUserID, purpose)
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[k]
	if !ok {
		l = &sync.Mutex{}
		m.locks[k] = l
	}
	return l
}

// RequestChallenge delivers a fresh code and supersedes any existing challenge for the key.
// A delivery failure returns failure.ErrDelivery and leaves the existing challenge untouched.
func (m *Manager) RequestChallenge(ctx context.Context, subjectUserID string, purpose domain.Purpose) (Handle, error) {
	if err := checkKey(subjectUserID, purpose); err != nil {
		return Handle{}, err
	}
	l := m.keyLock(subjectUserID, purpose)
	l.Lock()
	defer l.Unlock()
	return m.issue(ctx, subjectUserID, purpose)
}

// Resend issues a new code once the cooldown has passed, otherwise failure.ErrCooldownActive.
// With no challenge on record it behaves like RequestChallenge.
func (m *Manager) Resend(ctx context.Context, subjectUserID string, purpose domain.Purpose) (Handle, error) {
	if err := checkKey(subjectUserID, purpose); err != nil {
		return Handle{}, err
	}
	l := m.keyLock(subjectUserID, purpose)
	l.Lock()
	defer l.Unlock()

	c, err := m.store.Get(ctx, subjectUserID, purpose)
	if err != nil {
		return Handle{}, err
	}
	if c != nil {
		if wait := c.ResendAvailableAt.Sub(m.nowF()); wait > 0 {
			return Handle{}, failure.New(failure.ErrCooldownActive, "You can resend the code in %d seconds", int((wait+time.Second-1)/time.Second))
		}
	}
	return m.issue(ctx, subjectUserID, purpose)
}

// CanResend reports whether now is at or past the resend time of the current challenge.
func (m *Manager) CanResend(ctx context.Context, subjectUserID string, purpose domain.Purpose) (bool, error) {
	c, err := m.store.Get(ctx, subjectUserID, purpose)
	if err != nil {
		return false, err
	}
	if c == nil {
		return true, nil
	}
	return !m.nowF().Before(c.ResendAvailableAt), nil
}

// Verify checks code against the active challenge and consumes it on success.
// Errors: failure.ErrNotFound (no challenge), failure.ErrExpired (past deadline or attempt cap hit),
// failure.ErrMismatch (wrong code; the challenge stays active).
func (m *Manager) Verify(ctx context.Context, subjectUserID string, purpose domain.Purpose, code string) error {
	l := m.keyLock(subjectUserID, purpose)
	l.Lock()
	defer l.Unlock()

	c, err := m.store.Get(ctx, subjectUserID, purpose)
	if err != nil {
		return err
	}
	if c == nil {
		return failure.New(failure.ErrNotFound, "No active code. Request a new one")
	}
	if c.Expired(m.nowF()) {
		return failure.New(failure.ErrExpired, "Code expired. Request a new one")
	}
	if !CodeEqual(strings.TrimSpace(code), c.CodeHash) {
		c.FailedAttempts++
		if m.maxAttempts > 0 && c.FailedAttempts >= m.maxAttempts {
			if err := m.store.Delete(ctx, subjectUserID, purpose); err != nil {
				return err
			}
			m.logger.Warn("challenge attempt cap reached", logging.UserID(subjectUserID), zap.String("purpose", string(purpose)))
			return failure.New(failure.ErrExpired, "Too many wrong codes. Request a new one")
		}
		if err := m.store.Put(ctx, c); err != nil {
			return err
		}
		return failure.New(failure.ErrMismatch, "Invalid OTP")
	}
	if err := m.store.Delete(ctx, subjectUserID, purpose); err != nil {
		return err
	}
	m.logger.Debug("challenge verified", logging.UserID(subjectUserID), zap.String("purpose", string(purpose)))
	return nil
}

// Active returns the current challenge handle for the key, if any. Expired challenges are reported too.
func (m *Manager) Active(ctx context.Context, subjectUserID string, purpose domain.Purpose) (Handle, bool, error) {
	c, err := m.store.Get(ctx, subjectUserID, purpose)
	if err != nil || c == nil {
		return Handle{}, false, err
	}
	return handleOf(c), true, nil
}

// Invalidate drops the challenge for the key.
func (m *Manager) Invalidate(ctx context.Context, subjectUserID string, purpose domain.Purpose) error {
	l := m.keyLock(subjectUserID, purpose)
	l.Lock()
	defer l.Unlock()
	return m.store.Delete(ctx, subjectUserID, purpose)
}

// issue must be called with the key lock held.
func (m *Manager) issue(ctx context.Context, subjectUserID string, purpose domain.Purpose) (Handle, error) {
	code, err := GenerateCode()
	if err != nil {
		return Handle{}, err
	}
	via, err := m.sender.SendChallenge(ctx, subjectUserID, purpose, code)
	if err != nil {
		m.logger.Warn("challenge delivery failed", logging.UserID(subjectUserID), zap.String("purpose", string(purpose)), zap.Error(err))
		if failure.KindOf(err) == failure.KindDelivery {
			return Handle{}, err
		}
		return Handle{}, failure.Wrap(failure.ErrDelivery, err, "Failed to send OTP")
	}
	now := m.nowF()
	c := &domain.Challenge{
		ID:                uuid.New().String(),
		SubjectUserID:     subjectUserID,
		Purpose:           purpose,
		CodeHash:          HashCode(code),
		DeliveredVia:      via,
		IssuedAt:          now,
		ExpiresAt:         now.Add(m.ttl),
		ResendAvailableAt: now.Add(m.cooldown),
	}
	if err := m.store.Put(ctx, c); err != nil {
		return Handle{}, err
	}
	m.logger.Info("challenge issued", logging.UserID(subjectUserID), zap.String("purpose", string(purpose)), zap.String("delivered_via", via))
	return handleOf(c), nil
}

func checkKey(subjectUserID string, purpose domain.Purpose) error {
	if subjectUserID == "" {
		return failure.Invalid("subjectUserId", "subject is required")
	}
	if !purpose.Valid() {
		return failure.Invalid("purpose", "unknown purpose %q", purpose)
	}
	return nil
}
