package delivery

import (
	"context"
	"sync"
	"time"

	"paywallet/internal/otp/domain"
)

// DevVia is the channel reported by DevSender.
const DevVia = "dev"

type devEntry struct {
	code      string
	expiresAt time.Time
}

// DevSender keeps the latest plaintext code per (subject, purpose) in memory so local runs can
// read it back. Only wired when dev OTP mode is enabled; never in production.
type DevSender struct {
	mu   sync.RWMutex
	m    map[string]devEntry
	ttl  time.Duration
	nowF func() time.Time
}

// NewDevSender returns a DevSender whose codes are readable for ttl after delivery.
func NewDevSender(ttl time.Duration) *DevSender {
	return &DevSender{
		m:    make(map[string]devEntry),
		ttl:  ttl,
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// SendChallenge records code for later Peek.
func (s *DevSender) SendChallenge(ctx context.Context, subjectUserID string, purpose domain.Purpose, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[domain.Key(subjectUserID, purpose)] = devEntry{code: code, expiresAt: s.nowF().Add(s.ttl)}
	return DevVia, nil
}

// Peek returns the last code delivered for the key if it has not expired.
func (s *DevSender) Peek(subjectUserID string, purpose domain.Purpose) (string, bool) {
	k := domain.Key(subjectUserID, purpose)
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		return "", false
	}
	return e.code, true
}
