package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"paywallet/internal/audit/domain"
	auditrepo "paywallet/internal/audit/repository"
	"paywallet/internal/db/dbtest"
)

type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByAttempt(ctx context.Context, attemptID string) ([]*domain.AuditLog, error) {
	return m.entries, nil
}

func (m *mockAuditRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error) {
	return m.entries, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	NewLogger(repo, nil).LogEvent(context.Background(), "u1", "a1", "committed", "transfer", `{"amount":"500"}`)

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.ID == "" || e.UserID != "u1" || e.AttemptID != "a1" || e.Action != "committed" || e.CreatedAt.IsZero() {
		t.Errorf("entry = %+v", e)
	}
}

func TestLogger_LogEvent_RepoErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	repo := &mockAuditRepo{createErr: errors.New("disk full")}
	NewLogger(repo, zap.New(core)).LogEvent(context.Background(), "u1", "a1", "failed", "transfer", "")
	if logs.FilterMessage("failed to log event").Len() != 1 {
		t.Errorf("logs = %v", logs.All())
	}
}

func TestLogger_NilRepo(t *testing.T) {
	l := NewLogger(nil, nil)
	l.LogEvent(context.Background(), "u1", "a1", "committed", "transfer", "")
	if trail, err := l.Trail(context.Background(), "a1"); err != nil || trail != nil {
		t.Errorf("Trail = %v, %v", trail, err)
	}
}

func TestLogger_SQLTrail(t *testing.T) {
	ctx := context.Background()
	repo := auditrepo.NewSQLRepository(dbtest.New(t))
	l := NewLogger(repo, nil)
	tick := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.nowF = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	for _, state := range []string{"Draft", "OTPRequested", "OTPVerified", "Committed"} {
		ar := ForTransition("SEND", state)
		l.LogEvent(ctx, "u1", "a1", ar.Action, ar.Resource, "")
	}
	l.LogEvent(ctx, "u1", "a2", "cancelled", "deposit", "")

	trail, err := l.Trail(ctx, "a1")
	if err != nil {
		t.Fatalf("Trail: %v", err)
	}
	if len(trail) != 4 || trail[0].Action != "draft" || trail[3].Action != "committed" {
		t.Fatalf("trail = %+v", trail)
	}
	recent, err := l.Recent(ctx, "u1", 2)
	if err != nil || len(recent) != 2 {
		t.Fatalf("ListByUser = %d, %v", len(recent), err)
	}
	if recent[0].AttemptID != "a2" {
		t.Errorf("newest first: %+v", recent[0])
	}
}
