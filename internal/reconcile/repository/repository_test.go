package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"paywallet/internal/db/dbtest"
	"paywallet/internal/ledger/domain"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if snap, err := s.Load(ctx, "u1"); err != nil || snap != nil {
		t.Fatalf("Load(missing) = %v, %v", snap, err)
	}
	fetched := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	in := &domain.Snapshot{
		UserID:  "u1",
		Balance: decimal.RequireFromString("1000.50"),
		Transactions: []domain.Record{
			{ID: "t2", Type: domain.TypeSent, Amount: decimal.NewFromInt(500), Currency: "INR", To: "Bob", CreatedAt: fetched.Add(-time.Minute)},
			{ID: "t1", Type: domain.TypeReceived, Amount: decimal.NewFromInt(1500), Currency: "INR", From: "System", CreatedAt: fetched.Add(-time.Hour)},
		},
		FetchedAt: fetched,
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	in.Transactions[0].ID = "mutated"

	out, err := s.Load(ctx, "u1")
	if err != nil || out == nil {
		t.Fatalf("Load = %v, %v", out, err)
	}
	if !out.Balance.Equal(decimal.RequireFromString("1000.5")) || !out.FetchedAt.Equal(fetched) {
		t.Errorf("snapshot = %+v", out)
	}
	if len(out.Transactions) != 2 || out.Transactions[0].ID != "t2" || !out.Transactions[1].Amount.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("transactions = %+v", out.Transactions)
	}

	in.Balance = decimal.NewFromInt(1)
	_ = s.Save(ctx, in)
	out, _ = s.Load(ctx, "u1")
	if !out.Balance.Equal(decimal.NewFromInt(1)) {
		t.Errorf("overwrite: balance = %s", out.Balance)
	}

	if err := s.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if snap, _ := s.Load(ctx, "u1"); snap != nil {
		t.Error("snapshot should be gone after Delete")
	}
}

func TestMemoryStore(t *testing.T) { exerciseStore(t, NewMemoryStore()) }

func TestSQLStore(t *testing.T) { exerciseStore(t, NewSQLStore(dbtest.New(t))) }
