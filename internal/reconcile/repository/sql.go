package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paywallet/internal/db"
	"paywallet/internal/ledger/domain"
)

// SQLStore keeps snapshots in the ledger_snapshots table so the stale fallback survives restarts.
type SQLStore struct {
	db *db.DB
}

// NewSQLStore returns a Store backed by d.
func NewSQLStore(d *db.DB) *SQLStore {
	return &SQLStore{db: d}
}

type recordRow struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	FromUserID  string          `json:"fromUserId"`
	ToUserID    string          `json:"toUserId"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Category    string          `json:"category"`
	Reference   string          `json:"reference,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (s *SQLStore) Load(ctx context.Context, userID string) (*domain.Snapshot, error) {
	var (
		balance   string
		txs       string
		fetchedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT balance, transactions, fetched_at FROM ledger_snapshots WHERE user_id = ?`), userID).
		Scan(&balance, &txs, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", userID, err)
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("corrupt snapshot balance for %s: %w", userID, err)
	}
	var rows []recordRow
	if err := json.Unmarshal([]byte(txs), &rows); err != nil {
		return nil, fmt.Errorf("corrupt snapshot transactions for %s: %w", userID, err)
	}
	snap := &domain.Snapshot{UserID: userID, Balance: b, FetchedAt: fetchedAt.UTC()}
	for _, r := range rows {
		snap.Transactions = append(snap.Transactions, domain.Record(r))
	}
	return snap, nil
}

func (s *SQLStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	rows := make([]recordRow, 0, len(snap.Transactions))
	for _, r := range snap.Transactions {
		rows = append(rows, recordRow(r))
	}
	txs, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO ledger_snapshots (user_id, balance, transactions, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET balance = excluded.balance,
			transactions = excluded.transactions, fetched_at = excluded.fetched_at`),
		snap.UserID, snap.Balance.StringFixed(2), string(txs), snap.FetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", snap.UserID, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM ledger_snapshots WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("failed to delete snapshot for %s: %w", userID, err)
	}
	return nil
}
