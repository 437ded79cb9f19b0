// Package dbtest provides a migrated SQLite store for repository tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"paywallet/internal/db"
	"paywallet/internal/db/migrate"
)

// New returns a freshly migrated SQLite database in a temp dir, closed at test cleanup.
func New(t testing.TB) *db.DB {
	t.Helper()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "wallet.db")
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
