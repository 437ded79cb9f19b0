package migrate

import (
	"path/filepath"
	"testing"

	"paywallet/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	if err := Run("", "up"); err == nil {
		t.Fatal("Run with empty DSN should return error")
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "invalid", "UP", "Up", "both"} {
		if err := Run("sqlite://x.db", direction); err == nil {
			t.Errorf("Run with direction %q should return error", direction)
		}
	}
}

func TestRun_UnsupportedDSN(t *testing.T) {
	if err := Run("mysql://localhost/db", "up"); err == nil {
		t.Fatal("Run with unsupported DSN should return error")
	}
}

func TestRun_SQLiteUpDown(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "wallet.db")
	if err := Run(dsn, "up"); err != nil {
		t.Fatalf("up: %v", err)
	}
	if err := Run(dsn, "up"); err != nil {
		t.Fatalf("second up should be a no-op: %v", err)
	}

	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, table := range []string{"metadata", "ledger_snapshots", "audit_logs"} {
		var name string
		if err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
	conn.Close()

	if err := Run(dsn, "down"); err != nil {
		t.Fatalf("down: %v", err)
	}
}
