// Package db opens the local store. SQLite (modernc, pure Go) is the default; a postgres://
// DSN selects Postgres through pgx's database/sql driver.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect is the SQL flavour of a DSN.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ErrUnsupportedDSN is returned for DSNs that are neither sqlite:// nor postgres://.
var ErrUnsupportedDSN = errors.New("db: DSN must start with sqlite:// or postgres://")

// DB is a *sql.DB that knows its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// ParseDSN returns the dialect, the database/sql driver name and the driver DSN.
func ParseDSN(dsn string) (Dialect, string, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", "", fmt.Errorf("db: empty sqlite path in %q", dsn)
		}
		return SQLite, "sqlite", path, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return Postgres, "pgx", dsn, nil
	default:
		return "", "", "", ErrUnsupportedDSN
	}
}

// Open opens and pings the store for dsn. Caller must call Close when done.
func Open(dsn string) (*DB, error) {
	dialect, driver, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if dialect == SQLite {
		// One writer; avoids SQLITE_BUSY between pooled connections.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &DB{DB: sqlDB, Dialect: dialect}, nil
}

// Rebind rewrites ? placeholders to the dialect's form ($1, $2, ... for Postgres).
func (d *DB) Rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
