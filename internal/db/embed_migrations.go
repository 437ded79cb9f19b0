package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations/<dialect>.
// Used by the migrate runner (cmd/migrate and wallet start-up).
//
//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var MigrationFS embed.FS
