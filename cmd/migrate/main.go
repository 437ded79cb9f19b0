// migrate applies the embedded local store migrations (SQLite or Postgres, chosen by DATABASE_URL).
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"paywallet/internal/config"
	"paywallet/internal/db/migrate"
	"paywallet/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = logger.Sync() }()

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return
		}
		logger.Error("migrate failed", zap.String("direction", *direction), zap.Error(err))
		os.Exit(1)
	}
	logger.Info("migrations applied", zap.String("direction", *direction))
}
