package main

import (
	"context"
	"fmt"

	"github.com/progress-ledger/internal/api_gateway/service"
	"github.com/progress-ledger/internal/config"
	"github.com/progress-ledger/internal/data/postgres"
	"github.com/progress-ledger/internal/logger"
	"github.com/progress-ledger/internal/platform/persistence"
	"github.com/progress-ledger/internal/verifier"
)

// backendFunc opens the progress service a command works against. The returned
// func releases its resources.
type backendFunc func(ctx context.Context, configName string) (service.ProgressService, func(), error)

func openPostgresBackend(ctx context.Context, configName string) (service.ProgressService, func(), error) {
	cfg, err := config.LoadConfig(configName)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	postgresDB, err := persistence.NewPostgresDB(ctx, log, &cfg.Postgres,
		persistence.WithApplicationName("ledgerctl"),
		persistence.WithoutMigrations(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	outboxRepo := postgres.NewOutboxRepository(log, postgresDB.Pool())
	store := postgres.NewLedgerStore(log, postgresDB.Pool(), outboxRepo)
	svc := service.NewProgressService(log, store, verifier.New(store, log), &cfg.Ledger)

	return svc, func() {
		postgresDB.Close()
		_ = log.Sync()
	}, nil
}
