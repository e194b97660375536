package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/progress-ledger/internal/api_gateway"
	"github.com/progress-ledger/internal/api_gateway/service"
	"github.com/progress-ledger/internal/config"
	"github.com/progress-ledger/internal/data/postgres"
	"github.com/progress-ledger/internal/logger"
	"github.com/progress-ledger/internal/platform/persistence"
	"github.com/progress-ledger/internal/verifier"
	"go.uber.org/zap"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("progress_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres, persistence.WithApplicationName(cfg.Application.Name))
	if err != nil {
		log.Fatal("Failed to initialize PostgreSQL", zap.Error(err))
	}

	// Repositories
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB.Pool())
	ledgerStore := postgres.NewLedgerStore(log, postgresDB.Pool(), outboxRepo)

	// Services
	chainVerifier := verifier.New(ledgerStore, log.With(zap.String("component", "verifier")))
	progressService := service.NewProgressService(log, ledgerStore, chainVerifier, &cfg.Ledger)

	server, err := api_gateway.NewServer(log, cfg, progressService)
	if err != nil {
		log.Fatal("Failed to initialize HTTP server", zap.Error(err))
	}

	errChan := make(chan error, 1)

	go func() {
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case serverErr = <-errChan:
		log.Error("Server error occurred", zap.Error(serverErr))
	}

	cancelAppCtx()

	log.Info("Starting graceful shutdown...")

	// Drain requests before the pool goes away
	if err := server.Stop(context.Background()); err != nil {
		log.Error("Error during server shutdown", zap.Error(err))
	}

	postgresDB.Close()

	if serverErr != nil {
		log.Error("Progress API shutdown completed with errors", zap.Error(serverErr))
		os.Exit(1)
	}
	log.Info("Progress API shutdown completed successfully")
}
