package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/progress-ledger/internal/chain_auditor/components"
	"github.com/progress-ledger/internal/chain_auditor/consumer"
	"github.com/progress-ledger/internal/chain_auditor/outbox_poller"
	"github.com/progress-ledger/internal/chain_auditor/scheduler"
	"github.com/progress-ledger/internal/chain_auditor/service"
	"github.com/progress-ledger/internal/config"
	"github.com/progress-ledger/internal/data/mongo"
	"github.com/progress-ledger/internal/data/postgres"
	"github.com/progress-ledger/internal/logger"
	"github.com/progress-ledger/internal/platform/messaging/consumers"
	"github.com/progress-ledger/internal/platform/messaging/producers"
	"github.com/progress-ledger/internal/platform/metrics"
	"github.com/progress-ledger/internal/platform/persistence"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("chain_auditor")
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

	log.Info("Starting Chain Auditor",
		zap.String("progress_topic", cfg.Kafka.ProgressTopic),
		zap.String("alert_topic", cfg.Kafka.AlertTopic),
	)

	// Databases
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres, persistence.WithApplicationName("chain_auditor"))
	if err != nil {
		log.Fatal("Failed to initialize PostgreSQL", zap.Error(err))
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Fatal("Failed to initialize MongoDB", zap.Error(err))
	}

	redisDB, err := persistence.NewRedis(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Fatal("Failed to initialize Redis", zap.Error(err))
	}

	// Repositories
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB.Pool())
	ledgerStore := postgres.NewLedgerStore(log, postgresDB.Pool(), outboxRepo)
	anchorRepo := mongo.NewAnchorRepository(log, mongoDB.Anchors())
	if err := anchorRepo.EnsureIndexes(appCtx); err != nil {
		log.Fatal("Failed to create anchor indexes", zap.Error(err))
	}

	// Kafka
	eventProducer, err := producers.NewEventProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.ProgressTopic)
	if err != nil {
		log.Fatal("Failed to initialize progress event producer", zap.Error(err))
	}
	alertProducer, err := producers.NewEventProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.AlertTopic)
	if err != nil {
		log.Fatal("Failed to initialize chain alert producer", zap.Error(err))
	}
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Fatal("Failed to initialize DLQ Kafka producer", zap.Error(err))
	}
	kafkaConsumer := consumers.NewKafkaConsumer(log, &cfg.Kafka, cfg.Kafka.ProgressTopic)

	// Services
	auditService := components.CreateAuditService(ledgerStore, anchorRepo, alertProducer, log, cfg)

	eventHandler := consumer.NewProgressEventHandler(log, auditService, dlqProducer)

	eventPublisher := outbox_poller.NewEventPublisher(outboxRepo, anchorRepo, eventProducer, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, outboxRepo, eventPublisher, log)

	sweeper := scheduler.NewSweeper(
		log.With(zap.String("component", "sweeper")),
		ledgerStore,
		auditService,
		persistence.NewProjectLocker(redisDB.Locker()),
		cfg.Audit.SweepInterval,
		cfg.Redis.LockTTL,
	)

	errChan := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			zap.String("topic", cfg.Kafka.ProgressTopic),
			zap.String("group", cfg.Kafka.ConsumerGroup),
		)
		if err := kafkaConsumer.Subscribe(appCtx, eventHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Start(appCtx)
	}()

	metricsServer := metrics.NewServer(cfg.Server.Port)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case serviceErr = <-errChan:
		log.Error("Service error occurred", zap.Error(serviceErr))
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	if wpService, ok := auditService.(*service.WorkerPoolAuditService); ok {
		wpService.Shutdown()
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error stopping metrics server", zap.Error(err))
	}
	if err := kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", zap.Error(err))
	}
	if err := eventProducer.Close(); err != nil {
		log.Error("Error closing progress event producer", zap.Error(err))
	}
	if err := alertProducer.Close(); err != nil {
		log.Error("Error closing chain alert producer", zap.Error(err))
	}
	if dlqProducer != nil {
		if err := dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", zap.Error(err))
		}
	}
	if err := redisDB.Close(); err != nil {
		log.Error("Error closing Redis connection", zap.Error(err))
	}
	postgresDB.Close()
	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", zap.Error(err))
	}

	if serviceErr != nil {
		log.Error("Chain Auditor shutdown completed with errors", zap.Error(serviceErr))
		os.Exit(1)
	}
	log.Info("Chain Auditor shutdown completed successfully")
}
