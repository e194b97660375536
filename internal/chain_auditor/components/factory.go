package components

import (
	"github.com/progress-ledger/internal/chain_auditor/service"
	"github.com/progress-ledger/internal/config"
	"github.com/progress-ledger/internal/platform/messaging/producers"
	"go.uber.org/zap"
)

// CreateAuditService creates the audit service behind a bounded worker pool.
func CreateAuditService(
	chains service.ChainReader,
	anchors service.AnchorReader,
	alerts producers.MessagePublisher,
	logger *zap.Logger,
	cfg *config.Config,
) service.AuditService {
	baseService := service.NewAuditService(logger.With(zap.String("component", "auditor")), chains, anchors, alerts)

	workerPoolService, err := service.NewWorkerPoolAuditService(
		baseService,
		service.WorkerPoolConfig{
			Size: cfg.Audit.WorkerPoolSize,
		},
		logger.With(zap.String("component", "worker_pool")),
	)
	if err != nil {
		logger.Error("Failed to create worker pool audit service, falling back to base service", zap.Error(err))
		return baseService
	}

	logger.Info("Created worker pool audit service", zap.Int("pool_size", cfg.Audit.WorkerPoolSize))
	return workerPoolService
}
