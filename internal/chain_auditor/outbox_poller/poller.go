package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/progress-ledger/internal/config"
	"github.com/progress-ledger/internal/domain/outbox"
	"github.com/progress-ledger/internal/domain/shared"
	"github.com/progress-ledger/internal/platform/metrics"
	"go.uber.org/zap"
)

// Poller processes pending outbox messages
type Poller struct {
	outboxRepo       outbox.Queue
	publisher        EventPublisher
	logger           *zap.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Queue,
	publisher EventPublisher,
	logger *zap.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start polls on every tick until ctx is done.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Outbox poller started",
		zap.Duration("poll_interval", p.pollInterval),
		zap.Int("batch_size", p.batchSize),
		zap.Int("max_retry_attempts", p.maxRetryAttempts),
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox poller stopped")
			return
		case <-ticker.C:
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Outbox batch failed", zap.Error(err))
			}
		}
	}
}

// processPendingMessages publishes one batch in outbox order. After a failure the
// rest of that project's messages wait for the next tick so its events stay in
// sequence order on the topic.
func (p *Poller) processPendingMessages(ctx context.Context) error {
	batch, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}
	p.logger.Debug("Relaying outbox batch", zap.Int("count", len(batch)))

	stalled := make(map[string]struct{})
	for _, msg := range batch {
		logger := p.logger.With(zap.Int64("outbox_id", msg.ID), zap.String("project_id", msg.ProjectID))

		if _, ok := stalled[msg.ProjectID]; ok {
			logger.Debug("Holding back message behind an earlier failure of its project")
			continue
		}

		switch err := p.publisher.PublishEvent(ctx, msg); {
		case err == nil:
			metrics.RecordOutboxPublish(metrics.PublishResultSuccess)
		case errors.Is(err, ErrUndecodablePayload):
			// the publisher already parked the row
			metrics.RecordOutboxPublish(metrics.PublishResultGaveUp)
		default:
			metrics.RecordOutboxPublish(metrics.PublishResultFailure)
			stalled[msg.ProjectID] = struct{}{}
			p.recordFailure(ctx, logger, msg, err)
		}
	}
	return nil
}

// recordFailure counts the failed attempt and parks the message once the budget is spent.
func (p *Poller) recordFailure(ctx context.Context, logger *zap.Logger, msg *outbox.Message, cause error) {
	attempts := msg.Attempts + 1
	logger.Error("Outbox message not published", zap.Int("attempt", attempts), zap.Error(cause))

	if err := p.outboxRepo.IncrementAttempts(ctx, msg.ID); err != nil {
		logger.Error("Failed to count outbox attempt", zap.Error(err))
		return
	}
	if attempts < p.maxRetryAttempts {
		return
	}

	logger.Warn("Outbox message exhausted its attempts, marking FAILED_TO_PUBLISH", zap.Int("attempts", attempts))
	metrics.RecordOutboxPublish(metrics.PublishResultGaveUp)
	if err := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); err != nil {
		logger.Error("Failed to mark outbox message FAILED_TO_PUBLISH", zap.Error(err))
	}
}
