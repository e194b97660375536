package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/progress-ledger/internal/domain/anchor"
	"github.com/progress-ledger/internal/domain/outbox"
	"github.com/progress-ledger/internal/domain/shared"
	"github.com/progress-ledger/internal/platform/correlation"
	"github.com/progress-ledger/internal/platform/messaging/producers"
	"go.uber.org/zap"
)

// ErrUndecodablePayload marks an outbox row that can never be published.
var ErrUndecodablePayload = errors.New("outbox payload is not a progress event")

// EventPublisher publishes one outbox message
type EventPublisher interface {
	PublishEvent(ctx context.Context, message *outbox.Message) error
}

// AnchorRecorder stores the chain tip carried by a published event
type AnchorRecorder interface {
	Record(ctx context.Context, a *anchor.Anchor) error
}

// EventPublisherImpl anchors the event's tip in MongoDB, publishes the event to
// Kafka keyed by project and marks the outbox row PROCESSED.
type EventPublisherImpl struct {
	outboxRepo outbox.Queue
	anchors    AnchorRecorder
	producer   producers.MessagePublisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewEventPublisher creates a new publisher
func NewEventPublisher(
	outboxRepo outbox.Queue,
	anchors AnchorRecorder,
	producer producers.MessagePublisher,
	logger *zap.Logger,
) *EventPublisherImpl {
	return &EventPublisherImpl{
		outboxRepo: outboxRepo,
		anchors:    anchors,
		producer:   producer,
		logger:     logger,
		now:        time.Now,
	}
}

// PublishEvent processes and publishes a message. Both the anchor insert and the
// publish are idempotent per (project, sequence), so a retried row is harmless.
func (p *EventPublisherImpl) PublishEvent(ctx context.Context, message *outbox.Message) error {
	event, err := message.Event()
	if err != nil {
		p.logger.Error("Failed to decode progress event from outbox payload",
			zap.Int64("outbox_id", message.ID),
			zap.String("record_id", message.RecordID.String()),
			zap.Error(err),
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after decode error",
				zap.Int64("outbox_id", message.ID),
				zap.NamedError("update_error", updateErr),
			)
		}
		return fmt.Errorf("outbox %d: %w: %v", message.ID, ErrUndecodablePayload, err)
	}

	logger := p.logger.With(zap.String("project_id", event.ProjectID))
	if event.CorrelationID != "" {
		logger = logger.With(zap.String("correlation_id", event.CorrelationID))
		ctx = correlation.WithID(ctx, event.CorrelationID)
	}

	if err := p.anchors.Record(ctx, anchor.FromEvent(event, p.now())); err != nil {
		logger.Error("Failed to record chain anchor", zap.Int64("sequence", event.Sequence), zap.Error(err))
		return fmt.Errorf("failed to anchor %s/%d: %w", event.ProjectID, event.Sequence, err)
	}

	if err := p.producer.Publish(ctx, event.ProjectID, event); err != nil {
		logger.Error("Failed to publish progress event", zap.Int64("outbox_id", message.ID), zap.Error(err))
		return fmt.Errorf("failed to publish outbox %d: %w", message.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED",
			zap.Int64("outbox_id", message.ID),
			zap.Error(err),
		)
		return fmt.Errorf("event for record %s published, but failed to mark outbox %d as PROCESSED: %w", message.RecordID, message.ID, err)
	}

	logger.Info("Published progress event",
		zap.Int64("outbox_id", message.ID),
		zap.String("record_id", event.RecordID.String()),
		zap.Int64("sequence", event.Sequence),
	)
	return nil
}
