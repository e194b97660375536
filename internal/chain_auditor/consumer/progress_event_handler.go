package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/progress-ledger/internal/chain_auditor/service"
	"github.com/progress-ledger/internal/domain/progress"
	"github.com/progress-ledger/internal/domain/shared"
	"github.com/progress-ledger/internal/platform/messaging/producers"
	"go.uber.org/zap"
)

var errMissingProject = errors.New("event has no project_id")

// ProgressEventHandler audits a project each time one of its records is published
type ProgressEventHandler struct {
	auditService service.AuditService
	producer     producers.DeadLetterPublisher
	logger       *zap.Logger
}

// NewProgressEventHandler creates a new handler
func NewProgressEventHandler(
	logger *zap.Logger,
	auditService service.AuditService,
	producer producers.DeadLetterPublisher,
) *ProgressEventHandler {
	return &ProgressEventHandler{
		auditService: auditService,
		producer:     producer,
		logger:       logger,
	}
}

// HandleMessage processes Kafka messages
func (h *ProgressEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	event, err := decodeEvent(value)
	if err != nil {
		return h.deadLetter(ctx, key, value, err)
	}

	logger := h.logger.With(zap.String("project_id", event.ProjectID))
	if event.CorrelationID != "" {
		logger = logger.With(zap.String("correlation_id", event.CorrelationID))
	}

	logger.Debug("Received progress event",
		zap.String("record_id", event.RecordID.String()),
		zap.Int64("sequence", event.Sequence),
	)

	report, err := h.auditService.AuditProject(ctx, event.ProjectID)
	if err != nil {
		logger.Error("Failed to audit project", zap.Error(err))
		return fmt.Errorf("audit of project %s failed: %w", event.ProjectID, err)
	}

	if report.Alert != nil {
		logger.Warn("Audit triggered by progress event found a problem", zap.String("kind", string(report.Alert.Kind)))
	}

	return nil
}

func decodeEvent(value []byte) (*progress.RecordedEvent, error) {
	var event progress.RecordedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress event: %w", err)
	}
	if event.Type != shared.EventTypeProgressRecorded {
		return nil, fmt.Errorf("unexpected event type %q", event.Type)
	}
	if event.ProjectID == "" {
		return nil, errMissingProject
	}
	return &event, nil
}

// deadLetter parks an unprocessable message. The offset is committed only when the DLQ write succeeds.
func (h *ProgressEventHandler) deadLetter(ctx context.Context, key, value []byte, cause error) error {
	h.logger.Error("Unprocessable progress event",
		zap.Error(cause),
		zap.String("message_key", string(key)),
	)

	if h.producer == nil {
		return cause
	}

	if dlqErr := h.producer.PublishToDLQ(ctx, producers.DeadLetter{
		Key:    string(key),
		Value:  value,
		Reason: cause.Error(),
	}); dlqErr != nil {
		h.logger.Error("Failed to publish message to DLQ",
			zap.NamedError("dlq_error", dlqErr),
			zap.NamedError("original_error", cause),
			zap.String("message_key", string(key)),
		)
		return cause
	}

	h.logger.Info("Published unprocessable message to DLQ", zap.String("message_key", string(key)))
	return nil
}
