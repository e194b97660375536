package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/progress-ledger/internal/domain/outbox"
	"github.com/progress-ledger/internal/domain/shared"
	"github.com/progress-ledger/internal/platform/persistence"
	"go.uber.org/zap"
)

const (
	insertOutboxSQL = `
		INSERT INTO ledger_outbox (record_id, project_id, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	// Ordering by id keeps each project's events in chain order.
	selectPendingOutboxSQL = `
		SELECT id, record_id, project_id, payload, status, attempts, created_at, last_attempt_at
		FROM ledger_outbox
		WHERE status = $1
		ORDER BY id ASC
		LIMIT $2`

	// Only pending rows move; PROCESSED and FAILED_TO_PUBLISH are terminal.
	updateOutboxStatusSQL = `
		UPDATE ledger_outbox
		SET status = $1, last_attempt_at = $2
		WHERE id = $3 AND status = 'PENDING'`

	incrementOutboxAttemptsSQL = `
		UPDATE ledger_outbox
		SET attempts = attempts + 1, last_attempt_at = $1
		WHERE id = $2 AND status = 'PENDING'`
)

// OutboxRepository is the ledger_outbox table, both as the append path's Writer and the poller's Queue
type OutboxRepository struct {
	querier persistence.Querier
	logger  *zap.Logger
	now     func() time.Time
}

func NewOutboxRepository(logger *zap.Logger, querier persistence.Querier) outbox.Repository {
	return &OutboxRepository{
		querier: querier,
		logger:  logger,
		now:     time.Now,
	}
}

// WithTx binds the repository to tx so the message commits together with its record.
func (r *OutboxRepository) WithTx(tx pgx.Tx) outbox.Writer {
	return &OutboxRepository{
		querier: tx,
		logger:  r.logger,
		now:     r.now,
	}
}

func (r *OutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	err := r.querier.QueryRow(ctx, insertOutboxSQL,
		message.RecordID,
		message.ProjectID,
		message.Payload,
		message.Status,
		message.Attempts,
		message.CreatedAt,
	).Scan(&message.ID)
	if err != nil {
		r.logger.Error("Failed to create outbox message",
			zap.String("project_id", message.ProjectID),
			zap.String("record_id", message.RecordID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return nil
}

func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	rows, err := r.querier.Query(ctx, selectPendingOutboxSQL, shared.OutboxStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to get pending outbox messages", zap.Error(err))
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, scanOutboxMessage)
	if err != nil {
		r.logger.Error("Failed to read pending outbox messages", zap.Error(err))
		return nil, fmt.Errorf("failed to read pending outbox messages: %w", err)
	}
	return messages, nil
}

func scanOutboxMessage(row pgx.CollectableRow) (*outbox.Message, error) {
	var m outbox.Message
	err := row.Scan(&m.ID, &m.RecordID, &m.ProjectID, &m.Payload, &m.Status, &m.Attempts, &m.CreatedAt, &m.LastAttemptAt)
	return &m, err
}

// UpdateStatus settles a pending message. ErrMessageNotFound covers both a missing
// id and a message that was already settled.
func (r *OutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	return r.touchPending(ctx, id, "update outbox message status", updateOutboxStatusSQL, status, r.now().UTC(), id)
}

func (r *OutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	return r.touchPending(ctx, id, "increment outbox message attempts", incrementOutboxAttemptsSQL, r.now().UTC(), id)
}

func (r *OutboxRepository) touchPending(ctx context.Context, id int64, action, query string, args ...interface{}) error {
	result, err := r.querier.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+action, zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if result.RowsAffected() == 0 {
		return outbox.ErrMessageNotFound{ID: id}
	}
	return nil
}
