package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/progress-ledger/internal/domain/shared"
)

// Writer enqueues messages. The ledger store binds it to the transaction that
// appends the record, so a record and its event commit or roll back together.
type Writer interface {
	Create(ctx context.Context, message *Message) error
	WithTx(tx pgx.Tx) Writer
}

// Queue is the relay side: the auditor's poller drains pending messages in id order.
type Queue interface {
	GetPending(ctx context.Context, limit int) ([]*Message, error)
	UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error
	IncrementAttempts(ctx context.Context, id int64) error
}

// Repository is both sides of the ledger_outbox table
type Repository interface {
	Writer
	Queue
}

// ErrMessageNotFound indicates missing outbox message
type ErrMessageNotFound struct {
	ID int64
}

func (e ErrMessageNotFound) Error() string {
	return fmt.Sprintf("outbox message %d not found", e.ID)
}

// Is matches any ErrMessageNotFound when the target carries no id.
func (e ErrMessageNotFound) Is(target error) bool {
	t, ok := target.(ErrMessageNotFound)
	if !ok {
		return false
	}
	return t.ID == 0 || t.ID == e.ID
}
