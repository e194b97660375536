// Package outbox holds ProgressRecorded events between the transaction that
// appends a record and their publication to Kafka by the chain auditor.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/progress-ledger/internal/domain/progress"
	"github.com/progress-ledger/internal/domain/shared"
)

// Message is one ledger_outbox row
type Message struct {
	ID            int64               `json:"id"`
	RecordID      uuid.UUID           `json:"record_id"`
	ProjectID     string              `json:"project_id"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

// NewMessage wraps event in a pending message stamped with the record's created_at.
func NewMessage(event *progress.RecordedEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event for record %s: %w", event.Type, event.RecordID, err)
	}

	return &Message{
		RecordID:  event.RecordID,
		ProjectID: event.ProjectID,
		Payload:   payload,
		Status:    shared.OutboxStatusPending,
		CreatedAt: event.CreatedAt.UTC(),
	}, nil
}

// Event decodes the payload. A payload that is not a ProgressRecorded event for
// this row's record is an error.
func (m *Message) Event() (*progress.RecordedEvent, error) {
	var event progress.RecordedEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode outbox message %d: %w", m.ID, err)
	}
	if event.Type != shared.EventTypeProgressRecorded {
		return nil, fmt.Errorf("outbox message %d carries unexpected event type %q", m.ID, event.Type)
	}
	if event.RecordID != m.RecordID || event.ProjectID != m.ProjectID {
		return nil, fmt.Errorf("outbox message %d payload does not match record %s of project %s", m.ID, m.RecordID, m.ProjectID)
	}
	return &event, nil
}
