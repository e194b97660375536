package progress

import (
	"time"

	"github.com/google/uuid"
	"github.com/progress-ledger/internal/domain/shared"
)

// RecordedEvent announces a newly appended record. It is written to the outbox in
// the append transaction and published to Kafka, where it also serves as an
// external witness of the chain tip.
type RecordedEvent struct {
	Type            shared.EventType `json:"type"`
	RecordID        uuid.UUID        `json:"record_id"`
	ProjectID       string           `json:"project_id"`
	Sequence        int64            `json:"sequence"`
	ReportedPercent string           `json:"reported_percent"`
	ReportDate      Date             `json:"report_date"`
	ReportedBy      string           `json:"reported_by"`
	PrevHash        string           `json:"prev_hash"`
	RecordHash      string           `json:"record_hash"`
	HashVersion     int              `json:"hash_version"`
	CreatedAt       time.Time        `json:"created_at"`
	CorrelationID   string           `json:"correlation_id,omitempty"`
}

// NewRecordedEvent describes r.
func NewRecordedEvent(r *Record, correlationID string) *RecordedEvent {
	return &RecordedEvent{
		Type:            shared.EventTypeProgressRecorded,
		RecordID:        r.RecordID,
		ProjectID:       r.ProjectID,
		Sequence:        r.Sequence,
		ReportedPercent: r.ReportedPercent.String(),
		ReportDate:      r.ReportDate,
		ReportedBy:      r.ReportedBy,
		PrevHash:        r.PrevHash,
		RecordHash:      r.RecordHash,
		HashVersion:     r.HashVersion,
		CreatedAt:       r.CreatedAt,
		CorrelationID:   correlationID,
	}
}
