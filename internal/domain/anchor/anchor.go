// Package anchor records chain tips outside the ledger database so that removal
// of the newest records, or a consistent rewrite of a whole chain, can be detected.
package anchor

import (
	"context"
	"time"

	"github.com/progress-ledger/internal/domain/progress"
)

// Anchor witnesses that a project's chain had RecordHash at position Sequence.
type Anchor struct {
	ProjectID  string    `json:"project_id" bson:"project_id"`
	Sequence   int64     `json:"sequence" bson:"sequence"`
	RecordID   string    `json:"record_id" bson:"record_id"`
	RecordHash string    `json:"record_hash" bson:"record_hash"`
	AnchoredAt time.Time `json:"anchored_at" bson:"anchored_at"`
}

// FromEvent builds the anchor witnessed by a published event.
func FromEvent(event *progress.RecordedEvent, anchoredAt time.Time) *Anchor {
	return &Anchor{
		ProjectID:  event.ProjectID,
		Sequence:   event.Sequence,
		RecordID:   event.RecordID.String(),
		RecordHash: event.RecordHash,
		AnchoredAt: anchoredAt.UTC(),
	}
}

// Repository is insert-only storage of anchors.
type Repository interface {
	// Record stores a. Recording the same (project, sequence) twice is a no-op.
	Record(ctx context.Context, a *Anchor) error
	// Latest returns the anchor with the highest sequence, or nil when the project has none.
	Latest(ctx context.Context, projectID string) (*Anchor, error)
}
