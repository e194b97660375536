package progress

import (
	"time"

	"github.com/progress-ledger/internal/domain/shared"
)

// ChainAlert reports a chain that failed an audit. Alerts are published for
// operators and are never acted on automatically.
type ChainAlert struct {
	Type             shared.EventType `json:"type"`
	Kind             shared.AlertKind `json:"kind"`
	ProjectID        string           `json:"project_id"`
	RecordID         string           `json:"record_id,omitempty"`
	Sequence         int64            `json:"sequence"`
	ExpectedHash     string           `json:"expected_hash,omitempty"`
	ActualHash       string           `json:"actual_hash,omitempty"`
	Reason           string           `json:"reason"`
	ChainLength      int              `json:"chain_length"`
	AnchoredSequence int64            `json:"anchored_sequence,omitempty"`
	DetectedAt       time.Time        `json:"detected_at"`
	CorrelationID    string           `json:"correlation_id,omitempty"`
}
