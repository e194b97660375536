package progress

import (
	"context"

	"github.com/google/uuid"
)

// LedgerStore is durable, append-only storage of progress records keyed by project.
//
// Append must be atomic with respect to concurrent appenders of the same project:
// it fails with ErrIntegrityViolation when record.PrevHash is not the project's
// current latest RecordHash (or GenesisHash on an empty chain) at commit time, and
// with ErrDuplicateReportDate when the project already has a record for the date.
// Update and Delete always fail with ErrUnsupported.
type LedgerStore interface {
	// GetLatest returns the project's newest record, or nil when the chain is empty.
	GetLatest(ctx context.Context, projectID string) (*Record, error)
	// Append inserts record and returns it with Sequence and CreatedAt assigned.
	Append(ctx context.Context, record *Record) (*Record, error)
	// GetSequence returns every record of the project, oldest first.
	GetSequence(ctx context.Context, projectID string) ([]*Record, error)
	// ListProjects returns the ids of all projects that have at least one record.
	ListProjects(ctx context.Context) ([]string, error)
	Update(ctx context.Context, record *Record) error
	Delete(ctx context.Context, recordID uuid.UUID) error
}
