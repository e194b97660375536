package service

import (
	"context"

	"github.com/progress-ledger/internal/domain/progress"
	"github.com/progress-ledger/internal/verifier"
	"github.com/shopspring/decimal"
)

// ReportRequest is one progress report as submitted by a caller.
type ReportRequest struct {
	ProjectID       string
	ReportedPercent decimal.Decimal
	ReportDate      progress.Date
	Remarks         string
	ReportedBy      string
}

// ProgressService defines the operations exposed over HTTP and ledgerctl
type ProgressService interface {
	// ReportProgress validates req, chains it onto the project's latest record and appends it.
	// Returns ErrMissingField, ErrInvalidPercent, ErrFutureDate, ErrDuplicateReportDate or
	// ErrConcurrentUpdateConflict for rejected reports.
	ReportProgress(ctx context.Context, req *ReportRequest) (*progress.Record, error)

	// GetHistory returns the project's records oldest first, each annotated with its own validity.
	GetHistory(ctx context.Context, projectID string) ([]verifier.Annotated, error)

	// GetLatest returns the project's newest record, or nil when it has none
	GetLatest(ctx context.Context, projectID string) (*progress.Record, error)

	// VerifyIntegrity walks the project's chain. A broken chain is reported in the result, not as an error.
	VerifyIntegrity(ctx context.Context, projectID string) (*verifier.Result, error)
}

// IntegrityVerifier verifies one project's chain
type IntegrityVerifier interface {
	Verify(ctx context.Context, projectID string) (*verifier.Result, error)
}
