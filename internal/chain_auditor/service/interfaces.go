package service

import (
	"context"

	"github.com/progress-ledger/internal/domain/anchor"
	"github.com/progress-ledger/internal/domain/progress"
	"github.com/progress-ledger/internal/verifier"
)

// AuditService audits one project's chain against its external anchors.
type AuditService interface {
	AuditProject(ctx context.Context, projectID string) (*AuditReport, error)
}

// ChainReader is the part of the ledger store the auditor reads
type ChainReader interface {
	GetSequence(ctx context.Context, projectID string) ([]*progress.Record, error)
}

// AnchorReader returns the highest anchor witnessed for a project
type AnchorReader interface {
	Latest(ctx context.Context, projectID string) (*anchor.Anchor, error)
}

// AuditReport is the outcome of one audit. Alert is nil when the chain is intact.
type AuditReport struct {
	Verification *verifier.Result
	Anchor       *anchor.Anchor
	Alert        *progress.ChainAlert
}
