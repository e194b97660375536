package service

import (
	"context"
	"fmt"
	"time"

	"github.com/progress-ledger/internal/domain/anchor"
	"github.com/progress-ledger/internal/domain/progress"
	"github.com/progress-ledger/internal/domain/shared"
	"github.com/progress-ledger/internal/platform/correlation"
	"github.com/progress-ledger/internal/platform/messaging/producers"
	"github.com/progress-ledger/internal/platform/metrics"
	"github.com/progress-ledger/internal/verifier"
	"go.uber.org/zap"
)

// AuditServiceImpl verifies chains and publishes a ChainAlert for every finding
type AuditServiceImpl struct {
	chains  ChainReader
	anchors AnchorReader
	alerts  producers.MessagePublisher
	logger  *zap.Logger
	now     func() time.Time
}

func NewAuditService(
	logger *zap.Logger,
	chains ChainReader,
	anchors AnchorReader,
	alerts producers.MessagePublisher,
) *AuditServiceImpl {
	return &AuditServiceImpl{
		chains:  chains,
		anchors: anchors,
		alerts:  alerts,
		logger:  logger,
		now:     time.Now,
	}
}

// AuditProject re-verifies every digest of the project's chain, then checks the
// chain still reaches the highest anchored tip with the anchored hash.
func (s *AuditServiceImpl) AuditProject(ctx context.Context, projectID string) (*AuditReport, error) {
	logger := s.logger.With(zap.String("project_id", projectID))
	if correlationID := correlation.FromContext(ctx); correlationID != "" {
		logger = logger.With(zap.String("correlation_id", correlationID))
	}

	// Anchors trail committed records and only grow: read the anchor before the chain.
	latest, err := s.anchors.Latest(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to read anchor of project %s: %w", projectID, err)
	}

	start := time.Now()
	records, err := s.chains.GetSequence(ctx, projectID)
	if err != nil {
		metrics.ObserveVerification(metrics.VerificationResultError, time.Since(start))
		return nil, fmt.Errorf("failed to read chain of project %s: %w", projectID, err)
	}

	result := verifier.VerifySequence(projectID, records)
	if result.Valid {
		metrics.ObserveVerification(metrics.VerificationResultValid, time.Since(start))
	} else {
		metrics.ObserveVerification(metrics.VerificationResultBroken, time.Since(start))
	}

	report := &AuditReport{
		Verification: result,
		Anchor:       latest,
		Alert:        s.evaluate(ctx, result, records, latest),
	}

	if report.Alert == nil {
		logger.Debug("Chain audit passed", zap.Int("total", result.Total))
		return report, nil
	}

	alert := report.Alert
	logger.Error("Chain audit failed",
		zap.String("kind", string(alert.Kind)),
		zap.String("reason", alert.Reason),
		zap.Int64("sequence", alert.Sequence),
		zap.String("record_id", alert.RecordID),
		zap.String("expected_hash", alert.ExpectedHash),
		zap.String("actual_hash", alert.ActualHash),
	)
	metrics.RecordAlert(string(alert.Kind))

	if err := s.alerts.Publish(ctx, projectID, alert); err != nil {
		return report, fmt.Errorf("failed to publish %s alert for project %s: %w", alert.Kind, projectID, err)
	}

	return report, nil
}

// evaluate returns the first finding, or nil when the chain is intact.
func (s *AuditServiceImpl) evaluate(ctx context.Context, result *verifier.Result, records []*progress.Record, latest *anchor.Anchor) *progress.ChainAlert {
	alert := &progress.ChainAlert{
		Type:          shared.EventTypeChainAlert,
		ProjectID:     result.ProjectID,
		ChainLength:   result.Total,
		DetectedAt:    s.now().UTC(),
		CorrelationID: correlation.FromContext(ctx),
	}

	if !result.Valid {
		ref := result.BrokenAt
		alert.Kind = shared.AlertKindChainBroken
		alert.RecordID = ref.RecordID.String()
		alert.Sequence = ref.Sequence
		alert.ExpectedHash = ref.ExpectedHash
		alert.ActualHash = ref.ActualHash
		alert.Reason = ref.Reason
		return alert
	}

	if latest == nil {
		return nil
	}
	alert.AnchoredSequence = latest.Sequence

	var tip int64
	if len(records) > 0 {
		tip = records[len(records)-1].Sequence
	}
	if tip < latest.Sequence {
		alert.Kind = shared.AlertKindTailTruncated
		alert.Sequence = latest.Sequence
		alert.RecordID = latest.RecordID
		alert.ExpectedHash = latest.RecordHash
		alert.Reason = fmt.Sprintf("chain ends at sequence %d but sequence %d was anchored", tip, latest.Sequence)
		return alert
	}

	for _, record := range records {
		if record.Sequence != latest.Sequence {
			continue
		}
		if record.RecordHash == latest.RecordHash {
			return nil
		}
		alert.Kind = shared.AlertKindAnchorMismatch
		alert.Sequence = record.Sequence
		alert.RecordID = record.RecordID.String()
		alert.ExpectedHash = latest.RecordHash
		alert.ActualHash = record.RecordHash
		alert.Reason = "record at the anchored sequence carries a different hash"
		return alert
	}

	alert.Kind = shared.AlertKindAnchorMismatch
	alert.Sequence = latest.Sequence
	alert.RecordID = latest.RecordID
	alert.ExpectedHash = latest.RecordHash
	alert.Reason = "anchored sequence is missing from the chain"
	return alert
}
