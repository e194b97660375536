package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/progress-ledger/internal/config"
	"github.com/progress-ledger/internal/domain/hashchain"
	"github.com/progress-ledger/internal/domain/progress"
	"github.com/progress-ledger/internal/platform/metrics"
	"github.com/progress-ledger/internal/verifier"
	"go.uber.org/zap"
)

// ProgressServiceImpl implements the ProgressService interface
type ProgressServiceImpl struct {
	store       progress.LedgerStore
	verifier    IntegrityVerifier
	logger      *zap.Logger
	now         func() time.Time
	location    *time.Location
	maxAttempts int
}

// Option configures a ProgressServiceImpl.
type Option func(*ProgressServiceImpl)

// WithClock replaces the clock that decides what "today" is.
func WithClock(now func() time.Time) Option {
	return func(s *ProgressServiceImpl) {
		s.now = now
	}
}

// NewProgressService creates a new progress service
func NewProgressService(logger *zap.Logger, store progress.LedgerStore, chainVerifier IntegrityVerifier, cfg *config.LedgerConfig, opts ...Option) *ProgressServiceImpl {
	s := &ProgressServiceImpl{
		store:       store,
		verifier:    chainVerifier,
		logger:      logger,
		now:         time.Now,
		location:    cfg.Location(),
		maxAttempts: cfg.MaxAppendAttempts,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReportProgress appends a report with optimistic concurrency: the store rejects the
// append when another writer moved the tip, and the whole read-hash-append step is
// repeated up to maxAttempts times.
func (s *ProgressServiceImpl) ReportProgress(ctx context.Context, req *ReportRequest) (*progress.Record, error) {
	if err := progress.ValidateIdentity(req.ProjectID, req.ReportedBy); err != nil {
		metrics.RecordAppend(metrics.AppendResultRejected)
		return nil, err
	}
	if err := progress.ValidatePercent(req.ReportedPercent); err != nil {
		metrics.RecordAppend(metrics.AppendResultRejected)
		return nil, err
	}
	today := progress.DateOf(s.now().In(s.location))
	if err := progress.ValidateReportDate(req.ReportDate, today); err != nil {
		metrics.RecordAppend(metrics.AppendResultRejected)
		return nil, err
	}

	logger := s.logger.With(zap.String("project_id", req.ProjectID), zap.Stringer("report_date", req.ReportDate))

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		latest, err := s.store.GetLatest(ctx, req.ProjectID)
		if err != nil {
			metrics.RecordAppend(metrics.AppendResultError)
			return nil, fmt.Errorf("failed to read chain tip: %w", err)
		}

		prevHash := hashchain.GenesisHash
		if latest != nil {
			prevHash = latest.RecordHash
		}

		record := progress.NewRecord(req.ProjectID, req.ReportedPercent, req.ReportDate, req.Remarks, req.ReportedBy)
		if err := record.Link(prevHash); err != nil {
			metrics.RecordAppend(metrics.AppendResultError)
			return nil, fmt.Errorf("failed to compute record hash: %w", err)
		}

		stored, err := s.store.Append(ctx, record)
		switch {
		case err == nil:
			metrics.RecordAppend(metrics.AppendResultSuccess)
			logger.Info("Progress recorded",
				zap.String("record_id", stored.RecordID.String()),
				zap.Int64("sequence", stored.Sequence),
				zap.String("record_hash", stored.RecordHash),
				zap.Int("attempt", attempt),
			)
			return stored, nil
		case errors.Is(err, progress.ErrIntegrityViolation{}):
			metrics.RecordAppendRetry()
			logger.Debug("Chain tip moved during append, retrying", zap.Int("attempt", attempt), zap.Error(err))
		case errors.Is(err, progress.ErrDuplicateReportDate{}):
			metrics.RecordAppend(metrics.AppendResultDuplicate)
			return nil, err
		default:
			metrics.RecordAppend(metrics.AppendResultError)
			logger.Error("Failed to append progress record", zap.Error(err))
			return nil, err
		}
	}

	metrics.RecordAppend(metrics.AppendResultConflict)
	logger.Warn("Gave up appending after repeated concurrent updates", zap.Int("attempts", s.maxAttempts))
	return nil, progress.ErrConcurrentUpdateConflict{ProjectID: req.ProjectID, Attempts: s.maxAttempts}
}

func (s *ProgressServiceImpl) GetHistory(ctx context.Context, projectID string) ([]verifier.Annotated, error) {
	records, err := s.store.GetSequence(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to read project history: %w", err)
	}
	return verifier.Annotate(records), nil
}

func (s *ProgressServiceImpl) GetLatest(ctx context.Context, projectID string) (*progress.Record, error) {
	return s.store.GetLatest(ctx, projectID)
}

func (s *ProgressServiceImpl) VerifyIntegrity(ctx context.Context, projectID string) (*verifier.Result, error) {
	return s.verifier.Verify(ctx, projectID)
}

var _ ProgressService = (*ProgressServiceImpl)(nil)
