package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/progress-ledger/internal/chain_auditor/service"
	"github.com/progress-ledger/internal/platform/correlation"
	"github.com/progress-ledger/internal/platform/metrics"
	"github.com/progress-ledger/internal/platform/persistence"
	"go.uber.org/zap"
)

// ProjectLister lists every project with at least one record
type ProjectLister interface {
	ListProjects(ctx context.Context) ([]string, error)
}

// ProjectLocker takes a per-project lock shared by every auditor replica
type ProjectLocker interface {
	Lock(ctx context.Context, projectID string, ttl time.Duration) (persistence.ReleaseFunc, error)
}

// Sweeper periodically audits every project, one replica per project at a time.
type Sweeper struct {
	projects ProjectLister
	audits   service.AuditService
	locker   ProjectLocker
	logger   *zap.Logger
	interval time.Duration
	lockTTL  time.Duration
}

// SweepSummary counts the outcome of one sweep
type SweepSummary struct {
	Audited  int
	Skipped  int
	Findings int
	Failed   int
}

func NewSweeper(
	logger *zap.Logger,
	projects ProjectLister,
	audits service.AuditService,
	locker ProjectLocker,
	interval time.Duration,
	lockTTL time.Duration,
) *Sweeper {
	return &Sweeper{
		projects: projects,
		audits:   audits,
		locker:   locker,
		logger:   logger,
		interval: interval,
		lockTTL:  lockTTL,
	}
}

// Start sweeps immediately and then on every interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting chain sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("lock_ttl", s.lockTTL),
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("Chain sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Chain sweeper stopping due to context cancellation.")
			return
		case <-ticker.C:
		}
	}
}

// Sweep audits every project once.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepSummary, error) {
	sweepID := uuid.NewString()
	ctx = correlation.WithID(ctx, sweepID)
	logger := s.logger.With(zap.String("correlation_id", sweepID))

	projectIDs, err := s.projects.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	summary := &SweepSummary{}
	for _, projectID := range projectIDs {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		s.auditLocked(ctx, logger.With(zap.String("project_id", projectID)), projectID, summary)
	}

	logger.Info("Chain sweep finished",
		zap.Int("projects", len(projectIDs)),
		zap.Int("audited", summary.Audited),
		zap.Int("skipped", summary.Skipped),
		zap.Int("findings", summary.Findings),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (s *Sweeper) auditLocked(ctx context.Context, logger *zap.Logger, projectID string, summary *SweepSummary) {
	release, err := s.locker.Lock(ctx, projectID, s.lockTTL)
	if errors.Is(err, persistence.ErrLockNotObtained) {
		metrics.RecordAuditLock(metrics.LockResultNotObtained)
		logger.Debug("Project is being audited by another replica")
		summary.Skipped++
		return
	}
	if err != nil {
		metrics.RecordAuditLock(metrics.LockResultError)
		logger.Error("Failed to lock project for audit", zap.Error(err))
		summary.Failed++
		return
	}
	metrics.RecordAuditLock(metrics.LockResultObtained)

	defer func() {
		if err := release(ctx); err != nil {
			logger.Warn("Failed to release project lock", zap.Error(err))
		}
	}()

	report, err := s.audits.AuditProject(ctx, projectID)
	if err != nil {
		logger.Error("Project audit failed", zap.Error(err))
		summary.Failed++
		return
	}

	summary.Audited++
	if report.Alert != nil {
		summary.Findings++
	}
}
