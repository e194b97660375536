package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// WorkerPoolAuditService bounds how many audits run at once. Concurrent requests
// for the same project share a single audit.
type WorkerPoolAuditService struct {
	baseService AuditService
	pool        *ants.Pool
	logger      *zap.Logger

	mu       sync.Mutex
	inFlight map[string]*auditCall
}

type auditCall struct {
	done    chan struct{}
	waiters int
	report  *AuditReport
	err     error
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolAuditService(
	baseService AuditService,
	config WorkerPoolConfig,
	logger *zap.Logger,
) (*WorkerPoolAuditService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolAuditService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
		inFlight:    make(map[string]*auditCall),
	}, nil
}

// AuditProject submits the audit to the worker pool and waits for its report.
func (s *WorkerPoolAuditService) AuditProject(ctx context.Context, projectID string) (*AuditReport, error) {
	s.mu.Lock()
	if call, ok := s.inFlight[projectID]; ok {
		call.waiters++
		waiters := call.waiters
		s.mu.Unlock()
		s.logger.Debug("Joining in-flight audit", zap.String("project_id", projectID), zap.Int("waiters", waiters))
		return wait(ctx, call)
	}
	call := &auditCall{done: make(chan struct{})}
	s.inFlight[projectID] = call
	s.mu.Unlock()

	// The shared audit outlives any one caller; each caller still stops waiting on its own ctx.
	auditCtx := context.WithoutCancel(ctx)
	err := s.pool.Submit(func() {
		call.report, call.err = s.baseService.AuditProject(auditCtx, projectID)
		s.finish(projectID, call)
	})
	if err != nil {
		call.err = fmt.Errorf("failed to submit audit of project %s: %w", projectID, err)
		s.finish(projectID, call)

		s.logger.Error("Failed to submit audit to worker pool",
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		return nil, call.err
	}

	return wait(ctx, call)
}

func (s *WorkerPoolAuditService) finish(projectID string, call *auditCall) {
	s.mu.Lock()
	delete(s.inFlight, projectID)
	s.mu.Unlock()
	close(call.done)
}

func wait(ctx context.Context, call *auditCall) (*AuditReport, error) {
	select {
	case <-call.done:
		return call.report, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolAuditService) Shutdown() {
	s.logger.Info("Shutting down worker pool", zap.Int("running_workers", s.pool.Running()))
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolAuditService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolAuditService) Capacity() int {
	return s.pool.Cap()
}
