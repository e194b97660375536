package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/progress-ledger/internal/chain_auditor/service"
	"github.com/progress-ledger/internal/domain/progress"
	"github.com/progress-ledger/internal/domain/shared"
	"github.com/progress-ledger/internal/platform/correlation"
	"github.com/progress-ledger/internal/platform/persistence"
	"github.com/progress-ledger/internal/verifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockProjectLister struct {
	mock.Mock
}

func (m *MockProjectLister) ListProjects(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) AuditProject(ctx context.Context, projectID string) (*service.AuditReport, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AuditReport), args.Error(1)
}

// fakeLocker hands out in-process locks and records releases.
type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	failing  map[string]error
	released []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool), failing: make(map[string]error)}
}

func (l *fakeLocker) Lock(_ context.Context, projectID string, _ time.Duration) (persistence.ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failing[projectID]; err != nil {
		return nil, err
	}
	if l.held[projectID] {
		return nil, persistence.ErrLockNotObtained
	}
	l.held[projectID] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, projectID)
		l.released = append(l.released, projectID)
		return nil
	}, nil
}

func okReport(projectID string) *service.AuditReport {
	return &service.AuditReport{Verification: &verifier.Result{ProjectID: projectID, Valid: true}}
}

func TestSweeper_Sweep(t *testing.T) {
	projects := new(MockProjectLister)
	audits := new(MockAuditService)
	locker := newFakeLocker()

	locker.held["P2"] = true
	locker.failing["P3"] = errors.New("redis down")

	projects.On("ListProjects", mock.Anything).Return([]string{"P1", "P2", "P3", "P4", "P5"}, nil).Once()
	audits.On("AuditProject", mock.MatchedBy(func(ctx context.Context) bool {
		return correlation.FromContext(ctx) != ""
	}), "P1").Return(okReport("P1"), nil).Once()
	audits.On("AuditProject", mock.Anything, "P4").Return(&service.AuditReport{
		Verification: &verifier.Result{ProjectID: "P4"},
		Alert:        &progress.ChainAlert{Kind: shared.AlertKindChainBroken},
	}, nil).Once()
	audits.On("AuditProject", mock.Anything, "P5").Return(nil, errors.New("db down")).Once()

	sweeper := NewSweeper(zap.NewNop(), projects, audits, locker, time.Minute, time.Minute)
	summary, err := sweeper.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, &SweepSummary{Audited: 2, Skipped: 1, Findings: 1, Failed: 2}, summary)
	assert.ElementsMatch(t, []string{"P1", "P4", "P5"}, locker.released)
	assert.True(t, locker.held["P2"], "a lock held elsewhere is left alone")
	audits.AssertExpectations(t)
}

func TestSweeper_ListFails(t *testing.T) {
	projects := new(MockProjectLister)
	projects.On("ListProjects", mock.Anything).Return(nil, errors.New("db down")).Once()

	sweeper := NewSweeper(zap.NewNop(), projects, new(MockAuditService), newFakeLocker(), time.Minute, time.Minute)
	summary, err := sweeper.Sweep(context.Background())

	require.Error(t, err)
	assert.Nil(t, summary)
}

func TestSweeper_StopsOnCancelledContext(t *testing.T) {
	projects := new(MockProjectLister)
	audits := new(MockAuditService)
	projects.On("ListProjects", mock.Anything).Return([]string{"P1", "P2"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	audits.On("AuditProject", mock.Anything, "P1").Return(okReport("P1"), nil).Run(func(mock.Arguments) {
		cancel()
	}).Once()

	sweeper := NewSweeper(zap.NewNop(), projects, audits, newFakeLocker(), time.Minute, time.Minute)
	summary, err := sweeper.Sweep(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Audited)
	audits.AssertNotCalled(t, "AuditProject", mock.Anything, "P2")
}

func TestSweeper_StartSweepsImmediately(t *testing.T) {
	projects := new(MockProjectLister)
	swept := make(chan struct{}, 1)
	projects.On("ListProjects", mock.Anything).Return([]string{}, nil).Run(func(mock.Arguments) {
		select {
		case swept <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sweeper := NewSweeper(zap.NewNop(), projects, new(MockAuditService), newFakeLocker(), time.Hour, time.Minute)
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not run on start")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}
