package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/progress-ledger/internal/config"
	"github.com/progress-ledger/internal/data/memory"
	"github.com/progress-ledger/internal/domain/hashchain"
	"github.com/progress-ledger/internal/domain/progress"
	"github.com/progress-ledger/internal/verifier"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) GetLatest(ctx context.Context, projectID string) (*progress.Record, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*progress.Record), args.Error(1)
}

func (m *MockLedgerStore) Append(ctx context.Context, record *progress.Record) (*progress.Record, error) {
	args := m.Called(ctx, record)
	if fn, ok := args.Get(0).(func(context.Context, *progress.Record) *progress.Record); ok {
		return fn(ctx, record), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*progress.Record), args.Error(1)
}

func (m *MockLedgerStore) GetSequence(ctx context.Context, projectID string) ([]*progress.Record, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*progress.Record), args.Error(1)
}

func (m *MockLedgerStore) ListProjects(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockLedgerStore) Update(ctx context.Context, record *progress.Record) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockLedgerStore) Delete(ctx context.Context, recordID uuid.UUID) error {
	return m.Called(ctx, recordID).Error(0)
}

// tamperingStore rewrites records on their way out, the way a direct edit of the
// table would look to the service.
type tamperingStore struct {
	*memory.LedgerStore
	tamper func([]*progress.Record)
}

func (s *tamperingStore) GetSequence(ctx context.Context, projectID string) ([]*progress.Record, error) {
	records, err := s.LedgerStore.GetSequence(ctx, projectID)
	if err == nil && s.tamper != nil {
		s.tamper(records)
	}
	return records, err
}

var fixedNow = time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)

func ledgerConfig(attempts int) *config.LedgerConfig {
	return &config.LedgerConfig{MaxAppendAttempts: attempts, Timezone: "UTC"}
}

func newService(store progress.LedgerStore, cfg *config.LedgerConfig) *ProgressServiceImpl {
	logger := zap.NewNop()
	return NewProgressService(logger, store, verifier.New(store, logger), cfg,
		WithClock(func() time.Time { return fixedNow }))
}

func report(projectID, percent, date string) *ReportRequest {
	d, err := progress.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return &ReportRequest{
		ProjectID:       projectID,
		ReportedPercent: decimal.RequireFromString(percent),
		ReportDate:      d,
		ReportedBy:      "deo-17",
	}
}

func TestProgressService_ScenarioP1(t *testing.T) {
	ctx := context.Background()
	store := &tamperingStore{LedgerStore: memory.NewLedgerStore()}
	svc := newService(store, ledgerConfig(3))

	a, err := svc.ReportProgress(ctx, report("P1", "50.0", "2025-06-01"))
	require.NoError(t, err)
	assert.Equal(t, hashchain.GenesisHash, a.PrevHash)
	assert.Equal(t, "69c8c1fe36488ea9011a0dbafe7c132fb364648e6f51c682464b0e817d37525f", a.RecordHash)

	b, err := svc.ReportProgress(ctx, report("P1", "75.0", "2025-07-01"))
	require.NoError(t, err)
	assert.Equal(t, a.RecordHash, b.PrevHash)
	assert.Equal(t, "42aa62149578c11ef8218ce846bc7a65ff06a071650fe4651aa1a9068190647a", b.RecordHash)
	assert.Equal(t, int64(2), b.Sequence)

	result, err := svc.VerifyIntegrity(ctx, "P1")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.Total)
	assert.Nil(t, result.BrokenAt)

	store.tamper = func(records []*progress.Record) {
		records[0].ReportedPercent = decimal.RequireFromString("60.0")
	}

	result, err = svc.VerifyIntegrity(ctx, "P1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, 2, result.Total)
	require.NotNil(t, result.BrokenAt)
	assert.Equal(t, a.RecordID, result.BrokenAt.RecordID)
	assert.Equal(t, verifier.ReasonHashMismatch, result.BrokenAt.Reason)

	history, err := svc.GetHistory(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].Valid)
	assert.True(t, history[1].Valid, "B still links to A's stored hash")
	assert.False(t, history[1].ChainValid)

	latest, err := svc.GetLatest(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, b.RecordID, latest.RecordID)
}

func TestProgressService_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		percent string
		date    string
		wantErr error
	}{
		{"ZeroPercent", "0", "2025-06-01", nil},
		{"HundredPercent", "100", "2025-06-02", nil},
		{"ThreeDecimals", "33.333", "2025-06-03", nil},
		{"TodayIsAllowed", "40", "2025-07-15", nil},
		{"BelowZero", "-0.001", "2025-06-04", progress.ErrInvalidPercent{}},
		{"AboveHundred", "100.001", "2025-06-05", progress.ErrInvalidPercent{}},
		{"TooPrecise", "12.3456", "2025-06-06", progress.ErrInvalidPercent{}},
		{"Tomorrow", "40", "2025-07-16", progress.ErrFutureDate{}},
	}

	store := memory.NewLedgerStore()
	svc := newService(store, ledgerConfig(3))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := store.GetLatest(ctx, "P1")
			require.NoError(t, err)

			record, err := svc.ReportProgress(ctx, report("P1", tt.percent, tt.date))
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.NotNil(t, record)
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, record)
			after, err := store.GetLatest(ctx, "P1")
			require.NoError(t, err)
			assert.Equal(t, before, after, "rejected report must not change the chain")
		})
	}
}

func TestProgressService_RejectionsSkipStore(t *testing.T) {
	store := new(MockLedgerStore)
	svc := newService(store, ledgerConfig(3))

	_, err := svc.ReportProgress(context.Background(), report("P1", "101", "2025-06-01"))
	assert.ErrorIs(t, err, progress.ErrInvalidPercent{})

	_, err = svc.ReportProgress(context.Background(), report("P1", "10", "2030-01-01"))
	var future progress.ErrFutureDate
	require.ErrorAs(t, err, &future)
	assert.Equal(t, "2025-07-15", future.Today.String())

	_, err = svc.ReportProgress(context.Background(), report("", "10", "2025-06-01"))
	assert.ErrorIs(t, err, progress.ErrMissingField{Field: "project_id"})

	blankReporter := report("P1", "10", "2025-06-01")
	blankReporter.ReportedBy = ""
	_, err = svc.ReportProgress(context.Background(), blankReporter)
	assert.ErrorIs(t, err, progress.ErrMissingField{Field: "reported_by"})

	store.AssertNotCalled(t, "GetLatest", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestProgressService_FutureDateUsesConfiguredZone(t *testing.T) {
	// 23:30 UTC on June 1 is already June 2 in Tokyo.
	now := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
	logger := zap.NewNop()

	utc := NewProgressService(logger, memory.NewLedgerStore(), nil, &config.LedgerConfig{MaxAppendAttempts: 1, Timezone: "UTC"},
		WithClock(func() time.Time { return now }))
	_, err := utc.ReportProgress(context.Background(), report("P1", "10", "2025-06-02"))
	assert.ErrorIs(t, err, progress.ErrFutureDate{})

	tokyo := NewProgressService(logger, memory.NewLedgerStore(), nil, &config.LedgerConfig{MaxAppendAttempts: 1, Timezone: "Asia/Tokyo"},
		WithClock(func() time.Time { return now }))
	_, err = tokyo.ReportProgress(context.Background(), report("P1", "10", "2025-06-02"))
	assert.NoError(t, err)
}

func TestProgressService_DuplicateReportDate(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.NewLedgerStore(), ledgerConfig(3))

	first, err := svc.ReportProgress(ctx, report("P1", "10", "2025-06-01"))
	require.NoError(t, err)

	_, err = svc.ReportProgress(ctx, report("P1", "20", "2025-06-01"))
	assert.ErrorIs(t, err, progress.ErrDuplicateReportDate{ProjectID: "P1"})

	latest, err := svc.GetLatest(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, first.RecordID, latest.RecordID)

	_, err = svc.ReportProgress(ctx, report("P2", "20", "2025-06-01"))
	assert.NoError(t, err, "the same date is fine for another project")
}

func TestProgressService_DuplicateIsNotRetried(t *testing.T) {
	store := new(MockLedgerStore)
	svc := newService(store, ledgerConfig(3))

	store.On("GetLatest", mock.Anything, "P1").Return(nil, nil).Once()
	store.On("Append", mock.Anything, mock.AnythingOfType("*progress.Record")).
		Return(nil, progress.ErrDuplicateReportDate{ProjectID: "P1"}).Once()

	_, err := svc.ReportProgress(context.Background(), report("P1", "10", "2025-06-01"))
	assert.ErrorIs(t, err, progress.ErrDuplicateReportDate{})
	store.AssertExpectations(t)
}

func TestProgressService_RetriesLostRace(t *testing.T) {
	store := new(MockLedgerStore)
	svc := newService(store, ledgerConfig(3))

	winner := &progress.Record{RecordID: uuid.New(), ProjectID: "P1", Sequence: 1, RecordHash: "aa" + hashchain.GenesisHash[2:]}

	store.On("GetLatest", mock.Anything, "P1").Return(nil, nil).Once()
	store.On("Append", mock.Anything, mock.MatchedBy(func(r *progress.Record) bool {
		return r.PrevHash == hashchain.GenesisHash
	})).Return(nil, progress.ErrIntegrityViolation{ProjectID: "P1"}).Once()

	store.On("GetLatest", mock.Anything, "P1").Return(winner, nil).Once()
	store.On("Append", mock.Anything, mock.MatchedBy(func(r *progress.Record) bool {
		return r.PrevHash == winner.RecordHash
	})).Return(func(_ context.Context, r *progress.Record) *progress.Record {
		stored := *r
		stored.Sequence = 2
		return &stored
	}, nil).Once()

	record, err := svc.ReportProgress(context.Background(), report("P1", "10", "2025-06-02"))
	require.NoError(t, err)
	assert.Equal(t, winner.RecordHash, record.PrevHash)
	assert.Equal(t, int64(2), record.Sequence)
	store.AssertExpectations(t)
}

func TestProgressService_GivesUpAfterMaxAttempts(t *testing.T) {
	store := new(MockLedgerStore)
	svc := newService(store, ledgerConfig(3))

	store.On("GetLatest", mock.Anything, "P1").Return(nil, nil).Times(3)
	store.On("Append", mock.Anything, mock.Anything).
		Return(nil, progress.ErrIntegrityViolation{ProjectID: "P1"}).Times(3)

	_, err := svc.ReportProgress(context.Background(), report("P1", "10", "2025-06-01"))
	var conflict progress.ErrConcurrentUpdateConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 3, conflict.Attempts)
	assert.Equal(t, "P1", conflict.ProjectID)
	store.AssertExpectations(t)
}

func TestProgressService_StoreErrors(t *testing.T) {
	boom := errors.New("connection refused")

	t.Run("GetLatest", func(t *testing.T) {
		store := new(MockLedgerStore)
		svc := newService(store, ledgerConfig(3))
		store.On("GetLatest", mock.Anything, "P1").Return(nil, boom).Once()

		_, err := svc.ReportProgress(context.Background(), report("P1", "10", "2025-06-01"))
		assert.ErrorIs(t, err, boom)
		store.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("Append", func(t *testing.T) {
		store := new(MockLedgerStore)
		svc := newService(store, ledgerConfig(3))
		store.On("GetLatest", mock.Anything, "P1").Return(nil, nil).Once()
		store.On("Append", mock.Anything, mock.Anything).Return(nil, boom).Once()

		_, err := svc.ReportProgress(context.Background(), report("P1", "10", "2025-06-01"))
		assert.ErrorIs(t, err, boom)
		store.AssertExpectations(t)
	})

	t.Run("GetHistory", func(t *testing.T) {
		store := new(MockLedgerStore)
		svc := newService(store, ledgerConfig(3))
		store.On("GetSequence", mock.Anything, "P1").Return(nil, boom).Once()

		_, err := svc.GetHistory(context.Background(), "P1")
		assert.ErrorIs(t, err, boom)
	})
}

func TestProgressService_ConcurrentReports(t *testing.T) {
	const writers = 25
	ctx := context.Background()
	store := memory.NewLedgerStore()
	// Every failed attempt means another writer succeeded, so `writers` attempts always suffice.
	svc := newService(store, ledgerConfig(writers))

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
			_, errs[i] = svc.ReportProgress(ctx, report("P1", fmt.Sprintf("%d", i), date.Format(progress.DateLayout)))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	records, err := store.GetSequence(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, records, writers)

	seen := make(map[string]bool, writers)
	for _, r := range records {
		assert.False(t, seen[r.PrevHash], "prev_hash %s used twice", r.PrevHash)
		seen[r.PrevHash] = true
	}

	result, err := svc.VerifyIntegrity(ctx, "P1")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, writers, result.Total)
}
