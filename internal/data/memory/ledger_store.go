// Package memory holds an in-process LedgerStore for tests, ledgerctl's offline
// mode and single-process development setups. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/progress-ledger/internal/domain/hashchain"
	"github.com/progress-ledger/internal/domain/progress"
)

// LedgerStore is a thread-safe, append-only progress.LedgerStore.
// Records are copied on the way in and out so callers cannot mutate stored history.
type LedgerStore struct {
	mu     sync.RWMutex
	chains map[string][]*progress.Record
	dates  map[string]map[progress.Date]struct{}
	now    func() time.Time
}

// Option configures a LedgerStore.
type Option func(*LedgerStore)

// WithClock replaces the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerStore) {
		s.now = now
	}
}

func NewLedgerStore(opts ...Option) *LedgerStore {
	s := &LedgerStore{
		chains: make(map[string][]*progress.Record),
		dates:  make(map[string]map[progress.Date]struct{}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerStore) GetLatest(_ context.Context, projectID string) (*progress.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[projectID]
	if len(chain) == 0 {
		return nil, nil
	}
	latest := *chain[len(chain)-1]
	return &latest, nil
}

// Append compares record.PrevHash with the current tip under the write lock,
// which makes the check and the insert one atomic step.
func (s *LedgerStore) Append(_ context.Context, record *progress.Record) (*progress.Record, error) {
	if err := progress.ValidateIdentity(record.ProjectID, record.ReportedBy); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[record.ProjectID]

	tipHash := hashchain.GenesisHash
	var tip *progress.Record
	if len(chain) > 0 {
		tip = chain[len(chain)-1]
		tipHash = tip.RecordHash
	}

	if _, exists := s.dates[record.ProjectID][record.ReportDate]; exists {
		return nil, progress.ErrDuplicateReportDate{ProjectID: record.ProjectID, ReportDate: record.ReportDate}
	}
	if record.PrevHash != tipHash {
		return nil, progress.ErrIntegrityViolation{
			ProjectID:    record.ProjectID,
			ExpectedPrev: tipHash,
			ActualPrev:   record.PrevHash,
		}
	}
	stored := *record
	stored.Sequence = int64(len(chain)) + 1
	stored.CreatedAt = s.now().UTC()
	if tip != nil && stored.CreatedAt.Before(tip.CreatedAt) {
		stored.CreatedAt = tip.CreatedAt
	}

	s.chains[record.ProjectID] = append(chain, &stored)
	if s.dates[record.ProjectID] == nil {
		s.dates[record.ProjectID] = make(map[progress.Date]struct{})
	}
	s.dates[record.ProjectID][record.ReportDate] = struct{}{}

	out := stored
	return &out, nil
}

func (s *LedgerStore) GetSequence(_ context.Context, projectID string) ([]*progress.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[projectID]
	out := make([]*progress.Record, 0, len(chain))
	for _, r := range chain {
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (s *LedgerStore) ListProjects(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := make([]string, 0, len(s.chains))
	for projectID := range s.chains {
		projects = append(projects, projectID)
	}
	sort.Strings(projects)
	return projects, nil
}

func (s *LedgerStore) Update(context.Context, *progress.Record) error {
	return progress.ErrUnsupported
}

func (s *LedgerStore) Delete(context.Context, uuid.UUID) error {
	return progress.ErrUnsupported
}

var _ progress.LedgerStore = (*LedgerStore)(nil)
