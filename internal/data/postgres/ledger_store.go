// Package postgres provides the PostgreSQL LedgerStore and outbox repository.
// Appends are a single conditional INSERT so the chain-tip check and the write
// commit atomically, and the outbox message rides in the same transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/progress-ledger/internal/domain/hashchain"
	"github.com/progress-ledger/internal/domain/outbox"
	"github.com/progress-ledger/internal/domain/progress"
	"github.com/progress-ledger/internal/platform/correlation"
	"github.com/progress-ledger/internal/platform/persistence"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	uniqueViolation = "23505"

	constraintProjectDate = "progress_records_project_date_key"
	constraintProjectPrev = "progress_records_project_prev_key"
	constraintProjectSeq  = "progress_records_project_seq_key"
)

const recordColumns = `record_id, project_id, sequence, reported_percent::text, report_date, remarks,
		reported_by, created_at, prev_hash, record_hash, hash_version`

// appendQuery inserts only when $7 (the claimed prev_hash) is still the tip.
// created_at never goes backwards within a project.
const appendQuery = `
	WITH tip AS (
		SELECT sequence, record_hash, created_at
		FROM progress_records
		WHERE project_id = $2
		ORDER BY sequence DESC
		LIMIT 1
	)
	INSERT INTO progress_records (record_id, project_id, sequence, reported_percent, report_date, remarks,
		reported_by, prev_hash, record_hash, hash_version, created_at)
	SELECT $1, $2, COALESCE((SELECT sequence FROM tip), 0) + 1, $3, $4, $5, $6, $7, $8, $9,
		GREATEST(clock_timestamp(), COALESCE((SELECT created_at FROM tip), '-infinity'::timestamptz))
	WHERE $7 = COALESCE((SELECT record_hash FROM tip), $10)
	RETURNING sequence, created_at
`

// LedgerStore implements progress.LedgerStore for PostgreSQL
type LedgerStore struct {
	pool   persistence.Pool
	outbox outbox.Writer
	logger *zap.Logger
}

// NewLedgerStore creates a store over pool. When outboxWriter is nil appends
// publish nothing.
func NewLedgerStore(logger *zap.Logger, pool persistence.Pool, outboxWriter outbox.Writer) *LedgerStore {
	return &LedgerStore{
		pool:   pool,
		outbox: outboxWriter,
		logger: logger,
	}
}

func (s *LedgerStore) GetLatest(ctx context.Context, projectID string) (*progress.Record, error) {
	record, err := latest(ctx, s.pool, projectID)
	if err != nil {
		s.logger.Error("Failed to get latest progress record", zap.String("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to get latest progress record: %w", err)
	}
	return record, nil
}

func latest(ctx context.Context, q persistence.Querier, projectID string) (*progress.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM progress_records
		WHERE project_id = $1
		ORDER BY sequence DESC
		LIMIT 1
	`
	record, err := scanRecord(q.QueryRow(ctx, query, projectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// Append writes record and its outbox message in one transaction.
func (s *LedgerStore) Append(ctx context.Context, record *progress.Record) (*progress.Record, error) {
	if err := progress.ValidateIdentity(record.ProjectID, record.ReportedBy); err != nil {
		return nil, err
	}
	stored := *record

	err := persistence.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, appendQuery,
			record.RecordID,
			record.ProjectID,
			hashchain.FormatPercent(record.ReportedPercent),
			record.ReportDate.Time(),
			record.Remarks,
			record.ReportedBy,
			record.PrevHash,
			record.RecordHash,
			record.HashVersion,
			hashchain.GenesisHash,
		).Scan(&stored.Sequence, &stored.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return s.tipMoved(ctx, tx, record)
		}
		if err != nil {
			return s.mapAppendError(record, err)
		}
		stored.CreatedAt = stored.CreatedAt.UTC()

		if s.outbox == nil {
			return nil
		}
		message, err := outbox.NewMessage(progress.NewRecordedEvent(&stored, correlation.FromContext(ctx)))
		if err != nil {
			return fmt.Errorf("failed to build outbox message: %w", err)
		}
		return s.outbox.WithTx(tx).Create(ctx, message)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Appended progress record",
		zap.String("project_id", stored.ProjectID),
		zap.Int64("sequence", stored.Sequence),
		zap.String("record_hash", stored.RecordHash),
	)
	return &stored, nil
}

// tipMoved reports the current tip after the conditional insert matched nothing.
func (s *LedgerStore) tipMoved(ctx context.Context, tx pgx.Tx, record *progress.Record) error {
	violation := progress.ErrIntegrityViolation{ProjectID: record.ProjectID, ActualPrev: record.PrevHash}
	tip, err := latest(ctx, tx, record.ProjectID)
	if err != nil {
		s.logger.Warn("Failed to read chain tip after rejected append", zap.String("project_id", record.ProjectID), zap.Error(err))
		return violation
	}
	violation.ExpectedPrev = hashchain.GenesisHash
	if tip != nil {
		violation.ExpectedPrev = tip.RecordHash
	}
	return violation
}

func (s *LedgerStore) mapAppendError(record *progress.Record, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case constraintProjectDate:
			return progress.ErrDuplicateReportDate{ProjectID: record.ProjectID, ReportDate: record.ReportDate}
		case constraintProjectPrev, constraintProjectSeq:
			return progress.ErrIntegrityViolation{ProjectID: record.ProjectID, ActualPrev: record.PrevHash}
		}
	}
	s.logger.Error("Failed to append progress record",
		zap.String("project_id", record.ProjectID),
		zap.String("record_id", record.RecordID.String()),
		zap.Error(err),
	)
	return fmt.Errorf("failed to append progress record: %w", err)
}

func (s *LedgerStore) GetSequence(ctx context.Context, projectID string) ([]*progress.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM progress_records
		WHERE project_id = $1
		ORDER BY sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		s.logger.Error("Failed to query progress records", zap.String("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to query progress records: %w", err)
	}
	defer rows.Close()

	records := make([]*progress.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			s.logger.Error("Failed to scan progress record", zap.String("project_id", projectID), zap.Error(err))
			return nil, fmt.Errorf("failed to scan progress record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over progress records: %w", err)
	}

	return records, nil
}

func (s *LedgerStore) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT project_id FROM progress_records ORDER BY project_id`)
	if err != nil {
		s.logger.Error("Failed to list projects", zap.Error(err))
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]string, 0)
	for rows.Next() {
		var projectID string
		if err := rows.Scan(&projectID); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		projects = append(projects, projectID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over projects: %w", err)
	}
	return projects, nil
}

// Update always fails; the table's trigger rejects it as well.
func (s *LedgerStore) Update(context.Context, *progress.Record) error {
	return progress.ErrUnsupported
}

// Delete always fails; the table's trigger rejects it as well.
func (s *LedgerStore) Delete(context.Context, uuid.UUID) error {
	return progress.ErrUnsupported
}

func scanRecord(row pgx.Row) (*progress.Record, error) {
	var (
		record     progress.Record
		percent    string
		reportDate time.Time
	)
	err := row.Scan(
		&record.RecordID,
		&record.ProjectID,
		&record.Sequence,
		&percent,
		&reportDate,
		&record.Remarks,
		&record.ReportedBy,
		&record.CreatedAt,
		&record.PrevHash,
		&record.RecordHash,
		&record.HashVersion,
	)
	if err != nil {
		return nil, err
	}

	record.ReportedPercent, err = decimal.NewFromString(percent)
	if err != nil {
		return nil, fmt.Errorf("invalid reported_percent %q: %w", percent, err)
	}
	record.ReportDate = progress.DateOf(reportDate)
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}

var _ progress.LedgerStore = (*LedgerStore)(nil)
