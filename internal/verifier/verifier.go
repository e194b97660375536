// Package verifier re-derives every digest of a project's chain and reports the
// first record whose stored hash or link does not match.
package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/progress-ledger/internal/domain/hashchain"
	"github.com/progress-ledger/internal/domain/progress"
	"github.com/progress-ledger/internal/platform/metrics"
	"go.uber.org/zap"
)

// Reasons a record breaks the chain.
const (
	ReasonHashMismatch = "record_hash_mismatch" // stored record_hash differs from the recomputed digest
	ReasonLinkMismatch = "prev_hash_mismatch"   // stored prev_hash differs from the predecessor's record_hash
	ReasonUnverifiable = "unverifiable"         // stored fields cannot be hashed (unknown version, malformed date)
)

// RecordRef identifies the first record that failed verification.
type RecordRef struct {
	RecordID     uuid.UUID `json:"record_id"`
	Sequence     int64     `json:"sequence"`
	ExpectedHash string    `json:"expected_hash"`
	ActualHash   string    `json:"actual_hash"`
	CreatedAt    time.Time `json:"created_at"`
	Reason       string    `json:"reason"`
}

// Result of verifying one project's chain. A broken chain is a result, not an error.
type Result struct {
	ProjectID string     `json:"project_id"`
	Valid     bool       `json:"valid"`
	Total     int        `json:"total"`
	BrokenAt  *RecordRef `json:"broken_at,omitempty"`
}

// SequenceReader is the part of a LedgerStore the verifier reads from.
type SequenceReader interface {
	GetSequence(ctx context.Context, projectID string) ([]*progress.Record, error)
}

// ChainVerifier verifies chains read from a store. It holds no state between calls.
type ChainVerifier struct {
	store  SequenceReader
	logger *zap.Logger
}

func New(store SequenceReader, logger *zap.Logger) *ChainVerifier {
	return &ChainVerifier{
		store:  store,
		logger: logger,
	}
}

// Verify reads the project's full sequence and walks it oldest to newest.
func (v *ChainVerifier) Verify(ctx context.Context, projectID string) (*Result, error) {
	start := time.Now()

	records, err := v.store.GetSequence(ctx, projectID)
	if err != nil {
		metrics.ObserveVerification(metrics.VerificationResultError, time.Since(start))
		return nil, fmt.Errorf("failed to read chain of project %s: %w", projectID, err)
	}

	result := VerifySequence(projectID, records)

	if result.Valid {
		metrics.ObserveVerification(metrics.VerificationResultValid, time.Since(start))
		v.logger.Debug("Chain verified",
			zap.String("project_id", projectID),
			zap.Int("total", result.Total),
		)
	} else {
		metrics.ObserveVerification(metrics.VerificationResultBroken, time.Since(start))
		v.logger.Warn("Chain verification failed",
			zap.String("project_id", projectID),
			zap.Int("total", result.Total),
			zap.String("record_id", result.BrokenAt.RecordID.String()),
			zap.Int64("sequence", result.BrokenAt.Sequence),
			zap.String("reason", result.BrokenAt.Reason),
		)
	}

	return result, nil
}

// VerifySequence checks records that are already in chain order. It stops at the first break.
func VerifySequence(projectID string, records []*progress.Record) *Result {
	result := &Result{
		ProjectID: projectID,
		Valid:     true,
		Total:     len(records),
	}

	expectedPrev := hashchain.GenesisHash
	for _, record := range records {
		if ref := check(record, expectedPrev); ref != nil {
			result.Valid = false
			result.BrokenAt = ref
			return result
		}
		expectedPrev = record.RecordHash
	}

	return result
}

// check recomputes the digest of record against expectedPrev.
func check(record *progress.Record, expectedPrev string) *RecordRef {
	ref := &RecordRef{
		RecordID:   record.RecordID,
		Sequence:   record.Sequence,
		ActualHash: record.RecordHash,
		CreatedAt:  record.CreatedAt,
	}

	expected, err := record.ExpectedHash(expectedPrev)
	if err != nil {
		ref.Reason = ReasonUnverifiable
		return ref
	}
	if expected != record.RecordHash {
		ref.ExpectedHash = expected
		ref.Reason = ReasonHashMismatch
		return ref
	}

	// The digest already covers expectedPrev, so a differing stored prev_hash
	// means only that column was rewritten.
	if record.PrevHash != expectedPrev {
		ref.ExpectedHash = expectedPrev
		ref.ActualHash = record.PrevHash
		ref.Reason = ReasonLinkMismatch
		return ref
	}

	return nil
}

// Annotated is a record with the outcome of checking it on its own.
type Annotated struct {
	Record *progress.Record `json:"record"`
	// HashValid: record_hash recomputes from the record's own stored fields and prev_hash.
	HashValid bool `json:"hash_valid"`
	// LinkValid: prev_hash equals the predecessor's record_hash (the sentinel for the first record).
	LinkValid bool `json:"link_valid"`
	// Valid is HashValid && LinkValid.
	Valid bool `json:"valid"`
	// ChainValid: this record and every record before it are valid.
	ChainValid bool `json:"chain_valid"`
}

// Annotate checks every record independently and does not stop at a break, so a
// caller can show which part of a chain is still trustworthy.
func Annotate(records []*progress.Record) []Annotated {
	annotated := make([]Annotated, 0, len(records))

	predecessor := hashchain.GenesisHash
	chainValid := true
	for _, record := range records {
		a := Annotated{Record: record}

		if expected, err := record.ExpectedHash(record.PrevHash); err == nil {
			a.HashValid = expected == record.RecordHash
		}
		a.LinkValid = record.PrevHash == predecessor
		a.Valid = a.HashValid && a.LinkValid

		chainValid = chainValid && a.Valid
		a.ChainValid = chainValid

		annotated = append(annotated, a)
		predecessor = record.RecordHash
	}

	return annotated
}
