package progress

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by every attempt to update or delete a ledger record.
var ErrUnsupported = errors.New("progress records are append-only: update and delete are not supported")

// ErrInvalidPercent indicates a reported percentage outside [0, 100] or with too many fractional digits.
type ErrInvalidPercent struct {
	Value string
}

func (e ErrInvalidPercent) Error() string {
	return fmt.Sprintf("invalid reported percent %s: must be between 0 and 100 with at most 3 decimal places", e.Value)
}

// Is matches any ErrInvalidPercent.
func (e ErrInvalidPercent) Is(target error) bool {
	_, ok := target.(ErrInvalidPercent)
	return ok
}

// ErrMissingField indicates an empty project_id or reported_by.
type ErrMissingField struct {
	Field string
}

func (e ErrMissingField) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Is matches any ErrMissingField when the target names no field.
func (e ErrMissingField) Is(target error) bool {
	t, ok := target.(ErrMissingField)
	return ok && (t.Field == "" || t.Field == e.Field)
}

// ErrFutureDate indicates a report dated after the current date.
type ErrFutureDate struct {
	ReportDate Date
	Today      Date
}

func (e ErrFutureDate) Error() string {
	return fmt.Sprintf("report date %s is in the future (today is %s)", e.ReportDate, e.Today)
}

// Is matches any ErrFutureDate.
func (e ErrFutureDate) Is(target error) bool {
	_, ok := target.(ErrFutureDate)
	return ok
}

// ErrDuplicateReportDate indicates the project already has a report for the date.
type ErrDuplicateReportDate struct {
	ProjectID  string
	ReportDate Date
}

func (e ErrDuplicateReportDate) Error() string {
	return fmt.Sprintf("project %s already has a progress report for %s", e.ProjectID, e.ReportDate)
}

// Is implements the errors.Is interface for ErrDuplicateReportDate
func (e ErrDuplicateReportDate) Is(target error) bool {
	t, ok := target.(ErrDuplicateReportDate)
	if !ok {
		return false
	}
	// An empty target matches any duplicate
	if t.ProjectID == "" {
		return true
	}
	return e.ProjectID == t.ProjectID && (t.ReportDate.IsZero() || e.ReportDate == t.ReportDate)
}

// ErrIntegrityViolation is returned by a LedgerStore when the appended record's
// prev_hash is no longer the project's latest record_hash, i.e. a concurrent
// appender won the race.
type ErrIntegrityViolation struct {
	ProjectID    string
	ExpectedPrev string
	ActualPrev   string
}

func (e ErrIntegrityViolation) Error() string {
	if e.ExpectedPrev == "" {
		return fmt.Sprintf("chain tip of project %s moved during append (claimed prev_hash %s)", e.ProjectID, e.ActualPrev)
	}
	return fmt.Sprintf("chain tip of project %s is %s, append claimed prev_hash %s", e.ProjectID, e.ExpectedPrev, e.ActualPrev)
}

// Is matches any ErrIntegrityViolation.
func (e ErrIntegrityViolation) Is(target error) bool {
	_, ok := target.(ErrIntegrityViolation)
	return ok
}

// ErrConcurrentUpdateConflict is returned once the append retry budget is spent.
// The whole request is safe to retry.
type ErrConcurrentUpdateConflict struct {
	ProjectID string
	Attempts  int
}

func (e ErrConcurrentUpdateConflict) Error() string {
	return fmt.Sprintf("concurrent updates to project %s: gave up after %d attempts", e.ProjectID, e.Attempts)
}

// Is matches any ErrConcurrentUpdateConflict.
func (e ErrConcurrentUpdateConflict) Is(target error) bool {
	_, ok := target.(ErrConcurrentUpdateConflict)
	return ok
}
