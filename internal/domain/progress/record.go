package progress

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/progress-ledger/internal/domain/hashchain"
	"github.com/shopspring/decimal"
)

var (
	minPercent = decimal.Zero
	maxPercent = decimal.NewFromInt(100)
)

// Record is one immutable entry of a project's progress ledger.
type Record struct {
	RecordID        uuid.UUID       `json:"record_id"`
	ProjectID       string          `json:"project_id"`
	Sequence        int64           `json:"sequence"` // 1-based position in the project's chain, assigned by the store
	ReportedPercent decimal.Decimal `json:"reported_percent"`
	ReportDate      Date            `json:"report_date"`
	Remarks         string          `json:"remarks,omitempty"`
	ReportedBy      string          `json:"reported_by"`
	CreatedAt       time.Time       `json:"created_at"`
	PrevHash        string          `json:"prev_hash"`
	RecordHash      string          `json:"record_hash"`
	HashVersion     int             `json:"hash_version"`
}

// NewRecord builds an unlinked record. PrevHash and RecordHash are set by Link.
func NewRecord(projectID string, percent decimal.Decimal, reportDate Date, remarks, reportedBy string) *Record {
	return &Record{
		RecordID:        uuid.New(),
		ProjectID:       projectID,
		ReportedPercent: percent,
		ReportDate:      reportDate,
		Remarks:         remarks,
		ReportedBy:      reportedBy,
		HashVersion:     hashchain.CurrentVersion,
	}
}

// ValidateIdentity rejects a blank project or reporter.
func ValidateIdentity(projectID, reportedBy string) error {
	if strings.TrimSpace(projectID) == "" {
		return ErrMissingField{Field: "project_id"}
	}
	if strings.TrimSpace(reportedBy) == "" {
		return ErrMissingField{Field: "reported_by"}
	}
	return nil
}

// ValidatePercent checks the [0, 100] bounds and the fixed precision of the digest encoding.
func ValidatePercent(p decimal.Decimal) error {
	if p.LessThan(minPercent) || p.GreaterThan(maxPercent) {
		return ErrInvalidPercent{Value: p.String()}
	}
	if !p.Equal(p.Truncate(hashchain.PercentScale)) {
		return ErrInvalidPercent{Value: p.String()}
	}
	return nil
}

// ValidateReportDate rejects dates strictly after today.
func ValidateReportDate(reportDate, today Date) error {
	if reportDate.After(today) {
		return ErrFutureDate{ReportDate: reportDate, Today: today}
	}
	return nil
}

// HashFields returns the digest inputs of r chained onto prevHash.
func (r *Record) HashFields(prevHash string) hashchain.Fields {
	return hashchain.Fields{
		ProjectID:       r.ProjectID,
		ReportedPercent: r.ReportedPercent,
		ReportDate:      r.ReportDate.String(),
		ReportedBy:      r.ReportedBy,
		PrevHash:        prevHash,
	}
}

// Link chains r onto prevHash and stores the resulting digest.
func (r *Record) Link(prevHash string) error {
	if r.HashVersion == 0 {
		r.HashVersion = hashchain.CurrentVersion
	}
	digest, err := hashchain.ComputeVersion(r.HashVersion, r.HashFields(prevHash))
	if err != nil {
		return err
	}
	r.PrevHash = prevHash
	r.RecordHash = digest
	return nil
}

// ExpectedHash recomputes the digest of r's stored fields chained onto prevHash.
func (r *Record) ExpectedHash(prevHash string) (string, error) {
	return hashchain.ComputeVersion(r.HashVersion, r.HashFields(prevHash))
}
