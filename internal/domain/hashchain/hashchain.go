// Package hashchain computes the digest that links one progress record to its
// predecessor. The canonical encoding is a versioned wire format: any verifier,
// including tools written outside this repository, must reproduce it byte for byte.
//
// Version 1 encodes the hashed fields as a single-line JSON object with keys in
// lexicographic order and every value as a JSON string:
//
//	{"prev_hash":"<hex>","project_id":"<raw>","report_date":"YYYY-MM-DD","reported_by":"<raw>","reported_percent":"50.000"}
//
// reported_percent always carries exactly PercentScale fractional digits. HTML
// characters are not escaped and there is no trailing newline. The digest is the
// lowercase hex SHA-256 of those bytes.
package hashchain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// CurrentVersion is the canonical-form version used for new records.
	CurrentVersion = 1

	// PercentScale is the number of fractional digits reported_percent is rendered with.
	PercentScale = 3

	// DigestLength is the length of a hex encoded SHA-256 digest.
	DigestLength = sha256.Size * 2
)

// GenesisHash is the prev_hash of the first record in every project's chain.
var GenesisHash = strings.Repeat("0", DigestLength)

var (
	ErrUnknownVersion = errors.New("hashchain: unknown canonical form version")
	ErrInvalidDate    = errors.New("hashchain: report_date must be YYYY-MM-DD")
	ErrInvalidPrev    = errors.New("hashchain: prev_hash must be 64 lowercase hex characters")
)

var (
	datePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// Fields are the record attributes covered by the digest.
type Fields struct {
	ProjectID       string
	ReportedPercent decimal.Decimal
	ReportDate      string
	ReportedBy      string
	PrevHash        string
}

// canonicalV1 fixes the key names of version 1. encoding/json writes map keys
// in sorted order, which is what makes the object key-sorted.
func canonicalV1(f Fields) ([]byte, error) {
	if !datePattern.MatchString(f.ReportDate) {
		return nil, ErrInvalidDate
	}
	if !IsDigest(f.PrevHash) {
		return nil, ErrInvalidPrev
	}

	obj := map[string]string{
		"prev_hash":        f.PrevHash,
		"project_id":       f.ProjectID,
		"report_date":      f.ReportDate,
		"reported_by":      f.ReportedBy,
		"reported_percent": FormatPercent(f.ReportedPercent),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(obj); err != nil {
		return nil, fmt.Errorf("hashchain: encode canonical form: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Canonical returns the exact bytes that are hashed for the given version.
func Canonical(version int, f Fields) ([]byte, error) {
	switch version {
	case 1:
		return canonicalV1(f)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
}

// ComputeVersion hashes f with the canonical form of the given version.
func ComputeVersion(version int, f Fields) (string, error) {
	canonical, err := Canonical(version, f)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Compute hashes f with CurrentVersion.
func Compute(f Fields) (string, error) {
	return ComputeVersion(CurrentVersion, f)
}

// FormatPercent renders a percentage the way the canonical form does.
func FormatPercent(p decimal.Decimal) string {
	return p.StringFixed(PercentScale)
}

// IsDigest reports whether s looks like a digest produced by this package (or the genesis sentinel).
func IsDigest(s string) bool {
	return digestPattern.MatchString(s)
}
