package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/progress-ledger/internal/domain/hashchain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePercent(t *testing.T) {
	testCases := []struct {
		value string
		valid bool
	}{
		{"0", true},
		{"0.0", true},
		{"100", true},
		{"100.000", true},
		{"57.125", true},
		{"-0.001", false},
		{"100.001", false},
		{"-1", false},
		{"12.3456", false},
	}

	for _, tc := range testCases {
		t.Run(tc.value, func(t *testing.T) {
			err := ValidatePercent(decimal.RequireFromString(tc.value))
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPercent{}))
		})
	}
}

func TestValidateIdentity(t *testing.T) {
	assert.NoError(t, ValidateIdentity("P1", "deo-17"))

	err := ValidateIdentity("", "deo-17")
	assert.ErrorIs(t, err, ErrMissingField{Field: "project_id"})
	assert.EqualError(t, err, "project_id is required")

	err = ValidateIdentity("P1", "  ")
	assert.ErrorIs(t, err, ErrMissingField{})
	assert.ErrorIs(t, err, ErrMissingField{Field: "reported_by"})
	assert.False(t, errors.Is(err, ErrMissingField{Field: "project_id"}))
}

func TestValidateReportDate(t *testing.T) {
	today := Date{Year: 2025, Month: time.July, Day: 15}

	assert.NoError(t, ValidateReportDate(today, today))
	assert.NoError(t, ValidateReportDate(Date{Year: 2024, Month: time.December, Day: 31}, today))

	err := ValidateReportDate(Date{Year: 2025, Month: time.July, Day: 16}, today)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFutureDate{})
	assert.Contains(t, err.Error(), "2025-07-16")
}

func TestRecord_LinkAndExpectedHash(t *testing.T) {
	a := NewRecord("P1", decimal.RequireFromString("50.0"), Date{Year: 2025, Month: time.June, Day: 1}, "foundations poured", "deo-17")
	require.NoError(t, a.Link(hashchain.GenesisHash))

	assert.NotEqual(t, uuid.Nil, a.RecordID)
	assert.Equal(t, hashchain.GenesisHash, a.PrevHash)
	assert.Equal(t, hashchain.CurrentVersion, a.HashVersion)
	assert.Equal(t, "69c8c1fe36488ea9011a0dbafe7c132fb364648e6f51c682464b0e817d37525f", a.RecordHash)

	expected, err := a.ExpectedHash(hashchain.GenesisHash)
	require.NoError(t, err)
	assert.Equal(t, a.RecordHash, expected)

	t.Run("RemarksAreNotHashed", func(t *testing.T) {
		copyA := *a
		copyA.Remarks = "edited"
		again, err := copyA.ExpectedHash(hashchain.GenesisHash)
		require.NoError(t, err)
		assert.Equal(t, a.RecordHash, again)
	})

	t.Run("TamperedPercentChangesHash", func(t *testing.T) {
		copyA := *a
		copyA.ReportedPercent = decimal.RequireFromString("60.0")
		again, err := copyA.ExpectedHash(hashchain.GenesisHash)
		require.NoError(t, err)
		assert.NotEqual(t, a.RecordHash, again)
	})

	b := NewRecord("P1", decimal.RequireFromString("75.0"), Date{Year: 2025, Month: time.July, Day: 1}, "", "deo-17")
	require.NoError(t, b.Link(a.RecordHash))
	assert.Equal(t, a.RecordHash, b.PrevHash)
	assert.Equal(t, "42aa62149578c11ef8218ce846bc7a65ff06a071650fe4651aa1a9068190647a", b.RecordHash)
}

func TestRecord_LinkRejectsUnknownVersion(t *testing.T) {
	r := NewRecord("P1", decimal.NewFromInt(10), Date{Year: 2025, Month: time.June, Day: 1}, "", "deo-17")
	r.HashVersion = 99
	err := r.Link(hashchain.GenesisHash)
	assert.ErrorIs(t, err, hashchain.ErrUnknownVersion)
	assert.Empty(t, r.RecordHash)
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2025-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-28", d.String())
	assert.False(t, d.IsZero())

	_, err = ParseDate("2025-02-30")
	assert.Error(t, err)
	_, err = ParseDate("28.02.2025")
	assert.Error(t, err)

	later := Date{Year: 2025, Month: time.March, Day: 1}
	assert.True(t, later.After(d))
	assert.False(t, d.After(later))
	assert.False(t, d.After(d))

	loc := time.FixedZone("UTC+8", 8*3600)
	assert.Equal(t, Date{Year: 2025, Month: time.March, Day: 1}, DateOf(time.Date(2025, time.February, 28, 17, 0, 0, 0, time.UTC).In(loc)))

	payload, err := json.Marshal(struct {
		D Date `json:"d"`
	}{D: d})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2025-02-28"}`, string(payload))

	var decoded struct {
		D Date `json:"d"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, d, decoded.D)
	assert.Error(t, json.Unmarshal([]byte(`{"d":"tomorrow"}`), &decoded))
}

func TestErrDuplicateReportDate_Is(t *testing.T) {
	date := Date{Year: 2025, Month: time.June, Day: 1}
	err := fmt.Errorf("append failed: %w", ErrDuplicateReportDate{ProjectID: "P1", ReportDate: date})

	assert.True(t, errors.Is(err, ErrDuplicateReportDate{}))
	assert.True(t, errors.Is(err, ErrDuplicateReportDate{ProjectID: "P1"}))
	assert.True(t, errors.Is(err, ErrDuplicateReportDate{ProjectID: "P1", ReportDate: date}))
	assert.False(t, errors.Is(err, ErrDuplicateReportDate{ProjectID: "P2"}))
	assert.False(t, errors.Is(err, ErrIntegrityViolation{}))
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, ErrIntegrityViolation{ProjectID: "P1", ActualPrev: "abc"}.Error(), "moved during append")
	assert.Contains(t, ErrIntegrityViolation{ProjectID: "P1", ExpectedPrev: "def", ActualPrev: "abc"}.Error(), "is def")
	assert.Contains(t, ErrConcurrentUpdateConflict{ProjectID: "P1", Attempts: 3}.Error(), "3 attempts")
	assert.True(t, errors.Is(fmt.Errorf("wrap: %w", ErrConcurrentUpdateConflict{}), ErrConcurrentUpdateConflict{}))
}
