package handler

import (
	"time"

	"github.com/progress-ledger/internal/domain/hashchain"
	"github.com/progress-ledger/internal/domain/progress"
	"github.com/progress-ledger/internal/verifier"
	"github.com/shopspring/decimal"
)

// ReportProgressRequest is the body of POST /projects/:project_id/progress.
// reported_percent accepts a JSON number or a decimal string.
type ReportProgressRequest struct {
	ReportedPercent *decimal.Decimal `json:"reported_percent" binding:"required"`
	ReportDate      string           `json:"report_date" binding:"required,isodate"`
	Remarks         string           `json:"remarks" binding:"max=2000"`
	ReportedBy      string           `json:"reported_by" binding:"required,max=128"`
}

// RecordResponse represents a progress record in API responses
type RecordResponse struct {
	RecordID        string `json:"record_id"`
	ProjectID       string `json:"project_id"`
	Sequence        int64  `json:"sequence"`
	ReportedPercent string `json:"reported_percent"`
	ReportDate      string `json:"report_date"`
	Remarks         string `json:"remarks,omitempty"`
	ReportedBy      string `json:"reported_by"`
	CreatedAt       string `json:"created_at"`
	PrevHash        string `json:"prev_hash"`
	RecordHash      string `json:"record_hash"`
	HashVersion     int    `json:"hash_version"`
}

// HistoryEntryResponse is a record with the outcome of checking it on its own
type HistoryEntryResponse struct {
	RecordResponse
	HashValid  bool `json:"hash_valid"`
	LinkValid  bool `json:"link_valid"`
	Valid      bool `json:"valid"`
	ChainValid bool `json:"chain_valid"`
}

// HistoryResponse lists a project's records oldest first
type HistoryResponse struct {
	ProjectID  string                 `json:"project_id"`
	ChainValid bool                   `json:"chain_valid"`
	Records    []HistoryEntryResponse `json:"records"`
}

// BrokenAtResponse identifies the first record that failed verification
type BrokenAtResponse struct {
	RecordID     string `json:"record_id"`
	Sequence     int64  `json:"sequence"`
	ExpectedHash string `json:"expected_hash,omitempty"`
	ActualHash   string `json:"actual_hash"`
	CreatedAt    string `json:"created_at"`
	Reason       string `json:"reason"`
}

// VerificationResponse represents a chain verification result
type VerificationResponse struct {
	ProjectID string            `json:"project_id"`
	Valid     bool              `json:"valid"`
	Total     int               `json:"total"`
	BrokenAt  *BrokenAtResponse `json:"broken_at"`
}

func mapRecordToResponse(r *progress.Record) RecordResponse {
	return RecordResponse{
		RecordID:        r.RecordID.String(),
		ProjectID:       r.ProjectID,
		Sequence:        r.Sequence,
		ReportedPercent: hashchain.FormatPercent(r.ReportedPercent),
		ReportDate:      r.ReportDate.String(),
		Remarks:         r.Remarks,
		ReportedBy:      r.ReportedBy,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339Nano),
		PrevHash:        r.PrevHash,
		RecordHash:      r.RecordHash,
		HashVersion:     r.HashVersion,
	}
}

func mapHistoryToResponse(projectID string, annotated []verifier.Annotated) HistoryResponse {
	response := HistoryResponse{
		ProjectID:  projectID,
		ChainValid: true,
		Records:    make([]HistoryEntryResponse, 0, len(annotated)),
	}
	for _, a := range annotated {
		response.Records = append(response.Records, HistoryEntryResponse{
			RecordResponse: mapRecordToResponse(a.Record),
			HashValid:      a.HashValid,
			LinkValid:      a.LinkValid,
			Valid:          a.Valid,
			ChainValid:     a.ChainValid,
		})
		response.ChainValid = a.ChainValid
	}
	return response
}

func mapResultToResponse(result *verifier.Result) VerificationResponse {
	response := VerificationResponse{
		ProjectID: result.ProjectID,
		Valid:     result.Valid,
		Total:     result.Total,
	}
	if ref := result.BrokenAt; ref != nil {
		response.BrokenAt = &BrokenAtResponse{
			RecordID:     ref.RecordID.String(),
			Sequence:     ref.Sequence,
			ExpectedHash: ref.ExpectedHash,
			ActualHash:   ref.ActualHash,
			CreatedAt:    ref.CreatedAt.Format(time.RFC3339Nano),
			Reason:       ref.Reason,
		}
	}
	return response
}
