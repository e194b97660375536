package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/progress-ledger/internal/api_gateway/service"
	"github.com/progress-ledger/internal/domain/progress"
	"go.uber.org/zap"
)

const maxProjectIDLength = 128

// ProgressHandler handles HTTP requests for progress reports
type ProgressHandler struct {
	progressService service.ProgressService
	logger          *zap.Logger
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(logger *zap.Logger, progressService service.ProgressService) *ProgressHandler {
	return &ProgressHandler{
		progressService: progressService,
		logger:          logger,
	}
}

// Report appends a progress report to the project's chain
func (h *ProgressHandler) Report(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	var req ReportProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", zap.String("project_id", projectID), zap.Error(err))
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	reportDate, err := progress.ParseDate(req.ReportDate)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	record, err := h.progressService.ReportProgress(c.Request.Context(), &service.ReportRequest{
		ProjectID:       projectID,
		ReportedPercent: *req.ReportedPercent,
		ReportDate:      reportDate,
		Remarks:         req.Remarks,
		ReportedBy:      req.ReportedBy,
	})
	if err != nil {
		h.respondServiceError(c, projectID, err)
		return
	}

	RespondCreated(c, mapRecordToResponse(record))
}

// History returns the project's annotated records, oldest first
func (h *ProgressHandler) History(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	annotated, err := h.progressService.GetHistory(c.Request.Context(), projectID)
	if err != nil {
		h.respondServiceError(c, projectID, err)
		return
	}

	RespondWithList(c, mapHistoryToResponse(projectID, annotated), len(annotated))
}

// Latest returns the project's newest record, 404 when it has none
func (h *ProgressHandler) Latest(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	record, err := h.progressService.GetLatest(c.Request.Context(), projectID)
	if err != nil {
		h.respondServiceError(c, projectID, err)
		return
	}
	if record == nil {
		RespondNotFound(c, "Project has no progress records")
		return
	}

	RespondOK(c, mapRecordToResponse(record))
}

// Verify walks the project's chain. A broken chain is a 200 with valid=false.
func (h *ProgressHandler) Verify(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	result, err := h.progressService.VerifyIntegrity(c.Request.Context(), projectID)
	if err != nil {
		h.respondServiceError(c, projectID, err)
		return
	}

	RespondOK(c, mapResultToResponse(result))
}

// RejectMutation answers every attempt to edit or remove a record.
func (h *ProgressHandler) RejectMutation(c *gin.Context) {
	RespondMethodNotAllowed(c, progress.ErrUnsupported.Error())
}

func (h *ProgressHandler) projectID(c *gin.Context) (string, bool) {
	projectID := c.Param("project_id")
	if projectID == "" || len(projectID) > maxProjectIDLength {
		RespondBadRequest(c, "Invalid project ID")
		return "", false
	}
	return projectID, true
}

func (h *ProgressHandler) respondServiceError(c *gin.Context, projectID string, err error) {
	if RespondDomainError(c, err) {
		h.logger.Debug("Progress request rejected", zap.String("project_id", projectID), zap.Error(err))
		return
	}
	h.logger.Error("Progress request failed", zap.String("project_id", projectID), zap.Error(err))
	RespondInternalError(c)
}
