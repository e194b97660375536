package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/progress-ledger/internal/api_gateway/middleware"
	"github.com/progress-ledger/internal/domain/progress"
)

// Error codes returned in the envelope's error.code field.
const (
	CodeBadRequest               = "BAD_REQUEST"
	CodeNotFound                 = "NOT_FOUND"
	CodeMethodNotAllowed         = "METHOD_NOT_ALLOWED"
	CodeInternal                 = "INTERNAL_SERVER_ERROR"
	CodeMissingField             = "MISSING_FIELD"
	CodeInvalidPercent           = "INVALID_PERCENT"
	CodeFutureDate               = "FUTURE_DATE"
	CodeDuplicateReportDate      = "DUPLICATE_REPORT_DATE"
	CodeConcurrentUpdateConflict = "CONCURRENT_UPDATE_CONFLICT"
)

// Response is the envelope of every API response
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Meta          *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo describes a rejected request. Details carries the offending values
// of a domain rejection, e.g. the report date and today's date for FUTURE_DATE.
type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type MetaInfo struct {
	TotalItems int `json:"total_items"`
}

func respond(c *gin.Context, statusCode int, response *Response) {
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithData sends data with the given status
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	respond(c, statusCode, &Response{Data: data})
}

// RespondWithList sends a 200 with data and its item count
func RespondWithList(c *gin.Context, data interface{}, totalItems int) {
	respond(c, http.StatusOK, &Response{Data: data, Meta: &MetaInfo{TotalItems: totalItems}})
}

// RespondWithError sends an error envelope
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	respond(c, statusCode, &Response{Error: &ErrorInfo{Code: code, Message: message}})
}

func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, CodeBadRequest, message)
}

func RespondNotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondWithError(c, http.StatusNotFound, CodeNotFound, message)
}

func RespondMethodNotAllowed(c *gin.Context, message string) {
	RespondWithError(c, http.StatusMethodNotAllowed, CodeMethodNotAllowed, message)
}

// RespondInternalError hides the cause; callers log it first.
func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, CodeInternal, "An internal server error occurred")
}

// RespondDomainError renders a ledger rejection. It reports false, writing
// nothing, when err is not one of the ledger's rejections.
func RespondDomainError(c *gin.Context, err error) bool {
	status, info := domainError(err)
	if info == nil {
		return false
	}
	respond(c, status, &Response{Error: info})
	return true
}

func domainError(err error) (int, *ErrorInfo) {
	var (
		missing        progress.ErrMissingField
		invalidPercent progress.ErrInvalidPercent
		futureDate     progress.ErrFutureDate
		duplicate      progress.ErrDuplicateReportDate
		conflict       progress.ErrConcurrentUpdateConflict
	)

	switch {
	case errors.As(err, &missing):
		return http.StatusBadRequest, &ErrorInfo{
			Code:    CodeMissingField,
			Message: err.Error(),
			Details: map[string]string{"field": missing.Field},
		}
	case errors.As(err, &invalidPercent):
		return http.StatusBadRequest, &ErrorInfo{
			Code:    CodeInvalidPercent,
			Message: err.Error(),
			Details: map[string]string{"reported_percent": invalidPercent.Value},
		}
	case errors.As(err, &futureDate):
		return http.StatusBadRequest, &ErrorInfo{
			Code:    CodeFutureDate,
			Message: err.Error(),
			Details: map[string]string{
				"report_date": futureDate.ReportDate.String(),
				"today":       futureDate.Today.String(),
			},
		}
	case errors.As(err, &duplicate):
		return http.StatusConflict, &ErrorInfo{
			Code:    CodeDuplicateReportDate,
			Message: err.Error(),
			Details: map[string]string{"report_date": duplicate.ReportDate.String()},
		}
	case errors.As(err, &conflict):
		return http.StatusConflict, &ErrorInfo{
			Code:    CodeConcurrentUpdateConflict,
			Message: err.Error(),
			Details: map[string]string{"attempts": strconv.Itoa(conflict.Attempts)},
		}
	case errors.Is(err, progress.ErrUnsupported):
		return http.StatusMethodNotAllowed, &ErrorInfo{Code: CodeMethodNotAllowed, Message: err.Error()}
	}
	return 0, nil
}
