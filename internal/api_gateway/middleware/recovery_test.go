package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func recoveryRouter(core zapcore.Core) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CorrelationID())
	router.Use(Recovery(zap.New(core)))
	return router
}

func TestRecovery_PanicBecomesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	router := recoveryRouter(core)
	router.POST("/api/v1/projects/:project_id/progress", func(c *gin.Context) {
		panic("nil store")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/P1/progress", nil)
	req.Header.Set(CorrelationIDHeader, "corr-panic")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body["error"].(map[string]interface{})["code"])
	assert.Equal(t, "corr-panic", body["correlation_id"])

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Panic recovered", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "nil store", fields["panic"])
	assert.Equal(t, "/api/v1/projects/:project_id/progress", fields["route"])
	assert.Equal(t, "/api/v1/projects/P1/progress", fields["path"])
	assert.Equal(t, "P1", fields["project_id"])
	assert.Equal(t, "corr-panic", fields["correlation_id"])
	assert.NotEmpty(t, fields["stack"])
}

func TestRecovery_PanicAfterWriteKeepsResponse(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	router := recoveryRouter(core)
	router.GET("/api/v1/projects/:project_id/progress", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("encoder failed")
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/projects/P1/progress", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "partial", rr.Body.String())
	assert.Equal(t, 1, logs.Len())
}

func TestRecovery_NoPanicNoLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := recoveryRouter(core)
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, logs.Len())
}
