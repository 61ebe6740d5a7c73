package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"callrelay/internal/core/domain"
	apperrors "callrelay/pkg/errors"
	rlog "callrelay/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandlerMiddleware_MapsCoreErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	router.GET("/missing", func(c *gin.Context) {
		c.Error(fmt.Errorf("lookup: %w", domain.ErrUnknownRecipient))
	})
	router.GET("/app", func(c *gin.Context) {
		c.Error(apperrors.NewInvalidInputError("bad room").WithContext("room", ""))
	})
	router.GET("/plain", func(c *gin.Context) {
		c.Error(fmt.Errorf("disk on fire"))
	})

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/missing", http.StatusNotFound, "UNKNOWN_RECIPIENT"},
		{"/app", http.StatusBadRequest, "INVALID_INPUT"},
		{"/plain", http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, tt.path, nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, tt.status, w.Code, tt.path)
		assert.Contains(t, w.Body.String(), tt.code, tt.path)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zap.NewNop().Sugar()))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/panic", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestRequestLogger_PropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(TracingMiddleware(), RequestLogger(rlog.NewContextLogger(zap.New(core))))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, int64(http.StatusNoContent), fields["status_code"])
}
