package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reward-engine/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestOK_Envelope(t *testing.T) {
	c, w := setupContext()
	c.Set("request_id", "req-123")

	OK(c, gin.H{"amount": 5.0})

	assert.Equal(t, http.StatusOK, w.Code)

	var body SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "req-123", body.RequestID)
	assert.NotEmpty(t, body.Timestamp)
}

func TestAccepted(t *testing.T) {
	c, w := setupContext()
	Accepted(c, gin.H{"status": "queued"})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestError_AppErrorMapping(t *testing.T) {
	c, w := setupContext()

	Error(c, apperror.ErrBalanceChanged(3000))

	assert.Equal(t, http.StatusConflict, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "BALANCE_CHANGED", body.Code)
	assert.Equal(t, 30.0, body.Context["availableToWithdraw"])
	assert.False(t, body.Retryable)
}

func TestError_RetryAfterHeader(t *testing.T) {
	c, w := setupContext()

	Error(c, apperror.ErrCooldownActive(90*time.Second))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "90", w.Header().Get("Retry-After"))
}

func TestError_UnknownErrorIs500(t *testing.T) {
	c, w := setupContext()

	Error(c, fmt.Errorf("raw internal failure"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL", body.Code)
	assert.NotContains(t, body.Message, "raw internal failure")
}

func TestGetRequestID_GeneratesWhenMissing(t *testing.T) {
	c, w := setupContext()
	OK(c, nil)

	var body SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.RequestID)
}
