package response

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"reward-engine/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse is the standard error envelope. Context carries the
// authoritative numbers behind the rejection so the client can render an
// actionable message without a follow-up request.
type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id"`
	Timestamp string         `json:"timestamp"`
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope(c, data))
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, envelope(c, data))
}

// Accepted sends a 202 response with data, used for queued actions.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, envelope(c, data))
}

// Status sends data in the success envelope under an explicit status code.
func Status(c *gin.Context, code int, data interface{}) {
	c.JSON(code, envelope(c, data))
}

// Error sends an error response. An *apperror.AppError maps to its own
// status, code and context; anything else becomes an opaque 500. A positive
// RetryAfter emits a Retry-After header in whole seconds.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		if appErr.RetryAfter > 0 {
			secs := int64(appErr.RetryAfter.Round(time.Second).Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.FormatInt(secs, 10))
		}
		c.JSON(appErr.HTTPStatus, ErrorResponse{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Retryable: appErr.Retryable,
			Context:   appErr.Context,
			RequestID: getRequestID(c),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:      "INTERNAL",
		Message:   "internal server error",
		RequestID: getRequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func envelope(c *gin.Context, data interface{}) SuccessResponse {
	return SuccessResponse{
		Data:      data,
		RequestID: getRequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// getRequestID retrieves the request ID from context, or generates one.
func getRequestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return uuid.New().String()
}
