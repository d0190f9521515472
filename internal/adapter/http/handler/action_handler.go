package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"reward-engine/internal/adapter/http/dto"
	"reward-engine/internal/adapter/http/middleware"
	"reward-engine/internal/core/domain"
	"reward-engine/internal/core/ports"
	"reward-engine/pkg/apperror"
	"reward-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-chosen idempotency key. The body
// field is a fallback for clients that cannot set headers.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderQueueDepth exposes the advisory queue depth on 202 responses so
// clients can scale their poll interval.
const HeaderQueueDepth = "X-Queue-Depth"

// maxIdempotencyKeyLen bounds client-supplied keys; they travel in URLs
// and Redis keys.
const maxIdempotencyKeyLen = 128

// ActionHandler handles action submission and status polling.
type ActionHandler struct {
	dispatcher ports.ActionDispatcher
}

// NewActionHandler creates a new ActionHandler.
func NewActionHandler(dispatcher ports.ActionDispatcher) *ActionHandler {
	return &ActionHandler{dispatcher: dispatcher}
}

// MiningClick handles POST /api/v1/actions/mining-click.
func (h *ActionHandler) MiningClick(c *gin.Context) {
	h.submit(c, domain.ActionMiningClick)
}

// DailyProfit handles POST /api/v1/actions/daily-profit.
func (h *ActionHandler) DailyProfit(c *gin.Context) {
	h.submit(c, domain.ActionDailyProfit)
}

func (h *ActionHandler) submit(c *gin.Context, action domain.ActionType) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	key := c.GetHeader(HeaderIdempotencyKey)
	if key == "" && c.Request.ContentLength > 0 {
		var body dto.ActionSubmitRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
		key = body.IdempotencyKey
	}
	if len(key) > maxIdempotencyKeyLen {
		response.Error(c, apperror.Validation("idempotency key exceeds 128 characters"))
		return
	}

	outcome, err := h.dispatcher.Submit(c.Request.Context(), domain.ActionRequest{
		UserID:         userID,
		Action:         action,
		IdempotencyKey: key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if outcome.Result != nil {
		response.OK(c, dto.ToActionResultResponse(outcome.Result))
		return
	}

	rec := outcome.Status
	if rec.Status == domain.StatusFailed {
		// A replayed terminal failure reads like the poll endpoint's
		// answer, not like a fresh enqueue.
		h.writeFailed(c, rec)
		return
	}
	c.Header(HeaderQueueDepth, strconv.Itoa(rec.QueueDepth))
	response.Accepted(c, dto.ActionQueuedResponse{
		Status:     string(rec.Status),
		StatusURL:  statusURL(rec.Key),
		QueueDepth: rec.QueueDepth,
	})
}

// GetStatus handles GET /api/v1/actions/status/:key. Terminal records are
// immutable, so only those get a cache header; in-flight answers must stay
// fresh for the poll loop.
func (h *ActionHandler) GetStatus(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	key := c.Param("key")
	rec, err := h.dispatcher.GetStatus(c.Request.Context(), userID, key)
	if err != nil {
		response.Error(c, err)
		return
	}
	if rec == nil {
		response.Error(c, apperror.ErrNotFound("action"))
		return
	}

	switch rec.Status {
	case domain.StatusCompleted:
		c.Header("Cache-Control", "private, max-age=86400")
		response.OK(c, dto.ToStatusResponse(rec))
	case domain.StatusFailed:
		h.writeFailed(c, rec)
	default:
		c.Header(HeaderQueueDepth, strconv.Itoa(rec.QueueDepth))
		response.Accepted(c, dto.ToStatusResponse(rec))
	}
}

// writeFailed maps a terminal failure: retryable infrastructure failures
// are 503 with a backoff hint, domain rejections 409 and cacheable.
func (h *ActionHandler) writeFailed(c *gin.Context, rec *domain.StatusRecord) {
	if rec.Error != nil && rec.Error.Retryable {
		c.Header("Retry-After", "5")
		response.Status(c, http.StatusServiceUnavailable, dto.ToStatusResponse(rec))
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	response.Status(c, http.StatusConflict, dto.ToStatusResponse(rec))
}

func statusURL(key string) string {
	return fmt.Sprintf("/api/v1/actions/status/%s", url.PathEscape(key))
}
