package service

import (
	"context"
	"errors"
	"time"

	"reward-engine/internal/core/domain"
	"reward-engine/internal/core/ports"
	"reward-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

// Worker processes dequeued actions: it marks the key processing, runs the
// executor, and records the terminal status. The executor's own idempotency
// checks make redelivered messages harmless, so the worker never needs
// delivery-level dedup.
type Worker struct {
	executor ports.ActionExecutor
	status   ports.StatusStore
	liveness ports.WorkerLiveness
	ttl      time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewWorker creates a new Worker.
func NewWorker(
	executor ports.ActionExecutor,
	status ports.StatusStore,
	liveness ports.WorkerLiveness,
	statusRetention time.Duration,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		executor: executor,
		status:   status,
		liveness: liveness,
		ttl:      statusRetention,
		log:      log,
		now:      time.Now,
	}
}

// Handle processes one delivery. Returning true acknowledges the message;
// false asks for redelivery. Domain rejections are terminal: re-running
// them would fail identically, so they ack with a failed status.
// Infrastructure errors retry once; a transient failure on an already
// redelivered message is recorded as failed{retryable:true} so the poll
// endpoint reports the outage instead of an eternal processing state.
func (w *Worker) Handle(ctx context.Context, req domain.ActionRequest, redelivered bool) bool {
	now := w.now().UTC()
	w.putStatus(ctx, &domain.StatusRecord{
		Key:         req.IdempotencyKey,
		UserID:      req.UserID,
		Action:      req.Action,
		Status:      domain.StatusProcessing,
		RequestedAt: req.SubmittedAt,
		UpdatedAt:   now,
	})

	result, err := w.executor.Execute(ctx, req)
	if err != nil {
		if retryableError(err) {
			if !redelivered {
				w.log.Warn().Err(err).Str("key", req.IdempotencyKey).Msg("transient failure, requeueing")
				return false
			}
			// The terminal write only happens when giving up; an earlier
			// failed record would block a successful retry's completed
			// write at the rank check.
			actionErr := toActionError(err)
			actionErr.Retryable = true
			w.putStatus(ctx, &domain.StatusRecord{
				Key:         req.IdempotencyKey,
				UserID:      req.UserID,
				Action:      req.Action,
				Status:      domain.StatusFailed,
				RequestedAt: req.SubmittedAt,
				UpdatedAt:   w.now().UTC(),
				Error:       actionErr,
			})
			w.log.Error().Err(err).Str("key", req.IdempotencyKey).Msg("transient failure on redelivery, giving up")
			return false
		}
		w.putStatus(ctx, &domain.StatusRecord{
			Key:         req.IdempotencyKey,
			UserID:      req.UserID,
			Action:      req.Action,
			Status:      domain.StatusFailed,
			RequestedAt: req.SubmittedAt,
			UpdatedAt:   w.now().UTC(),
			Error:       toActionError(err),
		})
		w.log.Info().Str("key", req.IdempotencyKey).Str("action", string(req.Action)).Err(err).Msg("action rejected")
		return true
	}

	w.putStatus(ctx, &domain.StatusRecord{
		Key:         req.IdempotencyKey,
		UserID:      req.UserID,
		Action:      req.Action,
		Status:      domain.StatusCompleted,
		RequestedAt: req.SubmittedAt,
		UpdatedAt:   w.now().UTC(),
		Result:      result,
	})
	return true
}

// RunHeartbeat refreshes the pool liveness key until the context ends.
// It beats once immediately so the API flips to the async path as soon as
// the worker starts.
func (w *Worker) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if err := w.liveness.Heartbeat(ctx); err != nil {
		w.log.Warn().Err(err).Msg("heartbeat failed")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.liveness.Heartbeat(ctx); err != nil {
				w.log.Warn().Err(err).Msg("heartbeat failed")
			}
		}
	}
}

func (w *Worker) putStatus(ctx context.Context, rec *domain.StatusRecord) {
	if _, err := w.status.Put(ctx, rec, w.ttl); err != nil {
		w.log.Warn().Err(err).Str("key", rec.Key).Str("status", string(rec.Status)).Msg("status write failed")
	}
}

// retryableError reports whether a later attempt could succeed. Domain
// rejections carry final codes; only infrastructure failures requeue.
func retryableError(err error) bool {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable || appErr.Code == "INTERNAL"
	}
	return true
}
