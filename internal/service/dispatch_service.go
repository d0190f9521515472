package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reward-engine/config"
	"reward-engine/internal/adapter/metrics"
	"reward-engine/internal/core/domain"
	"reward-engine/internal/core/ports"
	"reward-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DispatchService implements ports.ActionDispatcher. It resolves the
// idempotency key, short-circuits duplicates against the result cache and
// status tracker, then routes the action to the queue when workers are
// alive or executes it inline when they are not. Same-key submissions
// arriving concurrently at this process collapse onto one flight.
type DispatchService struct {
	executor ports.ActionExecutor
	status   ports.StatusStore
	queue    ports.JobQueue
	liveness ports.WorkerLiveness
	queueCfg config.QueueConfig
	ttl      time.Duration
	log      zerolog.Logger
	now      func() time.Time
	flights  singleflight.Group
}

// NewDispatchService creates a new DispatchService. queue and liveness may
// be nil when the async path is disabled.
func NewDispatchService(
	executor ports.ActionExecutor,
	status ports.StatusStore,
	queue ports.JobQueue,
	liveness ports.WorkerLiveness,
	queueCfg config.QueueConfig,
	statusRetention time.Duration,
	log zerolog.Logger,
) *DispatchService {
	return &DispatchService{
		executor: executor,
		status:   status,
		queue:    queue,
		liveness: liveness,
		queueCfg: queueCfg,
		ttl:      statusRetention,
		log:      log,
		now:      time.Now,
	}
}

// Submit dispatches one logical action.
func (s *DispatchService) Submit(ctx context.Context, req domain.ActionRequest) (*ports.SubmitOutcome, error) {
	if !req.Action.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown action type %q", req.Action))
	}
	now := s.now().UTC()
	req.IdempotencyKey = domain.ResolveIdempotencyKey(req.UserID, req.Action, req.IdempotencyKey, now)
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = now
	}

	// Flights are scoped like every other ephemeral tier: two users (or two
	// action types) reusing one literal key are distinct logical actions.
	v, err, _ := s.flights.Do(domain.ScopeKey(req.UserID, req.Action, req.IdempotencyKey), func() (interface{}, error) {
		return s.submit(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ports.SubmitOutcome), nil
}

func (s *DispatchService) submit(ctx context.Context, req domain.ActionRequest) (*ports.SubmitOutcome, error) {
	// Terminal results replay without touching any gate.
	replay, err := s.executor.LookupReplay(ctx, req.UserID, req.Action, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return &ports.SubmitOutcome{Result: replay}, nil
	}

	// An in-flight record means the first submission is still being worked;
	// the duplicate polls rather than re-enqueues.
	rec, err := s.status.Get(ctx, req.UserID, req.Action, req.IdempotencyKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", req.IdempotencyKey).Msg("status read failed, continuing")
	}
	if rec != nil {
		if rec.Status == domain.StatusCompleted && rec.Result != nil {
			result := *rec.Result
			result.Replayed = true
			return &ports.SubmitOutcome{Result: &result}, nil
		}
		return &ports.SubmitOutcome{Status: rec}, nil
	}

	if s.asyncAvailable(ctx) {
		outcome, err := s.enqueue(ctx, req)
		if err == nil {
			return outcome, nil
		}
		s.log.Warn().Err(err).Str("key", req.IdempotencyKey).Msg("enqueue failed, executing inline")
	}

	return s.executeInline(ctx, req)
}

// GetStatus serves the polling contract. Records are scoped per user, so
// another user's key can never be read. The caller does not know the
// action type, so each scope is tried; after the status record expires,
// the durable ledger row still answers for completed actions.
func (s *DispatchService) GetStatus(ctx context.Context, userID uuid.UUID, key string) (*domain.StatusRecord, error) {
	for _, action := range domain.ActionTypes() {
		rec, err := s.status.Get(ctx, userID, action, key)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("status read: %w", err))
		}
		if rec != nil {
			return rec, nil
		}
	}

	for _, action := range domain.ActionTypes() {
		replay, err := s.executor.LookupReplay(ctx, userID, action, key)
		if err != nil {
			return nil, err
		}
		if replay != nil {
			now := s.now().UTC()
			return &domain.StatusRecord{
				Key:         key,
				UserID:      userID,
				Action:      action,
				Status:      domain.StatusCompleted,
				RequestedAt: now,
				UpdatedAt:   now,
				Result:      replay,
			}, nil
		}
	}
	return nil, nil
}

func (s *DispatchService) asyncAvailable(ctx context.Context) bool {
	if !s.queueCfg.Enabled || s.queue == nil || s.liveness == nil {
		return false
	}
	alive, err := s.liveness.IsAlive(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("worker liveness check failed, assuming dead")
		return false
	}
	return alive
}

func (s *DispatchService) enqueue(ctx context.Context, req domain.ActionRequest) (*ports.SubmitOutcome, error) {
	depth, err := s.queue.Publish(ctx, req)
	if err != nil {
		return nil, err
	}
	metrics.QueueDepth.Set(float64(depth))

	now := s.now().UTC()
	rec := &domain.StatusRecord{
		Key:         req.IdempotencyKey,
		UserID:      req.UserID,
		Action:      req.Action,
		Status:      domain.StatusQueued,
		RequestedAt: req.SubmittedAt,
		UpdatedAt:   now,
		QueueDepth:  depth,
	}
	// A rejected write means the worker already advanced this key past
	// queued; either way the poll endpoint has a record to serve.
	if _, err := s.status.Put(ctx, rec, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", req.IdempotencyKey).Msg("status write failed after enqueue")
	}
	return &ports.SubmitOutcome{Status: rec}, nil
}

type inlineOutcome struct {
	result *domain.ActionResult
	err    error
}

// executeInline runs the action within the request lifecycle, bounded by
// the inline timeout. A slow execution is detached rather than cancelled:
// the client gets the in-flight record and polls for the terminal state,
// so slow-but-successful work is never reported as a failure.
func (s *DispatchService) executeInline(ctx context.Context, req domain.ActionRequest) (*ports.SubmitOutcome, error) {
	metrics.InlineFallbackTotal.Inc()

	execCtx := context.WithoutCancel(ctx)
	done := make(chan inlineOutcome, 1)
	go func() {
		result, err := s.executor.Execute(execCtx, req)
		s.recordTerminal(execCtx, req, result, err)
		done <- inlineOutcome{result: result, err: err}
	}()

	timeout := s.queueCfg.InlineTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		return &ports.SubmitOutcome{Result: out.result}, nil
	case <-timer.C:
		now := s.now().UTC()
		rec := &domain.StatusRecord{
			Key:         req.IdempotencyKey,
			UserID:      req.UserID,
			Action:      req.Action,
			Status:      domain.StatusProcessing,
			RequestedAt: req.SubmittedAt,
			UpdatedAt:   now,
		}
		// The rank check in the store keeps this from clobbering the
		// terminal record if the execution finishes first.
		if _, err := s.status.Put(ctx, rec, s.ttl); err != nil {
			s.log.Warn().Err(err).Str("key", req.IdempotencyKey).Msg("in-flight status write failed")
		}
		return &ports.SubmitOutcome{Status: rec}, nil
	}
}

// recordTerminal writes the terminal status so later polls under this key
// resolve even though the action never went through the queue.
func (s *DispatchService) recordTerminal(ctx context.Context, req domain.ActionRequest, result *domain.ActionResult, execErr error) {
	now := s.now().UTC()
	rec := &domain.StatusRecord{
		Key:         req.IdempotencyKey,
		UserID:      req.UserID,
		Action:      req.Action,
		RequestedAt: req.SubmittedAt,
		UpdatedAt:   now,
	}
	if execErr != nil {
		rec.Status = domain.StatusFailed
		rec.Error = toActionError(execErr)
	} else {
		rec.Status = domain.StatusCompleted
		rec.Result = result
	}
	if _, err := s.status.Put(ctx, rec, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", req.IdempotencyKey).Msg("terminal status write failed")
	}
}

// toActionError converts an execution error into the recorded terminal
// failure. Internal details never leave the process.
func toActionError(err error) *domain.ActionError {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return &domain.ActionError{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Retryable: appErr.Retryable,
		}
	}
	return &domain.ActionError{Code: "INTERNAL", Message: "internal error", Retryable: true}
}
