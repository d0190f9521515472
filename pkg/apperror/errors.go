package apperror

import (
	"fmt"
	"net/http"
	"time"

	"reward-engine/pkg/money"
)

// AppError is a structured error that maps to HTTP responses. Every
// rejection carries a stable machine-readable Code plus a Context map with
// the authoritative numbers the client needs to render a message without a
// follow-up request.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Context    map[string]any `json:"context,omitempty"`
	Retryable  bool           `json:"retryable"`
	RetryAfter time.Duration  `json:"-"` // >0 emits a Retry-After header
	Err        error          `json:"-"` // wrapped internal error, never exposed
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithContext attaches a context field and returns the error for chaining.
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	e.Context[key] = value
	return e
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// ---- Validation ----

// Validation reports malformed input. Never retried.
func Validation(message string) *AppError {
	return New("VALIDATION", message, http.StatusBadRequest)
}

// ---- Eligibility rejections (domain-final, non-retryable) ----

// ErrDepositThresholdUnmet is returned when lifetime deposits are below the
// configured minimum for the action.
func ErrDepositThresholdUnmet(required, deposited money.Cents) *AppError {
	e := New("DEPOSIT_THRESHOLD_UNMET", "minimum deposit required to unlock this action", http.StatusBadRequest)
	e.Context = map[string]any{
		"minDeposit":   required.Float(),
		"depositTotal": deposited.Float(),
	}
	return e
}

// ErrCooldownActive is returned when the action's cooldown has not elapsed.
// The remaining wait is surfaced both in context and as Retry-After.
func ErrCooldownActive(remaining time.Duration) *AppError {
	if remaining < time.Second {
		remaining = time.Second
	}
	e := New("COOLDOWN_ACTIVE", "action is on cooldown", http.StatusConflict)
	e.RetryAfter = remaining
	e.Context = map[string]any{"retryInSeconds": int64(remaining.Seconds())}
	return e
}

// ErrRewardCapReached is returned when cumulative earnings hit the
// configured multiple of locked capital.
func ErrRewardCapReached(cap, earned money.Cents) *AppError {
	e := New("REWARD_CAP_REACHED", "reward cap reached for this account", http.StatusBadRequest)
	e.Context = map[string]any{
		"rewardCap":    cap.Float(),
		"totalEarning": earned.Float(),
	}
	return e
}

// ---- Withdrawal side channel ----

func ErrMinWithdrawNotMet(minimum, requested money.Cents) *AppError {
	e := New("MIN_WITHDRAW_NOT_MET", "withdrawal amount below minimum", http.StatusBadRequest)
	e.Context = map[string]any{
		"minWithdraw": minimum.Float(),
		"requested":   requested.Float(),
	}
	return e
}

func ErrInsufficientWithdrawable(available, requested money.Cents) *AppError {
	e := New("INSUFFICIENT_WITHDRAWABLE_BALANCE", "requested amount exceeds withdrawable balance", http.StatusBadRequest)
	e.Context = map[string]any{
		"availableToWithdraw": available.Float(),
		"requested":           requested.Float(),
	}
	return e
}

func ErrPendingLimitReached(limit int) *AppError {
	e := New("PENDING_LIMIT_REACHED", "too many withdrawals awaiting approval", http.StatusBadRequest)
	e.Context = map[string]any{"pendingLimit": limit}
	return e
}

// ---- Concurrency conflicts ----

// ErrBalanceChanged is returned when a guarded balance update matched zero
// rows because a concurrent writer changed the guarded field first. The
// freshly recomputed withdrawable amount is included so the client can
// re-render without another round trip.
func ErrBalanceChanged(available money.Cents) *AppError {
	e := New("BALANCE_CHANGED", "balance changed concurrently, please re-check", http.StatusConflict)
	e.Context = map[string]any{"availableToWithdraw": available.Float()}
	return e
}

// ---- Infrastructure (retryable) ----

// ErrQueueUnavailable is returned when the dispatch queue cannot accept the
// job and the inline path is also unusable.
func ErrQueueUnavailable(err error) *AppError {
	e := Wrap("QUEUE_UNAVAILABLE", "action queue temporarily unavailable", http.StatusServiceUnavailable, err)
	e.Retryable = true
	e.RetryAfter = 5 * time.Second
	return e
}

// ---- Generic ----

func ErrNotFound(entity string) *AppError {
	return New("NOT_FOUND", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInvalidToken() *AppError {
	return New("INVALID_TOKEN", "invalid or expired token", http.StatusUnauthorized)
}

func ErrRateLimitExceeded() *AppError {
	return New("RATE_LIMITED", "rate limit exceeded", http.StatusTooManyRequests)
}

// InternalError wraps an internal error. The wrapped cause is logged, never
// sent to the client.
func InternalError(err error) *AppError {
	return Wrap("INTERNAL", "internal server error", http.StatusInternalServerError, err)
}
