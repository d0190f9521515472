package domain

import (
	"strings"
	"time"

	"reward-engine/pkg/money"

	"github.com/google/uuid"
)

// ActionType identifies a discrete monetary action.
type ActionType string

const (
	ActionMiningClick ActionType = "mining_click"
	ActionDailyProfit ActionType = "daily_profit"
)

// Valid reports whether the action type is one the engine executes.
func (a ActionType) Valid() bool {
	return a == ActionMiningClick || a == ActionDailyProfit
}

// ActionTypes lists every executable action type, for lookups that must
// try each scope of a bare idempotency key.
func ActionTypes() []ActionType {
	return []ActionType{ActionMiningClick, ActionDailyProfit}
}

// ScopeKey qualifies an idempotency key with its owner and action type.
// Idempotency is scoped per (user, action, key): two users reusing the
// same literal key are distinct logical actions, as are two action types
// under one user. Every ephemeral store keyed by idempotency key (result
// cache, status tracker, in-process flight dedup) must use this form; only
// the ledger carries the scope in its own columns.
func ScopeKey(userID uuid.UUID, action ActionType, key string) string {
	return userID.String() + ":" + string(action) + ":" + key
}

// ActionRequest is the ephemeral value flowing from the HTTP boundary into
// the dispatch pipeline.
type ActionRequest struct {
	UserID         uuid.UUID  `json:"user_id"`
	Action         ActionType `json:"action"`
	IdempotencyKey string     `json:"idempotency_key"`
	SubmittedAt    time.Time  `json:"submitted_at"`
}

// ResolveIdempotencyKey returns the client-supplied key verbatim (trimmed)
// when present. Otherwise it derives a stable key: daily-profit claims
// collapse onto one key per user per UTC day, so duplicate submissions
// within the same day dedup even without client cooperation; mining clicks
// get a fresh key because each click is its own logical action and the
// cooldown guard, not the key, bounds the rate.
func ResolveIdempotencyKey(userID uuid.UUID, action ActionType, supplied string, now time.Time) string {
	if k := strings.TrimSpace(supplied); k != "" {
		return k
	}
	if action == ActionDailyProfit {
		return string(action) + ":" + userID.String() + ":" + now.UTC().Format("2006-01-02")
	}
	return uuid.NewString()
}

// ActionStatus is the client-visible lifecycle state of an action.
type ActionStatus string

const (
	StatusQueued     ActionStatus = "queued"
	StatusProcessing ActionStatus = "processing"
	StatusCompleted  ActionStatus = "completed"
	StatusFailed     ActionStatus = "failed"
)

// Rank orders statuses for the monotonic transition check. A write is valid
// only if its rank is strictly greater than the stored one, so terminal
// states never regress and a late completion cannot overwrite a failure.
func (s ActionStatus) Rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// IsTerminal reports whether no further transition is valid.
func (s ActionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ActionResult is the terminal outcome of a successful action, also the
// payload replayed on duplicate submissions.
type ActionResult struct {
	TransactionID  uuid.UUID   `json:"transaction_id"`
	Action         ActionType  `json:"action"`
	Amount         money.Cents `json:"amount_cents"`
	BalanceAfter   money.Cents `json:"balance_after_cents"`
	NextEligibleAt *time.Time  `json:"next_eligible_at,omitempty"`
	Replayed       bool        `json:"-"` // true when served from the idempotency store
}

// ActionError is the terminal failure recorded for a queued action.
// Retryable is true only for transient infrastructure errors; domain
// rejections are final.
type ActionError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// StatusRecord tracks an in-flight or completed action, keyed by
// idempotency key. It expires after a bounded retention window; the durable
// dedup row is the transaction record.
type StatusRecord struct {
	Key         string        `json:"key"`
	UserID      uuid.UUID     `json:"user_id"`
	Action      ActionType    `json:"action"`
	Status      ActionStatus  `json:"status"`
	RequestedAt time.Time     `json:"requested_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Result      *ActionResult `json:"result,omitempty"`
	Error       *ActionError  `json:"error,omitempty"`
	QueueDepth  int           `json:"queue_depth"` // advisory backoff hint
}
