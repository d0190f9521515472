package ports

import (
	"context"
	"time"

	"reward-engine/internal/core/domain"
	"reward-engine/pkg/money"

	"github.com/google/uuid"
)

// ActionExecutor is the domain logic that, given a validated request,
// atomically mutates the balance ledger and appends a transaction record.
// Both the worker path and the inline fallback share one implementation so
// the two paths cannot drift.
type ActionExecutor interface {
	// Execute runs the guard-check / compute / apply / record sequence for
	// the request. It performs its own idempotency replay lookup first; a
	// replayed result carries Replayed=true and has no side effects.
	Execute(ctx context.Context, req domain.ActionRequest) (*domain.ActionResult, error)

	// LookupReplay returns the terminal result of a previously executed
	// action for this key, or nil when none exists. Side-effect-free.
	LookupReplay(ctx context.Context, userID uuid.UUID, action domain.ActionType, key string) (*domain.ActionResult, error)
}

// ActionDispatcher routes a submitted action to the async queue or the
// inline fallback, after the idempotency and status short-circuit checks.
type ActionDispatcher interface {
	// Submit returns a status record when the action was queued, or an
	// immediate result when it ran inline (or replayed).
	Submit(ctx context.Context, req domain.ActionRequest) (*SubmitOutcome, error)

	// GetStatus returns the status record for (userID, key), or nil when
	// the key is unknown or owned by a different user.
	GetStatus(ctx context.Context, userID uuid.UUID, key string) (*domain.StatusRecord, error)
}

// SubmitOutcome is the result of dispatching an action: exactly one of
// Status (queued, poll for the outcome) or Result (inline or replayed
// terminal outcome) is set.
type SubmitOutcome struct {
	Status *domain.StatusRecord
	Result *domain.ActionResult
}

// WalletService handles the synchronous balance side channel.
type WalletService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*domain.AccountBalance, error)
	SubmitWithdrawal(ctx context.Context, req WithdrawRequest) (*WithdrawReceipt, error)
}

// WithdrawRequest holds validated input for a withdrawal submission.
type WithdrawRequest struct {
	UserID uuid.UUID
	Amount money.Cents
}

// WithdrawReceipt is the outcome of a successful withdrawal submission.
type WithdrawReceipt struct {
	TransactionID   uuid.UUID
	Amount          money.Cents
	PendingWithdraw money.Cents
	Withdrawable    money.Cents
}

// --- Infrastructure capabilities ---

// StatusStore is the keyed lifecycle tracker for queued actions. Records
// are stored under the (user, action, key) scope, so one user's key can
// never shadow another's. Writes are monotonic: a record is stored only if
// its status rank is strictly greater than the stored one, so out-of-order
// worker writes become no-ops.
type StatusStore interface {
	// Put stores the record under (rec.UserID, rec.Action, rec.Key) unless
	// a record with an equal or higher status rank already exists. Returns
	// false when the write was rejected.
	Put(ctx context.Context, rec *domain.StatusRecord, ttl time.Duration) (bool, error)
	Get(ctx context.Context, userID uuid.UUID, action domain.ActionType, key string) (*domain.StatusRecord, error)
}

// ResultCache is the fast-path idempotency cache holding serialized
// terminal results.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil, nil on miss
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// JobQueue is the dispatch queue's enqueue side. Publish returns the
// advisory queue depth observed at enqueue time.
type JobQueue interface {
	Publish(ctx context.Context, req domain.ActionRequest) (depth int, err error)
}

// WorkerLiveness is the worker pool's liveness capability. The HTTP layer
// consults IsAlive to pick the async or inline path; it is an operational
// signal, not a correctness dependency.
type WorkerLiveness interface {
	Heartbeat(ctx context.Context) error
	IsAlive(ctx context.Context) (bool, error)
}
