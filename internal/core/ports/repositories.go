package ports

import (
	"context"
	"errors"
	"time"

	"reward-engine/internal/core/domain"
	"reward-engine/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicateEvent is returned by TransactionRepository.Create when the
// (user_id, source, unique_event_id) uniqueness constraint fires. The caller
// lost a same-key race and must re-query for the winner's row instead of
// surfacing an error.
var ErrDuplicateEvent = errors.New("duplicate unique event")

// BalanceRepository defines persistence for account balances. All mutating
// methods are conditional updates: the WHERE clause re-checks the invariant
// that justified the computed delta, and a false return means zero rows
// matched (a concurrent writer changed the guarded field first).
// Methods accepting pgx.Tx run inside transaction blocks.
type BalanceRepository interface {
	// GetOrCreate fetches the balance row, inserting a zero row if absent.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.AccountBalance, error)
	Get(ctx context.Context, userID uuid.UUID) (*domain.AccountBalance, error)
	GetTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.AccountBalance, error)

	// ClaimCooldown advances the action's next-eligible marker, applied only
	// if the marker is absent or <= now. False means cooldown conflict.
	ClaimCooldown(ctx context.Context, tx pgx.Tx, userID uuid.UUID, action domain.ActionType, now time.Time, next time.Time) (bool, error)

	// CreditReward adds amount to current and total_earning, returning the
	// updated row.
	CreditReward(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount money.Cents) (*domain.AccountBalance, error)

	// ReservePendingWithdraw increments pending_withdraw by amount, applied
	// only if pending_withdraw still equals observedPending, current >= amount
	// and total_earning - pending_withdraw >= amount. False means the guard
	// matched zero rows.
	ReservePendingWithdraw(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount money.Cents, observedPending money.Cents) (bool, error)
}

// TransactionRepository defines persistence for immutable ledger facts.
type TransactionRepository interface {
	// Create appends a transaction. Returns ErrDuplicateEvent when the
	// uniqueness constraint on (user_id, source, unique_event_id) fires.
	Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error

	// GetByEvent fetches the transaction for an idempotency replay lookup.
	GetByEvent(ctx context.Context, userID uuid.UUID, source string, uniqueEventID string) (*domain.Transaction, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
