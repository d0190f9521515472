package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reward-engine/internal/core/domain"
	"reward-engine/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const balanceColumns = `user_id, current_cents, total_earning_cents, locked_capital_cents,
		pending_withdraw_cents, staked_cents, deposit_total_cents, pending_withdraw_count,
		mining_next_eligible_at, daily_profit_next_eligible_at, created_at, updated_at`

// BalanceRepo implements ports.BalanceRepository. The ledger is never
// locked pessimistically: every mutation is a conditional UPDATE whose
// WHERE clause re-checks the invariant, and RowsAffected()==0 signals a
// concurrent writer won.
type BalanceRepo struct {
	pool Pool
}

// NewBalanceRepo creates a new BalanceRepo.
func NewBalanceRepo(pool Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

// GetOrCreate fetches the balance row, lazily inserting a zero row on first
// access. The insert is idempotent under concurrent first requests.
func (r *BalanceRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.AccountBalance, error) {
	insert := `INSERT INTO account_balances (user_id, created_at, updated_at)
		VALUES ($1, NOW(), NOW()) ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, insert, userID); err != nil {
		return nil, fmt.Errorf("insert balance: %w", err)
	}
	b, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("balance row missing after insert: %s", userID)
	}
	return b, nil
}

// Get fetches a balance row, nil when absent.
func (r *BalanceRepo) Get(ctx context.Context, userID uuid.UUID) (*domain.AccountBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM account_balances WHERE user_id = $1`
	return scanBalance(r.pool.QueryRow(ctx, query, userID))
}

// GetTx fetches a balance row inside a transaction.
func (r *BalanceRepo) GetTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.AccountBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM account_balances WHERE user_id = $1`
	return scanBalance(tx.QueryRow(ctx, query, userID))
}

// ClaimCooldown advances the per-action next-eligible marker. The update
// matches only while the marker is absent or already elapsed, so exactly
// one of any set of concurrent claimants wins.
func (r *BalanceRepo) ClaimCooldown(ctx context.Context, tx pgx.Tx, userID uuid.UUID, action domain.ActionType, now time.Time, next time.Time) (bool, error) {
	col, err := cooldownColumn(action)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`UPDATE account_balances SET %s = $2, updated_at = NOW()
		WHERE user_id = $1 AND (%s IS NULL OR %s <= $3)`, col, col, col)

	tag, err := tx.Exec(ctx, query, userID, next, now)
	if err != nil {
		return false, fmt.Errorf("claim cooldown: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreditReward applies a reward to current and total_earning, returning the
// updated row.
func (r *BalanceRepo) CreditReward(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount money.Cents) (*domain.AccountBalance, error) {
	query := `UPDATE account_balances
		SET current_cents = current_cents + $2,
			total_earning_cents = total_earning_cents + $2,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + balanceColumns

	b, err := scanBalance(tx.QueryRow(ctx, query, userID, int64(amount)))
	if err != nil {
		return nil, fmt.Errorf("credit reward: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("credit reward: balance not found: %s", userID)
	}
	return b, nil
}

// ReservePendingWithdraw increments pending_withdraw only if the caller's
// observed value is still current and the withdrawable/spendable invariants
// hold at write time. Zero matched rows means the balance changed under the
// caller.
func (r *BalanceRepo) ReservePendingWithdraw(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount money.Cents, observedPending money.Cents) (bool, error) {
	query := `UPDATE account_balances
		SET pending_withdraw_cents = pending_withdraw_cents + $2,
			pending_withdraw_count = pending_withdraw_count + 1,
			updated_at = NOW()
		WHERE user_id = $1
			AND pending_withdraw_cents = $3
			AND current_cents >= $2
			AND total_earning_cents - pending_withdraw_cents >= $2`

	tag, err := tx.Exec(ctx, query, userID, int64(amount), int64(observedPending))
	if err != nil {
		return false, fmt.Errorf("reserve pending withdraw: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func cooldownColumn(action domain.ActionType) (string, error) {
	switch action {
	case domain.ActionMiningClick:
		return "mining_next_eligible_at", nil
	case domain.ActionDailyProfit:
		return "daily_profit_next_eligible_at", nil
	default:
		return "", fmt.Errorf("unknown action type %q", action)
	}
}

func scanBalance(row pgx.Row) (*domain.AccountBalance, error) {
	b := &domain.AccountBalance{}
	var current, earning, locked, pending, staked, deposit int64
	err := row.Scan(
		&b.UserID, &current, &earning, &locked, &pending, &staked, &deposit,
		&b.PendingWithdrawCount, &b.MiningNextEligibleAt, &b.DailyProfitNextEligibleAt,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan balance: %w", err)
	}
	b.Current = money.Cents(current)
	b.TotalEarning = money.Cents(earning)
	b.LockedCapital = money.Cents(locked)
	b.PendingWithdraw = money.Cents(pending)
	b.Staked = money.Cents(staked)
	b.DepositTotal = money.Cents(deposit)
	return b, nil
}
