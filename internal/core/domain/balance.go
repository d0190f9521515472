package domain

import (
	"time"

	"reward-engine/pkg/money"

	"github.com/google/uuid"
)

// AccountBalance is the authoritative per-user monetary record. One row per
// user, created lazily on first access, mutated exclusively through guarded
// conditional updates in the balance repository.
type AccountBalance struct {
	UserID          uuid.UUID   `json:"user_id"`
	Current         money.Cents `json:"current"`          // spendable
	TotalEarning    money.Cents `json:"total_earning"`    // lifetime rewards
	LockedCapital   money.Cents `json:"locked_capital"`   // principal under vesting
	PendingWithdraw money.Cents `json:"pending_withdraw"` // reserved, awaiting approval
	Staked          money.Cents `json:"staked"`
	DepositTotal    money.Cents `json:"deposit_total"` // lifetime deposits

	// Pending withdrawal count backs the per-user pending limit.
	PendingWithdrawCount int `json:"pending_withdraw_count"`

	// Per-action cooldown markers. Nil means the action has never run.
	MiningNextEligibleAt      *time.Time `json:"mining_next_eligible_at,omitempty"`
	DailyProfitNextEligibleAt *time.Time `json:"daily_profit_next_eligible_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TotalBalance is the spendable balance plus locked principal.
func (b *AccountBalance) TotalBalance() money.Cents {
	return b.Current + b.LockedCapital
}

// Withdrawable is the share of lifetime earnings not already reserved by
// pending withdrawals. Never negative.
func (b *AccountBalance) Withdrawable() money.Cents {
	w := b.TotalEarning - b.PendingWithdraw
	if w < 0 {
		return 0
	}
	return w
}

// NextEligibleAt returns the cooldown marker for the given action type.
func (b *AccountBalance) NextEligibleAt(action ActionType) *time.Time {
	switch action {
	case ActionMiningClick:
		return b.MiningNextEligibleAt
	case ActionDailyProfit:
		return b.DailyProfitNextEligibleAt
	default:
		return nil
	}
}
