package domain

import (
	"time"

	"reward-engine/pkg/money"
)

// EligibilityPolicy holds the configured thresholds behind the pure
// eligibility predicates. Predicates are side-effect-free; callers evaluate
// them in a fixed order and fail fast on the first violation.
type EligibilityPolicy struct {
	MinDeposit     money.Cents
	ROICapMultiple int64 // earnings cap as a multiple of locked capital; 0 disables
}

// DepositThresholdMet reports whether lifetime deposits reach the minimum.
func (p EligibilityPolicy) DepositThresholdMet(b *AccountBalance) bool {
	return b.DepositTotal >= p.MinDeposit
}

// CooldownElapsed reports whether the action is off cooldown: the marker is
// absent or not in the future.
func CooldownElapsed(next *time.Time, now time.Time) bool {
	return next == nil || !next.After(now)
}

// CooldownRemaining returns the wait until the action is eligible again,
// zero when already eligible.
func CooldownRemaining(next *time.Time, now time.Time) time.Duration {
	if CooldownElapsed(next, now) {
		return 0
	}
	return next.Sub(now)
}

// RewardCapReached reports whether cumulative earnings have hit the
// configured multiple of locked capital.
func (p EligibilityPolicy) RewardCapReached(b *AccountBalance) bool {
	if p.ROICapMultiple <= 0 {
		return false
	}
	return b.TotalEarning >= p.RewardCap(b)
}

// RewardCap returns the absolute earnings ceiling for the account.
func (p EligibilityPolicy) RewardCap(b *AccountBalance) money.Cents {
	return b.LockedCapital * money.Cents(p.ROICapMultiple)
}
