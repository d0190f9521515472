package domain

import (
	"time"

	"reward-engine/pkg/money"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeMiningReward TransactionType = "MINING_REWARD"
	TransactionTypeDailyProfit  TransactionType = "DAILY_PROFIT"
	TransactionTypeWithdrawal   TransactionType = "WITHDRAWAL"
	TransactionTypeDeposit      TransactionType = "DEPOSIT"
)

// TransactionStatus represents the lifecycle state of a transaction record.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusPending   TransactionStatus = "PENDING"  // withdrawals awaiting approval
	TransactionStatusApproved  TransactionStatus = "APPROVED" // set by the approval flow
)

// Transaction is an immutable append-only ledger fact. UniqueEventID is
// never empty: it is the idempotency key when one exists, else a freshly
// generated identifier, and carries the uniqueness constraint
// (user_id, source, unique_event_id) used for dedup recovery.
type Transaction struct {
	ID             uuid.UUID         `json:"id"`
	UserID         uuid.UUID         `json:"user_id"`
	Type           TransactionType   `json:"type"`
	Amount         money.Cents       `json:"amount_cents"`
	Status         TransactionStatus `json:"status"`
	Source         string            `json:"source"` // originating action type
	BalanceBefore  money.Cents       `json:"balance_before_cents"`
	BalanceAfter   money.Cents       `json:"balance_after_cents"`
	UniqueEventID  string            `json:"unique_event_id"`
	IdempotencyKey *string           `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewRewardTransaction builds the ledger fact for a credited reward.
func NewRewardTransaction(userID uuid.UUID, txType TransactionType, action ActionType, amount, before, after money.Cents, idempotencyKey string, now time.Time) *Transaction {
	t := &Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          txType,
		Amount:        amount,
		Status:        TransactionStatusCompleted,
		Source:        string(action),
		BalanceBefore: before,
		BalanceAfter:  after,
		UniqueEventID: idempotencyKey,
		CreatedAt:     now,
	}
	if idempotencyKey != "" {
		k := idempotencyKey
		t.IdempotencyKey = &k
	} else {
		t.UniqueEventID = uuid.NewString()
	}
	return t
}
