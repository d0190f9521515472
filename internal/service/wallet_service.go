package service

import (
	"context"
	"fmt"
	"time"

	"reward-engine/config"
	"reward-engine/internal/core/domain"
	"reward-engine/internal/core/ports"
	"reward-engine/pkg/apperror"
	"reward-engine/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WalletService implements ports.WalletService: balance reads and the
// synchronous withdrawal submission. Withdrawals never queue; rejection
// reasons depend on live balance state, so deferring the answer would make
// every error stale by the time the client saw it.
type WalletService struct {
	balances   ports.BalanceRepository
	txns       ports.TransactionRepository
	transactor ports.DBTransactor
	rewards    config.RewardsConfig
	log        zerolog.Logger
	now        func() time.Time
}

// NewWalletService creates a new WalletService.
func NewWalletService(
	balances ports.BalanceRepository,
	txns ports.TransactionRepository,
	transactor ports.DBTransactor,
	rewards config.RewardsConfig,
	log zerolog.Logger,
) *WalletService {
	return &WalletService{
		balances:   balances,
		txns:       txns,
		transactor: transactor,
		rewards:    rewards,
		log:        log,
		now:        time.Now,
	}
}

// GetBalance returns the user's balance row, creating it on first access.
func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (*domain.AccountBalance, error) {
	b, err := s.balances.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load balance: %w", err))
	}
	return b, nil
}

// SubmitWithdrawal validates the request against the observed balance, then
// reserves the amount with a guarded update. The guard pins the observed
// pending total: if any concurrent withdrawal moved it first, the write
// matches zero rows and the client gets a conflict carrying the recomputed
// withdrawable amount.
func (s *WalletService) SubmitWithdrawal(ctx context.Context, req ports.WithdrawRequest) (*ports.WithdrawReceipt, error) {
	if req.Amount <= 0 {
		return nil, apperror.Validation("withdrawal amount must be positive")
	}

	balance, err := s.balances.GetOrCreate(ctx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load balance: %w", err))
	}

	minWithdraw := money.Cents(s.rewards.MinWithdrawCents)
	if req.Amount < minWithdraw {
		return nil, apperror.ErrMinWithdrawNotMet(minWithdraw, req.Amount)
	}
	if balance.PendingWithdrawCount >= s.rewards.PendingWithdrawLimit {
		return nil, apperror.ErrPendingLimitReached(s.rewards.PendingWithdrawLimit)
	}
	if req.Amount > balance.Withdrawable() {
		return nil, apperror.ErrInsufficientWithdrawable(balance.Withdrawable(), req.Amount)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ok, err := s.balances.ReservePendingWithdraw(ctx, dbTx, req.UserID, req.Amount, balance.PendingWithdraw)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("reserve withdrawal: %w", err))
	}
	if !ok {
		dbTx.Rollback(ctx) //nolint:errcheck
		fresh, ferr := s.balances.Get(ctx, req.UserID)
		if ferr != nil || fresh == nil {
			return nil, apperror.ErrBalanceChanged(0)
		}
		return nil, apperror.ErrBalanceChanged(fresh.Withdrawable())
	}

	now := s.now().UTC()
	txn := &domain.Transaction{
		ID:            uuid.New(),
		UserID:        req.UserID,
		Type:          domain.TransactionTypeWithdrawal,
		Amount:        req.Amount,
		Status:        domain.TransactionStatusPending,
		Source:        "withdrawal",
		BalanceBefore: balance.Current,
		BalanceAfter:  balance.Current, // funds move on approval, not submission
		UniqueEventID: uuid.NewString(),
		CreatedAt:     now,
	}
	if err := s.txns.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record withdrawal: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("user_id", req.UserID.String()).
		Str("transaction_id", txn.ID.String()).
		Int64("amount_cents", int64(req.Amount)).
		Msg("withdrawal submitted")

	return &ports.WithdrawReceipt{
		TransactionID:   txn.ID,
		Amount:          req.Amount,
		PendingWithdraw: balance.PendingWithdraw + req.Amount,
		Withdrawable:    balance.Withdrawable() - req.Amount,
	}, nil
}
