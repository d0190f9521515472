package service

import (
	"context"
	"testing"

	"reward-engine/internal/core/domain"
	"reward-engine/internal/core/ports"
	"reward-engine/internal/core/ports/mocks"
	"reward-engine/pkg/apperror"
	"reward-engine/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type walletTestDeps struct {
	svc        *WalletService
	balances   *mocks.MockBalanceRepository
	txns       *mocks.MockTransactionRepository
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupWalletService(t *testing.T) *walletTestDeps {
	ctrl := gomock.NewController(t)
	d := &walletTestDeps{
		balances:   mocks.NewMockBalanceRepository(ctrl),
		txns:       mocks.NewMockTransactionRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewWalletService(d.balances, d.txns, d.transactor, testRewardsConfig(), zerolog.Nop())
	return d
}

func withdrawableBalance(userID uuid.UUID) *domain.AccountBalance {
	return &domain.AccountBalance{
		UserID:       userID,
		Current:      10000,
		TotalEarning: 10000,
		DepositTotal: 5000,
	}
}

func TestWalletService_SubmitWithdrawal_Success(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.balances.EXPECT().GetOrCreate(ctx, userID).Return(withdrawableBalance(userID), nil)
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.balances.EXPECT().ReservePendingWithdraw(ctx, gomock.Any(), userID, money.Cents(7000), money.Cents(0)).Return(true, nil)

	var recorded *domain.Transaction
	d.txns.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
			recorded = txn
			return nil
		})

	receipt, err := d.svc.SubmitWithdrawal(ctx, ports.WithdrawRequest{UserID: userID, Amount: 7000})
	require.NoError(t, err)
	assert.Equal(t, money.Cents(7000), receipt.Amount)
	assert.Equal(t, money.Cents(7000), receipt.PendingWithdraw)
	assert.Equal(t, money.Cents(3000), receipt.Withdrawable)

	require.NotNil(t, recorded)
	assert.Equal(t, domain.TransactionTypeWithdrawal, recorded.Type)
	assert.Equal(t, domain.TransactionStatusPending, recorded.Status)
	assert.NotEmpty(t, recorded.UniqueEventID)
}

func TestWalletService_SubmitWithdrawal_BelowMinimum(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	d.balances.EXPECT().GetOrCreate(ctx, userID).Return(withdrawableBalance(userID), nil)

	_, err := d.svc.SubmitWithdrawal(ctx, ports.WithdrawRequest{UserID: userID, Amount: 500})
	require.Equal(t, "MIN_WITHDRAW_NOT_MET", appErrorCode(t, err))
	appErr := err.(*apperror.AppError)
	assert.Equal(t, 10.0, appErr.Context["minWithdraw"])
}

func TestWalletService_SubmitWithdrawal_PendingLimit(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	balance := withdrawableBalance(userID)
	balance.PendingWithdrawCount = 3

	d.balances.EXPECT().GetOrCreate(ctx, userID).Return(balance, nil)

	_, err := d.svc.SubmitWithdrawal(ctx, ports.WithdrawRequest{UserID: userID, Amount: 2000})
	assert.Equal(t, "PENDING_LIMIT_REACHED", appErrorCode(t, err))
}

func TestWalletService_SubmitWithdrawal_InsufficientWithdrawable(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	balance := withdrawableBalance(userID)
	balance.PendingWithdraw = 9000 // only 10.00 left withdrawable

	d.balances.EXPECT().GetOrCreate(ctx, userID).Return(balance, nil)

	_, err := d.svc.SubmitWithdrawal(ctx, ports.WithdrawRequest{UserID: userID, Amount: 2000})
	require.Equal(t, "INSUFFICIENT_WITHDRAWABLE_BALANCE", appErrorCode(t, err))
	appErr := err.(*apperror.AppError)
	assert.Equal(t, 10.0, appErr.Context["availableToWithdraw"])
}

func TestWalletService_SubmitWithdrawal_BalanceChanged(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.balances.EXPECT().GetOrCreate(ctx, userID).Return(withdrawableBalance(userID), nil)
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	// The guard loses: a concurrent withdrawal moved pending first.
	d.balances.EXPECT().ReservePendingWithdraw(ctx, gomock.Any(), userID, money.Cents(7000), money.Cents(0)).Return(false, nil)

	fresh := withdrawableBalance(userID)
	fresh.PendingWithdraw = 7000 // the other request reserved 70.00
	d.balances.EXPECT().Get(ctx, userID).Return(fresh, nil)

	_, err := d.svc.SubmitWithdrawal(ctx, ports.WithdrawRequest{UserID: userID, Amount: 7000})
	require.Equal(t, "BALANCE_CHANGED", appErrorCode(t, err))
	appErr := err.(*apperror.AppError)
	assert.Equal(t, 30.0, appErr.Context["availableToWithdraw"])
}

func TestWalletService_SubmitWithdrawal_RejectsNonPositive(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.SubmitWithdrawal(context.Background(), ports.WithdrawRequest{UserID: uuid.New(), Amount: 0})
	assert.Equal(t, "VALIDATION", appErrorCode(t, err))
}

func TestWalletService_GetBalance(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	d.balances.EXPECT().GetOrCreate(ctx, userID).Return(withdrawableBalance(userID), nil)

	b, err := d.svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(10000), b.Withdrawable())
}
