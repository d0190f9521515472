package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"reward-engine/config"
	"reward-engine/internal/core/domain"
	"reward-engine/internal/core/ports"
	"reward-engine/internal/service"
	"reward-engine/pkg/apperror"
	"reward-engine/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.RewardsConfig {
	return config.RewardsConfig{
		MinDepositCents:      5000,
		MiningRewardCents:    25,
		MiningCooldown:       time.Hour,
		DailyProfitBps:       250,
		DailyProfitCooldown:  24 * time.Hour,
		MinWithdrawCents:     1000,
		PendingWithdrawLimit: 3,
		StatusRetention:      24 * time.Hour,
	}
}

type engine struct {
	store     *memStore
	actionSvc *service.ActionService
	walletSvc *service.WalletService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	store := newMemStore()
	balances := &memBalanceRepo{s: store}
	txns := &memTxRepo{s: store}
	cfg := testConfig()
	return &engine{
		store:     store,
		actionSvc: service.NewActionService(balances, txns, memTransactor{}, newMemResultCache(), cfg, zerolog.Nop()),
		walletSvc: service.NewWalletService(balances, txns, memTransactor{}, cfg, zerolog.Nop()),
	}
}

func seedUser(e *engine, current, earning money.Cents) uuid.UUID {
	userID := uuid.New()
	now := time.Now().UTC()
	e.store.seedBalance(&domain.AccountBalance{
		UserID:       userID,
		Current:      current,
		TotalEarning: earning,
		DepositTotal: 5000,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	return userID
}

func TestConcurrentSameKeySubmissions_SingleEffect(t *testing.T) {
	e := newEngine(t)
	userID := seedUser(e, 20000, 20000)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	results := make([]*domain.ActionResult, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.actionSvc.Execute(ctx, domain.ActionRequest{
				UserID:         userID,
				Action:         domain.ActionMiningClick,
				IdempotencyKey: "burst-key",
			})
		}(i)
	}
	wg.Wait()

	// Exactly one execution mutated the ledger.
	assert.Equal(t, 1, e.store.transactionCount())

	fresh, err := (&memBalanceRepo{s: e.store}).Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(20025), fresh.Current, "reward credited exactly once")

	// Every request got a coherent answer: the winner's fresh result, a
	// replay of it, or a cooldown conflict from losing the guard race.
	var freshWins, replays, conflicts int
	for i := 0; i < n; i++ {
		switch {
		case errs[i] == nil && !results[i].Replayed:
			freshWins++
		case errs[i] == nil && results[i].Replayed:
			replays++
			assert.Equal(t, money.Cents(25), results[i].Amount)
		default:
			appErr, ok := errs[i].(*apperror.AppError)
			require.True(t, ok, "unexpected error type %T", errs[i])
			assert.Equal(t, "COOLDOWN_ACTIVE", appErr.Code)
			conflicts++
		}
	}
	assert.Equal(t, 1, freshWins)
	assert.Equal(t, n, freshWins+replays+conflicts)
}

func TestSequentialDuplicate_Replays(t *testing.T) {
	e := newEngine(t)
	userID := seedUser(e, 20000, 20000)
	ctx := context.Background()

	req := domain.ActionRequest{
		UserID: userID, Action: domain.ActionDailyProfit, IdempotencyKey: "day-1",
	}

	first, err := e.actionSvc.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.Equal(t, money.Cents(500), first.Amount) // 2.5% of 200.00

	second, err := e.actionSvc.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.TransactionID, second.TransactionID)

	assert.Equal(t, 1, e.store.transactionCount())
}

func TestConcurrentWithdrawals_OneWinsOneConflicts(t *testing.T) {
	e := newEngine(t)
	userID := seedUser(e, 10000, 10000) // 100.00 withdrawable
	ctx := context.Background()

	var wg sync.WaitGroup
	receipts := make([]*ports.WithdrawReceipt, 2)
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipts[i], errs[i] = e.walletSvc.SubmitWithdrawal(ctx, ports.WithdrawRequest{
				UserID: userID, Amount: 7000,
			})
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for i := 0; i < 2; i++ {
		if errs[i] == nil {
			wins++
			assert.Equal(t, money.Cents(7000), receipts[i].Amount)
			continue
		}
		appErr, ok := errs[i].(*apperror.AppError)
		require.True(t, ok)
		assert.Equal(t, "BALANCE_CHANGED", appErr.Code)
		// The conflict carries the recomputed headroom: 100 - 70 = 30.
		assert.Equal(t, 30.0, appErr.Context["availableToWithdraw"])
		conflicts++
	}
	assert.Equal(t, 1, wins, "exactly one withdrawal reserves the funds")
	assert.Equal(t, 1, conflicts)

	fresh, err := (&memBalanceRepo{s: e.store}).Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(7000), fresh.PendingWithdraw)
	assert.Equal(t, money.Cents(3000), fresh.Withdrawable())
}

func TestConcurrentDistinctUsers_NoInterference(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	const users = 10
	ids := make([]uuid.UUID, users)
	for i := range ids {
		ids[i] = seedUser(e, 20000, 20000)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := e.actionSvc.Execute(ctx, domain.ActionRequest{
				UserID: id, Action: domain.ActionMiningClick, IdempotencyKey: uuid.NewString(),
			})
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, users, e.store.transactionCount())
	for _, id := range ids {
		b, err := (&memBalanceRepo{s: e.store}).Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, money.Cents(20025), b.Current)
	}
}
