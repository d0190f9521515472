package integration

import (
	"context"
	"testing"
	"time"

	"reward-engine/config"
	"reward-engine/internal/core/domain"
	"reward-engine/internal/service"
	"reward-engine/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDispatcher wires the full submit path with the queue disabled, so
// every action runs inline but still leaves a pollable status record.
func newDispatcher(e *engine) (*service.DispatchService, *memStatusStore) {
	status := newMemStatusStore()
	dispatcher := service.NewDispatchService(
		e.actionSvc, status, nil, nil,
		config.QueueConfig{Enabled: false},
		24*time.Hour, zerolog.Nop(),
	)
	return dispatcher, status
}

func TestSubmitAndPoll_InlinePath(t *testing.T) {
	e := newEngine(t)
	userID := seedUser(e, 20000, 20000)
	dispatcher, _ := newDispatcher(e)
	ctx := context.Background()

	outcome, err := dispatcher.Submit(ctx, domain.ActionRequest{
		UserID: userID, Action: domain.ActionMiningClick, IdempotencyKey: "click-1",
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Result, "inline path returns the terminal result")
	assert.False(t, outcome.Result.Replayed)

	// The terminal status is pollable afterwards.
	rec, err := dispatcher.GetStatus(ctx, userID, "click-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StatusCompleted, rec.Status)
	require.NotNil(t, rec.Result)
	assert.Equal(t, outcome.Result.TransactionID, rec.Result.TransactionID)

	// Re-submitting the same key replays without a second credit.
	again, err := dispatcher.Submit(ctx, domain.ActionRequest{
		UserID: userID, Action: domain.ActionMiningClick, IdempotencyKey: "click-1",
	})
	require.NoError(t, err)
	require.NotNil(t, again.Result)
	assert.True(t, again.Result.Replayed)
	assert.Equal(t, 1, e.store.transactionCount())
}

func TestSubmit_DailyProfitKeyCollapsesPerDay(t *testing.T) {
	e := newEngine(t)
	userID := seedUser(e, 20000, 20000)
	dispatcher, _ := newDispatcher(e)
	ctx := context.Background()

	// No client key: the engine derives one per user per UTC day, so the
	// second claim replays even though the client sent nothing.
	first, err := dispatcher.Submit(ctx, domain.ActionRequest{
		UserID: userID, Action: domain.ActionDailyProfit,
	})
	require.NoError(t, err)
	require.NotNil(t, first.Result)
	assert.False(t, first.Result.Replayed)

	second, err := dispatcher.Submit(ctx, domain.ActionRequest{
		UserID: userID, Action: domain.ActionDailyProfit,
	})
	require.NoError(t, err)
	require.NotNil(t, second.Result)
	assert.True(t, second.Result.Replayed)
	assert.Equal(t, 1, e.store.transactionCount())
}

func TestSubmit_SameKeyAcrossUsersStaysIsolated(t *testing.T) {
	e := newEngine(t)
	alice := seedUser(e, 20000, 20000)
	bob := seedUser(e, 20000, 20000)
	dispatcher, _ := newDispatcher(e)
	ctx := context.Background()

	// Two users picking the same literal key are two logical actions: both
	// earn their own credit and neither is served the other's result.
	first, err := dispatcher.Submit(ctx, domain.ActionRequest{
		UserID: alice, Action: domain.ActionMiningClick, IdempotencyKey: "promo-1",
	})
	require.NoError(t, err)
	require.NotNil(t, first.Result)
	assert.False(t, first.Result.Replayed)

	second, err := dispatcher.Submit(ctx, domain.ActionRequest{
		UserID: bob, Action: domain.ActionMiningClick, IdempotencyKey: "promo-1",
	})
	require.NoError(t, err)
	require.NotNil(t, second.Result)
	assert.False(t, second.Result.Replayed, "bob must not replay alice's result")
	assert.NotEqual(t, first.Result.TransactionID, second.Result.TransactionID)
	assert.Equal(t, 2, e.store.transactionCount())

	// Polling is scoped the same way.
	rec, err := dispatcher.GetStatus(ctx, bob, "promo-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, second.Result.TransactionID, rec.Result.TransactionID)
}

func TestSubmit_SameKeyAcrossActionsStaysIsolated(t *testing.T) {
	e := newEngine(t)
	userID := seedUser(e, 20000, 20000)
	dispatcher, _ := newDispatcher(e)
	ctx := context.Background()

	// One user reusing a key across action types gets two independent
	// executions; the mining result never answers for the profit claim.
	click, err := dispatcher.Submit(ctx, domain.ActionRequest{
		UserID: userID, Action: domain.ActionMiningClick, IdempotencyKey: "day-7",
	})
	require.NoError(t, err)
	require.NotNil(t, click.Result)
	assert.False(t, click.Result.Replayed)

	profit, err := dispatcher.Submit(ctx, domain.ActionRequest{
		UserID: userID, Action: domain.ActionDailyProfit, IdempotencyKey: "day-7",
	})
	require.NoError(t, err)
	require.NotNil(t, profit.Result)
	assert.False(t, profit.Result.Replayed)
	assert.NotEqual(t, click.Result.TransactionID, profit.Result.TransactionID)
	assert.NotEqual(t, click.Result.Amount, profit.Result.Amount)
	assert.Equal(t, 2, e.store.transactionCount())
}

func TestSubmit_EligibilityGates(t *testing.T) {
	e := newEngine(t)
	dispatcher, _ := newDispatcher(e)
	ctx := context.Background()

	// Fresh user with no deposits fails the threshold gate.
	userID := seedUser(e, 0, 0)
	e.store.seedBalance(&domain.AccountBalance{UserID: userID}) // zero deposits

	_, err := dispatcher.Submit(ctx, domain.ActionRequest{
		UserID: userID, Action: domain.ActionMiningClick,
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "DEPOSIT_THRESHOLD_UNMET", appErr.Code)
	assert.Equal(t, 0, e.store.transactionCount(), "gate rejection leaves no ledger trace")
}

func TestSubmit_CooldownAfterSuccess(t *testing.T) {
	e := newEngine(t)
	userID := seedUser(e, 20000, 20000)
	dispatcher, _ := newDispatcher(e)
	ctx := context.Background()

	_, err := dispatcher.Submit(ctx, domain.ActionRequest{
		UserID: userID, Action: domain.ActionMiningClick, IdempotencyKey: "c1",
	})
	require.NoError(t, err)

	// A different key within the cooldown window is rejected with the
	// remaining wait.
	_, err = dispatcher.Submit(ctx, domain.ActionRequest{
		UserID: userID, Action: domain.ActionMiningClick, IdempotencyKey: "c2",
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "COOLDOWN_ACTIVE", appErr.Code)
	assert.Greater(t, appErr.RetryAfter, time.Duration(0))
}
