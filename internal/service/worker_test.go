package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"reward-engine/internal/core/domain"
	"reward-engine/internal/core/ports/mocks"
	"reward-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type workerTestDeps struct {
	worker   *Worker
	executor *mocks.MockActionExecutor
	status   *mocks.MockStatusStore
	liveness *mocks.MockWorkerLiveness
	ctrl     *gomock.Controller
}

func setupWorker(t *testing.T) *workerTestDeps {
	ctrl := gomock.NewController(t)
	d := &workerTestDeps{
		executor: mocks.NewMockActionExecutor(ctrl),
		status:   mocks.NewMockStatusStore(ctrl),
		liveness: mocks.NewMockWorkerLiveness(ctrl),
		ctrl:     ctrl,
	}
	d.worker = NewWorker(d.executor, d.status, d.liveness, 24*time.Hour, zerolog.Nop())
	return d
}

func TestWorker_Handle_Success(t *testing.T) {
	d := setupWorker(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	req := domain.ActionRequest{
		UserID: uuid.New(), Action: domain.ActionMiningClick,
		IdempotencyKey: "k1", SubmittedAt: time.Now().UTC(),
	}
	result := &domain.ActionResult{Amount: 25, BalanceAfter: 20025}

	var statuses []domain.ActionStatus
	d.status.EXPECT().Put(ctx, gomock.Any(), 24*time.Hour).Times(2).
		DoAndReturn(func(_ context.Context, rec *domain.StatusRecord, _ time.Duration) (bool, error) {
			statuses = append(statuses, rec.Status)
			return true, nil
		})
	d.executor.EXPECT().Execute(ctx, req).Return(result, nil)

	assert.True(t, d.worker.Handle(ctx, req, false))
	require.Equal(t, []domain.ActionStatus{domain.StatusProcessing, domain.StatusCompleted}, statuses)
}

func TestWorker_Handle_DomainRejectionAcks(t *testing.T) {
	d := setupWorker(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	req := domain.ActionRequest{UserID: uuid.New(), Action: domain.ActionDailyProfit, IdempotencyKey: "k2"}

	var terminal *domain.StatusRecord
	d.status.EXPECT().Put(ctx, gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, rec *domain.StatusRecord, _ time.Duration) (bool, error) {
			if rec.Status.IsTerminal() {
				terminal = rec
			}
			return true, nil
		})
	d.executor.EXPECT().Execute(ctx, req).Return(nil, apperror.ErrCooldownActive(time.Hour))

	// Re-running a cooldown rejection would fail identically, so ack.
	assert.True(t, d.worker.Handle(ctx, req, false))
	require.NotNil(t, terminal)
	assert.Equal(t, domain.StatusFailed, terminal.Status)
	require.NotNil(t, terminal.Error)
	assert.Equal(t, "COOLDOWN_ACTIVE", terminal.Error.Code)
	assert.False(t, terminal.Error.Retryable)
}

func TestWorker_Handle_InfrastructureFailureRequeues(t *testing.T) {
	d := setupWorker(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	req := domain.ActionRequest{UserID: uuid.New(), Action: domain.ActionMiningClick, IdempotencyKey: "k3"}

	// Only the processing status is written; the terminal write waits for a
	// successful retry.
	d.status.EXPECT().Put(ctx, gomock.Any(), gomock.Any()).Return(true, nil)
	d.executor.EXPECT().Execute(ctx, req).Return(nil, apperror.InternalError(errors.New("db down")))

	assert.False(t, d.worker.Handle(ctx, req, false))
}

func TestWorker_Handle_GivesUpOnRedelivery(t *testing.T) {
	d := setupWorker(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	req := domain.ActionRequest{UserID: uuid.New(), Action: domain.ActionMiningClick, IdempotencyKey: "k4"}

	var terminal *domain.StatusRecord
	d.status.EXPECT().Put(ctx, gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, rec *domain.StatusRecord, _ time.Duration) (bool, error) {
			if rec.Status.IsTerminal() {
				terminal = rec
			}
			return true, nil
		})
	d.executor.EXPECT().Execute(ctx, req).Return(nil, apperror.InternalError(errors.New("db down")))

	// A transient failure on an already redelivered message must not cycle
	// forever: the key lands in failed{retryable:true} and the message goes
	// to the dead-letter policy.
	assert.False(t, d.worker.Handle(ctx, req, true))
	require.NotNil(t, terminal)
	assert.Equal(t, domain.StatusFailed, terminal.Status)
	require.NotNil(t, terminal.Error)
	assert.True(t, terminal.Error.Retryable)
}
