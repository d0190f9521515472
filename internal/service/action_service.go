package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reward-engine/config"
	"reward-engine/internal/adapter/metrics"
	"reward-engine/internal/core/domain"
	"reward-engine/internal/core/ports"
	"reward-engine/pkg/apperror"
	"reward-engine/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ActionService implements ports.ActionExecutor: the single place where a
// logical action becomes a balance mutation and a ledger fact. Both the
// worker path and the inline fallback call into here, so idempotency and
// eligibility behave identically regardless of how the action arrived.
type ActionService struct {
	balances   ports.BalanceRepository
	txns       ports.TransactionRepository
	transactor ports.DBTransactor
	results    ports.ResultCache
	rewards    config.RewardsConfig
	policy     domain.EligibilityPolicy
	log        zerolog.Logger
	now        func() time.Time
}

// NewActionService creates a new ActionService.
func NewActionService(
	balances ports.BalanceRepository,
	txns ports.TransactionRepository,
	transactor ports.DBTransactor,
	results ports.ResultCache,
	rewards config.RewardsConfig,
	log zerolog.Logger,
) *ActionService {
	return &ActionService{
		balances:   balances,
		txns:       txns,
		transactor: transactor,
		results:    results,
		rewards:    rewards,
		policy: domain.EligibilityPolicy{
			MinDeposit:     money.Cents(rewards.MinDepositCents),
			ROICapMultiple: rewards.ROICapMultiple,
		},
		log: log,
		now: time.Now,
	}
}

// Execute runs the guard-check / compute / apply / record sequence.
// Duplicate submissions short-circuit into a replay before any gate runs;
// a same-key race that slips past the cache resolves at the transaction
// table's uniqueness constraint and is also answered as a replay.
func (s *ActionService) Execute(ctx context.Context, req domain.ActionRequest) (*domain.ActionResult, error) {
	start := s.now()

	replay, err := s.LookupReplay(ctx, req.UserID, req.Action, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return replay, nil
	}

	balance, err := s.balances.GetOrCreate(ctx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load balance: %w", err))
	}

	now := s.now().UTC()
	if appErr := s.checkEligibility(req.Action, balance, now); appErr != nil {
		metrics.ActionsTotal.WithLabelValues(string(req.Action), "rejected").Inc()
		return nil, appErr
	}

	amount := s.rewardAmount(req.Action, balance)
	next := now.Add(s.cooldown(req.Action))

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	won, err := s.balances.ClaimCooldown(ctx, dbTx, req.UserID, req.Action, now, next)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("claim cooldown: %w", err))
	}
	if !won {
		// A concurrent claimant advanced the marker between our read and
		// this write. If that claimant carried our key on another replica,
		// its ledger row is the answer, not a conflict.
		metrics.ConflictsTotal.WithLabelValues(string(req.Action)).Inc()
		dbTx.Rollback(ctx) //nolint:errcheck
		if replay, rerr := s.LookupReplay(ctx, req.UserID, req.Action, req.IdempotencyKey); rerr == nil && replay != nil {
			return replay, nil
		}
		fresh, ferr := s.balances.Get(ctx, req.UserID)
		if ferr != nil || fresh == nil {
			return nil, apperror.ErrCooldownActive(s.cooldown(req.Action))
		}
		return nil, apperror.ErrCooldownActive(domain.CooldownRemaining(fresh.NextEligibleAt(req.Action), now))
	}

	updated, err := s.balances.CreditReward(ctx, dbTx, req.UserID, amount)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("credit reward: %w", err))
	}

	txn := domain.NewRewardTransaction(
		req.UserID, transactionType(req.Action), req.Action,
		amount, balance.Current, updated.Current,
		req.IdempotencyKey, now,
	)
	if err := s.txns.Create(ctx, dbTx, txn); err != nil {
		if errors.Is(err, ports.ErrDuplicateEvent) {
			// Lost a same-key race at the ledger. Roll back our credit and
			// hand back the winner's result.
			dbTx.Rollback(ctx) //nolint:errcheck
			return s.replayFromLedger(ctx, req.UserID, req.Action, req.IdempotencyKey)
		}
		return nil, apperror.InternalError(fmt.Errorf("record transaction: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	result := &domain.ActionResult{
		TransactionID:  txn.ID,
		Action:         req.Action,
		Amount:         amount,
		BalanceAfter:   updated.Current,
		NextEligibleAt: &next,
	}
	s.cacheResult(ctx, req.UserID, req.Action, txn.UniqueEventID, result)

	metrics.ActionsTotal.WithLabelValues(string(req.Action), "completed").Inc()
	metrics.ActionDuration.WithLabelValues(string(req.Action)).Observe(s.now().Sub(start).Seconds())

	s.log.Info().
		Str("user_id", req.UserID.String()).
		Str("action", string(req.Action)).
		Str("transaction_id", txn.ID.String()).
		Int64("amount_cents", int64(amount)).
		Msg("action completed")

	return result, nil
}

// LookupReplay checks the result cache, then the ledger, for a previously
// executed action under this key. Side-effect-free apart from cache
// backfill. The cache is consulted under the (user, action, key) scope so
// one user's key can never answer for another's.
func (s *ActionService) LookupReplay(ctx context.Context, userID uuid.UUID, action domain.ActionType, key string) (*domain.ActionResult, error) {
	if key == "" {
		return nil, nil
	}

	if data, err := s.results.Get(ctx, domain.ScopeKey(userID, action, key)); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("result cache read failed, falling through to ledger")
	} else if data != nil {
		result := &domain.ActionResult{}
		if err := json.Unmarshal(data, result); err == nil {
			result.Replayed = true
			metrics.ReplaysTotal.WithLabelValues(string(action)).Inc()
			return result, nil
		}
		s.log.Warn().Str("key", key).Msg("discarding undecodable cached result")
	}

	txn, err := s.txns.GetByEvent(ctx, userID, string(action), key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("replay lookup: %w", err))
	}
	if txn == nil {
		return nil, nil
	}

	result := &domain.ActionResult{
		TransactionID: txn.ID,
		Action:        action,
		Amount:        txn.Amount,
		BalanceAfter:  txn.BalanceAfter,
		Replayed:      true,
	}
	s.cacheResult(ctx, userID, action, key, result)
	metrics.ReplaysTotal.WithLabelValues(string(action)).Inc()
	return result, nil
}

// checkEligibility evaluates the gates in fixed order: deposit threshold,
// cooldown, reward cap. First violation wins.
func (s *ActionService) checkEligibility(action domain.ActionType, b *domain.AccountBalance, now time.Time) *apperror.AppError {
	if !s.policy.DepositThresholdMet(b) {
		return apperror.ErrDepositThresholdUnmet(s.policy.MinDeposit, b.DepositTotal)
	}
	if next := b.NextEligibleAt(action); !domain.CooldownElapsed(next, now) {
		return apperror.ErrCooldownActive(domain.CooldownRemaining(next, now))
	}
	if s.policy.RewardCapReached(b) {
		return apperror.ErrRewardCapReached(s.policy.RewardCap(b), b.TotalEarning)
	}
	return nil
}

func (s *ActionService) rewardAmount(action domain.ActionType, b *domain.AccountBalance) money.Cents {
	switch action {
	case domain.ActionMiningClick:
		return money.Cents(s.rewards.MiningRewardCents)
	case domain.ActionDailyProfit:
		return money.ApplyBasisPoints(b.Current, s.rewards.DailyProfitBps)
	default:
		return 0
	}
}

func (s *ActionService) cooldown(action domain.ActionType) time.Duration {
	switch action {
	case domain.ActionMiningClick:
		return s.rewards.MiningCooldown
	case domain.ActionDailyProfit:
		return s.rewards.DailyProfitCooldown
	default:
		return 0
	}
}

// replayFromLedger serves the winner's transaction after a duplicate-event
// loss. The row must exist: the constraint just fired on it.
func (s *ActionService) replayFromLedger(ctx context.Context, userID uuid.UUID, action domain.ActionType, key string) (*domain.ActionResult, error) {
	result, err := s.LookupReplay(ctx, userID, action, key)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, apperror.InternalError(fmt.Errorf("duplicate event for key %q but no ledger row", key))
	}
	return result, nil
}

func (s *ActionService) cacheResult(ctx context.Context, userID uuid.UUID, action domain.ActionType, key string, result *domain.ActionResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.results.Set(ctx, domain.ScopeKey(userID, action, key), data, s.rewards.StatusRetention); err != nil {
		s.log.Warn().Err(err).Str("key", key).Str("action", string(action)).Msg("result cache write failed")
	}
}

func transactionType(action domain.ActionType) domain.TransactionType {
	switch action {
	case domain.ActionMiningClick:
		return domain.TransactionTypeMiningReward
	case domain.ActionDailyProfit:
		return domain.TransactionTypeDailyProfit
	default:
		return domain.TransactionType(action)
	}
}
