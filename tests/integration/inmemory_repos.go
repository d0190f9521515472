// Package integration exercises the action engine end to end against
// in-memory implementations of the storage ports. The fakes honor the same
// guard semantics as the SQL layer: conditional mutations re-check their
// invariant under the store lock and report zero-match instead of applying.
package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reward-engine/internal/core/domain"
	"reward-engine/internal/core/ports"
	"reward-engine/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type memStore struct {
	mu       sync.Mutex
	balances map[uuid.UUID]*domain.AccountBalance
	txns     []*domain.Transaction
	events   map[string]*domain.Transaction // userID|source|eventID
}

func newMemStore() *memStore {
	return &memStore{
		balances: make(map[uuid.UUID]*domain.AccountBalance),
		events:   make(map[string]*domain.Transaction),
	}
}

func (s *memStore) seedBalance(b *domain.AccountBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[b.UserID] = b
}

func (s *memStore) transactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txns)
}

func eventKey(userID uuid.UUID, source, eventID string) string {
	return fmt.Sprintf("%s|%s|%s", userID, source, eventID)
}

func cloneBalance(b *domain.AccountBalance) *domain.AccountBalance {
	c := *b
	return &c
}

// fakeTx satisfies pgx.Tx; the fakes apply mutations immediately, so
// commit and rollback are no-ops.
type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type memTransactor struct{}

func (memTransactor) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

// --- BalanceRepository ---

type memBalanceRepo struct{ s *memStore }

func (r *memBalanceRepo) GetOrCreate(_ context.Context, userID uuid.UUID) (*domain.AccountBalance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.balances[userID]
	if !ok {
		now := time.Now().UTC()
		b = &domain.AccountBalance{UserID: userID, CreatedAt: now, UpdatedAt: now}
		r.s.balances[userID] = b
	}
	return cloneBalance(b), nil
}

func (r *memBalanceRepo) Get(_ context.Context, userID uuid.UUID) (*domain.AccountBalance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.balances[userID]
	if !ok {
		return nil, nil
	}
	return cloneBalance(b), nil
}

func (r *memBalanceRepo) GetTx(ctx context.Context, _ pgx.Tx, userID uuid.UUID) (*domain.AccountBalance, error) {
	return r.Get(ctx, userID)
}

func (r *memBalanceRepo) ClaimCooldown(_ context.Context, _ pgx.Tx, userID uuid.UUID, action domain.ActionType, now, next time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.balances[userID]
	if !ok {
		return false, nil
	}
	marker := b.NextEligibleAt(action)
	if marker != nil && marker.After(now) {
		return false, nil
	}
	switch action {
	case domain.ActionMiningClick:
		b.MiningNextEligibleAt = &next
	case domain.ActionDailyProfit:
		b.DailyProfitNextEligibleAt = &next
	default:
		return false, fmt.Errorf("unknown action type %q", action)
	}
	b.UpdatedAt = now
	return true, nil
}

func (r *memBalanceRepo) CreditReward(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount money.Cents) (*domain.AccountBalance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.balances[userID]
	if !ok {
		return nil, fmt.Errorf("balance not found: %s", userID)
	}
	b.Current += amount
	b.TotalEarning += amount
	b.UpdatedAt = time.Now().UTC()
	return cloneBalance(b), nil
}

func (r *memBalanceRepo) ReservePendingWithdraw(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount, observedPending money.Cents) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.balances[userID]
	if !ok {
		return false, nil
	}
	if b.PendingWithdraw != observedPending ||
		b.Current < amount ||
		b.TotalEarning-b.PendingWithdraw < amount {
		return false, nil
	}
	b.PendingWithdraw += amount
	b.PendingWithdrawCount++
	b.UpdatedAt = time.Now().UTC()
	return true, nil
}

// --- TransactionRepository ---

type memTxRepo struct{ s *memStore }

func (r *memTxRepo) Create(_ context.Context, _ pgx.Tx, t *domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := eventKey(t.UserID, t.Source, t.UniqueEventID)
	if _, exists := r.s.events[key]; exists {
		return ports.ErrDuplicateEvent
	}
	cp := *t
	r.s.events[key] = &cp
	r.s.txns = append(r.s.txns, &cp)
	return nil
}

func (r *memTxRepo) GetByEvent(_ context.Context, userID uuid.UUID, source, eventID string) (*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.events[eventKey(userID, source, eventID)]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// --- ResultCache ---

type memResultCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemResultCache() *memResultCache {
	return &memResultCache{data: make(map[string][]byte)}
}

func (c *memResultCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *memResultCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

// --- StatusStore ---

type memStatusStore struct {
	mu   sync.Mutex
	recs map[string]*domain.StatusRecord
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{recs: make(map[string]*domain.StatusRecord)}
}

func (s *memStatusStore) Put(_ context.Context, rec *domain.StatusRecord, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scoped := domain.ScopeKey(rec.UserID, rec.Action, rec.Key)
	if cur, ok := s.recs[scoped]; ok && cur.Status.Rank() >= rec.Status.Rank() {
		return false, nil
	}
	cp := *rec
	s.recs[scoped] = &cp
	return true, nil
}

func (s *memStatusStore) Get(_ context.Context, userID uuid.UUID, action domain.ActionType, key string) (*domain.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[domain.ScopeKey(userID, action, key)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}
