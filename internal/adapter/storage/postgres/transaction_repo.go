package postgres

import (
	"context"
	"errors"
	"fmt"

	"reward-engine/internal/core/domain"
	"reward-engine/internal/core/ports"
	"reward-engine/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const txColumns = `id, user_id, type, amount_cents, status, source,
		balance_before_cents, balance_after_cents, unique_event_id, idempotency_key, created_at`

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// TransactionRepo implements ports.TransactionRepository. The unique index
// on (user_id, source, unique_event_id) is the durable at-most-once
// guarantee: a same-key race loses here, not at the balance.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create appends a ledger fact inside a database transaction. A unique
// constraint hit surfaces as ports.ErrDuplicateEvent so the caller can
// re-query for the winner's row.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, user_id, type, amount_cents, status, source,
		balance_before_cents, balance_after_cents, unique_event_id, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.UserID, t.Type, int64(t.Amount), t.Status, t.Source,
		int64(t.BalanceBefore), int64(t.BalanceAfter), t.UniqueEventID, t.IdempotencyKey, t.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ports.ErrDuplicateEvent
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByEvent fetches the transaction recorded for a logical action, used by
// the idempotency replay path.
func (r *TransactionRepo) GetByEvent(ctx context.Context, userID uuid.UUID, source string, uniqueEventID string) (*domain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions
		WHERE user_id = $1 AND source = $2 AND unique_event_id = $3`

	t := &domain.Transaction{}
	var amount, before, after int64
	err := r.pool.QueryRow(ctx, query, userID, source, uniqueEventID).Scan(
		&t.ID, &t.UserID, &t.Type, &amount, &t.Status, &t.Source,
		&before, &after, &t.UniqueEventID, &t.IdempotencyKey, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction by event: %w", err)
	}
	t.Amount = money.Cents(amount)
	t.BalanceBefore = money.Cents(before)
	t.BalanceAfter = money.Cents(after)
	return t, nil
}
