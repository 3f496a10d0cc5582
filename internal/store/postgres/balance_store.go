package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

// BalanceStore implements domain.BalanceStore using PostgreSQL.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a BalanceStore backed by the given pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Upsert inserts or updates one holder's balances for a condition.
func (s *BalanceStore) Upsert(ctx context.Context, b domain.OutcomeBalance) error {
	const query = `
		INSERT INTO outcome_balances (condition_id, holder, yes_balance, no_balance, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (condition_id, holder) DO UPDATE SET
			yes_balance = EXCLUDED.yes_balance,
			no_balance  = EXCLUDED.no_balance,
			updated_at  = NOW()`

	_, err := s.pool.Exec(ctx, query, b.ConditionID, b.Holder, b.Yes, b.No)
	if err != nil {
		return fmt.Errorf("postgres: upsert balance %s/%s: %w", b.ConditionID, b.Holder, err)
	}
	return nil
}

// Get retrieves one holder's balances for a condition.
func (s *BalanceStore) Get(ctx context.Context, conditionID, holder string) (domain.OutcomeBalance, error) {
	const query = `
		SELECT condition_id, holder, yes_balance, no_balance, updated_at
		FROM outcome_balances WHERE condition_id = $1 AND holder = $2`

	var b domain.OutcomeBalance
	err := s.pool.QueryRow(ctx, query, conditionID, holder).Scan(
		&b.ConditionID, &b.Holder, &b.Yes, &b.No, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OutcomeBalance{}, domain.ErrNotFound
		}
		return domain.OutcomeBalance{}, fmt.Errorf("postgres: get balance %s/%s: %w", conditionID, holder, err)
	}
	return b, nil
}

// ListByCondition returns every holder's balances for a condition.
func (s *BalanceStore) ListByCondition(ctx context.Context, conditionID string) ([]domain.OutcomeBalance, error) {
	const query = `
		SELECT condition_id, holder, yes_balance, no_balance, updated_at
		FROM outcome_balances WHERE condition_id = $1 ORDER BY holder`

	rows, err := s.pool.Query(ctx, query, conditionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances %s: %w", conditionID, err)
	}
	defer rows.Close()

	var out []domain.OutcomeBalance
	for rows.Next() {
		var b domain.OutcomeBalance
		if err := rows.Scan(&b.ConditionID, &b.Holder, &b.Yes, &b.No, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list balances rows: %w", err)
	}
	return out, nil
}
