package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

// ConditionStore implements domain.ConditionStore using PostgreSQL. One row
// tracks the factory state of a (round, participant) pair plus, once
// prepared, its condition.
type ConditionStore struct {
	pool *pgxpool.Pool
}

// NewConditionStore creates a ConditionStore backed by the given pool.
func NewConditionStore(pool *pgxpool.Pool) *ConditionStore {
	return &ConditionStore{pool: pool}
}

// Upsert inserts or updates the pair's factory state.
func (s *ConditionStore) Upsert(ctx context.Context, mc domain.MarketCreation) error {
	const query = `
		INSERT INTO conditions (round, participant, status, reason, condition_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (round, participant) DO UPDATE SET
			status       = EXCLUDED.status,
			reason       = EXCLUDED.reason,
			condition_id = EXCLUDED.condition_id,
			updated_at   = NOW()`

	_, err := s.pool.Exec(ctx, query, mc.Round, mc.Participant, string(mc.Status), mc.Reason, mc.ConditionID)
	if err != nil {
		return fmt.Errorf("postgres: upsert condition round=%d participant=%s: %w", mc.Round, mc.Participant, err)
	}
	return nil
}

const conditionCols = `round, participant, status, reason, condition_id, updated_at`

func scanCreation(row pgx.Row) (domain.MarketCreation, error) {
	var mc domain.MarketCreation
	var status string
	if err := row.Scan(&mc.Round, &mc.Participant, &status, &mc.Reason, &mc.ConditionID, &mc.UpdatedAt); err != nil {
		return domain.MarketCreation{}, err
	}
	mc.Status = domain.CreationStatus(status)
	return mc, nil
}

// GetByPair retrieves the pair's factory state.
func (s *ConditionStore) GetByPair(ctx context.Context, round int64, participant string) (domain.MarketCreation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conditionCols+` FROM conditions WHERE round = $1 AND participant = $2`,
		round, participant)
	mc, err := scanCreation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketCreation{}, domain.ErrNotFound
		}
		return domain.MarketCreation{}, fmt.Errorf("postgres: get condition round=%d participant=%s: %w", round, participant, err)
	}
	return mc, nil
}

// GetByConditionID retrieves the factory state bound to a condition ID.
func (s *ConditionStore) GetByConditionID(ctx context.Context, conditionID string) (domain.MarketCreation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conditionCols+` FROM conditions WHERE condition_id = $1`, conditionID)
	mc, err := scanCreation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketCreation{}, domain.ErrNotFound
		}
		return domain.MarketCreation{}, fmt.Errorf("postgres: get condition %s: %w", conditionID, err)
	}
	return mc, nil
}

// ListByRound returns every tracked pair of a round.
func (s *ConditionStore) ListByRound(ctx context.Context, round int64) ([]domain.MarketCreation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conditionCols+` FROM conditions WHERE round = $1 ORDER BY participant`, round)
	if err != nil {
		return nil, fmt.Errorf("postgres: list conditions round=%d: %w", round, err)
	}
	defer rows.Close()

	var out []domain.MarketCreation
	for rows.Next() {
		var mc domain.MarketCreation
		var status string
		if err := rows.Scan(&mc.Round, &mc.Participant, &status, &mc.Reason, &mc.ConditionID, &mc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan condition: %w", err)
		}
		mc.Status = domain.CreationStatus(status)
		out = append(out, mc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list conditions rows: %w", err)
	}
	return out, nil
}

// MarkResolved stores the payout vector and flips the row to resolved.
func (s *ConditionStore) MarkResolved(ctx context.Context, conditionID string, payout domain.PayoutVector) error {
	const query = `
		UPDATE conditions
		SET status = $2, payout_yes = $3, payout_no = $4, resolved_at = NOW(), updated_at = NOW()
		WHERE condition_id = $1`

	tag, err := s.pool.Exec(ctx, query, conditionID, string(domain.StatusResolved), payout[0], payout[1])
	if err != nil {
		return fmt.Errorf("postgres: mark condition %s resolved: %w", conditionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark condition %s resolved: %w", conditionID, domain.ErrNotFound)
	}
	return nil
}
