package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert inserts or updates a market snapshot.
func (s *MarketStore) Upsert(ctx context.Context, m domain.MarketState) error {
	const query = `
		INSERT INTO markets (
			condition_id, round, participant, yes_reserve, no_reserve,
			fees_accrued, fee_bps, frozen, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (condition_id) DO UPDATE SET
			yes_reserve  = EXCLUDED.yes_reserve,
			no_reserve   = EXCLUDED.no_reserve,
			fees_accrued = EXCLUDED.fees_accrued,
			frozen       = EXCLUDED.frozen,
			updated_at   = NOW()`

	_, err := s.pool.Exec(ctx, query,
		m.ConditionID, m.Round, m.Participant, m.YesReserve, m.NoReserve,
		m.FeesAccrued, m.FeeBps, m.Frozen, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ConditionID, err)
	}
	return nil
}

const marketCols = `condition_id, round, participant, yes_reserve, no_reserve,
	fees_accrued, fee_bps, frozen, created_at, updated_at`

func scanMarket(row pgx.Row) (domain.MarketState, error) {
	var m domain.MarketState
	err := row.Scan(
		&m.ConditionID, &m.Round, &m.Participant, &m.YesReserve, &m.NoReserve,
		&m.FeesAccrued, &m.FeeBps, &m.Frozen, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

// GetByConditionID retrieves a market snapshot by its condition.
func (s *MarketStore) GetByConditionID(ctx context.Context, conditionID string) (domain.MarketState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE condition_id = $1`, conditionID)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketState{}, domain.ErrNotFound
		}
		return domain.MarketState{}, fmt.Errorf("postgres: get market %s: %w", conditionID, err)
	}
	return m, nil
}

// ListByRound returns every market snapshot of a round.
func (s *MarketStore) ListByRound(ctx context.Context, round int64) ([]domain.MarketState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE round = $1 ORDER BY participant`, round)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets round=%d: %w", round, err)
	}
	defer rows.Close()

	var out []domain.MarketState
	for rows.Next() {
		var m domain.MarketState
		if err := rows.Scan(
			&m.ConditionID, &m.Round, &m.Participant, &m.YesReserve, &m.NoReserve,
			&m.FeesAccrued, &m.FeeBps, &m.Frozen, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return out, nil
}
