package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

// RoundStore implements domain.RoundStore using PostgreSQL.
type RoundStore struct {
	pool *pgxpool.Pool
}

// NewRoundStore creates a RoundStore backed by the given connection pool.
func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

// Upsert inserts or updates a round row.
func (s *RoundStore) Upsert(ctx context.Context, r domain.Round) error {
	const query = `
		INSERT INTO rounds (id, total_tickets, active, completed, winner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			total_tickets = EXCLUDED.total_tickets,
			active        = EXCLUDED.active,
			updated_at    = NOW()`

	_, err := s.pool.Exec(ctx, query, r.ID, r.TotalTickets, r.Active, r.Completed, r.Winner)
	if err != nil {
		return fmt.Errorf("postgres: upsert round %d: %w", r.ID, err)
	}
	return nil
}

// GetByID retrieves a round by its identifier.
func (s *RoundStore) GetByID(ctx context.Context, id int64) (domain.Round, error) {
	const query = `
		SELECT id, total_tickets, active, completed, winner, created_at, updated_at
		FROM rounds WHERE id = $1`

	var r domain.Round
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.TotalTickets, &r.Active, &r.Completed, &r.Winner, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("postgres: get round %d: %w", id, err)
	}
	return r, nil
}

// MarkCompleted records the round's winner and closes it.
func (s *RoundStore) MarkCompleted(ctx context.Context, id int64, winner string) error {
	const query = `
		UPDATE rounds
		SET active = FALSE, completed = TRUE, winner = $2, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, winner)
	if err != nil {
		return fmt.Errorf("postgres: mark round %d completed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark round %d completed: %w", id, domain.ErrNotFound)
	}
	return nil
}

// List returns rounds ordered newest first.
func (s *RoundStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Round, error) {
	query := `
		SELECT id, total_tickets, active, completed, winner, created_at, updated_at
		FROM rounds ORDER BY id DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rounds: %w", err)
	}
	defer rows.Close()

	var out []domain.Round
	for rows.Next() {
		var r domain.Round
		if err := rows.Scan(&r.ID, &r.TotalTickets, &r.Active, &r.Completed, &r.Winner, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan round: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list rounds rows: %w", err)
	}
	return out, nil
}
