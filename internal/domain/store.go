package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// RoundStore persists round lifecycle records.
type RoundStore interface {
	Upsert(ctx context.Context, round Round) error
	GetByID(ctx context.Context, id int64) (Round, error)
	MarkCompleted(ctx context.Context, id int64, winner string) error
	List(ctx context.Context, opts ListOpts) ([]Round, error)
}

// ConditionStore persists one record per (round, participant) pair: the
// factory state machine plus, once prepared, the bound condition.
type ConditionStore interface {
	Upsert(ctx context.Context, c MarketCreation) error
	GetByPair(ctx context.Context, round int64, participant string) (MarketCreation, error)
	GetByConditionID(ctx context.Context, conditionID string) (MarketCreation, error)
	ListByRound(ctx context.Context, round int64) ([]MarketCreation, error)
	MarkResolved(ctx context.Context, conditionID string, payout PayoutVector) error
}

// MarketStore persists market snapshots keyed by condition ID.
type MarketStore interface {
	Upsert(ctx context.Context, m MarketState) error
	GetByConditionID(ctx context.Context, conditionID string) (MarketState, error)
	ListByRound(ctx context.Context, round int64) ([]MarketState, error)
}

// BalanceStore persists one record per (condition, holder) outcome balance
// pair.
type BalanceStore interface {
	Upsert(ctx context.Context, b OutcomeBalance) error
	Get(ctx context.Context, conditionID, holder string) (OutcomeBalance, error)
	ListByCondition(ctx context.Context, conditionID string) ([]OutcomeBalance, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
