package domain

import "time"

// OutcomeSlot identifies one side of a binary condition.
type OutcomeSlot uint8

const (
	OutcomeYes OutcomeSlot = 0
	OutcomeNo  OutcomeSlot = 1
)

// PayoutVector assigns the resolution payout per collateral unit to each
// outcome slot. For a binary winner-takes-all condition it is [1,0] or [0,1].
type PayoutVector [2]int64

// PayoutYes and PayoutNo are the only payout vectors a binary condition
// can resolve to.
var (
	PayoutYes = PayoutVector{1, 0}
	PayoutNo  = PayoutVector{0, 1}
)

// Condition is one binary question: "does Participant win Round?".
type Condition struct {
	ID          string
	Round       int64
	Participant string
	Resolved    bool
	Payout      PayoutVector
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// CreationStatus is the market factory state for one (round, participant)
// pair.
type CreationStatus string

const (
	StatusNotCreated        CreationStatus = "not_created"
	StatusConditionPrepared CreationStatus = "condition_prepared"
	StatusLiquiditySeeded   CreationStatus = "liquidity_seeded"
	StatusMarketCreated     CreationStatus = "market_created"
	StatusResolved          CreationStatus = "resolved"
	StatusFailed            CreationStatus = "failed"
)

// MarketCreation is the persisted factory state for one (round, participant)
// pair. Reason holds the stored failure reason when Status is failed;
// ConditionID is empty until a condition has been prepared.
type MarketCreation struct {
	Round       int64
	Participant string
	Status      CreationStatus
	Reason      string
	ConditionID string
	UpdatedAt   time.Time
}
