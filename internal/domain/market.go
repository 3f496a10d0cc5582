package domain

import "time"

// MarketState is a snapshot of one constant-product market bound to a
// condition. Reserves and fees are integers in the collateral's smallest
// unit.
type MarketState struct {
	ConditionID string
	Round       int64
	Participant string
	YesReserve  int64
	NoReserve   int64
	FeesAccrued int64
	FeeBps      int64
	Frozen      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OutcomeBalance is one holder's YES/NO token balances for a condition.
type OutcomeBalance struct {
	ConditionID string
	Holder      string
	Yes         int64
	No          int64
	UpdatedAt   time.Time
}

// HybridQuote is the blended probability for one condition, in basis
// points, together with its two inputs.
type HybridQuote struct {
	HybridBps    int64     `json:"hybrid_bps"`
	RaffleBps    int64     `json:"raffle_bps"`
	SentimentBps int64     `json:"sentiment_bps"`
	UpdatedAt    time.Time `json:"updated_at"`
}
