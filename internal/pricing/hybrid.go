// Package pricing blends the raffle-implied probability from the position
// ledger with the market sentiment implied by a market's reserves into a
// single displayed probability, in basis points.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

const scaleBps int64 = 10000

// Default blend weights: the raffle side dominates the market side 70/30.
const (
	DefaultRaffleWeightBps    int64 = 7000
	DefaultSentimentWeightBps int64 = 3000
)

// HybridBps blends a raffle probability with a market sentiment, both in
// basis points, using the given weights (which must sum to 10000). The
// result is clamped to [0, 10000].
func HybridBps(raffleBps, sentimentBps, raffleWeightBps, sentimentWeightBps int64) int64 {
	return clampBps((raffleWeightBps*clampBps(raffleBps) + sentimentWeightBps*clampBps(sentimentBps)) / scaleBps)
}

// SentimentBps derives the YES probability implied by constant-product
// reserves. Buying YES drains the YES reserve and grows the NO reserve, so
// the YES probability is the NO share of the pool. Defined as 5000
// (neutral) when both reserves are zero, which cannot occur after seeding.
func SentimentBps(yesReserve, noReserve int64) int64 {
	if yesReserve <= 0 && noReserve <= 0 {
		return scaleBps / 2
	}
	return clampBps(noReserve * scaleBps / (yesReserve + noReserve))
}

func clampBps(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > scaleBps {
		return scaleBps
	}
	return v
}

// Oracle keeps the latest blended quote per condition. The in-memory map is
// authoritative; an optional HybridPriceCache is written through on every
// update so external readers see fresh quotes. Updates arrive from the
// factory (raffle side) and from trades (sentiment side).
type Oracle struct {
	mu                 sync.RWMutex
	raffleWeightBps    int64
	sentimentWeightBps int64
	cache              domain.HybridPriceCache
	quotes             map[string]domain.HybridQuote
	logger             *slog.Logger
}

// NewOracle creates an Oracle with the given weights, which must sum to
// 10000 bps. cache may be nil.
func NewOracle(raffleWeightBps, sentimentWeightBps int64, cache domain.HybridPriceCache, logger *slog.Logger) (*Oracle, error) {
	if raffleWeightBps < 0 || sentimentWeightBps < 0 || raffleWeightBps+sentimentWeightBps != scaleBps {
		return nil, fmt.Errorf("pricing: weights %d+%d must sum to %d: %w", raffleWeightBps, sentimentWeightBps, scaleBps, domain.ErrValidation)
	}
	return &Oracle{
		raffleWeightBps:    raffleWeightBps,
		sentimentWeightBps: sentimentWeightBps,
		cache:              cache,
		quotes:             make(map[string]domain.HybridQuote),
		logger:             logger.With(slog.String("component", "pricing_oracle")),
	}, nil
}

// UpdateRaffle records a new raffle probability for the condition and
// recomputes the blend against the last known sentiment.
func (o *Oracle) UpdateRaffle(ctx context.Context, conditionID string, raffleBps int64) domain.HybridQuote {
	o.mu.Lock()
	q := o.quotes[conditionID]
	q.RaffleBps = clampBps(raffleBps)
	q = o.recompute(q)
	o.quotes[conditionID] = q
	o.mu.Unlock()

	o.writeThrough(ctx, conditionID, q)
	return q
}

// UpdateSentiment records new reserves for the condition's market and
// recomputes the blend against the last known raffle probability.
func (o *Oracle) UpdateSentiment(ctx context.Context, conditionID string, yesReserve, noReserve int64) domain.HybridQuote {
	o.mu.Lock()
	q := o.quotes[conditionID]
	q.SentimentBps = SentimentBps(yesReserve, noReserve)
	q = o.recompute(q)
	o.quotes[conditionID] = q
	o.mu.Unlock()

	o.writeThrough(ctx, conditionID, q)
	return q
}

// Quote returns the latest blended quote for a condition.
func (o *Oracle) Quote(conditionID string) (domain.HybridQuote, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	q, ok := o.quotes[conditionID]
	if !ok {
		return domain.HybridQuote{}, fmt.Errorf("pricing: quote %s: %w", conditionID, domain.ErrNotFound)
	}
	return q, nil
}

func (o *Oracle) recompute(q domain.HybridQuote) domain.HybridQuote {
	q.HybridBps = HybridBps(q.RaffleBps, q.SentimentBps, o.raffleWeightBps, o.sentimentWeightBps)
	q.UpdatedAt = time.Now().UTC()
	return q
}

// writeThrough mirrors the quote into the external cache. Failures are
// logged, not surfaced: the cache is a convenience copy.
func (o *Oracle) writeThrough(ctx context.Context, conditionID string, q domain.HybridQuote) {
	if o.cache == nil {
		return
	}
	if err := o.cache.SetQuote(ctx, conditionID, q); err != nil {
		o.logger.WarnContext(ctx, "pricing: cache write failed",
			slog.String("condition_id", conditionID),
			slog.String("error", err.Error()),
		)
	}
}
