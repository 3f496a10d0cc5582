package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

// QuoteCache implements domain.HybridPriceCache using Redis hashes. Each
// condition's quote lives at "hybrid:{conditionID}" with the blended value,
// both inputs, and a Unix nanosecond timestamp.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(conditionID string) string {
	return "hybrid:" + conditionID
}

// SetQuote stores the latest blended quote for a condition.
func (qc *QuoteCache) SetQuote(ctx context.Context, conditionID string, q domain.HybridQuote) error {
	fields := map[string]interface{}{
		"hybrid_bps":    strconv.FormatInt(q.HybridBps, 10),
		"raffle_bps":    strconv.FormatInt(q.RaffleBps, 10),
		"sentiment_bps": strconv.FormatInt(q.SentimentBps, 10),
		"ts":            strconv.FormatInt(q.UpdatedAt.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, quoteKey(conditionID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", conditionID, err)
	}
	return nil
}

// GetQuote retrieves the latest blended quote for a condition. It returns
// domain.ErrNotFound when no quote has been cached.
func (qc *QuoteCache) GetQuote(ctx context.Context, conditionID string) (domain.HybridQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(conditionID)).Result()
	if err != nil {
		return domain.HybridQuote{}, fmt.Errorf("redis: get quote %s: %w", conditionID, err)
	}
	if len(vals) == 0 {
		return domain.HybridQuote{}, domain.ErrNotFound
	}

	var q domain.HybridQuote
	for field, dst := range map[string]*int64{
		"hybrid_bps":    &q.HybridBps,
		"raffle_bps":    &q.RaffleBps,
		"sentiment_bps": &q.SentimentBps,
	} {
		raw, ok := vals[field]
		if !ok {
			return domain.HybridQuote{}, domain.ErrNotFound
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.HybridQuote{}, fmt.Errorf("redis: parse quote %s field %s: %w", conditionID, field, err)
		}
		*dst = v
	}

	if raw, ok := vals["ts"]; ok {
		tsNano, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.HybridQuote{}, fmt.Errorf("redis: parse quote %s ts: %w", conditionID, err)
		}
		q.UpdatedAt = time.Unix(0, tsNano).UTC()
	}
	return q, nil
}

// Compile-time interface check.
var _ domain.HybridPriceCache = (*QuoteCache)(nil)
