package pricing

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

func TestHybridBps(t *testing.T) {
	// 70/30 blend of 4545 raffle and 5000 sentiment.
	got := HybridBps(4545, 5000, 7000, 3000)
	assert.Equal(t, int64(4681), got)

	// Pure raffle and pure sentiment weights.
	assert.Equal(t, int64(4545), HybridBps(4545, 5000, 10000, 0))
	assert.Equal(t, int64(5000), HybridBps(4545, 5000, 0, 10000))
}

func TestHybridBps_Clamps(t *testing.T) {
	assert.Equal(t, int64(10000), HybridBps(20000, 20000, 7000, 3000))
	assert.Equal(t, int64(0), HybridBps(-5, -5, 7000, 3000))
}

func TestSentimentBps(t *testing.T) {
	// Balanced reserves imply a coin flip.
	assert.Equal(t, int64(5000), SentimentBps(50, 50))

	// A drained YES reserve means YES is likely: the NO share dominates.
	assert.Equal(t, int64(7500), SentimentBps(25, 75))
	assert.Equal(t, int64(2500), SentimentBps(75, 25))

	// Degenerate empty pool is neutral by definition.
	assert.Equal(t, int64(5000), SentimentBps(0, 0))
}

func TestOracle_BlendsBothInputs(t *testing.T) {
	ctx := context.Background()
	o, err := NewOracle(DefaultRaffleWeightBps, DefaultSentimentWeightBps, nil, slog.Default())
	require.NoError(t, err)

	o.UpdateRaffle(ctx, "c1", 4545)
	q := o.UpdateSentiment(ctx, "c1", 42, 60)

	// sentiment = 60*10000/102 = 5882; hybrid = (7000*4545 + 3000*5882)/10000.
	assert.Equal(t, int64(5882), q.SentimentBps)
	assert.Equal(t, int64(4946), q.HybridBps)

	got, err := o.Quote("c1")
	require.NoError(t, err)
	assert.Equal(t, q.HybridBps, got.HybridBps)
}

func TestOracle_UnknownCondition(t *testing.T) {
	o, err := NewOracle(7000, 3000, nil, slog.Default())
	require.NoError(t, err)

	_, err = o.Quote("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNewOracle_RejectsBadWeights(t *testing.T) {
	_, err := NewOracle(8000, 3000, nil, slog.Default())
	assert.ErrorIs(t, err, domain.ErrValidation)
}
