package tickets

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

func TestLedger_RecordDelta(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.OpenRound(1))

	change, err := l.RecordDelta(1, "alice", 400)
	require.NoError(t, err)
	assert.Equal(t, int64(0), change.OldTickets)
	assert.Equal(t, int64(400), change.NewTickets)
	assert.Equal(t, int64(400), change.TotalTickets)

	_, err = l.RecordDelta(1, "bob", 300)
	require.NoError(t, err)
	_, err = l.RecordDelta(1, "carol", 300)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), l.Total(1))
	assert.Equal(t, int64(4000), l.ProbabilityBps(1, "alice"))
	assert.Equal(t, int64(3000), l.ProbabilityBps(1, "bob"))
	assert.Equal(t, int64(3000), l.ProbabilityBps(1, "carol"))

	// Alice buys 100 more tickets: counts are absolute, not deltas.
	change, err = l.RecordDelta(1, "alice", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(400), change.OldTickets)
	assert.Equal(t, int64(1100), change.TotalTickets)
	assert.Equal(t, int64(4545), l.ProbabilityBps(1, "alice"))
	assert.Equal(t, int64(2727), l.ProbabilityBps(1, "bob"))
}

func TestLedger_ProbabilityPartition(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.OpenRound(7))

	counts := map[string]int64{"a": 17, "b": 23, "c": 5, "d": 955, "e": 1}
	for p, n := range counts {
		_, err := l.RecordDelta(7, p, n)
		require.NoError(t, err)
	}

	var sum int64
	for p := range counts {
		sum += l.ProbabilityBps(7, p)
	}
	assert.LessOrEqual(t, sum, int64(10000))
	assert.GreaterOrEqual(t, sum, int64(9996), "integer rounding loses at most one bps per participant")
}

func TestLedger_RejectsInactiveRound(t *testing.T) {
	l := NewLedger()

	_, err := l.RecordDelta(9, "alice", 10)
	assert.ErrorIs(t, err, domain.ErrRoundInactive)

	require.NoError(t, l.OpenRound(9))
	_, err = l.RecordDelta(9, "alice", 10)
	require.NoError(t, err)

	l.CloseRound(9)
	_, err = l.RecordDelta(9, "alice", 20)
	assert.ErrorIs(t, err, domain.ErrRoundInactive)

	// Reads survive the close.
	assert.Equal(t, int64(10000), l.ProbabilityBps(9, "alice"))
}

func TestLedger_RejectsNegativeAndOverflow(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.OpenRound(1))

	_, err := l.RecordDelta(1, "alice", -1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = l.RecordDelta(1, "alice", math.MaxInt64)
	require.NoError(t, err)
	_, err = l.RecordDelta(1, "bob", 1)
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)

	// The failed delta must not have been applied.
	assert.Equal(t, int64(0), l.Tickets(1, "bob"))
	assert.Equal(t, int64(math.MaxInt64), l.Total(1))
}

func TestLedger_ZeroTotalProbability(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.OpenRound(2))
	assert.Equal(t, int64(0), l.ProbabilityBps(2, "nobody"))
}
