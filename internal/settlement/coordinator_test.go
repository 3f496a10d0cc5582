package settlement

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
	"github.com/jackpotlabs/rafflemarket/internal/factory"
	"github.com/jackpotlabs/rafflemarket/internal/outcome"
	"github.com/jackpotlabs/rafflemarket/internal/pricing"
	"github.com/jackpotlabs/rafflemarket/internal/tickets"
	"github.com/jackpotlabs/rafflemarket/internal/treasury"
)

type fixture struct {
	bank      *treasury.Bank
	positions *tickets.Ledger
	outcomes  *outcome.Ledger
	markets   *factory.Factory
	coord     *Coordinator
}

// newFixture opens round 1 with three participants, each past the creation
// threshold, so three seeded markets exist.
func newFixture(t *testing.T, batchSize int) *fixture {
	t.Helper()
	ctx := context.Background()

	bank := treasury.NewBank()
	require.NoError(t, bank.Mint("treasury", 10000))
	require.NoError(t, bank.Approve("treasury", 10000))

	positions := tickets.NewLedger()
	require.NoError(t, positions.OpenRound(1))

	outcomes := outcome.NewLedger(bank)
	oracle, err := pricing.NewOracle(7000, 3000, nil, slog.Default())
	require.NoError(t, err)

	markets, err := factory.New(factory.Config{
		ThresholdBps:     100,
		InitialLiquidity: 100,
		FeeBps:           0,
		TreasuryAccount:  "treasury",
	}, positions, outcomes, bank, oracle, slog.Default())
	require.NoError(t, err)

	for _, p := range []string{"alice", "bob", "carol"} {
		change, err := positions.RecordDelta(1, p, 100)
		require.NoError(t, err)
		res := markets.OnPositionUpdate(ctx, change)
		require.True(t, res.Created, "market for %s", p)
	}

	coord := New(positions, outcomes, markets, bank, "treasury", batchSize, slog.Default())
	return &fixture{bank: bank, positions: positions, outcomes: outcomes, markets: markets, coord: coord}
}

func TestCoordinator_SettlesInCappedBatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	report, err := f.coord.SettleRound(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Remaining)
	assert.True(t, report.Partial)
	assert.Empty(t, report.Failures)

	report, err = f.coord.SettleRound(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Zero(t, report.Remaining)
	assert.False(t, report.Partial)

	for _, p := range []string{"alice", "bob", "carol"} {
		assert.Equal(t, domain.StatusResolved, f.markets.Status(1, p))
		m, err := f.markets.Market(1, p)
		require.NoError(t, err)
		assert.True(t, m.Frozen())
	}

	// A fully settled round reports nothing left to do.
	report, err = f.coord.SettleRound(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Zero(t, report.Remaining)
	assert.False(t, report.Partial)
}

func TestCoordinator_SweepReturnsHouseValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultBatchSize)

	report, err := f.coord.SettleRound(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)

	// No external trades happened, so every unit of seeded liquidity comes
	// home and the escrow is empty.
	bal, err := f.bank.BalanceOf(ctx, "treasury")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), bal)

	escrow, err := f.bank.BalanceOf(ctx, outcome.EscrowAccount)
	require.NoError(t, err)
	assert.Zero(t, escrow)
}

func TestCoordinator_TraderValueSurvivesSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultBatchSize)

	// dave buys YES on the eventual winner before the round completes.
	require.NoError(t, f.bank.Mint("dave", 10))
	require.NoError(t, f.bank.Approve("dave", 10))
	m, err := f.markets.Market(1, "alice")
	require.NoError(t, err)
	out, err := m.Buy(ctx, "dave", true, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(18), out)

	_, err = f.coord.SettleRound(ctx, 1, "alice")
	require.NoError(t, err)

	// Settlement sweeps only house-side value; dave's winning tokens are
	// still redeemable at face value.
	cond, err := f.outcomes.ConditionByPair(1, "alice")
	require.NoError(t, err)
	paid, err := f.outcomes.Redeem(ctx, cond.ID, "dave")
	require.NoError(t, err)
	assert.Equal(t, int64(18), paid)

	treasuryBal, err := f.bank.BalanceOf(ctx, "treasury")
	require.NoError(t, err)
	daveBal, err := f.bank.BalanceOf(ctx, "dave")
	require.NoError(t, err)
	escrow, err := f.bank.BalanceOf(ctx, outcome.EscrowAccount)
	require.NoError(t, err)

	// 10010 total minted collateral is fully accounted for.
	assert.Equal(t, int64(18), daveBal)
	assert.Equal(t, int64(9992), treasuryBal)
	assert.Zero(t, escrow)
}

func TestCoordinator_ClosesTicketRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultBatchSize)

	_, err := f.coord.SettleRound(ctx, 1, "alice")
	require.NoError(t, err)

	_, err = f.positions.RecordDelta(1, "alice", 500)
	assert.ErrorIs(t, err, domain.ErrRoundInactive)
}

func TestCoordinator_RejectsEmptyWinner(t *testing.T) {
	f := newFixture(t, DefaultBatchSize)

	_, err := f.coord.SettleRound(context.Background(), 1, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
