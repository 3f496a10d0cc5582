package factory

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
	"github.com/jackpotlabs/rafflemarket/internal/outcome"
	"github.com/jackpotlabs/rafflemarket/internal/pricing"
	"github.com/jackpotlabs/rafflemarket/internal/tickets"
	"github.com/jackpotlabs/rafflemarket/internal/treasury"
)

type fixture struct {
	bank      *treasury.Bank
	positions *tickets.Ledger
	outcomes  *outcome.Ledger
	oracle    *pricing.Oracle
	factory   *Factory
}

func newFixture(t *testing.T, treasuryBalance, treasuryAllowance int64) *fixture {
	t.Helper()

	bank := treasury.NewBank()
	require.NoError(t, bank.Mint("treasury", treasuryBalance))
	require.NoError(t, bank.Approve("treasury", treasuryAllowance))

	positions := tickets.NewLedger()
	require.NoError(t, positions.OpenRound(1))

	outcomes := outcome.NewLedger(bank)
	oracle, err := pricing.NewOracle(7000, 3000, nil, slog.Default())
	require.NoError(t, err)

	f, err := New(Config{
		ThresholdBps:     100,
		InitialLiquidity: 100,
		FeeBps:           0,
		TreasuryAccount:  "treasury",
	}, positions, outcomes, bank, oracle, slog.Default())
	require.NoError(t, err)

	return &fixture{bank: bank, positions: positions, outcomes: outcomes, oracle: oracle, factory: f}
}

func TestFactory_CreatesMarketOnCrossing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10000, 10000)

	res := f.factory.OnPositionUpdate(ctx, domain.PositionChange{
		Round: 1, Participant: "alice", OldTickets: 0, NewTickets: 50, TotalTickets: 1000,
	})

	assert.Equal(t, int64(0), res.OldBps)
	assert.Equal(t, int64(500), res.NewBps)
	assert.True(t, res.Attempted)
	assert.True(t, res.Created)
	assert.Equal(t, domain.StatusMarketCreated, res.Status)
	require.NotEmpty(t, res.ConditionID)

	m, err := f.factory.Market(1, "alice")
	require.NoError(t, err)
	yes, no := m.Reserves()
	assert.Equal(t, int64(50), yes)
	assert.Equal(t, int64(50), no)

	// The treasury holds the other half of the minted pairs.
	hYes, hNo := f.outcomes.Balance(res.ConditionID, "treasury")
	assert.Equal(t, int64(50), hYes)
	assert.Equal(t, int64(50), hNo)

	bal, err := f.bank.BalanceOf(ctx, "treasury")
	require.NoError(t, err)
	assert.Equal(t, int64(9900), bal)

	escrow, err := f.bank.BalanceOf(ctx, outcome.EscrowAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(100), escrow)

	// 70/30 blend of 500 raffle and 5000 sentiment.
	q, err := f.oracle.Quote(res.ConditionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1850), q.HybridBps)
}

func TestFactory_BelowThresholdDoesNothing(t *testing.T) {
	f := newFixture(t, 10000, 10000)

	res := f.factory.OnPositionUpdate(context.Background(), domain.PositionChange{
		Round: 1, Participant: "bob", OldTickets: 0, NewTickets: 5, TotalTickets: 1000,
	})

	assert.Equal(t, int64(50), res.NewBps)
	assert.False(t, res.Attempted)
	assert.Equal(t, domain.StatusNotCreated, res.Status)
	assert.Equal(t, domain.StatusNotCreated, f.factory.Status(1, "bob"))
}

func TestFactory_AlreadyAboveThresholdDoesNotCreate(t *testing.T) {
	f := newFixture(t, 10000, 10000)

	// Old probability is reconstructed against the old total, so a pair
	// that was already past the threshold never re-triggers creation.
	res := f.factory.OnPositionUpdate(context.Background(), domain.PositionChange{
		Round: 1, Participant: "dave", OldTickets: 500, NewTickets: 600, TotalTickets: 1000,
	})

	assert.Equal(t, int64(5555), res.OldBps)
	assert.Equal(t, int64(6000), res.NewBps)
	assert.False(t, res.Attempted)
}

func TestFactory_CreatedPairRefreshesRaffleLeg(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10000, 10000)

	res := f.factory.OnPositionUpdate(ctx, domain.PositionChange{
		Round: 1, Participant: "alice", OldTickets: 0, NewTickets: 50, TotalTickets: 1000,
	})
	require.True(t, res.Created)

	res2 := f.factory.OnPositionUpdate(ctx, domain.PositionChange{
		Round: 1, Participant: "alice", OldTickets: 50, NewTickets: 60, TotalTickets: 1010,
	})
	assert.False(t, res2.Attempted)
	assert.Equal(t, domain.StatusMarketCreated, res2.Status)

	q, err := f.oracle.Quote(res.ConditionID)
	require.NoError(t, err)
	assert.Equal(t, int64(594), q.RaffleBps)
}

func TestFactory_FailedPairRefreshesRaffleLeg(t *testing.T) {
	ctx := context.Background()
	// Allowance too small to fund a market.
	f := newFixture(t, 10000, 10)

	res := f.factory.OnPositionUpdate(ctx, domain.PositionChange{
		Round: 1, Participant: "alice", OldTickets: 0, NewTickets: 500, TotalTickets: 500,
	})
	require.Equal(t, domain.StatusFailed, res.Status)
	require.NotEmpty(t, res.ConditionID)

	// The condition stays bound across the failure, so later stake changes
	// still refresh its raffle leg while the pair awaits a retry.
	res2 := f.factory.OnPositionUpdate(ctx, domain.PositionChange{
		Round: 1, Participant: "alice", OldTickets: 500, NewTickets: 600, TotalTickets: 1200,
	})
	assert.False(t, res2.Attempted)
	assert.Equal(t, domain.StatusFailed, res2.Status)

	q, err := f.oracle.Quote(res.ConditionID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), q.RaffleBps)
}

func TestFactory_FailureStoredAndRetried(t *testing.T) {
	ctx := context.Background()
	// Allowance too small to fund a market.
	f := newFixture(t, 10000, 10)

	res := f.factory.OnPositionUpdate(ctx, domain.PositionChange{
		Round: 1, Participant: "alice", OldTickets: 0, NewTickets: 500, TotalTickets: 500,
	})

	assert.True(t, res.Attempted)
	assert.False(t, res.Created)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Contains(t, res.Reason, "fund market")
	assert.Contains(t, f.factory.FailureReason(1, "alice"), "fund market")

	// Nothing moved.
	bal, err := f.bank.BalanceOf(ctx, "treasury")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), bal)

	// A later crossing does not re-attempt a failed pair.
	res = f.factory.OnPositionUpdate(ctx, domain.PositionChange{
		Round: 1, Participant: "alice", OldTickets: 0, NewTickets: 500, TotalTickets: 500,
	})
	assert.False(t, res.Attempted)
	assert.Equal(t, domain.StatusFailed, res.Status)

	// Operator tops up the allowance and retries.
	require.NoError(t, f.bank.Approve("treasury", 1000))
	_, err = f.positions.RecordDelta(1, "alice", 500)
	require.NoError(t, err)

	retry, err := f.factory.RetryCreation(ctx, 1, "alice")
	require.NoError(t, err)
	assert.True(t, retry.Created)
	assert.Equal(t, domain.StatusMarketCreated, retry.Status)
	assert.Empty(t, retry.Reason)

	// Retrying a healthy pair is a precondition failure.
	_, err = f.factory.RetryCreation(ctx, 1, "alice")
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
}

func TestFactory_ResolveIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10000, 10000)

	res := f.factory.OnPositionUpdate(ctx, domain.PositionChange{
		Round: 1, Participant: "alice", OldTickets: 0, NewTickets: 50, TotalTickets: 1000,
	})
	require.True(t, res.Created)

	require.NoError(t, f.factory.ResolveCondition(ctx, 1, "alice", true))
	assert.Equal(t, domain.StatusResolved, f.factory.Status(1, "alice"))

	m, err := f.factory.Market(1, "alice")
	require.NoError(t, err)
	assert.True(t, m.Frozen())

	cond, err := f.outcomes.Condition(res.ConditionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutYes, cond.Payout)

	// Re-running the same resolution is a no-op.
	require.NoError(t, f.factory.ResolveCondition(ctx, 1, "alice", true))

	err = f.factory.ResolveCondition(ctx, 1, "nobody", false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	deps := newFixture(t, 1, 0)

	for _, cfg := range []Config{
		{ThresholdBps: 0, InitialLiquidity: 100, TreasuryAccount: "treasury"},
		{ThresholdBps: 100, InitialLiquidity: 101, TreasuryAccount: "treasury"},
		{ThresholdBps: 100, InitialLiquidity: 100, FeeBps: 10000, TreasuryAccount: "treasury"},
		{ThresholdBps: 100, InitialLiquidity: 100},
	} {
		_, err := New(cfg, deps.positions, deps.outcomes, deps.bank, deps.oracle, slog.Default())
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}
