package amm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
	"github.com/jackpotlabs/rafflemarket/internal/outcome"
	"github.com/jackpotlabs/rafflemarket/internal/treasury"
)

type fixture struct {
	bank   *treasury.Bank
	ledger *outcome.Ledger
	market *Market
	cond   domain.Condition
}

// newFixture seeds a market with equal reserves per side, the way the
// factory does it.
func newFixture(t *testing.T, perSide, feeBps int64) *fixture {
	t.Helper()
	ctx := context.Background()

	bank := treasury.NewBank()
	ledger := outcome.NewLedger(bank)

	cond, err := ledger.PrepareCondition(1, "alice")
	require.NoError(t, err)

	acct := Account(cond.ID)
	require.NoError(t, bank.Mint(acct, perSide))
	require.NoError(t, ledger.Split(ctx, cond.ID, perSide, acct))

	m, err := New(cond, perSide, perSide, feeBps, ledger, bank)
	require.NoError(t, err)
	return &fixture{bank: bank, ledger: ledger, market: m, cond: cond}
}

func (f *fixture) fundTrader(t *testing.T, trader string, amount int64) {
	t.Helper()
	require.NoError(t, f.bank.Mint(trader, amount))
	require.NoError(t, f.bank.Approve(trader, amount))
}

func TestMarket_BuyYes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50, 0)
	f.fundTrader(t, "bob", 10)

	out, err := f.market.Buy(ctx, "bob", true, 10, 0)
	require.NoError(t, err)

	// 50/50 pool, net 10: keep = ceil(2500/60) = 42, out = 50+10-42 = 18.
	assert.Equal(t, int64(18), out)

	yes, no := f.market.Reserves()
	assert.Equal(t, int64(42), yes)
	assert.Equal(t, int64(60), no)

	gotYes, gotNo := f.ledger.Balance(f.cond.ID, "bob")
	assert.Equal(t, int64(18), gotYes)
	assert.Zero(t, gotNo)
}

func TestMarket_FeeAccrual(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5000, 200)
	f.fundTrader(t, "bob", 1000)

	out, err := f.market.Buy(ctx, "bob", true, 1000, 0)
	require.NoError(t, err)

	// fee = 2% of 1000 = 20, net = 980.
	assert.Equal(t, int64(20), f.market.Fees())
	assert.Equal(t, int64(1799), out)
}

func TestMarket_ProductNeverDecreases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5000, 200)
	f.fundTrader(t, "bob", 100000)

	product := func() int64 {
		yes, no := f.market.Reserves()
		return yes * no
	}

	before := product()
	for _, trade := range []struct {
		buy      bool
		yes      bool
		amountIn int64
	}{
		{buy: true, yes: true, amountIn: 700},
		{buy: true, yes: false, amountIn: 1300},
		{buy: true, yes: true, amountIn: 55},
		{buy: false, yes: true, amountIn: 400},
		{buy: false, yes: false, amountIn: 900},
	} {
		var err error
		if trade.buy {
			_, err = f.market.Buy(ctx, "bob", trade.yes, trade.amountIn, 0)
		} else {
			_, err = f.market.Sell(ctx, "bob", trade.yes, trade.amountIn, 0)
		}
		require.NoError(t, err)

		after := product()
		assert.GreaterOrEqual(t, after, before, "product must not decrease")
		before = after
	}
}

func TestMarket_SellRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5000, 0)
	f.fundTrader(t, "bob", 1000)

	out, err := f.market.Buy(ctx, "bob", true, 1000, 0)
	require.NoError(t, err)

	got, err := f.market.Sell(ctx, "bob", true, out, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, got, int64(1000), "round trip can never profit")

	yes, no := f.ledger.Balance(f.cond.ID, "bob")
	assert.Zero(t, yes)
	assert.Zero(t, no)
}

func TestMarket_SellAfterBuy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50, 0)
	f.fundTrader(t, "bob", 10)

	out, err := f.market.Buy(ctx, "bob", true, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(18), out)

	// 42/60 pool: (52-c)(60-c) >= 2520 holds up to c = 5.
	got, err := f.market.Sell(ctx, "bob", true, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)

	yes, no := f.market.Reserves()
	assert.Equal(t, int64(47), yes)
	assert.Equal(t, int64(55), no)
	assert.GreaterOrEqual(t, yes*no, int64(2520))

	bal, err := f.bank.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(5), bal)

	gotYes, _ := f.ledger.Balance(f.cond.ID, "bob")
	assert.Equal(t, int64(8), gotYes)
}

func TestMarket_RejectedSellMovesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50, 0)
	f.fundTrader(t, "bob", 10)

	_, err := f.market.Buy(ctx, "bob", true, 10, 0)
	require.NoError(t, err)

	_, err = f.market.Sell(ctx, "bob", true, 10, 100)
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)

	// The trader keeps every token and the pool is untouched.
	gotYes, _ := f.ledger.Balance(f.cond.ID, "bob")
	assert.Equal(t, int64(18), gotYes)

	bal, err := f.bank.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, bal)

	yes, no := f.market.Reserves()
	assert.Equal(t, int64(42), yes)
	assert.Equal(t, int64(60), no)
}

func TestMarket_SlippageGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50, 0)
	f.fundTrader(t, "bob", 10)

	_, err := f.market.Buy(ctx, "bob", true, 10, 19)
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)

	// Nothing moved: trader still has the collateral, reserves untouched.
	bal, err := f.bank.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal)

	yes, no := f.market.Reserves()
	assert.Equal(t, int64(50), yes)
	assert.Equal(t, int64(50), no)
}

func TestMarket_RejectsZeroAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50, 0)

	_, err := f.market.Buy(ctx, "bob", true, 0, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.market.Sell(ctx, "bob", true, 0, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMarket_FrozenRejectsTrades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50, 0)
	f.fundTrader(t, "bob", 10)

	f.market.Freeze()

	_, err := f.market.Buy(ctx, "bob", true, 10, 0)
	assert.ErrorIs(t, err, domain.ErrMarketFrozen)
}

func TestMarket_ResolvedConditionRejectsTrades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50, 0)
	f.fundTrader(t, "bob", 10)

	require.NoError(t, f.ledger.ReportPayout(f.cond.ID, domain.PayoutYes))

	_, err := f.market.Buy(ctx, "bob", true, 10, 0)
	assert.ErrorIs(t, err, domain.ErrMarketFrozen)
}

func TestNew_RejectsEmptyReserves(t *testing.T) {
	bank := treasury.NewBank()
	ledger := outcome.NewLedger(bank)
	cond, err := ledger.PrepareCondition(1, "alice")
	require.NoError(t, err)

	_, err = New(cond, 0, 50, 0, ledger, bank)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
