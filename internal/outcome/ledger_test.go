package outcome

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
	"github.com/jackpotlabs/rafflemarket/internal/treasury"
)

func newFundedLedger(t *testing.T, accounts map[string]int64) (*Ledger, *treasury.Bank) {
	t.Helper()
	bank := treasury.NewBank()
	for acct, bal := range accounts {
		require.NoError(t, bank.Mint(acct, bal))
	}
	return NewLedger(bank), bank
}

func TestConditionID_Deterministic(t *testing.T) {
	a := ConditionID(1, "alice")
	b := ConditionID(1, "alice")
	c := ConditionID(2, "alice")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 66, "0x plus 32-byte keccak digest")
}

func TestLedger_PrepareConditionOnce(t *testing.T) {
	l, _ := newFundedLedger(t, nil)

	cond, err := l.PrepareCondition(1, "alice")
	require.NoError(t, err)
	assert.Equal(t, ConditionID(1, "alice"), cond.ID)
	assert.False(t, cond.Resolved)

	_, err = l.PrepareCondition(1, "alice")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	got, err := l.ConditionByPair(1, "alice")
	require.NoError(t, err)
	assert.Equal(t, cond.ID, got.ID)
}

func TestLedger_SplitMergeConservation(t *testing.T) {
	ctx := context.Background()
	l, bank := newFundedLedger(t, map[string]int64{"market": 500})

	cond, err := l.PrepareCondition(1, "alice")
	require.NoError(t, err)

	require.NoError(t, l.Split(ctx, cond.ID, 200, "market"))

	yes, no := l.Balance(cond.ID, "market")
	assert.Equal(t, int64(200), yes)
	assert.Equal(t, int64(200), no)

	yesOut, noOut, locked := l.Outstanding(cond.ID)
	assert.Equal(t, yesOut, noOut)
	assert.Equal(t, yesOut, locked)
	assert.Equal(t, int64(200), locked)

	escrow, err := bank.BalanceOf(ctx, EscrowAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(200), escrow)

	// Merge is exactly collateral-neutral with the split.
	require.NoError(t, l.Merge(ctx, cond.ID, 200, "market", "market"))

	yesOut, noOut, locked = l.Outstanding(cond.ID)
	assert.Zero(t, yesOut)
	assert.Zero(t, noOut)
	assert.Zero(t, locked)

	bal, err := bank.BalanceOf(ctx, "market")
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal)
}

func TestLedger_MergeRequiresBothSides(t *testing.T) {
	ctx := context.Background()
	l, _ := newFundedLedger(t, map[string]int64{"market": 100})

	cond, err := l.PrepareCondition(1, "alice")
	require.NoError(t, err)
	require.NoError(t, l.Split(ctx, cond.ID, 100, "market"))

	// Move some YES away so the market is short one side.
	require.NoError(t, l.Transfer(cond.ID, domain.OutcomeYes, "market", "trader", 60))

	err = l.Merge(ctx, cond.ID, 50, "market", "market")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestLedger_ReportPayoutOnce(t *testing.T) {
	l, _ := newFundedLedger(t, nil)
	cond, err := l.PrepareCondition(1, "alice")
	require.NoError(t, err)

	err = l.ReportPayout(cond.ID, domain.PayoutVector{1, 1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, l.ReportPayout(cond.ID, domain.PayoutYes))
	assert.True(t, l.IsResolved(cond.ID))

	err = l.ReportPayout(cond.ID, domain.PayoutNo)
	assert.ErrorIs(t, err, domain.ErrConditionResolved)

	// The stored vector is immutable.
	got, err := l.Condition(cond.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutYes, got.Payout)
}

func TestLedger_RedeemWinnerAndLoser(t *testing.T) {
	ctx := context.Background()
	l, bank := newFundedLedger(t, map[string]int64{"market": 100})

	cond, err := l.PrepareCondition(1, "alice")
	require.NoError(t, err)
	require.NoError(t, l.Split(ctx, cond.ID, 100, "market"))
	require.NoError(t, l.Transfer(cond.ID, domain.OutcomeYes, "market", "winner", 40))
	require.NoError(t, l.Transfer(cond.ID, domain.OutcomeNo, "market", "loser", 40))

	_, err = l.Redeem(ctx, cond.ID, "winner")
	assert.ErrorIs(t, err, domain.ErrConditionUnresolved)

	require.NoError(t, l.ReportPayout(cond.ID, domain.PayoutYes))

	paid, err := l.Redeem(ctx, cond.ID, "winner")
	require.NoError(t, err)
	assert.Equal(t, int64(40), paid)

	paid, err = l.Redeem(ctx, cond.ID, "loser")
	require.NoError(t, err)
	assert.Zero(t, paid, "NO tokens on a YES-resolved condition redeem to nothing")

	// Redeeming twice is a no-op, not an error.
	paid, err = l.Redeem(ctx, cond.ID, "winner")
	require.NoError(t, err)
	assert.Zero(t, paid)

	bal, err := bank.BalanceOf(ctx, "winner")
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal)

	// The market still holds 60 YES + 60 NO; they redeem for 60.
	paid, err = l.Redeem(ctx, cond.ID, "market")
	require.NoError(t, err)
	assert.Equal(t, int64(60), paid)

	escrow, err := bank.BalanceOf(ctx, EscrowAccount)
	require.NoError(t, err)
	assert.Zero(t, escrow, "all locked collateral released after full redemption")
}

func TestLedger_SplitRejectedAfterResolution(t *testing.T) {
	ctx := context.Background()
	l, _ := newFundedLedger(t, map[string]int64{"market": 100})

	cond, err := l.PrepareCondition(1, "alice")
	require.NoError(t, err)
	require.NoError(t, l.ReportPayout(cond.ID, domain.PayoutNo))

	err = l.Split(ctx, cond.ID, 10, "market")
	assert.ErrorIs(t, err, domain.ErrConditionResolved)
}
