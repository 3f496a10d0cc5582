package treasury

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

func TestBank_TransferFromSpendsAllowance(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Mint("treasury", 1000))
	require.NoError(t, b.Approve("treasury", 300))

	require.NoError(t, b.TransferFrom(ctx, "treasury", "market", 200))

	bal, err := b.BalanceOf(ctx, "market")
	require.NoError(t, err)
	assert.Equal(t, int64(200), bal)

	allow, err := b.Allowance(ctx, "treasury")
	require.NoError(t, err)
	assert.Equal(t, int64(100), allow)

	err = b.TransferFrom(ctx, "treasury", "market", 200)
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)
}

func TestBank_TransferChecksBalanceOnly(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Mint("market", 50))

	require.NoError(t, b.Transfer(ctx, "market", "trader", 30))

	err := b.Transfer(ctx, "market", "trader", 30)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	err = b.Transfer(ctx, "market", "trader", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
