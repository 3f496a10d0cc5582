package domain

import "context"

// CollateralSource is the single fungible collateral asset the engine
// settles in. Amounts are integers in the asset's smallest unit.
//
// TransferFrom spends the allowance the owning account has granted to the
// engine and is used whenever funds leave an externally owned account
// (treasury pulls, trader deposits). Transfer moves funds between accounts
// the engine already custodies (market accounts, the outcome ledger escrow)
// and checks only the balance.
type CollateralSource interface {
	BalanceOf(ctx context.Context, account string) (int64, error)
	Allowance(ctx context.Context, owner string) (int64, error)
	TransferFrom(ctx context.Context, from, to string, amount int64) error
	Transfer(ctx context.Context, from, to string, amount int64) error
}
