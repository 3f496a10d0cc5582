// Package treasury provides an in-memory collateral source with standard
// fungible-asset semantics: balances, engine allowances, transfer and
// transferFrom. It is injected per deployment so the engine core stays
// testable without a live collateral backend.
package treasury

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

// Bank is an in-memory domain.CollateralSource. Allowances are granted to
// the engine as spender; Transfer moves funds the engine already custodies
// and checks only the balance.
type Bank struct {
	mu         sync.Mutex
	balances   map[string]int64
	allowances map[string]int64
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances:   make(map[string]int64),
		allowances: make(map[string]int64),
	}
}

// Mint credits freshly issued collateral to an account.
func (b *Bank) Mint(account string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("treasury: mint: non-positive amount %d: %w", amount, domain.ErrValidation)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[account] > math.MaxInt64-amount {
		return fmt.Errorf("treasury: mint %s: %w", account, domain.ErrArithmeticOverflow)
	}
	b.balances[account] += amount
	return nil
}

// Approve sets the engine's spending allowance for the owner account.
func (b *Bank) Approve(owner string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("treasury: approve: negative amount %d: %w", amount, domain.ErrValidation)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.allowances[owner] = amount
	return nil
}

// BalanceOf returns the account's collateral balance.
func (b *Bank) BalanceOf(_ context.Context, account string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.balances[account], nil
}

// Allowance returns the engine's remaining allowance for the owner.
func (b *Bank) Allowance(_ context.Context, owner string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.allowances[owner], nil
}

// TransferFrom moves collateral out of an externally owned account,
// spending the engine's allowance for that owner.
func (b *Bank) TransferFrom(_ context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("treasury: transfer from %s: non-positive amount %d: %w", from, amount, domain.ErrValidation)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.allowances[from] < amount {
		return fmt.Errorf("treasury: transfer from %s: need %d, allowance %d: %w", from, amount, b.allowances[from], domain.ErrInsufficientAllowance)
	}
	if err := b.move(from, to, amount); err != nil {
		return err
	}
	b.allowances[from] -= amount
	return nil
}

// Transfer moves collateral between engine-custodied accounts.
func (b *Bank) Transfer(_ context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("treasury: transfer from %s: non-positive amount %d: %w", from, amount, domain.ErrValidation)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.move(from, to, amount)
}

func (b *Bank) move(from, to string, amount int64) error {
	if b.balances[from] < amount {
		return fmt.Errorf("treasury: transfer from %s: need %d, have %d: %w", from, amount, b.balances[from], domain.ErrInsufficientBalance)
	}
	if b.balances[to] > math.MaxInt64-amount {
		return fmt.Errorf("treasury: transfer to %s: %w", to, domain.ErrArithmeticOverflow)
	}
	b.balances[from] -= amount
	b.balances[to] += amount
	return nil
}

// Compile-time interface check.
var _ domain.CollateralSource = (*Bank)(nil)
