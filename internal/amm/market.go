// Package amm implements the per-condition constant-product market maker.
// Each market holds YES/NO reserves backed by the outcome token ledger and
// executes buys and sells so that the reserve product never decreases net
// of fees.
package amm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
	"github.com/jackpotlabs/rafflemarket/internal/outcome"
)

// Market is one constant-product AMM bound 1:1 to a condition. Trades
// against the same market are serialized by its mutex; different markets
// trade fully in parallel.
type Market struct {
	mu          sync.Mutex
	conditionID string
	round       int64
	participant string
	account     string
	yesReserve  int64
	noReserve   int64
	feesAccrued int64
	feeBps      int64
	frozen      bool
	ledger      *outcome.Ledger
	collateral  domain.CollateralSource
	createdAt   time.Time
}

// Account returns the collateral/token account name for a market bound to
// the given condition.
func Account(conditionID string) string {
	return "market:" + conditionID
}

// New creates a market with the given starting reserves. Both reserves must
// be positive; the factory's liquidity seeding guarantees that.
func New(cond domain.Condition, yesReserve, noReserve, feeBps int64, ledger *outcome.Ledger, collateral domain.CollateralSource) (*Market, error) {
	if yesReserve <= 0 || noReserve <= 0 {
		return nil, fmt.Errorf("amm: new market %s: non-positive reserves %d/%d: %w", cond.ID, yesReserve, noReserve, domain.ErrValidation)
	}
	if feeBps < 0 || feeBps >= 10000 {
		return nil, fmt.Errorf("amm: new market %s: fee %d bps: %w", cond.ID, feeBps, domain.ErrValidation)
	}
	return &Market{
		conditionID: cond.ID,
		round:       cond.Round,
		participant: cond.Participant,
		account:     Account(cond.ID),
		yesReserve:  yesReserve,
		noReserve:   noReserve,
		feeBps:      feeBps,
		ledger:      ledger,
		collateral:  collateral,
		createdAt:   time.Now().UTC(),
	}, nil
}

// ConditionID returns the bound condition's identifier.
func (m *Market) ConditionID() string { return m.conditionID }

// Reserves returns the current YES and NO reserves.
func (m *Market) Reserves() (yes, no int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.yesReserve, m.noReserve
}

// Fees returns the collateral fees accrued so far.
func (m *Market) Fees() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feesAccrued
}

// Frozen reports whether the market has stopped accepting trades.
func (m *Market) Frozen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frozen
}

// Freeze permanently stops trading. Called when the bound condition
// resolves.
func (m *Market) Freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true
}

// State returns a snapshot for persistence and read accessors.
func (m *Market) State() domain.MarketState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.MarketState{
		ConditionID: m.conditionID,
		Round:       m.round,
		Participant: m.participant,
		YesReserve:  m.yesReserve,
		NoReserve:   m.noReserve,
		FeesAccrued: m.feesAccrued,
		FeeBps:      m.feeBps,
		Frozen:      m.frozen,
		CreatedAt:   m.createdAt,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Buy swaps amountIn collateral for outcome tokens of the requested side.
// The fee is taken from the collateral leg; the net amount is split into a
// YES/NO pair through the outcome ledger, feeding both reserves before the
// constant-product swap hands the requested side to the trader. The whole
// operation is rejected before any state change when amountOut would fall
// below minAmountOut.
func (m *Market) Buy(ctx context.Context, trader string, wantYes bool, amountIn, minAmountOut int64) (int64, error) {
	if amountIn <= 0 {
		return 0, fmt.Errorf("amm: buy %s: non-positive amount %d: %w", m.conditionID, amountIn, domain.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen || m.ledger.IsResolved(m.conditionID) {
		return 0, fmt.Errorf("amm: buy %s: %w", m.conditionID, domain.ErrMarketFrozen)
	}

	fee := amountIn * m.feeBps / 10000
	net := amountIn - fee
	if net <= 0 {
		return 0, fmt.Errorf("amm: buy %s: amount %d below fee: %w", m.conditionID, amountIn, domain.ErrValidation)
	}

	newYes, newNo, amountOut, err := buyQuote(m.yesReserve, m.noReserve, net, wantYes)
	if err != nil {
		return 0, fmt.Errorf("amm: buy %s: %w", m.conditionID, err)
	}
	if amountOut < minAmountOut {
		return 0, fmt.Errorf("amm: buy %s: out %d < min %d: %w", m.conditionID, amountOut, minAmountOut, domain.ErrSlippageExceeded)
	}
	if err := checkProduct(m.yesReserve, m.noReserve, newYes, newNo); err != nil {
		return 0, fmt.Errorf("amm: buy %s: %w", m.conditionID, err)
	}

	if err := m.collateral.TransferFrom(ctx, trader, m.account, amountIn); err != nil {
		return 0, fmt.Errorf("amm: buy %s: pull collateral: %w", m.conditionID, err)
	}
	if err := m.ledger.Split(ctx, m.conditionID, net, m.account); err != nil {
		// Undo the deposit so a failed buy leaves no partial state.
		_ = m.collateral.Transfer(ctx, m.account, trader, amountIn)
		return 0, fmt.Errorf("amm: buy %s: split: %w", m.conditionID, err)
	}

	slot := domain.OutcomeYes
	if !wantYes {
		slot = domain.OutcomeNo
	}
	if err := m.ledger.Transfer(m.conditionID, slot, m.account, trader, amountOut); err != nil {
		return 0, fmt.Errorf("amm: buy %s: deliver tokens: %w", m.conditionID, err)
	}

	m.yesReserve = newYes
	m.noReserve = newNo
	m.feesAccrued += fee
	return amountOut, nil
}

// Sell swaps amountIn outcome tokens of one side back into collateral. The
// constant-product rule determines how much collateral can be merged out;
// the fee is taken from that collateral leg before payout. Rejected before
// any state change when the payout would fall below minCollateralOut.
func (m *Market) Sell(ctx context.Context, trader string, sellYes bool, amountIn, minCollateralOut int64) (int64, error) {
	if amountIn <= 0 {
		return 0, fmt.Errorf("amm: sell %s: non-positive amount %d: %w", m.conditionID, amountIn, domain.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen || m.ledger.IsResolved(m.conditionID) {
		return 0, fmt.Errorf("amm: sell %s: %w", m.conditionID, domain.ErrMarketFrozen)
	}

	newYes, newNo, gross, err := sellQuote(m.yesReserve, m.noReserve, amountIn, sellYes)
	if err != nil {
		return 0, fmt.Errorf("amm: sell %s: %w", m.conditionID, err)
	}
	fee := gross * m.feeBps / 10000
	out := gross - fee
	if out < minCollateralOut {
		return 0, fmt.Errorf("amm: sell %s: out %d < min %d: %w", m.conditionID, out, minCollateralOut, domain.ErrSlippageExceeded)
	}
	// Validate the quoted reserves before touching the ledger, so a
	// rejected sell leaves no partial state.
	if err := checkProduct(m.yesReserve, m.noReserve, newYes, newNo); err != nil {
		return 0, fmt.Errorf("amm: sell %s: %w", m.conditionID, err)
	}

	slot := domain.OutcomeYes
	if !sellYes {
		slot = domain.OutcomeNo
	}
	if err := m.ledger.Transfer(m.conditionID, slot, trader, m.account, amountIn); err != nil {
		return 0, fmt.Errorf("amm: sell %s: take tokens: %w", m.conditionID, err)
	}
	if err := m.ledger.Merge(ctx, m.conditionID, gross, m.account, m.account); err != nil {
		// Return the trader's tokens so a failed sell leaves no partial state.
		_ = m.ledger.Transfer(m.conditionID, slot, m.account, trader, amountIn)
		return 0, fmt.Errorf("amm: sell %s: merge: %w", m.conditionID, err)
	}
	if err := m.collateral.Transfer(ctx, m.account, trader, out); err != nil {
		return 0, fmt.Errorf("amm: sell %s: pay collateral: %w", m.conditionID, err)
	}

	m.yesReserve = newYes
	m.noReserve = newNo
	m.feesAccrued += fee
	return out, nil
}

// buyQuote computes the post-trade reserves and token payout for a buy of
// net collateral. The split adds net to both reserves; the swap then drains
// the requested side down to the level that preserves the pre-trade
// product, rounding in the pool's favor.
func buyQuote(yes, no, net int64, wantYes bool) (newYes, newNo, amountOut int64, err error) {
	k := new(big.Int).Mul(big.NewInt(yes), big.NewInt(no))

	if wantYes {
		grownNo := new(big.Int).Add(big.NewInt(no), big.NewInt(net))
		keepYes := ceilDiv(k, grownNo)
		out := new(big.Int).Sub(new(big.Int).Add(big.NewInt(yes), big.NewInt(net)), keepYes)
		if !grownNo.IsInt64() || !keepYes.IsInt64() || !out.IsInt64() {
			return 0, 0, 0, domain.ErrArithmeticOverflow
		}
		if out.Sign() <= 0 {
			return 0, 0, 0, fmt.Errorf("dust trade: %w", domain.ErrValidation)
		}
		return keepYes.Int64(), grownNo.Int64(), out.Int64(), nil
	}

	grownYes := new(big.Int).Add(big.NewInt(yes), big.NewInt(net))
	keepNo := ceilDiv(k, grownYes)
	out := new(big.Int).Sub(new(big.Int).Add(big.NewInt(no), big.NewInt(net)), keepNo)
	if !grownYes.IsInt64() || !keepNo.IsInt64() || !out.IsInt64() {
		return 0, 0, 0, domain.ErrArithmeticOverflow
	}
	if out.Sign() <= 0 {
		return 0, 0, 0, fmt.Errorf("dust trade: %w", domain.ErrValidation)
	}
	return grownYes.Int64(), keepNo.Int64(), out.Int64(), nil
}

// sellQuote computes the post-trade reserves and gross collateral for a
// sale of amountIn tokens. The collateral amount c is the root of
// (sold + amountIn - c)(other - c) = sold*other, rounded down so the
// product never decreases.
func sellQuote(yes, no, amountIn int64, sellYes bool) (newYes, newNo, gross int64, err error) {
	sold, other := yes, no
	if !sellYes {
		sold, other = no, yes
	}

	a := big.NewInt(amountIn)
	s := new(big.Int).Add(big.NewInt(sold), big.NewInt(other))
	s.Add(s, a)

	disc := new(big.Int).Mul(s, s)
	disc.Sub(disc, new(big.Int).Mul(big.NewInt(4), new(big.Int).Mul(a, big.NewInt(other))))
	root := new(big.Int).Sqrt(disc)
	// Sqrt floors. The collateral leg must round down, so the root it is
	// subtracted from has to round up.
	if new(big.Int).Mul(root, root).Cmp(disc) < 0 {
		root.Add(root, big.NewInt(1))
	}

	c := new(big.Int).Sub(s, root)
	c.Rsh(c, 1)
	if !c.IsInt64() {
		return 0, 0, 0, domain.ErrArithmeticOverflow
	}
	gross = c.Int64()
	if gross <= 0 {
		return 0, 0, 0, fmt.Errorf("dust trade: %w", domain.ErrValidation)
	}
	if gross >= other {
		return 0, 0, 0, fmt.Errorf("trade would drain reserve: %w", domain.ErrInvariantViolation)
	}

	if sellYes {
		return yes + amountIn - gross, no - gross, gross, nil
	}
	return yes - gross, no + amountIn - gross, gross, nil
}

// checkProduct enforces the AMM invariant: the reserve product must not
// decrease across a trade.
func checkProduct(oldYes, oldNo, newYes, newNo int64) error {
	oldK := new(big.Int).Mul(big.NewInt(oldYes), big.NewInt(oldNo))
	newK := new(big.Int).Mul(big.NewInt(newYes), big.NewInt(newNo))
	if newK.Cmp(oldK) < 0 {
		return fmt.Errorf("reserve product decreased %s -> %s: %w", oldK, newK, domain.ErrInvariantViolation)
	}
	return nil
}

func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
