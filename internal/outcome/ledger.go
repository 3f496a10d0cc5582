// Package outcome implements the outcome token ledger: a balance sheet of
// paired YES/NO tokens backed 1:1 by locked collateral. Splitting locks
// collateral and mints one token of each side per unit; merging burns a
// pair and unlocks the unit; after resolution, redemption burns a holder's
// balances against the stored payout vector.
package outcome

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

// EscrowAccount is the collateral account backing all locked splits.
const EscrowAccount = "outcome:escrow"

// ConditionID derives the deterministic identifier for the binary condition
// "does participant win round". The digest covers the pair plus the outcome
// slot count, following the conditional-tokens convention.
func ConditionID(round int64, participant string) string {
	digest := crypto.Keccak256([]byte(fmt.Sprintf("%d:%s:2", round, participant)))
	return "0x" + hex.EncodeToString(digest)
}

type pairKey struct {
	round       int64
	participant string
}

type condition struct {
	meta   domain.Condition
	yes    map[string]int64
	no     map[string]int64
	yesOut int64
	noOut  int64
	locked int64
}

// Ledger is the outcome token ledger. One instance serves every condition
// of a deployment; all methods are safe for concurrent use.
type Ledger struct {
	mu         sync.RWMutex
	collateral domain.CollateralSource
	conditions map[string]*condition
	byPair     map[pairKey]string
}

// NewLedger creates an outcome token ledger backed by the given collateral
// source. Locked collateral is held in EscrowAccount.
func NewLedger(collateral domain.CollateralSource) *Ledger {
	return &Ledger{
		collateral: collateral,
		conditions: make(map[string]*condition),
		byPair:     make(map[pairKey]string),
	}
}

// PrepareCondition registers the (round, participant) pair and returns the
// new condition. It returns domain.ErrAlreadyExists when the pair has
// already been prepared.
func (l *Ledger) PrepareCondition(round int64, participant string) (domain.Condition, error) {
	if participant == "" {
		return domain.Condition{}, fmt.Errorf("outcome: prepare condition: empty participant: %w", domain.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := pairKey{round: round, participant: participant}
	if _, ok := l.byPair[key]; ok {
		return domain.Condition{}, fmt.Errorf("outcome: prepare condition round=%d participant=%s: %w", round, participant, domain.ErrAlreadyExists)
	}

	id := ConditionID(round, participant)
	c := &condition{
		meta: domain.Condition{
			ID:          id,
			Round:       round,
			Participant: participant,
			CreatedAt:   time.Now().UTC(),
		},
		yes: make(map[string]int64),
		no:  make(map[string]int64),
	}
	l.conditions[id] = c
	l.byPair[key] = id
	return c.meta, nil
}

// Condition returns the condition with the given ID.
func (l *Ledger) Condition(conditionID string) (domain.Condition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return domain.Condition{}, fmt.Errorf("outcome: condition %s: %w", conditionID, domain.ErrNotFound)
	}
	return c.meta, nil
}

// ConditionByPair returns the condition prepared for (round, participant).
func (l *Ledger) ConditionByPair(round int64, participant string) (domain.Condition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	id, ok := l.byPair[pairKey{round: round, participant: participant}]
	if !ok {
		return domain.Condition{}, fmt.Errorf("outcome: condition round=%d participant=%s: %w", round, participant, domain.ErrNotFound)
	}
	return l.conditions[id].meta, nil
}

// HasCondition reports whether the pair has a prepared condition.
func (l *Ledger) HasCondition(round int64, participant string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.byPair[pairKey{round: round, participant: participant}]
	return ok
}

// Split locks amount collateral from the given engine-custodied account and
// credits it with amount YES and amount NO tokens. Every split is exactly
// collateral-neutral with its eventual merge or redemption.
func (l *Ledger) Split(ctx context.Context, conditionID string, amount int64, from string) error {
	if amount <= 0 {
		return fmt.Errorf("outcome: split %s: non-positive amount %d: %w", conditionID, amount, domain.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return fmt.Errorf("outcome: split %s: %w", conditionID, domain.ErrNotFound)
	}
	if c.meta.Resolved {
		return fmt.Errorf("outcome: split %s: %w", conditionID, domain.ErrConditionResolved)
	}

	if err := l.collateral.Transfer(ctx, from, EscrowAccount, amount); err != nil {
		return fmt.Errorf("outcome: split %s: lock collateral: %w", conditionID, err)
	}

	c.yes[from] += amount
	c.no[from] += amount
	c.yesOut += amount
	c.noOut += amount
	c.locked += amount
	return l.checkConservation(c)
}

// Merge burns amount YES and amount NO from the caller and unlocks amount
// collateral to the recipient account. It fails with
// domain.ErrInsufficientBalance when either side's balance is short.
func (l *Ledger) Merge(ctx context.Context, conditionID string, amount int64, holder, to string) error {
	if amount <= 0 {
		return fmt.Errorf("outcome: merge %s: non-positive amount %d: %w", conditionID, amount, domain.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return fmt.Errorf("outcome: merge %s: %w", conditionID, domain.ErrNotFound)
	}
	if c.meta.Resolved {
		return fmt.Errorf("outcome: merge %s: %w", conditionID, domain.ErrConditionResolved)
	}
	if c.yes[holder] < amount || c.no[holder] < amount {
		return fmt.Errorf("outcome: merge %s holder=%s amount=%d: %w", conditionID, holder, amount, domain.ErrInsufficientBalance)
	}

	if err := l.collateral.Transfer(ctx, EscrowAccount, to, amount); err != nil {
		return fmt.Errorf("outcome: merge %s: unlock collateral: %w", conditionID, err)
	}

	c.yes[holder] -= amount
	c.no[holder] -= amount
	c.yesOut -= amount
	c.noOut -= amount
	c.locked -= amount
	return l.checkConservation(c)
}

// Transfer moves outcome tokens of one slot between holders without
// touching collateral.
func (l *Ledger) Transfer(conditionID string, slot domain.OutcomeSlot, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("outcome: transfer %s: non-positive amount %d: %w", conditionID, amount, domain.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return fmt.Errorf("outcome: transfer %s: %w", conditionID, domain.ErrNotFound)
	}

	balances := c.yes
	if slot == domain.OutcomeNo {
		balances = c.no
	}
	if balances[from] < amount {
		return fmt.Errorf("outcome: transfer %s slot=%d from=%s amount=%d: %w", conditionID, slot, from, amount, domain.ErrInsufficientBalance)
	}
	balances[from] -= amount
	balances[to] += amount
	return nil
}

// Balance returns the holder's YES and NO balances for a condition.
func (l *Ledger) Balance(conditionID, holder string) (yes, no int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return 0, 0
	}
	return c.yes[holder], c.no[holder]
}

// Outstanding returns total minted YES, total minted NO, and locked
// collateral for a condition.
func (l *Ledger) Outstanding(conditionID string) (yes, no, locked int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return 0, 0, 0
	}
	return c.yesOut, c.noOut, c.locked
}

// IsResolved reports whether the condition has a payout vector.
func (l *Ledger) IsResolved(conditionID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.conditions[conditionID]
	return ok && c.meta.Resolved
}

// ReportPayout stores the payout vector for a condition, once. A second
// report returns domain.ErrConditionResolved; callers running batch
// resolution treat that as a safe no-op.
func (l *Ledger) ReportPayout(conditionID string, payout domain.PayoutVector) error {
	if payout != domain.PayoutYes && payout != domain.PayoutNo {
		return fmt.Errorf("outcome: report payout %s: vector %v: %w", conditionID, payout, domain.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return fmt.Errorf("outcome: report payout %s: %w", conditionID, domain.ErrNotFound)
	}
	if c.meta.Resolved {
		return fmt.Errorf("outcome: report payout %s: %w", conditionID, domain.ErrConditionResolved)
	}

	now := time.Now().UTC()
	c.meta.Resolved = true
	c.meta.Payout = payout
	c.meta.ResolvedAt = &now
	return nil
}

// Redeem burns the holder's full YES and NO balances of a resolved
// condition and releases collateral according to the payout vector. It is
// idempotent: a second redemption pays zero and returns no error.
func (l *Ledger) Redeem(ctx context.Context, conditionID, holder string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.conditions[conditionID]
	if !ok {
		return 0, fmt.Errorf("outcome: redeem %s: %w", conditionID, domain.ErrNotFound)
	}
	if !c.meta.Resolved {
		return 0, fmt.Errorf("outcome: redeem %s: %w", conditionID, domain.ErrConditionUnresolved)
	}

	yes := c.yes[holder]
	no := c.no[holder]
	payout := yes*c.meta.Payout[0] + no*c.meta.Payout[1]
	if yes == 0 && no == 0 {
		return 0, nil
	}
	if payout > c.locked {
		return 0, fmt.Errorf("outcome: redeem %s: payout %d exceeds locked %d: %w", conditionID, payout, c.locked, domain.ErrInvariantViolation)
	}

	if payout > 0 {
		if err := l.collateral.Transfer(ctx, EscrowAccount, holder, payout); err != nil {
			return 0, fmt.Errorf("outcome: redeem %s: release collateral: %w", conditionID, err)
		}
	}

	delete(c.yes, holder)
	delete(c.no, holder)
	c.yesOut -= yes
	c.noOut -= no
	c.locked -= payout
	return payout, nil
}

// checkConservation verifies the pre-resolution invariant
// yesOutstanding == noOutstanding == lockedCollateral. A violation means a
// ledger bug, not a recoverable user error.
func (l *Ledger) checkConservation(c *condition) error {
	if c.meta.Resolved {
		return nil
	}
	if c.yesOut != c.noOut || c.yesOut != c.locked {
		return fmt.Errorf("outcome: condition %s: yes=%d no=%d locked=%d: %w",
			c.meta.ID, c.yesOut, c.noOut, c.locked, domain.ErrInvariantViolation)
	}
	return nil
}
