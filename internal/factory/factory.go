// Package factory drives the market lifecycle for every (round, participant)
// pair: it watches position changes, creates a condition plus a seeded
// constant-product market when a pair's win probability first crosses the
// creation threshold, and resolves the pair when the round completes.
package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackpotlabs/rafflemarket/internal/amm"
	"github.com/jackpotlabs/rafflemarket/internal/domain"
	"github.com/jackpotlabs/rafflemarket/internal/outcome"
	"github.com/jackpotlabs/rafflemarket/internal/pricing"
	"github.com/jackpotlabs/rafflemarket/internal/tickets"
)

// Config holds the factory's creation parameters.
type Config struct {
	// ThresholdBps is the win probability, in basis points, at which a
	// pair gets its own market.
	ThresholdBps int64
	// InitialLiquidity is the collateral pulled from the treasury per
	// created market. Half backs each reserve, so it must be even.
	InitialLiquidity int64
	// FeeBps is the trading fee of every created market.
	FeeBps int64
	// TreasuryAccount funds market creation and holds the house's half of
	// each seeded token pair.
	TreasuryAccount string
}

func (c Config) validate() error {
	if c.ThresholdBps <= 0 || c.ThresholdBps > 10000 {
		return fmt.Errorf("factory: threshold %d bps: %w", c.ThresholdBps, domain.ErrValidation)
	}
	if c.InitialLiquidity <= 0 || c.InitialLiquidity%2 != 0 {
		return fmt.Errorf("factory: initial liquidity %d must be positive and even: %w", c.InitialLiquidity, domain.ErrValidation)
	}
	if c.FeeBps < 0 || c.FeeBps >= 10000 {
		return fmt.Errorf("factory: fee %d bps: %w", c.FeeBps, domain.ErrValidation)
	}
	if c.TreasuryAccount == "" {
		return fmt.Errorf("factory: empty treasury account: %w", domain.ErrValidation)
	}
	return nil
}

// UpdateResult reports what a position update did to the pair's market
// state.
type UpdateResult struct {
	Round       int64
	Participant string
	OldBps      int64
	NewBps      int64
	Attempted   bool
	Created     bool
	Status      domain.CreationStatus
	Reason      string
	ConditionID string
}

type pairKey struct {
	round       int64
	participant string
}

type pairState struct {
	status      domain.CreationStatus
	reason      string
	conditionID string
	market      *amm.Market
	updatedAt   time.Time
}

// Factory owns the per-pair creation state machine. All methods are safe
// for concurrent use; creation and resolution for different pairs still
// serialize on the factory mutex, which is fine at raffle scale.
type Factory struct {
	mu         sync.Mutex
	cfg        Config
	positions  *tickets.Ledger
	outcomes   *outcome.Ledger
	collateral domain.CollateralSource
	oracle     *pricing.Oracle
	logger     *slog.Logger
	states     map[pairKey]*pairState
}

// New creates a factory.
func New(cfg Config, positions *tickets.Ledger, outcomes *outcome.Ledger, collateral domain.CollateralSource, oracle *pricing.Oracle, logger *slog.Logger) (*Factory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Factory{
		cfg:        cfg,
		positions:  positions,
		outcomes:   outcomes,
		collateral: collateral,
		oracle:     oracle,
		logger:     logger.With(slog.String("component", "market_factory")),
		states:     make(map[pairKey]*pairState),
	}, nil
}

// OnPositionUpdate reacts to a stake change from the position ledger. A
// market is created exactly when the pair's probability crosses the
// threshold from below; pairs already past the threshold, and pairs whose
// creation previously failed, are left alone. For pairs with a bound
// condition the raffle leg of the hybrid quote is refreshed.
func (f *Factory) OnPositionUpdate(ctx context.Context, change domain.PositionChange) UpdateResult {
	oldTotal := change.TotalTickets - change.NewTickets + change.OldTickets
	res := UpdateResult{
		Round:       change.Round,
		Participant: change.Participant,
		OldBps:      tickets.ProbabilityBps(change.OldTickets, oldTotal),
		NewBps:      tickets.ProbabilityBps(change.NewTickets, change.TotalTickets),
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := pairKey{round: change.Round, participant: change.Participant}
	st, ok := f.states[key]
	if !ok {
		st = &pairState{status: domain.StatusNotCreated, updatedAt: time.Now().UTC()}
		f.states[key] = st
	}

	switch st.status {
	case domain.StatusNotCreated:
		if res.OldBps < f.cfg.ThresholdBps && res.NewBps >= f.cfg.ThresholdBps {
			res.Attempted = true
			res.Created = f.create(ctx, key, st, res.NewBps) == nil
		}
	default:
		// Every pair with a bound condition keeps its raffle leg current,
		// including failed attempts awaiting retry.
		if st.conditionID != "" {
			f.oracle.UpdateRaffle(ctx, st.conditionID, res.NewBps)
		}
	}

	res.Status = st.status
	res.Reason = st.reason
	res.ConditionID = st.conditionID
	return res
}

// RetryCreation re-runs the creation sequence for a pair whose previous
// attempt failed. Any other state is a precondition failure.
func (f *Factory) RetryCreation(ctx context.Context, round int64, participant string) (UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := pairKey{round: round, participant: participant}
	st, ok := f.states[key]
	if !ok || st.status != domain.StatusFailed {
		status := domain.StatusNotCreated
		if ok {
			status = st.status
		}
		return UpdateResult{}, fmt.Errorf("factory: retry round=%d participant=%s: status %s: %w",
			round, participant, status, domain.ErrPreconditionFailed)
	}

	st.reason = ""
	bps := f.positions.ProbabilityBps(round, participant)
	res := UpdateResult{
		Round:       round,
		Participant: participant,
		OldBps:      bps,
		NewBps:      bps,
		Attempted:   true,
	}
	res.Created = f.create(ctx, key, st, bps) == nil
	res.Status = st.status
	res.Reason = st.reason
	res.ConditionID = st.conditionID
	return res, nil
}

// create runs the creation sequence for one pair and advances st through
// the intermediate statuses. Every failure records the reason, compensates
// any collateral already moved, and leaves the pair in StatusFailed so an
// operator can retry.
func (f *Factory) create(ctx context.Context, key pairKey, st *pairState, raffleBps int64) error {
	liq := f.cfg.InitialLiquidity
	half := liq / 2

	// A failed attempt may have left the condition prepared; reuse it.
	cond, err := f.outcomes.ConditionByPair(key.round, key.participant)
	if errors.Is(err, domain.ErrNotFound) {
		cond, err = f.outcomes.PrepareCondition(key.round, key.participant)
	}
	if err != nil {
		return f.fail(st, key, fmt.Errorf("prepare condition: %w", err))
	}
	st.conditionID = cond.ID
	f.advance(st, domain.StatusConditionPrepared)

	acct := amm.Account(cond.ID)
	if err := f.collateral.TransferFrom(ctx, f.cfg.TreasuryAccount, acct, liq); err != nil {
		return f.fail(st, key, fmt.Errorf("fund market: %w", err))
	}
	if err := f.outcomes.Split(ctx, cond.ID, liq, acct); err != nil {
		_ = f.collateral.Transfer(ctx, acct, f.cfg.TreasuryAccount, liq)
		return f.fail(st, key, fmt.Errorf("seed liquidity: %w", err))
	}

	// The market keeps half of each side as reserves; the treasury holds
	// the other half as redeemable house inventory, so every minted token
	// stays accounted for.
	if err := f.outcomes.Transfer(cond.ID, domain.OutcomeYes, acct, f.cfg.TreasuryAccount, half); err != nil {
		return f.fail(st, key, fmt.Errorf("house inventory: %w", err))
	}
	if err := f.outcomes.Transfer(cond.ID, domain.OutcomeNo, acct, f.cfg.TreasuryAccount, half); err != nil {
		return f.fail(st, key, fmt.Errorf("house inventory: %w", err))
	}
	f.advance(st, domain.StatusLiquiditySeeded)

	m, err := amm.New(cond, half, half, f.cfg.FeeBps, f.outcomes, f.collateral)
	if err != nil {
		return f.fail(st, key, fmt.Errorf("open market: %w", err))
	}
	st.market = m
	f.advance(st, domain.StatusMarketCreated)

	f.oracle.UpdateRaffle(ctx, cond.ID, raffleBps)
	f.oracle.UpdateSentiment(ctx, cond.ID, half, half)

	f.logger.Info("market created",
		slog.Int64("round", key.round),
		slog.String("participant", key.participant),
		slog.String("condition_id", cond.ID),
		slog.Int64("liquidity", liq),
		slog.Int64("raffle_bps", raffleBps),
	)
	return nil
}

func (f *Factory) advance(st *pairState, status domain.CreationStatus) {
	st.status = status
	st.updatedAt = time.Now().UTC()
}

func (f *Factory) fail(st *pairState, key pairKey, err error) error {
	st.status = domain.StatusFailed
	st.reason = err.Error()
	st.updatedAt = time.Now().UTC()
	f.logger.Warn("market creation failed",
		slog.Int64("round", key.round),
		slog.String("participant", key.participant),
		slog.String("reason", st.reason),
	)
	return err
}

// ResolveCondition reports the pair's payout, winner-takes-all, and freezes
// its market. A pair whose condition is already resolved is a no-op, so
// settlement batches can safely re-run.
func (f *Factory) ResolveCondition(ctx context.Context, round int64, participant string, won bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := pairKey{round: round, participant: participant}
	st, ok := f.states[key]
	if !ok || st.conditionID == "" {
		return fmt.Errorf("factory: resolve round=%d participant=%s: %w", round, participant, domain.ErrNotFound)
	}

	payout := domain.PayoutNo
	if won {
		payout = domain.PayoutYes
	}
	if err := f.outcomes.ReportPayout(st.conditionID, payout); err != nil && !errors.Is(err, domain.ErrConditionResolved) {
		return fmt.Errorf("factory: resolve %s: %w", st.conditionID, err)
	}
	if st.market != nil {
		st.market.Freeze()
	}
	f.advance(st, domain.StatusResolved)

	f.logger.InfoContext(ctx, "condition resolved",
		slog.Int64("round", round),
		slog.String("participant", participant),
		slog.Bool("won", won),
	)
	return nil
}

// Status returns the pair's creation status, StatusNotCreated for pairs
// the factory has never seen.
func (f *Factory) Status(round int64, participant string) domain.CreationStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	if st, ok := f.states[pairKey{round: round, participant: participant}]; ok {
		return st.status
	}
	return domain.StatusNotCreated
}

// FailureReason returns the stored reason of a failed creation, "" for any
// other state.
func (f *Factory) FailureReason(round int64, participant string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if st, ok := f.states[pairKey{round: round, participant: participant}]; ok {
		return st.reason
	}
	return ""
}

// Market returns the pair's live market, or domain.ErrNotFound before
// creation.
func (f *Factory) Market(round int64, participant string) (*amm.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.states[pairKey{round: round, participant: participant}]
	if !ok || st.market == nil {
		return nil, fmt.Errorf("factory: market round=%d participant=%s: %w", round, participant, domain.ErrNotFound)
	}
	return st.market, nil
}

// Creation returns the pair's persisted-form factory state.
func (f *Factory) Creation(round int64, participant string) domain.MarketCreation {
	f.mu.Lock()
	defer f.mu.Unlock()

	mc := domain.MarketCreation{Round: round, Participant: participant, Status: domain.StatusNotCreated}
	if st, ok := f.states[pairKey{round: round, participant: participant}]; ok {
		mc.Status = st.status
		mc.Reason = st.reason
		mc.ConditionID = st.conditionID
		mc.UpdatedAt = st.updatedAt
	}
	return mc
}

// PairsForRound returns the participants of a round the factory has state
// for, in no particular order.
func (f *Factory) PairsForRound(round int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for key := range f.states {
		if key.round == round {
			out = append(out, key.participant)
		}
	}
	return out
}
