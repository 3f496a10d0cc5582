// Package settlement resolves every market of a completed round and sweeps
// house-side collateral back to the treasury. Rounds settle in capped
// batches so one call never blocks on an unbounded amount of work; calls
// are idempotent and re-runnable until the round reports no remaining
// pairs.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jackpotlabs/rafflemarket/internal/amm"
	"github.com/jackpotlabs/rafflemarket/internal/domain"
	"github.com/jackpotlabs/rafflemarket/internal/factory"
	"github.com/jackpotlabs/rafflemarket/internal/outcome"
	"github.com/jackpotlabs/rafflemarket/internal/tickets"
)

// DefaultBatchSize caps how many pairs one SettleRound call processes.
const DefaultBatchSize = 50

// Failure records one pair that could not be settled in this batch. The
// pair stays pending and is retried by the next call.
type Failure struct {
	Participant string `json:"participant"`
	Reason      string `json:"reason"`
}

// Report summarizes one settlement batch.
type Report struct {
	Round     int64     `json:"round"`
	Winner    string    `json:"winner"`
	Processed int       `json:"processed"`
	Remaining int       `json:"remaining"`
	Partial   bool      `json:"partial"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Coordinator settles completed rounds.
type Coordinator struct {
	positions       *tickets.Ledger
	outcomes        *outcome.Ledger
	markets         *factory.Factory
	collateral      domain.CollateralSource
	treasuryAccount string
	batchSize       int
	workers         int
	logger          *slog.Logger
}

// New creates a coordinator. batchSize <= 0 selects DefaultBatchSize.
func New(positions *tickets.Ledger, outcomes *outcome.Ledger, markets *factory.Factory, collateral domain.CollateralSource, treasuryAccount string, batchSize int, logger *slog.Logger) *Coordinator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Coordinator{
		positions:       positions,
		outcomes:        outcomes,
		markets:         markets,
		collateral:      collateral,
		treasuryAccount: treasuryAccount,
		batchSize:       batchSize,
		workers:         4,
		logger:          logger.With(slog.String("component", "settlement")),
	}
}

// SettleRound processes up to one batch of the round's unresolved pairs:
// the winner's condition resolves YES, every other condition resolves NO,
// each market freezes, and the market's reserves plus fees plus the house
// token inventory are redeemed and swept to the treasury. Failed pairs are
// reported and retried on the next call. A round with nothing left to do
// returns an empty, non-partial report.
func (c *Coordinator) SettleRound(ctx context.Context, round int64, winner string) (Report, error) {
	if winner == "" {
		return Report{}, fmt.Errorf("settlement: round %d: empty winner: %w", round, domain.ErrValidation)
	}

	// No more position updates once settlement starts.
	c.positions.CloseRound(round)

	pending := c.pendingPairs(round)
	report := Report{Round: round, Winner: winner}
	if len(pending) == 0 {
		return report, nil
	}

	batch := pending
	if len(batch) > c.batchSize {
		batch = batch[:c.batchSize]
	}

	var (
		mu        sync.Mutex
		processed int
		failures  []Failure
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, participant := range batch {
		g.Go(func() error {
			err := c.settleOne(gctx, round, participant, participant == winner)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, Failure{Participant: participant, Reason: err.Error()})
				c.logger.WarnContext(gctx, "pair settlement failed",
					slog.Int64("round", round),
					slog.String("participant", participant),
					slog.String("error", err.Error()),
				)
				return nil
			}
			processed++
			return nil
		})
	}
	// Workers never return an error; failures are collected per pair.
	_ = g.Wait()

	report.Processed = processed
	report.Remaining = len(pending) - processed
	report.Partial = report.Remaining > 0
	report.Failures = failures

	c.logger.InfoContext(ctx, "settlement batch done",
		slog.Int64("round", round),
		slog.String("winner", winner),
		slog.Int("processed", report.Processed),
		slog.Int("remaining", report.Remaining),
	)
	return report, nil
}

// pendingPairs returns the round's participants that have a condition but
// are not yet resolved, sorted so batches are deterministic.
func (c *Coordinator) pendingPairs(round int64) []string {
	var out []string
	for _, participant := range c.markets.PairsForRound(round) {
		mc := c.markets.Creation(round, participant)
		if mc.ConditionID != "" && mc.Status != domain.StatusResolved {
			out = append(out, participant)
		}
	}
	sort.Strings(out)
	return out
}

// settleOne resolves a single pair and sweeps its house-side value. Every
// step is idempotent, so a pair that failed halfway is safe to re-run.
func (c *Coordinator) settleOne(ctx context.Context, round int64, participant string, won bool) error {
	if err := c.markets.ResolveCondition(ctx, round, participant, won); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	mc := c.markets.Creation(round, participant)
	marketAcct := amm.Account(mc.ConditionID)

	// Redeem the market's remaining reserves into its collateral account,
	// then the treasury's house inventory straight into the treasury.
	if _, err := c.outcomes.Redeem(ctx, mc.ConditionID, marketAcct); err != nil {
		return fmt.Errorf("redeem market: %w", err)
	}
	if _, err := c.outcomes.Redeem(ctx, mc.ConditionID, c.treasuryAccount); err != nil {
		return fmt.Errorf("redeem house inventory: %w", err)
	}

	// Sweep redeemed reserves plus accrued fees.
	bal, err := c.collateral.BalanceOf(ctx, marketAcct)
	if err != nil {
		return fmt.Errorf("market balance: %w", err)
	}
	if bal > 0 {
		if err := c.collateral.Transfer(ctx, marketAcct, c.treasuryAccount, bal); err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
	}
	return nil
}
