package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
	"github.com/jackpotlabs/rafflemarket/internal/factory"
	"github.com/jackpotlabs/rafflemarket/internal/notify"
	"github.com/jackpotlabs/rafflemarket/internal/settlement"
)

// settleLockTTL bounds how long one settlement run may hold the
// distributed lock before it expires on its own.
const settleLockTTL = 5 * time.Minute

// SettlementService runs full-round settlement: it loops the coordinator's
// capped batches until the round has no pending pairs, under a distributed
// lock so concurrent engine instances never settle the same round twice.
type SettlementService struct {
	coordinator *settlement.Coordinator
	markets     *factory.Factory
	rounds      domain.RoundStore
	conditions  domain.ConditionStore
	marketRows  domain.MarketStore
	locks       domain.LockManager
	bus         domain.SignalBus
	archive     domain.BlobWriter
	notifier    *notify.Notifier
	logger      *slog.Logger
}

// NewSettlementService creates a SettlementService. Stores, locks, bus,
// archive, and notifier may be nil.
func NewSettlementService(
	coordinator *settlement.Coordinator,
	markets *factory.Factory,
	rounds domain.RoundStore,
	conditions domain.ConditionStore,
	marketRows domain.MarketStore,
	locks domain.LockManager,
	bus domain.SignalBus,
	archive domain.BlobWriter,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		coordinator: coordinator,
		markets:     markets,
		rounds:      rounds,
		conditions:  conditions,
		marketRows:  marketRows,
		locks:       locks,
		bus:         bus,
		archive:     archive,
		notifier:    notifier,
		logger:      logger.With(slog.String("component", "settlement_service")),
	}
}

// RoundReport aggregates every batch of one settlement run.
type RoundReport struct {
	Round     int64                `json:"round"`
	Winner    string               `json:"winner"`
	Batches   int                  `json:"batches"`
	Processed int                  `json:"processed"`
	Remaining int                  `json:"remaining"`
	Complete  bool                 `json:"complete"`
	Failures  []settlement.Failure `json:"failures,omitempty"`
	StartedAt time.Time            `json:"started_at"`
	EndedAt   time.Time            `json:"ended_at"`
}

// SettleRound settles the round end to end. Pairs that fail stay pending;
// the run stops once a batch makes no progress and reports Complete=false
// so an operator can re-run after fixing the cause. The whole operation is
// idempotent.
func (s *SettlementService) SettleRound(ctx context.Context, round int64, winner string) (RoundReport, error) {
	report := RoundReport{Round: round, Winner: winner, StartedAt: time.Now().UTC()}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, fmt.Sprintf("settle:round:%d", round), settleLockTTL)
		if err != nil {
			return report, fmt.Errorf("settlement_service: round %d: %w", round, err)
		}
		defer unlock()
	}

	for {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("settlement_service: round %d: %w", round, domain.ErrContextDone)
		}

		batch, err := s.coordinator.SettleRound(ctx, round, winner)
		if err != nil {
			return report, fmt.Errorf("settlement_service: round %d: %w", round, err)
		}
		report.Batches++
		report.Processed += batch.Processed
		report.Remaining = batch.Remaining
		report.Failures = append(report.Failures, batch.Failures...)

		s.publish(ctx, "settlement", map[string]any{
			"event":     "settlement_progress",
			"round":     round,
			"processed": report.Processed,
			"remaining": batch.Remaining,
		})

		if !batch.Partial {
			report.Complete = true
			break
		}
		if batch.Processed == 0 {
			// Every pending pair failed; looping again would not help.
			break
		}
	}
	report.EndedAt = time.Now().UTC()

	s.mirrorResolution(ctx, round, winner)
	if report.Complete {
		s.markCompleted(ctx, round, winner)
	}
	s.archiveReport(ctx, report)
	s.notifyResult(ctx, report)

	s.logger.InfoContext(ctx, "settlement_service: round settled",
		slog.Int64("round", round),
		slog.String("winner", winner),
		slog.Int("processed", report.Processed),
		slog.Int("remaining", report.Remaining),
		slog.Bool("complete", report.Complete),
	)
	return report, nil
}

// mirrorResolution writes the post-settlement factory and market state of
// every pair the factory tracked for the round.
func (s *SettlementService) mirrorResolution(ctx context.Context, round int64, winner string) {
	for _, participant := range s.markets.PairsForRound(round) {
		mc := s.markets.Creation(round, participant)
		if s.conditions != nil {
			if err := s.conditions.Upsert(ctx, mc); err != nil {
				s.logger.WarnContext(ctx, "settlement_service: creation mirror failed",
					slog.String("participant", participant),
					slog.String("error", err.Error()),
				)
			}
			if mc.Status == domain.StatusResolved && mc.ConditionID != "" {
				payout := domain.PayoutNo
				if participant == winner {
					payout = domain.PayoutYes
				}
				if err := s.conditions.MarkResolved(ctx, mc.ConditionID, payout); err != nil {
					s.logger.WarnContext(ctx, "settlement_service: resolution mirror failed",
						slog.String("condition_id", mc.ConditionID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
		if s.marketRows != nil {
			if m, err := s.markets.Market(round, participant); err == nil {
				if err := s.marketRows.Upsert(ctx, m.State()); err != nil {
					s.logger.WarnContext(ctx, "settlement_service: market mirror failed",
						slog.String("participant", participant),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

func (s *SettlementService) markCompleted(ctx context.Context, round int64, winner string) {
	if s.rounds == nil {
		return
	}
	if err := s.rounds.MarkCompleted(ctx, round, winner); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: mark completed failed",
			slog.Int64("round", round),
			slog.String("error", err.Error()),
		)
	}
}

// archiveReport uploads the final report to blob storage for offline
// reconciliation.
func (s *SettlementService) archiveReport(ctx context.Context, report RoundReport) {
	if s.archive == nil {
		return
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		s.logger.WarnContext(ctx, "settlement_service: marshal report failed",
			slog.Int64("round", report.Round),
			slog.String("error", err.Error()),
		)
		return
	}
	path := fmt.Sprintf("settlements/round-%d.json", report.Round)
	if err := s.archive.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: archive failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) notifyResult(ctx context.Context, report RoundReport) {
	if s.notifier == nil {
		return
	}
	title := fmt.Sprintf("Round %d settled", report.Round)
	msg := fmt.Sprintf("winner %s, %d pairs settled in %d batch(es)", report.Winner, report.Processed, report.Batches)
	if !report.Complete {
		title = fmt.Sprintf("Round %d settlement incomplete", report.Round)
		msg = fmt.Sprintf("winner %s, %d settled, %d still pending", report.Winner, report.Processed, report.Remaining)
	}
	if err := s.notifier.Notify(ctx, "round_settled", title, msg); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: notify failed",
			slog.Int64("round", report.Round),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) publish(ctx context.Context, channel string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
