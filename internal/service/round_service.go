// Package service wires the engine core to persistence, the signal bus,
// the audit log, and operator notifications. The in-memory ledgers stay
// authoritative; stores are write-through mirrors, so a mirror failure is
// logged and never fails the operation.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
	"github.com/jackpotlabs/rafflemarket/internal/factory"
	"github.com/jackpotlabs/rafflemarket/internal/notify"
	"github.com/jackpotlabs/rafflemarket/internal/tickets"
)

// RoundService tracks round lifecycle and applies position changes from the
// external ticket pool, letting the factory react to each one.
type RoundService struct {
	positions  *tickets.Ledger
	markets    *factory.Factory
	rounds     domain.RoundStore
	conditions domain.ConditionStore
	marketRows domain.MarketStore
	bus        domain.SignalBus
	audit      domain.AuditStore
	notifier   *notify.Notifier
	logger     *slog.Logger
}

// NewRoundService creates a RoundService. Stores, bus, audit, and notifier
// may be nil when the deployment runs without that backend.
func NewRoundService(
	positions *tickets.Ledger,
	markets *factory.Factory,
	rounds domain.RoundStore,
	conditions domain.ConditionStore,
	marketRows domain.MarketStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *RoundService {
	return &RoundService{
		positions:  positions,
		markets:    markets,
		rounds:     rounds,
		conditions: conditions,
		marketRows: marketRows,
		bus:        bus,
		audit:      audit,
		notifier:   notifier,
		logger:     logger.With(slog.String("component", "round_service")),
	}
}

// OpenRound registers a new active round.
func (s *RoundService) OpenRound(ctx context.Context, round int64) error {
	if err := s.positions.OpenRound(round); err != nil {
		return fmt.Errorf("round_service: open round %d: %w", round, err)
	}

	now := time.Now().UTC()
	s.mirrorRound(ctx, domain.Round{ID: round, Active: true, CreatedAt: now, UpdatedAt: now})
	s.publish(ctx, "rounds", map[string]any{"event": "round_opened", "round": round})
	s.auditLog(ctx, "round_opened", map[string]any{"round": round})

	s.logger.InfoContext(ctx, "round_service: round opened", slog.Int64("round", round))
	return nil
}

// RecordPositionDelta applies one stake change from the pool feed. The
// position ledger is updated first; the factory then decides whether the
// pair's probability crossed the market creation threshold.
func (s *RoundService) RecordPositionDelta(ctx context.Context, round int64, participant string, newTickets int64) (factory.UpdateResult, error) {
	change, err := s.positions.RecordDelta(round, participant, newTickets)
	if err != nil {
		return factory.UpdateResult{}, fmt.Errorf("round_service: record delta round=%d participant=%s: %w", round, participant, err)
	}

	res := s.markets.OnPositionUpdate(ctx, change)

	s.mirrorRound(ctx, domain.Round{
		ID:           round,
		TotalTickets: change.TotalTickets,
		Active:       true,
		UpdatedAt:    time.Now().UTC(),
	})
	if res.Attempted || res.Status != domain.StatusNotCreated {
		s.mirrorCreation(ctx, s.markets.Creation(round, participant))
	}

	s.publish(ctx, "positions", map[string]any{
		"event":         "position_changed",
		"round":         round,
		"participant":   participant,
		"old_tickets":   change.OldTickets,
		"new_tickets":   change.NewTickets,
		"total_tickets": change.TotalTickets,
		"new_bps":       res.NewBps,
	})

	if res.Attempted {
		s.afterCreationAttempt(ctx, round, participant, res)
	}
	return res, nil
}

// afterCreationAttempt records and announces the outcome of a market
// creation attempt.
func (s *RoundService) afterCreationAttempt(ctx context.Context, round int64, participant string, res factory.UpdateResult) {
	if res.Created {
		if m, err := s.markets.Market(round, participant); err == nil {
			s.mirrorMarket(ctx, m.State())
		}
		s.publish(ctx, "markets", map[string]any{
			"event":        "market_created",
			"round":        round,
			"participant":  participant,
			"condition_id": res.ConditionID,
			"new_bps":      res.NewBps,
		})
		s.auditLog(ctx, "market_created", map[string]any{
			"round":        round,
			"participant":  participant,
			"condition_id": res.ConditionID,
			"new_bps":      res.NewBps,
		})
		s.notify(ctx, "market_created",
			"Market created",
			fmt.Sprintf("round %d: %s crossed %d bps, market %s is live", round, participant, res.NewBps, res.ConditionID))
		return
	}

	s.auditLog(ctx, "market_creation_failed", map[string]any{
		"round":       round,
		"participant": participant,
		"reason":      res.Reason,
	})
	s.logger.WarnContext(ctx, "round_service: market creation failed",
		slog.Int64("round", round),
		slog.String("participant", participant),
		slog.String("reason", res.Reason),
	)
}

// RetryMarketCreation re-runs a failed creation on operator request.
func (s *RoundService) RetryMarketCreation(ctx context.Context, round int64, participant string) (factory.UpdateResult, error) {
	res, err := s.markets.RetryCreation(ctx, round, participant)
	if err != nil {
		return factory.UpdateResult{}, fmt.Errorf("round_service: retry round=%d participant=%s: %w", round, participant, err)
	}

	s.mirrorCreation(ctx, s.markets.Creation(round, participant))
	s.afterCreationAttempt(ctx, round, participant, res)
	return res, nil
}

// Positions returns the round's current non-zero positions.
func (s *RoundService) Positions(round int64) []domain.TicketPosition {
	return s.positions.Positions(round)
}

// ProbabilityBps returns the pair's raffle-implied win probability.
func (s *RoundService) ProbabilityBps(round int64, participant string) int64 {
	return s.positions.ProbabilityBps(round, participant)
}

// CreationStatus returns the pair's factory state.
func (s *RoundService) CreationStatus(round int64, participant string) domain.MarketCreation {
	return s.markets.Creation(round, participant)
}

func (s *RoundService) mirrorRound(ctx context.Context, r domain.Round) {
	if s.rounds == nil {
		return
	}
	if err := s.rounds.Upsert(ctx, r); err != nil {
		s.logger.WarnContext(ctx, "round_service: round mirror failed",
			slog.Int64("round", r.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RoundService) mirrorCreation(ctx context.Context, mc domain.MarketCreation) {
	if s.conditions == nil {
		return
	}
	if err := s.conditions.Upsert(ctx, mc); err != nil {
		s.logger.WarnContext(ctx, "round_service: creation mirror failed",
			slog.Int64("round", mc.Round),
			slog.String("participant", mc.Participant),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RoundService) mirrorMarket(ctx context.Context, m domain.MarketState) {
	if s.marketRows == nil {
		return
	}
	if err := s.marketRows.Upsert(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "round_service: market mirror failed",
			slog.String("condition_id", m.ConditionID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RoundService) publish(ctx context.Context, channel string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "round_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RoundService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "round_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RoundService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "round_service: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
