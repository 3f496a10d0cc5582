package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
	"github.com/jackpotlabs/rafflemarket/internal/factory"
	"github.com/jackpotlabs/rafflemarket/internal/outcome"
	"github.com/jackpotlabs/rafflemarket/internal/pricing"
)

// TradeService executes buys, sells, and redemptions against the
// per-participant markets and keeps the hybrid price current after every
// trade.
type TradeService struct {
	markets    *factory.Factory
	outcomes   *outcome.Ledger
	oracle     *pricing.Oracle
	marketRows domain.MarketStore
	balances   domain.BalanceStore
	bus        domain.SignalBus
	audit      domain.AuditStore
	logger     *slog.Logger
}

// NewTradeService creates a TradeService. Stores, bus, and audit may be nil.
func NewTradeService(
	markets *factory.Factory,
	outcomes *outcome.Ledger,
	oracle *pricing.Oracle,
	marketRows domain.MarketStore,
	balances domain.BalanceStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		markets:    markets,
		outcomes:   outcomes,
		oracle:     oracle,
		marketRows: marketRows,
		balances:   balances,
		bus:        bus,
		audit:      audit,
		logger:     logger.With(slog.String("component", "trade_service")),
	}
}

// Buy swaps trader collateral for outcome tokens on the pair's market.
func (s *TradeService) Buy(ctx context.Context, round int64, participant, trader string, wantYes bool, amountIn, minAmountOut int64) (int64, error) {
	m, err := s.markets.Market(round, participant)
	if err != nil {
		return 0, fmt.Errorf("trade_service: buy round=%d participant=%s: %w", round, participant, err)
	}

	amountOut, err := m.Buy(ctx, trader, wantYes, amountIn, minAmountOut)
	if err != nil {
		return 0, fmt.Errorf("trade_service: buy %s: %w", m.ConditionID(), err)
	}

	s.afterTrade(ctx, m.ConditionID(), trader, "buy", wantYes, amountIn, amountOut, m.State())
	return amountOut, nil
}

// Sell swaps trader outcome tokens back into collateral.
func (s *TradeService) Sell(ctx context.Context, round int64, participant, trader string, sellYes bool, amountIn, minCollateralOut int64) (int64, error) {
	m, err := s.markets.Market(round, participant)
	if err != nil {
		return 0, fmt.Errorf("trade_service: sell round=%d participant=%s: %w", round, participant, err)
	}

	amountOut, err := m.Sell(ctx, trader, sellYes, amountIn, minCollateralOut)
	if err != nil {
		return 0, fmt.Errorf("trade_service: sell %s: %w", m.ConditionID(), err)
	}

	s.afterTrade(ctx, m.ConditionID(), trader, "sell", sellYes, amountIn, amountOut, m.State())
	return amountOut, nil
}

// afterTrade refreshes the sentiment leg of the hybrid price and mirrors
// the new market and balance state.
func (s *TradeService) afterTrade(ctx context.Context, conditionID, trader, side string, yesSide bool, amountIn, amountOut int64, state domain.MarketState) {
	s.oracle.UpdateSentiment(ctx, conditionID, state.YesReserve, state.NoReserve)

	s.mirrorMarket(ctx, state)
	s.mirrorBalance(ctx, conditionID, trader)

	s.publish(ctx, "trades", map[string]any{
		"event":        "trade_executed",
		"condition_id": conditionID,
		"trader":       trader,
		"side":         side,
		"yes":          yesSide,
		"amount_in":    amountIn,
		"amount_out":   amountOut,
	})
	s.auditLog(ctx, "trade_executed", map[string]any{
		"condition_id": conditionID,
		"trader":       trader,
		"side":         side,
		"yes":          yesSide,
		"amount_in":    amountIn,
		"amount_out":   amountOut,
	})

	s.logger.InfoContext(ctx, "trade_service: trade executed",
		slog.String("condition_id", conditionID),
		slog.String("trader", trader),
		slog.String("side", side),
		slog.Int64("amount_in", amountIn),
		slog.Int64("amount_out", amountOut),
	)
}

// Redeem burns the holder's outcome tokens on a resolved condition and
// pays out collateral per the payout vector.
func (s *TradeService) Redeem(ctx context.Context, round int64, participant, holder string) (int64, error) {
	cond, err := s.outcomes.ConditionByPair(round, participant)
	if err != nil {
		return 0, fmt.Errorf("trade_service: redeem round=%d participant=%s: %w", round, participant, err)
	}

	paid, err := s.outcomes.Redeem(ctx, cond.ID, holder)
	if err != nil {
		return 0, fmt.Errorf("trade_service: redeem %s holder=%s: %w", cond.ID, holder, err)
	}

	s.mirrorBalance(ctx, cond.ID, holder)
	s.auditLog(ctx, "redeemed", map[string]any{
		"condition_id": cond.ID,
		"holder":       holder,
		"paid":         paid,
	})

	s.logger.InfoContext(ctx, "trade_service: redeemed",
		slog.String("condition_id", cond.ID),
		slog.String("holder", holder),
		slog.Int64("paid", paid),
	)
	return paid, nil
}

// HybridPrice returns the pair's blended probability quote.
func (s *TradeService) HybridPrice(round int64, participant string) (domain.HybridQuote, error) {
	cond, err := s.outcomes.ConditionByPair(round, participant)
	if err != nil {
		return domain.HybridQuote{}, fmt.Errorf("trade_service: price round=%d participant=%s: %w", round, participant, err)
	}
	q, err := s.oracle.Quote(cond.ID)
	if err != nil {
		return domain.HybridQuote{}, fmt.Errorf("trade_service: price %s: %w", cond.ID, err)
	}
	return q, nil
}

// Reserves returns the pair's current market reserves.
func (s *TradeService) Reserves(round int64, participant string) (yes, no int64, err error) {
	m, err := s.markets.Market(round, participant)
	if err != nil {
		return 0, 0, fmt.Errorf("trade_service: reserves round=%d participant=%s: %w", round, participant, err)
	}
	yes, no = m.Reserves()
	return yes, no, nil
}

// Balance returns the holder's outcome token balances for a pair.
func (s *TradeService) Balance(round int64, participant, holder string) (yes, no int64, err error) {
	cond, err := s.outcomes.ConditionByPair(round, participant)
	if err != nil {
		return 0, 0, fmt.Errorf("trade_service: balance round=%d participant=%s: %w", round, participant, err)
	}
	yes, no = s.outcomes.Balance(cond.ID, holder)
	return yes, no, nil
}

func (s *TradeService) mirrorMarket(ctx context.Context, m domain.MarketState) {
	if s.marketRows == nil {
		return
	}
	if err := s.marketRows.Upsert(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "trade_service: market mirror failed",
			slog.String("condition_id", m.ConditionID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) mirrorBalance(ctx context.Context, conditionID, holder string) {
	if s.balances == nil {
		return
	}
	yes, no := s.outcomes.Balance(conditionID, holder)
	err := s.balances.Upsert(ctx, domain.OutcomeBalance{
		ConditionID: conditionID,
		Holder:      holder,
		Yes:         yes,
		No:          no,
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "trade_service: balance mirror failed",
			slog.String("condition_id", conditionID),
			slog.String("holder", holder),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) publish(ctx context.Context, channel string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "trade_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "trade_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
