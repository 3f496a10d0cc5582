// Package tickets implements the position ledger: the authoritative record
// of each participant's share of a round's ticket pool, and the single
// source of truth for the raffle-implied win probability.
package tickets

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

// ScaleBps is the basis-point scale used for all probabilities.
const ScaleBps int64 = 10000

type roundState struct {
	active    bool
	total     int64
	positions map[string]int64
	updatedAt map[string]time.Time
}

// Ledger tracks ticket counts per (round, participant). All methods are
// safe for concurrent use.
type Ledger struct {
	mu     sync.RWMutex
	rounds map[int64]*roundState
}

// NewLedger creates an empty position ledger.
func NewLedger() *Ledger {
	return &Ledger{rounds: make(map[int64]*roundState)}
}

// OpenRound registers a new active round. It returns domain.ErrAlreadyExists
// when the round is already known.
func (l *Ledger) OpenRound(round int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.rounds[round]; ok {
		return fmt.Errorf("tickets: open round %d: %w", round, domain.ErrAlreadyExists)
	}
	l.rounds[round] = &roundState{
		active:    true,
		positions: make(map[string]int64),
		updatedAt: make(map[string]time.Time),
	}
	return nil
}

// CloseRound marks a round inactive. Further position deltas are rejected;
// reads keep working so settlement and redemption can still inspect shares.
func (l *Ledger) CloseRound(round int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rs, ok := l.rounds[round]; ok {
		rs.active = false
	}
}

// RecordDelta applies a stake change reported by the external pool. It
// replaces the participant's ticket count with newTickets and returns the
// resulting change, including the updated round total.
//
// It returns domain.ErrRoundInactive for unknown or closed rounds,
// domain.ErrValidation for a negative ticket count, and
// domain.ErrArithmeticOverflow when the round total would overflow. The
// total is never silently clamped.
func (l *Ledger) RecordDelta(round int64, participant string, newTickets int64) (domain.PositionChange, error) {
	if participant == "" {
		return domain.PositionChange{}, fmt.Errorf("tickets: record delta: empty participant: %w", domain.ErrValidation)
	}
	if newTickets < 0 {
		return domain.PositionChange{}, fmt.Errorf("tickets: record delta: negative ticket count %d: %w", newTickets, domain.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rs, ok := l.rounds[round]
	if !ok || !rs.active {
		return domain.PositionChange{}, fmt.Errorf("tickets: record delta: round %d: %w", round, domain.ErrRoundInactive)
	}

	old := rs.positions[participant]
	delta := newTickets - old
	if delta > 0 && rs.total > math.MaxInt64-delta {
		return domain.PositionChange{}, fmt.Errorf("tickets: record delta: round %d total: %w", round, domain.ErrArithmeticOverflow)
	}
	if rs.total+delta < 0 {
		return domain.PositionChange{}, fmt.Errorf("tickets: record delta: round %d total would go negative: %w", round, domain.ErrValidation)
	}

	rs.total += delta
	if newTickets == 0 {
		delete(rs.positions, participant)
	} else {
		rs.positions[participant] = newTickets
	}
	rs.updatedAt[participant] = time.Now().UTC()

	return domain.PositionChange{
		Round:        round,
		Participant:  participant,
		OldTickets:   old,
		NewTickets:   newTickets,
		TotalTickets: rs.total,
	}, nil
}

// ProbabilityBps returns the participant's raffle-implied win probability in
// basis points: tickets * 10000 / total, integer division rounding toward
// zero, and 0 when the round total is zero or the round is unknown.
func (l *Ledger) ProbabilityBps(round int64, participant string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rs, ok := l.rounds[round]
	if !ok || rs.total == 0 {
		return 0
	}
	return ProbabilityBps(rs.positions[participant], rs.total)
}

// ProbabilityBps is the pure form of the probability formula, shared with
// the factory which recomputes old/new probabilities from a position change.
func ProbabilityBps(ticketCount, total int64) int64 {
	if total <= 0 || ticketCount <= 0 {
		return 0
	}
	return ticketCount * ScaleBps / total
}

// Tickets returns the current ticket count for the pair, 0 if unknown.
func (l *Ledger) Tickets(round int64, participant string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rs, ok := l.rounds[round]
	if !ok {
		return 0
	}
	return rs.positions[participant]
}

// Total returns the round's total ticket count, 0 if unknown.
func (l *Ledger) Total(round int64) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rs, ok := l.rounds[round]
	if !ok {
		return 0
	}
	return rs.total
}

// Positions returns all non-zero positions of a round.
func (l *Ledger) Positions(round int64) []domain.TicketPosition {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rs, ok := l.rounds[round]
	if !ok {
		return nil
	}
	out := make([]domain.TicketPosition, 0, len(rs.positions))
	for p, n := range rs.positions {
		out = append(out, domain.TicketPosition{
			Round:       round,
			Participant: p,
			Tickets:     n,
			UpdatedAt:   rs.updatedAt[p],
		})
	}
	return out
}
