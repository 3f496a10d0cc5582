package domain

import "time"

// Round is one instance of the ticket pool competition. The winner is set
// once, externally, when the round completes; the engine only reads it.
type Round struct {
	ID           int64
	TotalTickets int64
	Active       bool
	Completed    bool
	Winner       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TicketPosition is one participant's share of a round's ticket pool.
type TicketPosition struct {
	Round       int64
	Participant string
	Tickets     int64
	UpdatedAt   time.Time
}

// PositionChange describes a single stake mutation reported by the pool.
// TotalTickets is the round total after the change was applied.
type PositionChange struct {
	Round        int64  `json:"round"`
	Participant  string `json:"participant"`
	OldTickets   int64  `json:"old_tickets"`
	NewTickets   int64  `json:"new_tickets"`
	TotalTickets int64  `json:"total_tickets"`
}
