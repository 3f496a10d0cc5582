package domain

import (
	"context"
	"time"
)

// HybridPriceCache provides fast access to the latest blended probability
// per condition.
type HybridPriceCache interface {
	SetQuote(ctx context.Context, conditionID string, q HybridQuote) error
	GetQuote(ctx context.Context, conditionID string) (HybridQuote, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for engine facts
// (position changes, market creations, trades, settlement progress).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
