package feed

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type captured struct {
	opened    []int64
	positions []poolEvent
	completed []poolEvent
}

func newCapturingFeed(c *captured) *PoolFeed {
	return NewPoolFeed("ws://pool.example/feed",
		func(_ context.Context, round int64) {
			c.opened = append(c.opened, round)
		},
		func(_ context.Context, round int64, participant string, tickets int64) {
			c.positions = append(c.positions, poolEvent{Round: round, Participant: participant, Tickets: tickets})
		},
		func(_ context.Context, round int64, winner string) {
			c.completed = append(c.completed, poolEvent{Round: round, Winner: winner})
		},
		slog.Default(),
	)
}

func TestPoolFeed_DispatchesEvents(t *testing.T) {
	ctx := context.Background()
	var c captured
	f := newCapturingFeed(&c)

	f.handleMessage(ctx, []byte(`{"event":"round_opened","round":7}`))
	f.handleMessage(ctx, []byte(`{"event":"position_update","round":7,"participant":"alice","tickets":400}`))
	f.handleMessage(ctx, []byte(`{"event":"round_completed","round":7,"winner":"alice"}`))

	assert.Equal(t, []int64{7}, c.opened)
	assert.Len(t, c.positions, 1)
	assert.Equal(t, "alice", c.positions[0].Participant)
	assert.Equal(t, int64(400), c.positions[0].Tickets)
	assert.Len(t, c.completed, 1)
	assert.Equal(t, "alice", c.completed[0].Winner)
}

func TestPoolFeed_DropsBadMessages(t *testing.T) {
	ctx := context.Background()
	var c captured
	f := newCapturingFeed(&c)

	f.handleMessage(ctx, []byte(`not json`))
	f.handleMessage(ctx, []byte(`{"event":"unknown","round":1}`))
	f.handleMessage(ctx, []byte(`{"event":"position_update","round":1,"participant":"  ","tickets":5}`))
	f.handleMessage(ctx, []byte(`{"event":"round_completed","round":1,"winner":""}`))

	assert.Empty(t, c.opened)
	assert.Empty(t, c.positions)
	assert.Empty(t, c.completed)
}
