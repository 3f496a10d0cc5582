// Package feed consumes the external ticket pool's push feed and forwards
// its facts into the engine.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before reconnecting.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential reconnect backoff.
	maxReconnectDelay = 60 * time.Second
)

// RoundOpenedHandler is called when the pool announces a new round.
type RoundOpenedHandler func(ctx context.Context, round int64)

// PositionUpdateHandler is called for each stake change. tickets is the
// participant's new absolute ticket count.
type PositionUpdateHandler func(ctx context.Context, round int64, participant string, tickets int64)

// RoundCompletedHandler is called when the pool draws a winner.
type RoundCompletedHandler func(ctx context.Context, round int64, winner string)

// poolEvent is the JSON envelope the pool pushes.
type poolEvent struct {
	Event       string `json:"event"`
	Round       int64  `json:"round"`
	Participant string `json:"participant"`
	Tickets     int64  `json:"tickets"`
	Winner      string `json:"winner"`
}

// PoolFeed is a WebSocket client for the ticket pool's push feed. It keeps
// the connection alive with ping/pong and reconnects with exponential
// backoff on disconnect.
type PoolFeed struct {
	wsURL       string
	onOpened    RoundOpenedHandler
	onPosition  PositionUpdateHandler
	onCompleted RoundCompletedHandler
	logger      *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewPoolFeed creates a feed for the given WebSocket endpoint. Any handler
// may be nil.
func NewPoolFeed(wsURL string, onOpened RoundOpenedHandler, onPosition PositionUpdateHandler, onCompleted RoundCompletedHandler, logger *slog.Logger) *PoolFeed {
	return &PoolFeed{
		wsURL:       wsURL,
		onOpened:    onOpened,
		onPosition:  onPosition,
		onCompleted: onCompleted,
		logger:      logger.With(slog.String("component", "pool_feed")),
		done:        make(chan struct{}),
	}
}

// Run connects and consumes the feed until ctx is cancelled or Close is
// called. Disconnects trigger reconnection with exponential backoff; the
// backoff resets after a successful connection.
func (f *PoolFeed) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("pool feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection dials, starts the ping loop, and reads until the
// connection drops or the feed stops. A nil return means a clean shutdown.
func (f *PoolFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	f.logger.Info("pool feed connected", slog.String("url", f.wsURL))

	pingDone := make(chan struct{})
	defer close(pingDone)
	go f.pingLoop(conn, pingDone)

	// Close the connection when the caller stops so ReadMessage unblocks.
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		case <-pingDone:
			return
		}
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.done:
			return nil
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-f.done:
				return nil
			default:
				return err
			}
		}
		f.handleMessage(ctx, message)
	}
}

func (f *PoolFeed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes one pool event and dispatches it. Unparseable or
// unknown messages are dropped.
func (f *PoolFeed) handleMessage(ctx context.Context, raw []byte) {
	var ev poolEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		f.logger.Debug("pool feed dropped message",
			slog.String("error", err.Error()),
			slog.Int("payload_len", len(raw)),
		)
		return
	}

	switch ev.Event {
	case "round_opened":
		if f.onOpened != nil {
			f.onOpened(ctx, ev.Round)
		}
	case "position_update":
		participant := strings.TrimSpace(ev.Participant)
		if participant == "" {
			return
		}
		if f.onPosition != nil {
			f.onPosition(ctx, ev.Round, participant, ev.Tickets)
		}
	case "round_completed":
		winner := strings.TrimSpace(ev.Winner)
		if winner == "" {
			return
		}
		if f.onCompleted != nil {
			f.onCompleted(ctx, ev.Round, winner)
		}
	}
}

// Close stops the feed.
func (f *PoolFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
