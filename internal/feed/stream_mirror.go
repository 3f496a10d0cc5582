package feed

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
)

// StreamMirror copies ephemeral Pub/Sub engine facts into durable Redis
// streams ("facts:<channel>") so late consumers can replay what they
// missed.
type StreamMirror struct {
	bus      domain.SignalBus
	channels []string
	logger   *slog.Logger
}

// NewStreamMirror creates a mirror for the given Pub/Sub channels.
func NewStreamMirror(bus domain.SignalBus, channels []string, logger *slog.Logger) *StreamMirror {
	return &StreamMirror{
		bus:      bus,
		channels: channels,
		logger:   logger.With(slog.String("component", "stream_mirror")),
	}
}

// Run subscribes to every configured channel and appends each message to
// its stream until ctx is cancelled.
func (m *StreamMirror) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, channel := range m.channels {
		g.Go(func() error {
			return m.mirrorChannel(gctx, channel)
		})
	}
	return g.Wait()
}

func (m *StreamMirror) mirrorChannel(ctx context.Context, channel string) error {
	ch, err := m.bus.Subscribe(ctx, channel)
	if err != nil {
		return err
	}
	m.logger.Info("stream mirror started", slog.String("channel", channel))
	defer m.logger.Info("stream mirror stopped", slog.String("channel", channel))

	stream := "facts:" + channel
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := m.bus.StreamAppend(ctx, stream, data); err != nil {
				m.logger.Warn("stream append failed",
					slog.String("stream", stream),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
