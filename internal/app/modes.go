package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jackpotlabs/rafflemarket/internal/domain"
	"github.com/jackpotlabs/rafflemarket/internal/feed"
)

// EngineMode runs the live engine: it follows the raffle pool websocket
// feed, opens rounds, records ticket movements (creating markets when a
// participant crosses the probability threshold), and settles rounds when
// the pool announces a winner.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode",
		slog.String("feed_url", a.cfg.Feed.WsURL),
	)

	g, ctx := errgroup.WithContext(ctx)

	poolFeed := feed.NewPoolFeed(
		a.cfg.Feed.WsURL,
		func(ctx context.Context, round int64) {
			if err := deps.Rounds.OpenRound(ctx, round); err != nil {
				if errors.Is(err, domain.ErrAlreadyExists) {
					return
				}
				a.logger.WarnContext(ctx, "engine: open round failed",
					slog.Int64("round", round),
					slog.String("error", err.Error()),
				)
			}
		},
		func(ctx context.Context, round int64, participant string, tickets int64) {
			if _, err := deps.Rounds.RecordPositionDelta(ctx, round, participant, tickets); err != nil {
				a.logger.WarnContext(ctx, "engine: position update failed",
					slog.Int64("round", round),
					slog.String("participant", participant),
					slog.String("error", err.Error()),
				)
			}
		},
		func(ctx context.Context, round int64, winner string) {
			a.settleAndArchive(ctx, deps, round, winner)
		},
		a.logger,
	)
	g.Go(func() error {
		defer poolFeed.Close()
		return poolFeed.Run(ctx)
	})

	// Mirror ephemeral engine facts into durable streams for replay.
	if deps.SignalBus != nil && len(a.cfg.Feed.MirrorChannels) > 0 {
		mirror := feed.NewStreamMirror(deps.SignalBus, a.cfg.Feed.MirrorChannels, a.logger)
		g.Go(func() error {
			return mirror.Run(ctx)
		})
	}

	return g.Wait()
}

// SettleMode settles a single round and exits. The round and winner come
// from the settle section of the configuration.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	round := a.cfg.Settle.Round
	winner := a.cfg.Settle.Winner
	a.logger.InfoContext(ctx, "starting settle mode",
		slog.Int64("round", round),
		slog.String("winner", winner),
	)

	report, err := deps.Settlements.SettleRound(ctx, round, winner)
	if err != nil {
		return fmt.Errorf("settle mode: round %d: %w", round, err)
	}
	a.logger.InfoContext(ctx, "settle mode finished",
		slog.Int64("round", round),
		slog.Int("processed", report.Processed),
		slog.Int("remaining", report.Remaining),
		slog.Bool("complete", report.Complete),
		slog.Int("failures", len(report.Failures)),
	)
	a.archiveRound(ctx, deps, round)
	return nil
}

// settleAndArchive settles the round triggered by a feed event and, when
// an archiver is wired, exports the round's durable state.
func (a *App) settleAndArchive(ctx context.Context, deps *Dependencies, round int64, winner string) {
	report, err := deps.Settlements.SettleRound(ctx, round, winner)
	if err != nil {
		a.logger.ErrorContext(ctx, "engine: settlement failed",
			slog.Int64("round", round),
			slog.String("winner", winner),
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.InfoContext(ctx, "engine: round settled",
		slog.Int64("round", round),
		slog.String("winner", winner),
		slog.Int("processed", report.Processed),
		slog.Bool("complete", report.Complete),
	)
	a.archiveRound(ctx, deps, round)
}

func (a *App) archiveRound(ctx context.Context, deps *Dependencies, round int64) {
	if deps.Archiver == nil {
		return
	}
	count, err := deps.Archiver.ArchiveRound(ctx, round)
	if err != nil {
		a.logger.WarnContext(ctx, "round archive failed",
			slog.Int64("round", round),
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.InfoContext(ctx, "round archived",
		slog.Int64("round", round),
		slog.Int64("records", count),
	)
}
