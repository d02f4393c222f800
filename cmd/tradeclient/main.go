// Tradeclient - terminal client for binary-outcome prediction markets.
//
// Opens one market session: mirrors the server's order books over a
// realtime channel, derives implied YES/NO prices, and logs book and
// position state as it changes. Orders are built and confirmed through the
// same trading core the tests exercise.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/predikt/tradeclient/internal/api"
	"github.com/predikt/tradeclient/internal/config"
	"github.com/predikt/tradeclient/internal/journal"
	"github.com/predikt/tradeclient/internal/market"
	"github.com/predikt/tradeclient/internal/notify"
	"github.com/predikt/tradeclient/internal/realtime"
	"github.com/predikt/tradeclient/internal/types"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	jnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open trade journal")
	}

	notifier, err := notify.New(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init notifier")
	}

	log.Info().
		Str("version", version).
		Int64("market_id", cfg.MarketID).
		Str("api", cfg.APIBaseURL).
		Bool("telegram", notifier.Enabled()).
		Msg("📡 Tradeclient starting...")

	client := api.New(cfg.APIBaseURL, cfg.AuthToken)
	channel := realtime.New(cfg.WSBaseURL, cfg.MarketID, cfg.AuthToken)
	channel.OnState(func(s realtime.State) {
		log.Info().Stringer("state", s).Msg("Channel state")
		if s == realtime.StateDisconnected {
			notifier.ChannelDown(cfg.MarketID)
		}
	})

	view := market.NewView(client, channel, cfg.MarketID,
		market.WithPollInterval(cfg.PollInterval))

	view.OnOrderPlaced(func(req types.OrderRequest, placed *types.Order) {
		if err := jnl.RecordPlaced(req, placed); err != nil {
			log.Warn().Err(err).Msg("Journal write failed")
		}
		notifier.OrderPlaced(req, placed)
	})
	view.OnOrderFailed(func(req types.OrderRequest, submitErr error) {
		if err := jnl.RecordFailed(req, submitErr); err != nil {
			log.Warn().Err(err).Msg("Journal write failed")
		}
		notifier.OrderFailed(req, submitErr)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := view.Open(ctx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to open market view")
	}
	cancel()

	if m := view.Market(); m != nil {
		log.Info().Str("title", m.Title).Strs("outcomes", m.Outcomes).Msg("Market loaded")
	}

	sumCtx, sumCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if summary, err := client.Summary(sumCtx); err == nil {
		log.Info().
			Str("cash", summary.AvailableCash.StringFixed(2)).
			Str("locked", summary.LockedInBets.StringFixed(2)).
			Str("pnl", summary.TotalProfitLoss.StringFixed(2)).
			Msg("💾 Portfolio summary")
	} else {
		log.Warn().Err(err).Msg("Portfolio summary fetch failed")
	}
	sumCancel()

	// Log the implied pair as the book moves.
	go func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		for range ticker.C {
			yes, yesOK := view.ImpliedPrice(types.SideYes)
			no, noOK := view.ImpliedPrice(types.SideNo)
			ev := log.Info()
			if yesOK {
				ev = ev.Str("implied_yes", yes.StringFixed(4))
			}
			if noOK {
				ev = ev.Str("implied_no", no.StringFixed(4))
			}
			ev.Int("positions", len(view.Positions().All())).Msg("Book tick")

			if trades := view.Trades(); len(trades) > 0 {
				if err := jnl.RecordFills(cfg.MarketID, trades); err != nil {
					log.Debug().Err(err).Msg("Fill journal write failed")
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down...")
	view.Close()

	if placed, failed, err := jnl.Stats(); err == nil {
		log.Info().Int64("placed", placed).Int64("failed", failed).Msg("Session order stats")
	}
	if recent, err := jnl.RecentOrders(5); err == nil {
		for _, rec := range recent {
			log.Info().
				Str("status", rec.Status).
				Str("outcome", rec.Outcome).
				Str("type", rec.OrderType).
				Int64("quantity", rec.Quantity).
				Time("at", rec.CreatedAt).
				Msg("Recent order")
		}
	}
}
