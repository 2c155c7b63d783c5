package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sjlee-dev/coinrush/internal/domain"
	"github.com/sjlee-dev/coinrush/internal/game"
	"github.com/sjlee-dev/coinrush/internal/platform/sim"
	"github.com/sjlee-dev/coinrush/internal/platform/upbit"
	"github.com/sjlee-dev/coinrush/internal/server"
	"github.com/sjlee-dev/coinrush/internal/server/handler"
	"github.com/sjlee-dev/coinrush/internal/server/ws"
	"github.com/sjlee-dev/coinrush/internal/service"
)

// shutdownTimeout bounds graceful HTTP shutdown on exit.
const shutdownTimeout = 10 * time.Second

// rules builds the game rules from configuration.
func (a *App) rules() (service.Rules, error) {
	tiers, err := a.cfg.Game.Tiers()
	if err != nil {
		return service.Rules{}, fmt.Errorf("app: game tiers: %w", err)
	}
	return service.Rules{
		Tiers:        tiers,
		MinLeverage:  a.cfg.Game.MinLeverage,
		MaxLeverage:  a.cfg.Game.MaxLeverage,
		MaxTicks:     a.cfg.Game.MaxTicks,
		TickInterval: a.cfg.Game.TickInterval.Duration,
	}, nil
}

// ServerMode runs the full stack: the game service against the live Upbit
// feed, the WebSocket hub bridging the signal bus, and the HTTP API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	rules, err := a.rules()
	if err != nil {
		return err
	}

	source := upbit.NewClient(a.cfg.Upbit.BaseURL)
	rankSvc := service.NewRankService(deps.ScoreStore, deps.RankCache, a.cfg.Game.RankLimit, a.logger)
	gameSvc := service.NewGameService(
		rules, source, deps.PriceCache, deps.SignalBus, deps.Archiver,
		rankSvc, deps.Notifier, nil, a.logger,
	)
	defer gameSvc.Close()

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, rules, gameSvc, time.Now().UTC()),
		Sessions: handler.NewSessionHandler(gameSvc, a.logger),
		Rank:     handler.NewRankHandler(rankSvc, a.logger),
		Prices:   handler.NewPriceHandler(deps.PriceCache, a.logger),
		Stream:   handler.NewStreamHandler(gameSvc, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// SimulateMode runs a single offline session against the deterministic
// simulated price source and logs every tick. It needs no external services.
func (a *App) SimulateMode(ctx context.Context, _ *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulate mode",
		slog.Int64("seed", a.cfg.Sim.Seed),
		slog.Int64("leverage", a.cfg.Sim.Leverage),
		slog.Any("codes", a.cfg.Sim.Codes),
	)

	rules, err := a.rules()
	if err != nil {
		return err
	}
	startPrice, err := decimal.NewFromString(a.cfg.Sim.StartPrice)
	if err != nil {
		return fmt.Errorf("app: sim start price %q: %w", a.cfg.Sim.StartPrice, err)
	}
	if len(a.cfg.Sim.Codes) != 3 {
		return fmt.Errorf("app: simulate needs exactly 3 codes, got %d", len(a.cfg.Sim.Codes))
	}

	tierOrder := []string{domain.TierLarge, domain.TierMedium, domain.TierSmall}
	allocations := make([]domain.Allocation, 3)
	for i, code := range a.cfg.Sim.Codes {
		allocations[i] = domain.Allocation{Slot: i + 1, Code: code, Tier: tierOrder[i]}
	}

	sess, err := game.NewSession(game.Params{
		ID:          uuid.NewString(),
		Player:      domain.Player{Name: "simulator", StudentID: "sim"},
		Leverage:    a.cfg.Sim.Leverage,
		Allocations: allocations,
		Tiers:       rules.Tiers,
		MaxTicks:    rules.MaxTicks,
		StartedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("app: simulate session: %w", err)
	}

	source := sim.NewSource(a.cfg.Sim.Seed, startPrice)
	sched := game.NewScheduler(sess, source, nil, rules.TickInterval, a.logger,
		func(snap domain.TickSnapshot) {
			a.logger.InfoContext(ctx, "tick",
				slog.Int("n", snap.Tick),
				slog.String("balance", snap.Balance.StringFixed(0)),
				slog.Int("settlements", len(snap.Settlements)),
			)
			for _, ev := range snap.Settlements {
				a.logger.InfoContext(ctx, "settled",
					slog.Int("slot", ev.Slot),
					slog.String("code", ev.Code),
					slog.String("reason", string(ev.Reason)),
					slog.String("value", ev.Value.StringFixed(0)),
				)
			}
		})

	if err := sched.Run(ctx); err != nil {
		return err
	}

	report, ok := sess.Report(time.Now().UTC())
	if !ok {
		return fmt.Errorf("app: simulate produced no report")
	}
	a.logger.InfoContext(ctx, "simulation finished",
		slog.String("final_balance", report.FinalBalance.StringFixed(0)),
		slog.Int("ticks", report.Ticks),
	)
	return nil
}
