// Command trader es la composition root del motor de trading meteorológico:
// parsea flags, carga configuración, cablea los adaptadores concretos
// contra internal/ports, y arranca internal/engine, siguiendo el mismo
// patrón de main() que cmd/scanner del repositorio original (flags + Load +
// setupLogger + wiring + signal.NotifyContext), generalizado de arbitraje
// de rewards a trading de mercados meteorológicos.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazza-sg/weather-trader/config"
	"github.com/hazza-sg/weather-trader/internal/adapters/eventbus"
	"github.com/hazza-sg/weather-trader/internal/adapters/market"
	"github.com/hazza-sg/weather-trader/internal/adapters/notify"
	"github.com/hazza-sg/weather-trader/internal/adapters/storage"
	"github.com/hazza-sg/weather-trader/internal/adapters/venue"
	"github.com/hazza-sg/weather-trader/internal/adapters/weather"
	"github.com/hazza-sg/weather-trader/internal/clock"
	"github.com/hazza-sg/weather-trader/internal/diversification"
	"github.com/hazza-sg/weather-trader/internal/domain"
	"github.com/hazza-sg/weather-trader/internal/edge"
	"github.com/hazza-sg/weather-trader/internal/engine"
	"github.com/hazza-sg/weather-trader/internal/ports"
	"github.com/hazza-sg/weather-trader/internal/risk"
	"github.com/hazza-sg/weather-trader/internal/sizing"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full opportunity table instead of compact summary")
	paper := flag.Bool("paper", false, "run against a simulated venue (no real money)")
	report := flag.Bool("report", false, "print trade history report and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	log := setupLogger(cfg.Log)

	log.Info("weather-trader starting",
		"config", *configPath,
		"paper", *paper,
		"report", *report,
		"bankroll", cfg.Bankroll,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		log.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}

	notifier := notify.NewConsole(*table)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *report {
		runReport(ctx, store, notifier, log)
		store.Close()
		return
	}

	c := clock.Real{}
	hub := eventbus.NewHub()
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	httpSrv := &http.Server{Addr: cfg.EventBus.ListenAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("event bus server exited", "err", err)
		}
	}()

	discovery := market.NewDiscovery(cfg.Market.DiscoveryBaseURL, cfg.Market.RateLimitPerSec)
	parser := market.NewParser()
	weatherClient := weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.RateLimitPerSec)

	var deps engine.Dependencies
	if *paper {
		deps = wirePaperDependencies(ctx, cfg, c, discovery, parser, weatherClient, store, hub, notifier, log)
	} else {
		deps = wireLiveDependencies(ctx, cfg, discovery, parser, weatherClient, store, hub, notifier, log)
	}

	initialRisk, hadSnapshot, err := store.LoadRiskSnapshot(ctx)
	if err != nil {
		log.Warn("could not load prior risk snapshot, starting fresh", "err", err)
		initialRisk = domain.RiskState{}
	} else if hadSnapshot {
		log.Info("restored risk snapshot", "daily_pnl", initialRisk.DailyPnL, "halted", initialRisk.IsHalted)
	}

	eng := engine.New(
		engine.Config{
			Bankroll:      cfg.Bankroll,
			ScanLimit:     cfg.Market.ScanLimit,
			ScanTag:       cfg.Market.Tag,
			WeatherModels: cfg.Weather.Models,
		},
		c,
		deps,
		risk.Config{
			MaxDailyLossPct:          cfg.Risk.MaxDailyLossPct,
			MaxWeeklyLossPct:         cfg.Risk.MaxWeeklyLossPct,
			MaxMonthlyLossPct:        cfg.Risk.MaxMonthlyLossPct,
			CooldownAfterLoss:        cfg.CooldownAfterLoss(),
			MaxSingleTrade:           cfg.Risk.MaxSingleTrade,
			MinSingleTrade:           cfg.Risk.MinSingleTrade,
			MinHoursBeforeResolution: cfg.Risk.MinHoursBeforeResolution,
			InitialBankroll:          cfg.Bankroll,
		},
		sizing.Config{
			KellyFraction:       cfg.Sizing.KellyFraction,
			MaxPositionPct:      cfg.Sizing.MaxPositionPct,
			MinPosition:         cfg.Sizing.MinPosition,
			MaxPosition:         cfg.Sizing.MaxPosition,
			MaxTotalExposurePct: cfg.Sizing.MaxTotalExposurePct,
		},
		diversification.Config{
			MaxTotalExposurePct:     cfg.Diversification.MaxTotalExposurePct,
			MaxClusterExposurePct:   cfg.Diversification.MaxClusterExposurePct,
			MaxSameDayResolutionPct: cfg.Diversification.MaxSameDayResolutionPct,
			MinPositionsFor50Pct:    cfg.Diversification.MinPositionsFor50Pct,
			MinPositionsFor75Pct:    cfg.Diversification.MinPositionsFor75Pct,
			MinPositionSize:         cfg.Diversification.MinPositionSize,
		},
		edge.Config{
			MinEdge:      cfg.Edge.MinEdge,
			MaxEdge:      cfg.Edge.MaxEdge,
			MinAgreement: cfg.Edge.MinAgreement,
		},
		initialRisk,
		log,
	)

	openPositions, err := store.LoadOpenPositions(ctx)
	if err != nil {
		log.Warn("could not load open positions, starting with an empty book", "err", err)
	} else if len(openPositions) > 0 {
		eng.RestorePositions(openPositions)
		log.Info("restored open positions", "count", len(openPositions))
	}

	if err := eng.Start(ctx); err != nil {
		log.Error("failed to start engine", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("shutdown signal received, stopping engine")
	eng.Stop()
	_ = httpSrv.Close()

	log.Info("weather-trader stopped cleanly")
}

// wireLiveDependencies cablea los adaptadores reales (venue, feed WS) para
// el modo por defecto, arrancando el bucle de reconexión del PriceFeed en
// su propia goroutine como exige su doc comment.
func wireLiveDependencies(ctx context.Context, cfg *config.Config, discovery ports.MarketDiscovery, parser ports.MarketParser, weatherClient ports.WeatherClient, store ports.Storage, hub ports.EventBus, notifier ports.Notifier, log *slog.Logger) engine.Dependencies {
	venueClient := venue.NewClient(cfg.Venue.BaseURL, cfg.Venue.RateLimitPerSec)
	feed := venue.NewPriceFeed(cfg.Venue.PriceFeedWSURL)

	go func() {
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("price feed exited", "err", err)
		}
	}()

	return engine.Dependencies{
		Weather:   weatherClient,
		Discovery: discovery,
		Parser:    parser,
		Venue:     venueClient,
		PriceFeed: feed,
		Storage:   store,
		EventBus:  hub,
		Notifier:  notifier,
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
