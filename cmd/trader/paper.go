package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazza-sg/weather-trader/config"
	adapterpaper "github.com/hazza-sg/weather-trader/internal/adapters/paper"
	"github.com/hazza-sg/weather-trader/internal/adapters/venue"
	"github.com/hazza-sg/weather-trader/internal/clock"
	"github.com/hazza-sg/weather-trader/internal/engine"
	"github.com/hazza-sg/weather-trader/internal/ports"
)

// wirePaperDependencies cablea el motor contra un Venue y un PriceFeed de
// papel (internal/adapters/paper): las cotizaciones son reales, las
// colocaciones se simulan y nunca llegan a una cuenta real, tal y como el
// modo -paper del scanner original combinaba detección real con ejecución
// simulada.
func wirePaperDependencies(ctx context.Context, cfg *config.Config, c clock.Clock, discovery ports.MarketDiscovery, parser ports.MarketParser, weatherClient ports.WeatherClient, store ports.Storage, hub ports.EventBus, notifier ports.Notifier, log *slog.Logger) engine.Dependencies {
	realVenue := venue.NewClient(cfg.Venue.BaseURL, cfg.Venue.RateLimitPerSec)
	paperVenue := adapterpaper.NewVenue(realVenue, c)
	paperFeed := adapterpaper.NewPriceFeed(realVenue, c)

	go pollPaperFeed(ctx, paperFeed, log)

	return engine.Dependencies{
		Weather:   weatherClient,
		Discovery: discovery,
		Parser:    parser,
		Venue:     paperVenue,
		PriceFeed: paperFeed,
		Storage:   store,
		EventBus:  hub,
		Notifier:  notifier,
	}
}

// pollPaperFeed refresca el feed de precios de papel cada segundo hasta que
// ctx se cancela, ya que no hay una conexión WebSocket real empujando
// actualizaciones en modo simulado.
func pollPaperFeed(ctx context.Context, feed interface{ Poll(ctx context.Context) }, log *slog.Logger) {
	log.Info("paper price feed polling started", "interval", time.Second)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			feed.Poll(ctx)
		}
	}
}
