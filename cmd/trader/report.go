package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hazza-sg/weather-trader/internal/adapters/notify"
	"github.com/hazza-sg/weather-trader/internal/adapters/storage"
)

// runReport imprime el historial completo de trades cerrados y sale. No es
// un modo de backtesting: no simula ni recalcula nada, sólo lee lo ya
// persistido por ports.Storage durante corridas en vivo o de papel
// anteriores.
func runReport(ctx context.Context, store *storage.SQLiteStorage, notifier *notify.Console, log *slog.Logger) {
	from := time.Time{}
	to := time.Now().Add(24 * time.Hour)

	page, err := store.ListTrades(ctx, from, to, "", "", "", 500)
	if err != nil {
		log.Error("failed to list trades", "err", err)
		os.Exit(1)
	}

	completed := page.Trades
	for page.NextCursor != "" {
		page, err = store.ListTrades(ctx, from, to, "", "", page.NextCursor, 500)
		if err != nil {
			log.Error("failed to list trades", "err", err)
			os.Exit(1)
		}
		completed = append(completed, page.Trades...)
	}

	notifier.PrintTrades(completed)
}
