package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazza-sg/weather-trader/internal/adapters/storage"
	"github.com/hazza-sg/weather-trader/internal/domain"
	"github.com/hazza-sg/weather-trader/internal/ports"
)

func makeTrade(id string, pnl float64, closedAt time.Time) ports.CompletedTrade {
	return ports.CompletedTrade{
		TradeID:     id,
		MarketID:    "chicago-high-temp-2026-08-01",
		Side:        domain.SideYes,
		Size:        100,
		EntryPrice:  0.55,
		ExitPrice:   1.0,
		RealizedPnL: pnl,
		Result:      resultFor(pnl),
		OpenedAt:    closedAt.Add(-24 * time.Hour),
		ClosedAt:    closedAt,
	}
}

func resultFor(pnl float64) string {
	if pnl >= 0 {
		return "win"
	}
	return "loss"
}

func TestSQLiteStorage_SaveAndListTrades(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.SaveTrade(context.Background(), makeTrade("t1", 45, now)))
	require.NoError(t, db.SaveTrade(context.Background(), makeTrade("t2", -100, now.Add(time.Minute))))

	page, err := db.ListTrades(context.Background(), now.Add(-time.Hour), now.Add(time.Hour), "", "", "", 50)
	require.NoError(t, err)
	require.Len(t, page.Trades, 2)

	// Most recently closed first.
	assert.Equal(t, "t2", page.Trades[0].TradeID)
	assert.Equal(t, "loss", page.Trades[0].Result)
	assert.Equal(t, "t1", page.Trades[1].TradeID)
	assert.Empty(t, page.NextCursor)
}

func TestSQLiteStorage_ListTrades_FilterByResult(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.SaveTrade(context.Background(), makeTrade("win1", 50, now)))
	require.NoError(t, db.SaveTrade(context.Background(), makeTrade("loss1", -50, now)))

	page, err := db.ListTrades(context.Background(), now.Add(-time.Hour), now.Add(time.Hour), "win", "", "", 50)
	require.NoError(t, err)
	require.Len(t, page.Trades, 1)
	assert.Equal(t, "win1", page.Trades[0].TradeID)
}

func TestSQLiteStorage_ListTrades_Pagination(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		trade := makeTrade(string(rune('a'+i)), 10, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, db.SaveTrade(context.Background(), trade))
	}

	page, err := db.ListTrades(context.Background(), now.Add(-time.Hour), now.Add(time.Hour), "", "", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Trades, 2)
	require.NotEmpty(t, page.NextCursor)

	nextPage, err := db.ListTrades(context.Background(), now.Add(-time.Hour), now.Add(time.Hour), "", "", page.NextCursor, 2)
	require.NoError(t, err)
	assert.Len(t, nextPage.Trades, 1)
}

func makePosition(id string) domain.Position {
	return domain.Position{
		PositionID:     id,
		MarketID:       "chicago-high-temp-2026-08-01",
		TokenID:        "tok-yes",
		Side:           domain.SideYes,
		EntryPrice:     0.55,
		Quantity:       100,
		SizeUSD:        55,
		CurrentPrice:   0.60,
		UnrealizedPnL:  5,
		Status:         domain.PositionOpen,
		ResolutionTime: time.Now().UTC().Add(48 * time.Hour),
		Location:       "Chicago",
		Cluster:        "midwest-temp",
	}
}

func TestSQLiteStorage_PositionLifecycle(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	pos := makePosition("p1")
	require.NoError(t, db.SavePosition(ctx, pos))

	loaded, err := db.LoadOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "p1", loaded[0].PositionID)
	assert.Equal(t, domain.PositionOpen, loaded[0].Status)
	assert.InDelta(t, 0.55, loaded[0].EntryPrice, 0.001)

	// Re-save updates in place rather than duplicating the row.
	pos.CurrentPrice = 0.70
	pos.UnrealizedPnL = 15
	require.NoError(t, db.SavePosition(ctx, pos))
	loaded, err = db.LoadOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.InDelta(t, 0.70, loaded[0].CurrentPrice, 0.001)

	require.NoError(t, db.DeletePosition(ctx, "p1"))
	loaded, err = db.LoadOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSQLiteStorage_RiskSnapshotRoundTrip(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	_, found, err := db.LoadRiskSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, found, "no snapshot saved yet")

	now := time.Now().UTC().Truncate(time.Second)
	state := domain.RiskState{
		DailyPnL:          -120,
		WeeklyPnL:         -300,
		MonthlyPnL:        -800,
		TotalPnL:          4500,
		DayStart:          now.Truncate(24 * time.Hour),
		WeekStart:         now.Truncate(24 * time.Hour),
		MonthStart:        now.Truncate(24 * time.Hour),
		IsHalted:          true,
		HaltCause:         domain.HaltDailyLoss,
		HaltReason:        "daily loss limit breached",
		HaltTime:          now,
		LastLossTime:      now,
		ConsecutiveLosses: 3,
		TradeCount:        42,
		LossCount:         10,
	}
	require.NoError(t, db.SaveRiskSnapshot(ctx, state))

	loaded, found, err := db.LoadRiskSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, -120, loaded.DailyPnL, 0.01)
	assert.True(t, loaded.IsHalted)
	assert.Equal(t, domain.HaltDailyLoss, loaded.HaltCause)
	assert.Equal(t, 3, loaded.ConsecutiveLosses)

	// Saving again overwrites the single row rather than appending.
	state.IsHalted = false
	state.HaltCause = domain.HaltNone
	require.NoError(t, db.SaveRiskSnapshot(ctx, state))
	loaded, found, err = db.LoadRiskSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, loaded.IsHalted)
}

func TestSQLiteStorage_ConfigValues(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	_, found, err := db.GetConfigValue(ctx, "last_scan_cursor")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, db.SetConfigValue(ctx, "last_scan_cursor", "2026-07-31T00:00:00Z"))
	value, found, err := db.GetConfigValue(ctx, "last_scan_cursor")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2026-07-31T00:00:00Z", value)

	require.NoError(t, db.SetConfigValue(ctx, "last_scan_cursor", "2026-07-31T01:00:00Z"))
	value, _, err = db.GetConfigValue(ctx, "last_scan_cursor")
	require.NoError(t, err)
	assert.Equal(t, "2026-07-31T01:00:00Z", value)
}
