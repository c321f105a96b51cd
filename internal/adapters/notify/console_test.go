package notify_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazza-sg/weather-trader/internal/adapters/notify"
	"github.com/hazza-sg/weather-trader/internal/domain"
	"github.com/hazza-sg/weather-trader/internal/ports"
)

func makeOpp(location string, edge float64, recommended bool) domain.Opportunity {
	opp := domain.Opportunity{
		Market: domain.MarketSpec{
			MarketID: "chicago-high-temp",
			Location: location,
			Variable: domain.VariableTempMax,
		},
		ForecastProb:   0.62,
		MarketProb:     0.55,
		Edge:           edge,
		ExpectedValue:  edge * 0.8,
		ModelAgreement: 0.8,
		Confidence:     domain.ConfidenceMedium,
	}
	if recommended {
		opp.RecommendedSide = domain.SideYes
	}
	return opp
}

func TestConsole_Notify_NoOpportunities(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, c.Notify(context.Background(), nil))
	assert.Contains(t, buf.String(), "no opportunities found")
}

func TestConsole_Notify_Compact(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	opps := []domain.Opportunity{
		makeOpp("Chicago", 0.08, true),
		makeOpp("Miami", 0.02, false),
	}
	require.NoError(t, c.Notify(context.Background(), opps))

	out := buf.String()
	assert.Contains(t, out, "2 mkts scanned, 1 tradeable")
	assert.Contains(t, out, "Chicago")
	assert.Contains(t, out, "YES")
}

func TestConsole_Notify_Table(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	opps := []domain.Opportunity{makeOpp("Chicago", 0.08, true)}
	require.NoError(t, c.Notify(context.Background(), opps))

	out := buf.String()
	assert.True(t, strings.Contains(out, "Forecast"))
	assert.True(t, strings.Contains(out, "Chicago"))
}

func TestConsole_PrintLiveReport(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	c.PrintLiveReport(notify.LiveReportInput{
		Risk: domain.RiskState{
			DailyPnL:  -50,
			WeeklyPnL: 120,
			IsHalted:  false,
		},
		OpenPositions: []domain.Position{
			{PositionID: "p1", MarketID: "chicago-high-temp", Side: domain.SideYes,
				Quantity: 100, EntryPrice: 0.55, CurrentPrice: 0.60, UnrealizedPnL: 5},
		},
		EngineState: "ACTIVE",
	})

	out := buf.String()
	assert.Contains(t, out, "engine:ACTIVE")
	assert.Contains(t, out, "1 open positions")
}

func TestConsole_PrintLiveReport_Halted(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	c.PrintLiveReport(notify.LiveReportInput{
		Risk: domain.RiskState{
			IsHalted:   true,
			HaltCause:  domain.HaltDailyLoss,
			HaltReason: "daily loss limit breached",
			HaltTime:   time.Now(),
		},
		EngineState: "PAUSED",
	})

	out := buf.String()
	assert.Contains(t, out, "HALTED")
	assert.Contains(t, out, "daily loss limit breached")
}

func TestConsole_PrintTrades(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	trades := []ports.CompletedTrade{
		{TradeID: "t1", MarketID: "chicago-high-temp", Side: domain.SideYes, Size: 100,
			EntryPrice: 0.55, ExitPrice: 1.0, RealizedPnL: 45, Result: "win"},
		{TradeID: "t2", MarketID: "miami-rain", Side: domain.SideNo, Size: 50,
			EntryPrice: 0.40, ExitPrice: 0.0, RealizedPnL: -20, Result: "loss"},
	}
	c.PrintTrades(trades)

	out := buf.String()
	assert.Contains(t, out, "2 trades, 1 wins")
	assert.Contains(t, out, "total realized pnl $25.00")
}

func TestConsole_PrintTrades_Empty(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)
	c.PrintTrades(nil)
	assert.Contains(t, buf.String(), "no completed trades")
}
