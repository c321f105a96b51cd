package positions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazza-sg/weather-trader/internal/clock"
	"github.com/hazza-sg/weather-trader/internal/domain"
)

func newMarket(resolutionTime time.Time) domain.MarketSpec {
	return domain.MarketSpec{
		MarketID:       "mkt-nyc-tmax",
		TokenYes:       "tok-yes",
		TokenNo:        "tok-no",
		Location:       "nyc",
		Cluster:        "northeast",
		ResolutionTime: resolutionTime,
	}
}

func TestOnFill_CreatesPositionThenMergesSecondFill(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	tr := NewTracker(DefaultConfig(), c, nil, nil)

	market := newMarket(at.Add(72 * time.Hour))
	p1 := tr.OnFill(market, domain.SideYes, domain.FillEvent{Price: 0.40, Quantity: 5, Size: 2.0, At: at})
	assert.InDelta(t, 0.40, p1.EntryPrice, 1e-9)
	assert.InDelta(t, 5, p1.Quantity, 1e-9)

	p2 := tr.OnFill(market, domain.SideYes, domain.FillEvent{Price: 0.50, Quantity: 5, Size: 2.5, At: at})
	assert.InDelta(t, 10, p2.Quantity, 1e-9)
	assert.InDelta(t, 0.45, p2.EntryPrice, 1e-9) // (0.40*5 + 0.50*5) / 10
	assert.InDelta(t, 4.5, p2.SizeUSD, 1e-9)

	open := tr.GetOpenPositions()
	require.Len(t, open, 1)
}

func TestOnFill_OppositeSideOpensDistinctPosition(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	tr := NewTracker(DefaultConfig(), c, nil, nil)
	market := newMarket(at.Add(72 * time.Hour))

	tr.OnFill(market, domain.SideYes, domain.FillEvent{Price: 0.40, Quantity: 5, Size: 2.0})
	tr.OnFill(market, domain.SideNo, domain.FillEvent{Price: 0.55, Quantity: 4, Size: 2.2})

	assert.Len(t, tr.GetOpenPositions(), 2)
	assert.Len(t, tr.GetPositionsForMarket(market.MarketID), 2)
}

func TestUpdatePrice_RecomputesUnrealizedPnL(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	tr := NewTracker(DefaultConfig(), c, nil, nil)
	market := newMarket(at.Add(72 * time.Hour))

	tr.OnFill(market, domain.SideYes, domain.FillEvent{Price: 0.40, Quantity: 5, Size: 2.0})
	tr.UpdatePrice("tok-yes", 0.60, c.Now())

	open := tr.GetOpenPositions()
	require.Len(t, open, 1)
	assert.InDelta(t, 1.0, open[0].UnrealizedPnL, 1e-9) // (0.60-0.40)*5
}

func TestCheckResolutions_HeuristicHighPriceResolvesYes(t *testing.T) {
	resolveAt := time.Date(2026, 4, 4, 10, 0, 0, 0, time.UTC)
	at := resolveAt.Add(-72 * time.Hour)
	c := clock.NewFake(at)

	var realizedDeltas []float64
	var resolved []domain.ResolutionEvent
	tr := NewTracker(DefaultConfig(), c, func(delta float64, at time.Time) { realizedDeltas = append(realizedDeltas, delta) },
		func(ev domain.ResolutionEvent) { resolved = append(resolved, ev) })

	market := newMarket(resolveAt)
	tr.OnFill(market, domain.SideYes, domain.FillEvent{Price: 0.40, Quantity: 5, Size: 2.0})
	tr.UpdatePrice("tok-yes", 0.97, at)

	c.Set(resolveAt.Add(time.Minute))
	events := tr.CheckResolutions(c.Now())

	require.Len(t, events, 1)
	assert.Equal(t, domain.SideYes, events[0].Outcome)
	require.Len(t, realizedDeltas, 1)
	assert.InDelta(t, (1-0.40)*5, realizedDeltas[0], 1e-9)
	assert.Empty(t, tr.GetOpenPositions())
}

func TestCheckResolutions_InconclusivePriceStaysOpen(t *testing.T) {
	resolveAt := time.Date(2026, 4, 4, 10, 0, 0, 0, time.UTC)
	at := resolveAt.Add(-72 * time.Hour)
	c := clock.NewFake(at)
	tr := NewTracker(DefaultConfig(), c, nil, nil)

	market := newMarket(resolveAt)
	tr.OnFill(market, domain.SideYes, domain.FillEvent{Price: 0.40, Quantity: 5, Size: 2.0})
	tr.UpdatePrice("tok-yes", 0.70, at)

	c.Set(resolveAt.Add(time.Minute))
	events := tr.CheckResolutions(c.Now())

	assert.Empty(t, events)
	assert.Len(t, tr.GetOpenPositions(), 1)
}

func TestResolveMarket_AuthoritativeOutcomeOverridesHeuristic(t *testing.T) {
	resolveAt := time.Date(2026, 4, 4, 10, 0, 0, 0, time.UTC)
	at := resolveAt.Add(-72 * time.Hour)
	c := clock.NewFake(at)

	var realizedDeltas []float64
	tr := NewTracker(DefaultConfig(), c, func(delta float64, at time.Time) { realizedDeltas = append(realizedDeltas, delta) }, nil)

	market := newMarket(resolveAt)
	tr.OnFill(market, domain.SideYes, domain.FillEvent{Price: 0.40, Quantity: 5, Size: 2.0})
	tr.UpdatePrice("tok-yes", 0.70, at) // inconclusive under the heuristic

	events := tr.ResolveMarket(market.MarketID, domain.SideNo, resolveAt)
	require.Len(t, events, 1)
	assert.Equal(t, domain.SideNo, events[0].Outcome)
	assert.InDelta(t, -2.0, realizedDeltas[0], 1e-9) // loses the full cost basis
}

func TestClose_RealizesManualExit(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)

	var realizedDeltas []float64
	tr := NewTracker(DefaultConfig(), c, func(delta float64, at time.Time) { realizedDeltas = append(realizedDeltas, delta) }, nil)

	market := newMarket(at.Add(72 * time.Hour))
	p := tr.OnFill(market, domain.SideYes, domain.FillEvent{Price: 0.40, Quantity: 5, Size: 2.0})

	closed, ok := tr.Close(p.PositionID, 0.55, c.Now())
	require.True(t, ok)
	assert.Equal(t, domain.PositionClosed, closed.Status)
	require.Len(t, realizedDeltas, 1)
	assert.InDelta(t, 0.75, realizedDeltas[0], 1e-9) // (0.55-0.40)*5
	assert.Empty(t, tr.GetOpenPositions())
}

func TestPruneClosed_RemovesOldTerminalPositions(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	tr := NewTracker(DefaultConfig(), c, nil, nil)
	market := newMarket(at.Add(72 * time.Hour))

	p := tr.OnFill(market, domain.SideYes, domain.FillEvent{Price: 0.40, Quantity: 5, Size: 2.0})
	tr.Close(p.PositionID, 0.50, c.Now())

	assert.Equal(t, 0, tr.PruneClosed(time.Hour))
	c.Advance(2 * time.Hour)
	assert.Equal(t, 1, tr.PruneClosed(time.Hour))
	assert.Empty(t, tr.GetPositionsForMarket(market.MarketID))
}

func TestStatistics_CountsByStatus(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	tr := NewTracker(DefaultConfig(), c, nil, nil)
	market := newMarket(at.Add(72 * time.Hour))

	p := tr.OnFill(market, domain.SideYes, domain.FillEvent{Price: 0.40, Quantity: 5, Size: 2.0})
	tr.OnFill(market, domain.SideNo, domain.FillEvent{Price: 0.55, Quantity: 4, Size: 2.2})
	tr.Close(p.PositionID, 0.50, c.Now())

	stats := tr.Statistics()
	assert.Equal(t, 1, stats[domain.PositionClosed])
	assert.Equal(t, 1, stats[domain.PositionOpen])
}
