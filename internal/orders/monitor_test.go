package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazza-sg/weather-trader/internal/clock"
	"github.com/hazza-sg/weather-trader/internal/domain"
	"github.com/hazza-sg/weather-trader/internal/ports"
)

type fakeVenue struct {
	quotes    map[string]ports.VenueQuote
	cancelled map[string]bool
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{quotes: make(map[string]ports.VenueQuote), cancelled: make(map[string]bool)}
}

func (f *fakeVenue) Midpoint(ctx context.Context, tokenID string) (float64, bool, error) {
	return 0, false, nil
}

func (f *fakeVenue) Place(ctx context.Context, tokenID string, side domain.OrderSide, price, size float64) (ports.VenueQuote, error) {
	return ports.VenueQuote{}, nil
}

func (f *fakeVenue) Cancel(ctx context.Context, orderID string) (bool, error) {
	f.cancelled[orderID] = true
	return true, nil
}

func (f *fakeVenue) GetOrder(ctx context.Context, orderID string) (ports.VenueQuote, error) {
	return f.quotes[orderID], nil
}

func newOrder(id string, createdAt time.Time) domain.Order {
	return domain.Order{
		OrderID:   id,
		MarketID:  "mkt-1",
		TokenID:   "tok-yes",
		Side:      domain.OrderBuy,
		Price:     0.41,
		SizeUSD:   5.00,
		Quantity:  5.00 / 0.41,
		Status:    domain.OrderOpen,
		CreatedAt: createdAt,
	}
}

func TestPoll_S5PartialThenFullFillLifecycle(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	venue := newFakeVenue()

	var fills []domain.FillEvent
	var completed []domain.Order
	m := NewMonitor(DefaultConfig(), c, venue,
		func(f domain.FillEvent) { fills = append(fills, f) },
		func(o domain.Order) { completed = append(completed, o) },
	)

	order := newOrder("ord-1", at)
	m.AddOrder(order)

	// First poll: partial fill of 2.50 USD at 0.41.
	venue.quotes["ord-1"] = ports.VenueQuote{OrderID: "ord-1", Status: domain.OrderPartial, FilledSize: 2.50, FilledPrice: 0.41}
	require.NoError(t, m.Poll(context.Background()))

	require.Len(t, fills, 1)
	assert.InDelta(t, 2.50, fills[0].Size, 1e-9)
	assert.InDelta(t, 0.41, fills[0].Price, 1e-9)
	assert.InDelta(t, 2.50/0.41, fills[0].Quantity, 1e-6)
	assert.Empty(t, completed)

	open := m.GetOpenOrders()
	require.Len(t, open, 1)
	assert.Equal(t, domain.OrderPartial, open[0].Status)
	assert.InDelta(t, 2.50, open[0].RemainingSize(), 1e-9)

	// Second poll: fills the remainder (2.50 more, total 5.00) at the same price.
	c.Advance(15 * time.Second)
	venue.quotes["ord-1"] = ports.VenueQuote{OrderID: "ord-1", Status: domain.OrderFilled, FilledSize: 5.00, FilledPrice: 0.41}
	require.NoError(t, m.Poll(context.Background()))

	require.Len(t, fills, 2)
	totalQty := fills[0].Quantity + fills[1].Quantity
	assert.InDelta(t, 5.00/0.41, totalQty, 1e-6)

	require.Len(t, completed, 1)
	assert.Equal(t, domain.OrderFilled, completed[0].Status)
	assert.Empty(t, m.GetOpenOrders())
}

func TestPoll_ExpiresOrderPastTimeout(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	venue := newFakeVenue()

	var completed []domain.Order
	m := NewMonitor(DefaultConfig(), c, venue, nil, func(o domain.Order) { completed = append(completed, o) })
	m.AddOrder(newOrder("ord-2", at))

	c.Advance(61 * time.Minute)
	require.NoError(t, m.Poll(context.Background()))

	require.Len(t, completed, 1)
	assert.Equal(t, domain.OrderExpired, completed[0].Status)
	assert.True(t, venue.cancelled["ord-2"])
}

func TestCancel_TransitionsToCancelledOnce(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	venue := newFakeVenue()

	completeCount := 0
	m := NewMonitor(DefaultConfig(), c, venue, nil, func(o domain.Order) { completeCount++ })
	m.AddOrder(newOrder("ord-3", at))

	require.NoError(t, m.Cancel(context.Background(), "ord-3"))
	assert.Equal(t, 1, completeCount)

	// Cancelling an already-terminal order is a no-op, no duplicate callback.
	require.NoError(t, m.Cancel(context.Background(), "ord-3"))
	assert.Equal(t, 1, completeCount)
}

func TestGetOrdersForMarket_IndexesByMarket(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	m := NewMonitor(DefaultConfig(), c, newFakeVenue(), nil, nil)

	m.AddOrder(newOrder("ord-4", at))
	m.AddOrder(newOrder("ord-5", at))

	orders := m.GetOrdersForMarket("mkt-1")
	assert.Len(t, orders, 2)
}

func TestClearCompleted_RemovesOldTerminalOrders(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	m := NewMonitor(DefaultConfig(), c, newFakeVenue(), nil, nil)
	m.AddOrder(newOrder("ord-6", at))

	require.NoError(t, m.Cancel(context.Background(), "ord-6"))
	assert.Equal(t, 0, m.ClearCompleted(time.Hour))

	c.Advance(2 * time.Hour)
	assert.Equal(t, 1, m.ClearCompleted(time.Hour))
	assert.Empty(t, m.GetOrdersForMarket("mkt-1"))
}

func TestStatistics_CountsByStatus(t *testing.T) {
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	m := NewMonitor(DefaultConfig(), c, newFakeVenue(), nil, nil)
	m.AddOrder(newOrder("ord-7", at))
	m.AddOrder(newOrder("ord-8", at))

	require.NoError(t, m.Cancel(context.Background(), "ord-7"))

	stats := m.Statistics()
	assert.Equal(t, 1, stats[domain.OrderCancelled])
	assert.Equal(t, 1, stats[domain.OrderOpen])
}
