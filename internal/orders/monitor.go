// Package orders implementa OrderMonitor: la máquina de estados de órdenes
// pendientes, detección de fills, timeouts, y entrega de callbacks
// descritas en §4.7.
package orders

import (
	"context"
	"sync"
	"time"

	"github.com/hazza-sg/weather-trader/internal/clock"
	"github.com/hazza-sg/weather-trader/internal/domain"
	"github.com/hazza-sg/weather-trader/internal/ports"
)

// Config controla los timeouts por defecto del monitor.
type Config struct {
	DefaultTimeout time.Duration
}

// DefaultConfig reproduce el timeout por defecto del sistema original (60 min).
func DefaultConfig() Config {
	return Config{DefaultTimeout: 60 * time.Minute}
}

// OnFill se invoca exactamente una vez por fill detectado.
type OnFill func(domain.FillEvent)

// OnComplete se invoca exactamente una vez por transición terminal de una orden.
type OnComplete func(domain.Order)

// Monitor rastrea órdenes no terminales y sondea al venue periódicamente.
// Todas las callbacks se invocan desde el mismo goroutine que llama a Poll,
// nunca de forma concurrente entre sí para la misma orden — esto se
// garantiza porque el scheduler (§5) ejecuta las tareas secuencialmente
// dentro de un tick.
type Monitor struct {
	cfg   Config
	clock clock.Clock
	venue ports.VenueClient

	onFill     OnFill
	onComplete OnComplete

	mu         sync.Mutex
	byOrderID  map[string]*domain.Order
	byMarketID map[string][]string
	completed  map[string]time.Time // orderID -> momento en que llegó a terminal
}

// NewMonitor crea un Monitor que sondea venue y entrega callbacks.
func NewMonitor(cfg Config, c clock.Clock, venue ports.VenueClient, onFill OnFill, onComplete OnComplete) *Monitor {
	return &Monitor{
		cfg:        cfg,
		clock:      c,
		venue:      venue,
		onFill:     onFill,
		onComplete: onComplete,
		byOrderID:  make(map[string]*domain.Order),
		byMarketID: make(map[string][]string),
		completed:  make(map[string]time.Time),
	}
}

// AddOrder enrola una orden para monitorización, indexada por order_id y por market_id.
func (m *Monitor) AddOrder(o domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order := o
	m.byOrderID[o.OrderID] = &order
	m.byMarketID[o.MarketID] = append(m.byMarketID[o.MarketID], o.OrderID)
}

// GetOpenOrders devuelve las órdenes no terminales actualmente monitorizadas.
func (m *Monitor) GetOpenOrders() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.byOrderID {
		if !o.Status.IsTerminal() {
			out = append(out, *o)
		}
	}
	return out
}

// GetOrdersForMarket devuelve todas las órdenes conocidas para un mercado.
func (m *Monitor) GetOrdersForMarket(marketID string) []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, id := range m.byMarketID[marketID] {
		if o, ok := m.byOrderID[id]; ok {
			out = append(out, *o)
		}
	}
	return out
}

// GetPendingSize suma el USD pendiente de llenar entre todas las órdenes no terminales.
func (m *Monitor) GetPendingSize() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for _, o := range m.byOrderID {
		if !o.Status.IsTerminal() {
			total += o.RemainingSize()
		}
	}
	return total
}

// Poll sondea el venue para cada orden no terminal y procesa su actualización.
// Se invoca desde la tarea order_monitor cada 15s.
func (m *Monitor) Poll(ctx context.Context) error {
	now := m.clock.Now()

	m.mu.Lock()
	pending := make([]*domain.Order, 0, len(m.byOrderID))
	for _, o := range m.byOrderID {
		if !o.Status.IsTerminal() {
			pending = append(pending, o)
		}
	}
	m.mu.Unlock()

	for _, o := range pending {
		if m.checkTimeout(ctx, o, now) {
			continue
		}
		quote, err := m.venue.GetOrder(ctx, o.OrderID)
		if err != nil {
			continue // upstream I/O failure: retried by the owning task, not fatal here
		}
		m.processUpdate(o, quote, now)
	}
	return nil
}

func (m *Monitor) checkTimeout(ctx context.Context, o *domain.Order, now time.Time) bool {
	deadline := o.CreatedAt.Add(m.cfg.DefaultTimeout)
	if o.ExpiresAt != nil {
		deadline = *o.ExpiresAt
	}
	if now.Before(deadline) {
		return false
	}
	_, _ = m.venue.Cancel(ctx, o.OrderID) // best-effort
	m.transition(o, domain.OrderExpired, now)
	return true
}

// processUpdate aplica la actualización reportada por el venue. quote.FilledPrice
// es el precio promedio sobre el total llenado hasta ahora, no el precio del
// incremento — el precio y la cantidad del nuevo fill se derivan diferenciando
// el coste total acumulado antes y después de la actualización.
func (m *Monitor) processUpdate(o *domain.Order, quote ports.VenueQuote, now time.Time) {
	if quote.FilledSize > o.FilledSize {
		oldCost := o.FilledSize * o.AvgFillPrice
		newCost := quote.FilledSize * quote.FilledPrice
		deltaSize := quote.FilledSize - o.FilledSize
		deltaCost := newCost - oldCost

		price := quote.FilledPrice
		if deltaSize > 0 {
			price = deltaCost / deltaSize
		}
		qty := 0.0
		if price > 0 {
			qty = deltaSize / price
		}

		m.mu.Lock()
		o.FilledSize = quote.FilledSize
		o.FilledQty += qty
		o.AvgFillPrice = quote.FilledPrice
		m.mu.Unlock()

		if m.onFill != nil {
			m.onFill(domain.FillEvent{OrderID: o.OrderID, Price: price, Quantity: qty, Size: deltaSize, At: now})
		}
	}

	if quote.Status != "" && quote.Status != o.Status {
		m.transition(o, quote.Status, now)
		return
	}
}

// transition actualiza el estado de una orden y, si es terminal, entrega onComplete.
func (m *Monitor) transition(o *domain.Order, status domain.OrderStatus, now time.Time) {
	m.mu.Lock()
	wasTerminal := o.Status.IsTerminal()
	o.Status = status
	nowTerminal := o.Status.IsTerminal()
	if nowTerminal && !wasTerminal {
		m.completed[o.OrderID] = now
	}
	snapshot := *o
	m.mu.Unlock()

	if nowTerminal && !wasTerminal && m.onComplete != nil {
		m.onComplete(snapshot)
	}
}

// Cancel transiciona una orden OPEN/PARTIAL a CANCELLED, con mejor esfuerzo
// de cancelación en el venue, y entrega onComplete.
func (m *Monitor) Cancel(ctx context.Context, orderID string) error {
	m.mu.Lock()
	o, ok := m.byOrderID[orderID]
	terminal := ok && o.Status.IsTerminal()
	m.mu.Unlock()
	if !ok || terminal {
		return nil
	}
	_, _ = m.venue.Cancel(ctx, orderID)
	m.transition(o, domain.OrderCancelled, m.clock.Now())
	return nil
}

// CancelAll cancela todas las órdenes no terminales actualmente monitorizadas.
func (m *Monitor) CancelAll(ctx context.Context) {
	for _, o := range m.GetOpenOrders() {
		_ = m.Cancel(ctx, o.OrderID)
	}
}

// Statistics cuenta las órdenes conocidas por estado.
func (m *Monitor) Statistics() map[domain.OrderStatus]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[domain.OrderStatus]int)
	for _, o := range m.byOrderID {
		stats[o.Status]++
	}
	return stats
}

// ClearCompleted elimina del índice en memoria las órdenes que llegaron a un
// estado terminal hace más de olderThan, para acotar la memoria de un
// proceso de larga duración. No afecta P&L ni la máquina de estados.
func (m *Monitor) ClearCompleted(olderThan time.Duration) int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for orderID, completedAt := range m.completed {
		if now.Sub(completedAt) < olderThan {
			continue
		}
		if o, ok := m.byOrderID[orderID]; ok {
			ids := m.byMarketID[o.MarketID]
			for i, id := range ids {
				if id == orderID {
					m.byMarketID[o.MarketID] = append(ids[:i], ids[i+1:]...)
					break
				}
			}
		}
		delete(m.byOrderID, orderID)
		delete(m.completed, orderID)
		removed++
	}
	return removed
}
