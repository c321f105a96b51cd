// Package paper implementa un ports.VenueClient de simulación para el modo
// "paper trading" del binario cmd/trader: ningún Place llega a una cuenta
// real, pero las cotizaciones (Midpoint) se leen del venue real subyacente
// para que el edge calculado y el sizing se ejerciten contra datos de
// mercado genuinos, tal y como hacía el modo -paper del scanner original
// (ningún dinero real, pero el flujo de escaneo es el mismo).
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazza-sg/weather-trader/internal/clock"
	"github.com/hazza-sg/weather-trader/internal/domain"
	"github.com/hazza-sg/weather-trader/internal/ports"
)

// quoteSource es el subconjunto de ports.VenueClient que la simulación
// necesita para leer precios reales del mercado.
type quoteSource interface {
	Midpoint(ctx context.Context, tokenID string) (float64, bool, error)
}

// Venue implementa ports.VenueClient simulando fills inmediatos al precio
// solicitado: toda orden colocada se considera llenada por completo en el
// mismo ciclo, ya que no hay libro de órdenes real contra el que esperar
// (§1 declara fuera de alcance el matching de libro de órdenes).
type Venue struct {
	quotes quoteSource
	clock  clock.Clock

	mu     sync.Mutex
	orders map[string]ports.VenueQuote
}

// NewVenue crea un Venue de papel que lee cotizaciones de quotes (el venue
// real, de sólo lectura) y usa c para sellar los fills simulados.
func NewVenue(quotes quoteSource, c clock.Clock) *Venue {
	return &Venue{quotes: quotes, clock: c, orders: make(map[string]ports.VenueQuote)}
}

// Midpoint delega en el venue real: la simulación nunca inventa precios.
func (v *Venue) Midpoint(ctx context.Context, tokenID string) (float64, bool, error) {
	return v.quotes.Midpoint(ctx, tokenID)
}

// Place simula una colocación llenada de inmediato al precio solicitado.
func (v *Venue) Place(ctx context.Context, tokenID string, side domain.OrderSide, price, size float64) (ports.VenueQuote, error) {
	if price <= 0 || size <= 0 {
		return ports.VenueQuote{}, fmt.Errorf("paper.Place: invalid price/size for %s", tokenID)
	}
	quote := ports.VenueQuote{
		OrderID:     uuid.NewString(),
		Status:      domain.OrderFilled,
		FilledSize:  size,
		FilledPrice: price,
	}
	v.mu.Lock()
	v.orders[quote.OrderID] = quote
	v.mu.Unlock()
	return quote, nil
}

// Cancel marca como CANCELLED la orden simulada recordada y devuelve true;
// devuelve false si orderID es desconocido.
func (v *Venue) Cancel(ctx context.Context, orderID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	q, ok := v.orders[orderID]
	if !ok {
		return false, nil
	}
	q.Status = domain.OrderCancelled
	v.orders[orderID] = q
	return true, nil
}

// GetOrder devuelve el estado simulado recordado para orderID.
func (v *Venue) GetOrder(ctx context.Context, orderID string) (ports.VenueQuote, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	q, ok := v.orders[orderID]
	if !ok {
		return ports.VenueQuote{}, fmt.Errorf("paper.GetOrder: unknown order %q", orderID)
	}
	return q, nil
}

// feed implementa ports.PriceFeed en modo simulado: no hay WebSocket real,
// los precios de papel se actualizan en cada price_update tick a partir de
// la misma fuente de cotización que Midpoint, sin reconexión ni backoff
// porque no hay conexión de red que mantener.
type feed struct {
	quotes  quoteSource
	clock   clock.Clock
	mu      sync.Mutex
	tokens  map[string]bool
	updates chan ports.PriceUpdate
	books   chan ports.OrderBookUpdate
}

// NewPriceFeed crea un PriceFeed de papel respaldado por la misma fuente de
// cotizaciones que Venue.
func NewPriceFeed(quotes quoteSource, c clock.Clock) *feed {
	return &feed{
		quotes:  quotes,
		clock:   c,
		tokens:  make(map[string]bool),
		updates: make(chan ports.PriceUpdate, 64),
		books:   make(chan ports.OrderBookUpdate, 64),
	}
}

// Subscribe registra tokenID para refresco en el siguiente Poll.
func (f *feed) Subscribe(ctx context.Context, tokenID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[tokenID] = true
	return nil
}

// Updates devuelve el canal de actualizaciones de precio simuladas.
func (f *feed) Updates() <-chan ports.PriceUpdate { return f.updates }

// BookUpdates nunca emite en modo papel: no hay libro de órdenes simulado.
func (f *feed) BookUpdates() <-chan ports.OrderBookUpdate { return f.books }

// Close no cierra los canales internos ni libera nada; siempre devuelve nil.
func (f *feed) Close() error { return nil }

// Poll refresca el midpoint de cada token suscrito y lo publica como un
// PriceUpdate. Lo invoca la composition root en lugar de una goroutine de
// lectura WebSocket, ya que no hay conexión real que mantener viva.
func (f *feed) Poll(ctx context.Context) {
	f.mu.Lock()
	tokens := make([]string, 0, len(f.tokens))
	for t := range f.tokens {
		tokens = append(tokens, t)
	}
	f.mu.Unlock()

	now := f.clock.Now()
	for _, tokenID := range tokens {
		price, ok, err := f.quotes.Midpoint(ctx, tokenID)
		if err != nil || !ok {
			continue
		}
		update := ports.PriceUpdate{TokenID: tokenID, Bid: price, Ask: price, Mid: price, At: now}
		select {
		case f.updates <- update:
		default:
		}
	}
}

var _ = time.Second // mantiene el import si Poll deja de usar time directamente en el futuro
