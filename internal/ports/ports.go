// Package ports define los contratos con los colaboradores externos del
// motor (clima, descubrimiento de mercados, venue, feed de precios,
// persistencia, bus de eventos) y con la capa de notificación. Las
// implementaciones concretas viven bajo internal/adapters.
package ports

import (
	"context"
	"time"

	"github.com/hazza-sg/weather-trader/internal/domain"
)

// RawMarket es la representación sin interpretar de un mercado tal y como
// la devuelve MarketDiscovery, antes de que MarketParser la convierta en un
// domain.MarketSpec tipado.
type RawMarket struct {
	ID       string
	Question string
	Raw      map[string]any
}

// MarketDiscovery lista mercados activos desde el venue de descubrimiento.
type MarketDiscovery interface {
	ListActive(ctx context.Context, limit int, tag string) ([]RawMarket, error)
}

// MarketParser convierte un RawMarket en un domain.MarketSpec tipado. Es
// puro y determinista: la misma entrada siempre produce la misma salida o
// el mismo (nil, error). Un mercado que no se puede interpretar (pregunta
// mal formada, variable desconocida) devuelve (nil, nil): se descarta en
// silencio, no es un error.
type MarketParser interface {
	Parse(raw RawMarket) (*domain.MarketSpec, error)
}

// WeatherClient obtiene el ensemble numérico para una ubicación/fecha/variable.
type WeatherClient interface {
	Ensemble(ctx context.Context, lat, lon float64, targetDate time.Time, models []string, variable domain.Variable) (map[string][]float64, error)
}

// VenueQuote es la respuesta de una colocación u orden existente en el venue.
type VenueQuote struct {
	OrderID     string
	Status      domain.OrderStatus
	FilledSize  float64
	FilledPrice float64
}

// VenueClient coloca, cancela y consulta órdenes contra el venue de ejecución.
type VenueClient interface {
	Midpoint(ctx context.Context, tokenID string) (float64, bool, error)
	Place(ctx context.Context, tokenID string, side domain.OrderSide, price, size float64) (VenueQuote, error)
	Cancel(ctx context.Context, orderID string) (bool, error)
	GetOrder(ctx context.Context, orderID string) (VenueQuote, error)
}

// PriceUpdate es un tick de precio emitido por un PriceFeed suscrito.
type PriceUpdate struct {
	TokenID string
	Bid     float64
	Ask     float64
	Mid     float64
	At      time.Time
}

// OrderBookUpdate es una actualización de libro emitida por un PriceFeed suscrito.
type OrderBookUpdate struct {
	TokenID string
	Bids    [][2]float64 // [price, size]
	Asks    [][2]float64
	At      time.Time
}

// PriceFeed es una suscripción WebSocket de precios en tiempo real.
// Implementaciones deben reconectar automáticamente con backoff exponencial
// (tope 60s, máx 10 intentos) y re-suscribir todos los tokens al reconectar.
type PriceFeed interface {
	Subscribe(ctx context.Context, tokenID string) error
	Updates() <-chan PriceUpdate
	BookUpdates() <-chan OrderBookUpdate
	Close() error
}

// TradePage es una página de trades completados, filtrable por ventana de
// tiempo, resultado y tipo de mercado.
type TradePage struct {
	Trades     []CompletedTrade
	NextCursor string
}

// CompletedTrade es un trade cerrado persistido para reporting/histórico.
type CompletedTrade struct {
	TradeID     string
	MarketID    string
	Side        domain.Side
	Size        float64
	EntryPrice  float64
	ExitPrice   float64
	RealizedPnL float64
	Result      string // "win" | "loss"
	OpenedAt    time.Time
	ClosedAt    time.Time
}

// Storage persiste el estado mínimo requerido por §6.4: trades completados
// (paginados), posiciones abiertas, un snapshot de riesgo, y un almacén
// clave/valor de configuración. El sistema debe poder reconstruir el
// tracking de posiciones abiertas y el estado de riesgo desde aquí tras un
// reinicio.
type Storage interface {
	SaveTrade(ctx context.Context, trade CompletedTrade) error
	ListTrades(ctx context.Context, from, to time.Time, result, marketType, cursor string, pageSize int) (TradePage, error)

	SavePosition(ctx context.Context, p domain.Position) error
	DeletePosition(ctx context.Context, positionID string) error
	LoadOpenPositions(ctx context.Context) ([]domain.Position, error)

	SaveRiskSnapshot(ctx context.Context, state domain.RiskState) error
	LoadRiskSnapshot(ctx context.Context) (domain.RiskState, bool, error)

	SetConfigValue(ctx context.Context, key, value string) error
	GetConfigValue(ctx context.Context, key string) (string, bool, error)

	Close() error
}

// EventBus publica los eventos salientes descritos en §6.2. Publish nunca
// bloquea al llamador de forma indefinida: la cola interna es acotada y un
// suscriptor lento se queda atrás sin frenar al motor.
type EventBus interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Notifier presenta resúmenes operativos (paper/backtest) al operador.
type Notifier interface {
	Notify(ctx context.Context, opportunities []domain.Opportunity) error
}
