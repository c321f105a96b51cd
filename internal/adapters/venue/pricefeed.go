package venue

// pricefeed.go implementa ports.PriceFeed: una suscripción WebSocket de
// precios en tiempo real que reconecta automáticamente con backoff
// exponencial (tope 60s, máximo 10 intentos) y re-suscribe todos los
// tokens al reconectar, tal y como exige §6.1. Grounded en el patrón de
// reconexión de _examples/0xtitan6-polymarket-mm/internal/exchange/ws.go,
// adaptado de un único canal "market" a dos canales de salida
// (precios y libro de órdenes).

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazza-sg/weather-trader/internal/ports"
)

const (
	initialBackoff  = time.Second
	maxBackoff      = 60 * time.Second
	maxReconnects   = 10
	readDeadline    = 90 * time.Second
	pingInterval    = 50 * time.Second
)

// wireMessage es la forma del mensaje JSON que el venue publica por WebSocket.
type wireMessage struct {
	Type    string  `json:"type"` // "price" | "book"
	TokenID string  `json:"token_id"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	Mid     float64 `json:"mid"`
	Bids    [][2]float64 `json:"bids"`
	Asks    [][2]float64 `json:"asks"`
}

// PriceFeed implementa ports.PriceFeed sobre una conexión WebSocket al venue.
type PriceFeed struct {
	url string

	subMu      sync.RWMutex
	subscribed map[string]bool

	connMu sync.Mutex
	conn   *websocket.Conn

	updates     chan ports.PriceUpdate
	bookUpdates chan ports.OrderBookUpdate

	reconnects int
	closed     bool
}

// NewPriceFeed crea un PriceFeed apuntando a la URL WebSocket dada. Run debe
// invocarse en su propia goroutine para mantener la conexión viva.
func NewPriceFeed(url string) *PriceFeed {
	return &PriceFeed{
		url:         url,
		subscribed:  make(map[string]bool),
		updates:     make(chan ports.PriceUpdate, 256),
		bookUpdates: make(chan ports.OrderBookUpdate, 256),
	}
}

// Updates devuelve el canal de actualizaciones de precio.
func (f *PriceFeed) Updates() <-chan ports.PriceUpdate { return f.updates }

// BookUpdates devuelve el canal de actualizaciones de libro de órdenes.
func (f *PriceFeed) BookUpdates() <-chan ports.OrderBookUpdate { return f.bookUpdates }

// Subscribe añade un token a la suscripción activa y, si hay una conexión
// viva, envía el mensaje de suscripción de inmediato.
func (f *PriceFeed) Subscribe(ctx context.Context, tokenID string) error {
	f.subMu.Lock()
	f.subscribed[tokenID] = true
	f.subMu.Unlock()

	f.connMu.Lock()
	conn := f.conn
	f.connMu.Unlock()
	if conn == nil {
		return nil // encolado: se enviará al conectar
	}
	return f.sendSubscribe(conn, []string{tokenID})
}

// Close cierra la conexión activa, si la hay, y detiene Run.
func (f *PriceFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	f.closed = true
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

// Run mantiene la conexión WebSocket viva, reconectando con backoff
// exponencial (1s -> 60s) hasta un máximo de 10 intentos consecutivos.
// Bloquea hasta que ctx se cancele, Close sea llamado, o el límite de
// reintentos se agote.
func (f *PriceFeed) Run(ctx context.Context) error {
	backoff := initialBackoff

	for {
		if f.isClosed() {
			return nil
		}

		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if f.isClosed() {
			return nil
		}

		f.reconnects++
		if f.reconnects > maxReconnects {
			return fmt.Errorf("venue.PriceFeed: exhausted %d reconnect attempts: %w", maxReconnects, err)
		}

		slog.Warn("price feed disconnected, reconnecting",
			"error", err, "attempt", f.reconnects, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (f *PriceFeed) isClosed() bool {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	return f.closed
}

func (f *PriceFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.resubscribeAll(conn); err != nil {
		return fmt.Errorf("resubscribe: %w", err)
	}
	f.reconnects = 0
	slog.Info("price feed connected", "url", f.url)

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.dispatch(raw)
	}
}

func (f *PriceFeed) resubscribeAll(conn *websocket.Conn) error {
	f.subMu.RLock()
	ids := make([]string, 0, len(f.subscribed))
	for id := range f.subscribed {
		ids = append(ids, id)
	}
	f.subMu.RUnlock()
	if len(ids) == 0 {
		return nil
	}
	return f.sendSubscribe(conn, ids)
}

func (f *PriceFeed) sendSubscribe(conn *websocket.Conn, tokenIDs []string) error {
	msg := map[string]any{"op": "subscribe", "token_ids": tokenIDs}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}

func (f *PriceFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *PriceFeed) dispatch(raw []byte) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Debug("price feed: unparseable message", "err", err)
		return
	}
	now := time.Now().UTC()
	switch msg.Type {
	case "price":
		select {
		case f.updates <- ports.PriceUpdate{TokenID: msg.TokenID, Bid: msg.Bid, Ask: msg.Ask, Mid: msg.Mid, At: now}:
		default:
			slog.Warn("price feed: updates channel full, dropping")
		}
	case "book":
		select {
		case f.bookUpdates <- ports.OrderBookUpdate{TokenID: msg.TokenID, Bids: msg.Bids, Asks: msg.Asks, At: now}:
		default:
			slog.Warn("price feed: book channel full, dropping")
		}
	}
}
