// Package eventbus implementa ports.EventBus sobre WebSocket, difundiendo
// domain.Event a los suscriptores conectados. Grounded en el patrón
// Hub/Client de
// _examples/0xtitan6-polymarket-mm/internal/api/stream.go: un goroutine
// central serializa el registro/baja de clientes y el reparto de mensajes,
// cada Client tiene su propio writePump/readPump con ping/pong. Un
// suscriptor lento se descarta en vez de frenar al publicador (§6.2).
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazza-sg/weather-trader/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

// wireEvent es la forma serializada de domain.Event sobre el wire.
type wireEvent struct {
	Channel   domain.Channel    `json:"channel"`
	Type      domain.EventType  `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]any    `json:"payload"`
}

// Client representa un suscriptor WebSocket conectado, filtrado por un
// único canal (o domain.ChannelAll para recibirlos todos).
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	channel domain.Channel
}

// Hub implementa ports.EventBus. Run debe lanzarse en su propia goroutine
// antes de Publish o ServeWS.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan domain.Event
	mu         sync.RWMutex

	upgrader websocket.Upgrader
}

// NewHub crea un Hub sin clientes conectados.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan domain.Event, sendQueueSize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run ejecuta el bucle principal del hub: registro, baja, y reparto de
// eventos a los clientes suscritos al canal correspondiente (o a "all").
// Bloquea hasta que ctx se cancele.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(event domain.Event) {
	data, err := json.Marshal(wireEvent{
		Channel:   event.Channel,
		Type:      event.Type,
		Timestamp: event.Timestamp,
		Payload:   event.Payload,
	})
	if err != nil {
		slog.Error("eventbus: failed to marshal event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.channel != domain.ChannelAll && client.channel != event.Channel {
			continue
		}
		select {
		case client.send <- data:
		default:
			slog.Warn("eventbus: subscriber too slow, dropping connection")
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

// Publish encola event para reparto. Nunca bloquea de forma indefinida: si
// la cola interna está llena, el evento más antiguo se descarta para hacer
// sitio al más reciente.
func (h *Hub) Publish(ctx context.Context, event domain.Event) error {
	select {
	case h.broadcast <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		select {
		case <-h.broadcast:
		default:
		}
		select {
		case h.broadcast <- event:
		default:
			slog.Warn("eventbus: broadcast queue saturated, dropping event", "type", event.Type)
		}
		return nil
	}
}

// ServeWS actualiza una petición HTTP a WebSocket y registra un nuevo
// suscriptor filtrado por el parámetro de consulta "channel" (por defecto
// domain.ChannelAll).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	channel := domain.Channel(r.URL.Query().Get("channel"))
	if channel == "" {
		channel = domain.ChannelAll
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("eventbus: upgrade failed", "error", err)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendQueueSize), channel: channel}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("eventbus: websocket error", "error", err)
			}
			return
		}
		// el canal es de solo lectura para el suscriptor; cualquier mensaje entrante se ignora
	}
}
