// Package venue implementa ports.VenueClient (colocación, cancelación y
// consulta de órdenes contra el venue de ejecución) y ports.PriceFeed (el
// feed de precios WebSocket con reconexión automática), sobre el cliente
// HTTP compartido de internal/adapters/httpclient y el patrón de feed
// reconectable de _examples/0xtitan6-polymarket-mm/internal/exchange/ws.go.
package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/hazza-sg/weather-trader/internal/adapters/httpclient"
	"github.com/hazza-sg/weather-trader/internal/domain"
	"github.com/hazza-sg/weather-trader/internal/ports"
)

type midpointResponse struct {
	Price float64 `json:"price"`
	Found bool    `json:"found"`
}

type placeRequest struct {
	TokenID string  `json:"token_id"`
	Side    string  `json:"side"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
}

type orderResponse struct {
	OrderID     string  `json:"order_id"`
	Status      string  `json:"status"`
	FilledSize  float64 `json:"filled_size"`
	FilledPrice float64 `json:"filled_price"`
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// Client implementa ports.VenueClient.
type Client struct {
	http *httpclient.Client
}

// NewClient crea un Client apuntando a baseURL con el límite de tasa dado.
func NewClient(baseURL string, ratePerSec float64) *Client {
	return &Client{http: httpclient.New("venue", baseURL, ratePerSec, 10*time.Second)}
}

// Midpoint devuelve el precio medio actual del token, o found=false si el
// venue no tiene un mercado activo para él.
func (c *Client) Midpoint(ctx context.Context, tokenID string) (float64, bool, error) {
	url := fmt.Sprintf("%s/midpoint?token_id=%s", c.http.BaseURL(), tokenID)
	var resp midpointResponse
	if err := c.http.Get(ctx, url, &resp); err != nil {
		return 0, false, fmt.Errorf("venue.Midpoint: %w", err)
	}
	return resp.Price, resp.Found, nil
}

// Place envía una orden límite al venue.
func (c *Client) Place(ctx context.Context, tokenID string, side domain.OrderSide, price, size float64) (ports.VenueQuote, error) {
	url := fmt.Sprintf("%s/orders", c.http.BaseURL())
	req := placeRequest{TokenID: tokenID, Side: string(side), Price: price, Size: size}
	var resp orderResponse
	if err := c.http.Post(ctx, url, req, &resp); err != nil {
		return ports.VenueQuote{}, fmt.Errorf("venue.Place: %w", err)
	}
	return toQuote(resp), nil
}

// Cancel solicita la cancelación de una orden abierta; best-effort, no es
// un error si el venue ya la había cerrado.
func (c *Client) Cancel(ctx context.Context, orderID string) (bool, error) {
	url := fmt.Sprintf("%s/orders/%s/cancel", c.http.BaseURL(), orderID)
	var resp cancelResponse
	if err := c.http.Post(ctx, url, nil, &resp); err != nil {
		return false, fmt.Errorf("venue.Cancel: %w", err)
	}
	return resp.Cancelled, nil
}

// GetOrder consulta el estado actual de una orden.
func (c *Client) GetOrder(ctx context.Context, orderID string) (ports.VenueQuote, error) {
	url := fmt.Sprintf("%s/orders/%s", c.http.BaseURL(), orderID)
	var resp orderResponse
	if err := c.http.Get(ctx, url, &resp); err != nil {
		return ports.VenueQuote{}, fmt.Errorf("venue.GetOrder: %w", err)
	}
	return toQuote(resp), nil
}

func toQuote(resp orderResponse) ports.VenueQuote {
	return ports.VenueQuote{
		OrderID:     resp.OrderID,
		Status:      domain.OrderStatus(resp.Status),
		FilledSize:  resp.FilledSize,
		FilledPrice: resp.FilledPrice,
	}
}
