// Package market implementa ports.MarketDiscovery contra el venue de
// descubrimiento de mercados, siguiendo el mismo patrón de mapeo DTO→dominio
// de internal/adapters/polymarket/mapping.go del repositorio original,
// sobre el cliente HTTP compartido de internal/adapters/httpclient.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/hazza-sg/weather-trader/internal/adapters/httpclient"
	"github.com/hazza-sg/weather-trader/internal/ports"
)

// rawMarketDTO es la forma de un mercado tal y como lo devuelve el venue de
// descubrimiento, antes de pasar por MarketParser.
type rawMarketDTO struct {
	ID       string         `json:"id"`
	Question string         `json:"question"`
	Extra    map[string]any `json:"-"`
}

// UnmarshalJSON decodifica id y question y conserva el objeto completo en
// Extra, para que MarketParser pueda leer los campos estructurales.
func (m *rawMarketDTO) UnmarshalJSON(data []byte) error {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	m.ID, _ = all["id"].(string)
	m.Question, _ = all["question"].(string)
	m.Extra = all
	return nil
}

type listResponse struct {
	Markets []rawMarketDTO `json:"markets"`
}

// Discovery implementa ports.MarketDiscovery.
type Discovery struct {
	http *httpclient.Client
}

// NewDiscovery crea un Discovery apuntando a baseURL con el límite de tasa dado.
func NewDiscovery(baseURL string, ratePerSec float64) *Discovery {
	return &Discovery{http: httpclient.New("market", baseURL, ratePerSec, 10*time.Second)}
}

// ListActive lista los mercados activos, opcionalmente filtrados por tag.
func (d *Discovery) ListActive(ctx context.Context, limit int, tag string) ([]ports.RawMarket, error) {
	u := fmt.Sprintf("%s/markets?active=true&limit=%d", d.http.BaseURL(), limit)
	if tag != "" {
		u += "&tag=" + url.QueryEscape(tag)
	}

	var resp listResponse
	if err := d.http.Get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("market.ListActive: %w", err)
	}

	out := make([]ports.RawMarket, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		out = append(out, ports.RawMarket{ID: m.ID, Question: m.Question, Raw: m.Extra})
	}
	return out, nil
}
