// Package weather implementa ports.WeatherClient contra una API de
// ensembles numéricos con forma Open-Meteo: un endpoint por
// ubicación/fecha objetivo que devuelve, por modelo, la serie de valores de
// los miembros del ensemble. Grounded en el cliente HTTP con rate limiting
// de internal/adapters/polymarket/client.go, generalizado en
// internal/adapters/httpclient.
package weather

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hazza-sg/weather-trader/internal/adapters/httpclient"
	"github.com/hazza-sg/weather-trader/internal/domain"
)

// ensembleResponse es la forma de la respuesta JSON del proveedor: una
// serie temporal por variable, con una columna de miembros de ensemble por
// modelo (p.ej. "temperature_2m_max_gfs_member01").
type ensembleResponse struct {
	Hourly struct {
		Time []string `json:"time"`
	} `json:"hourly"`
	HourlyUnits map[string]string `json:"hourly_units"`
	Daily       map[string][]float64 `json:"daily"`
	DailyTime   []string             `json:"daily_time"`
}

// Client implementa ports.WeatherClient.
type Client struct {
	http *httpclient.Client
}

// NewClient crea un Client apuntando a baseURL con el límite de tasa dado.
func NewClient(baseURL string, ratePerSec float64) *Client {
	return &Client{http: httpclient.New("weather", baseURL, ratePerSec, 15*time.Second)}
}

// Ensemble obtiene, para cada modelo solicitado, la secuencia de valores de
// los miembros del ensemble para la variable y fecha objetivo dadas. Un
// modelo sin datos disponibles simplemente está ausente del mapa devuelto
// (EdgeCalculator trata un ensemble vacío como un centinela, no un error).
func (c *Client) Ensemble(ctx context.Context, lat, lon float64, targetDate time.Time, models []string, variable domain.Variable) (map[string][]float64, error) {
	url := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&models=%s&start_date=%s&end_date=%s&daily=%s_member_mean",
		c.http.BaseURL(), lat, lon, strings.Join(models, ","),
		targetDate.Format("2006-01-02"), targetDate.Format("2006-01-02"), variableParam(variable))

	var resp ensembleResponse
	if err := c.http.Get(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("weather.Ensemble: %w", err)
	}

	out := make(map[string][]float64, len(models))
	targetDay := targetDate.Format("2006-01-02")
	dayIdx := -1
	for i, t := range resp.DailyTime {
		if strings.HasPrefix(t, targetDay) {
			dayIdx = i
			break
		}
	}
	if dayIdx == -1 {
		return out, nil
	}

	for _, model := range models {
		values := memberValuesForModel(resp.Daily, model, variableParam(variable), dayIdx)
		if len(values) > 0 {
			out[model] = values
		}
	}
	return out, nil
}

// variableParam mapea la Variable del dominio al nombre de campo esperado
// por la API de ensembles.
func variableParam(v domain.Variable) string {
	switch v {
	case domain.VariableTempMax:
		return "temperature_2m_max"
	case domain.VariableTempMin:
		return "temperature_2m_min"
	case domain.VariablePrecip:
		return "precipitation_sum"
	default:
		return "temperature_2m_max"
	}
}

// memberValuesForModel recolecta, para un modelo y día dados, los valores
// de cada miembro del ensemble publicados bajo claves
// "<variable>_<model>_member<NN>".
func memberValuesForModel(daily map[string][]float64, model, variable string, dayIdx int) []float64 {
	prefix := variable + "_" + model + "_member"
	var values []float64
	for key, series := range daily {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimPrefix(key, prefix)); err != nil {
			continue
		}
		if dayIdx < len(series) {
			values = append(values, series[dayIdx])
		}
	}
	return values
}
