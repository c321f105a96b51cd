// Package edge implementa EdgeCalculator: compara la probabilidad agregada
// de un ensemble meteorológico contra el precio de mercado para derivar un
// edge, un expected value, y un nivel de confianza.
package edge

import (
	"math"
	"strings"

	"github.com/hazza-sg/weather-trader/internal/domain"
)

// Config son los umbrales usados por IsTradeable sobre una Opportunity ya
// calculada; Calculator.Edge no los aplica, Calculator.Tradeable sí.
type Config struct {
	MinEdge         float64
	MaxEdge         float64
	MinAgreement    float64
}

// DefaultConfig reproduce los valores por defecto del sistema original.
func DefaultConfig() Config {
	return Config{MinEdge: 0.05, MaxEdge: 0.50, MinAgreement: 0.60}
}

// Calculator deriva Opportunity a partir de un MarketSpec y su EnsembleForecast.
type Calculator struct {
	cfg Config
}

// NewCalculator crea un Calculator con la configuración dada.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// ForecastProbability calcula la probabilidad agregada de un ensemble para
// un umbral y comparación dados, junto con el acuerdo entre modelos y el
// detalle por modelo. Si ningún modelo aporta valores, devuelve 0.5 como
// centinela de "sin datos" y acuerdo 0.
func (c *Calculator) ForecastProbability(modelValues map[string][]float64, threshold float64, comparison domain.Comparison, bracketUpper float64, unit string, weights map[string]float64) (prob, agreement float64, perModel map[string]float64) {
	perModel = make(map[string]float64, len(modelValues))

	for model, values := range modelValues {
		if len(values) == 0 {
			continue
		}
		adjusted := threshold
		if unit == "fahrenheit" && strings.Contains(strings.ToLower(model), "temperature") {
			adjusted = (threshold - 32) * 5 / 9
		}
		perModel[model] = exceedanceProbability(values, adjusted, bracketUpper, comparison)
	}

	if len(perModel) == 0 {
		return 0.5, 0, perModel
	}

	prob, agreement = aggregate(perModel, weights)
	return prob, agreement, perModel
}

// exceedanceProbability cuenta cuántos miembros del ensemble satisfacen la
// comparación contra threshold (o caen en [threshold, bracketUpper) para el
// caso de bracket), y aplica suavizado de Laplace: (k+1)/(n+2).
func exceedanceProbability(values []float64, threshold, bracketUpper float64, comparison domain.Comparison) float64 {
	n := len(values)
	k := 0
	for _, v := range values {
		switch comparison {
		case domain.CompareGTE:
			if v >= threshold {
				k++
			}
		case domain.CompareGT:
			if v > threshold {
				k++
			}
		case domain.CompareLTE:
			if v <= threshold {
				k++
			}
		case domain.CompareLT:
			if v < threshold {
				k++
			}
		case domain.CompareBracket:
			if v >= threshold && v < bracketUpper {
				k++
			}
		}
	}
	return (float64(k) + 1) / (float64(n) + 2)
}

// aggregate combina las probabilidades por modelo en una media ponderada y
// calcula el acuerdo entre modelos como max(0, 1 - 2*stdev). Con un único
// modelo, el acuerdo es 1.
func aggregate(perModel map[string]float64, weights map[string]float64) (prob, agreement float64) {
	totalWeight := 0.0
	weightedSum := 0.0
	for model, p := range perModel {
		w := 1.0
		if weights != nil {
			if custom, ok := weights[model]; ok {
				w = custom
			}
		}
		totalWeight += w
		weightedSum += p * w
	}
	if totalWeight <= 0 {
		return 0.5, 0
	}
	prob = weightedSum / totalWeight

	if len(perModel) <= 1 {
		return prob, 1
	}
	mean := 0.0
	for _, p := range perModel {
		mean += p
	}
	mean /= float64(len(perModel))
	variance := 0.0
	for _, p := range perModel {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(perModel) - 1)
	stdev := math.Sqrt(variance)
	agreement = math.Max(0, 1-2*stdev)
	return prob, agreement
}

// Edge calcula el edge y expected value de una Opportunity a partir de la
// probabilidad de pronóstico agregada y el precio de mercado.
func (c *Calculator) Edge(forecastProb, marketPrice, modelAgreement float64, perModel map[string]float64) domain.Opportunity {
	marketPrice = clamp(marketPrice, 0.01, 0.99)
	forecastProb = clamp(forecastProb, 0.01, 0.99)

	edgeYes := forecastProb/marketPrice - 1
	noMarketPrice := 1 - marketPrice
	noForecastProb := 1 - forecastProb
	edgeNo := noForecastProb/noMarketPrice - 1

	var side domain.Side
	var edge, ev float64

	switch {
	case edgeYes > edgeNo && edgeYes > 0:
		side = domain.SideYes
		edge = edgeYes
		ev = forecastProb*(1/marketPrice) - 1
	case edgeNo > 0:
		side = domain.SideNo
		edge = edgeNo
		ev = noForecastProb*(1/noMarketPrice) - 1
	default:
		side = ""
		edge = math.Max(edgeYes, edgeNo)
		ev = 0
	}

	return domain.Opportunity{
		ForecastProb:     forecastProb,
		MarketProb:       marketPrice,
		Edge:             edge,
		EdgeYes:          edgeYes,
		EdgeNo:           edgeNo,
		ExpectedValue:    ev,
		ModelAgreement:   modelAgreement,
		RecommendedSide:  side,
		Confidence:       confidence(edge, modelAgreement),
		ModelProbability: perModel,
	}
}

func confidence(edge, agreement float64) domain.Confidence {
	switch {
	case agreement >= 0.8 && edge >= 0.15:
		return domain.ConfidenceHigh
	case agreement >= 0.6 && edge >= 0.08:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// Tradeable aplica el predicado de negociabilidad configurado a una Opportunity ya calculada.
func (c *Calculator) Tradeable(o domain.Opportunity) bool {
	return o.IsTradeable(c.cfg.MinEdge, c.cfg.MaxEdge, c.cfg.MinAgreement)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
