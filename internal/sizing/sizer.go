// Package sizing implementa PositionSizer: dimensiona una posición vía
// fractional Kelly, con los clamps de tamaño mínimo/máximo y de exposición
// total descritos en §4.5.
package sizing

import (
	"math"

	"github.com/hazza-sg/weather-trader/internal/domain"
)

// Config son los parámetros de sizing configurables.
type Config struct {
	KellyFraction     float64
	MaxPositionPct    float64
	MinPosition       float64
	MaxPosition       float64
	MaxTotalExposurePct float64
}

// DefaultConfig reproduce los valores por defecto del sistema original.
func DefaultConfig() Config {
	return Config{
		KellyFraction:       0.25,
		MaxPositionPct:      0.05,
		MinPosition:         1.0,
		MaxPosition:         10.0,
		MaxTotalExposurePct: 0.75,
	}
}

// RejectReason clasifica por qué un candidato no recibió tamaño, o por qué
// el tamaño fue recortado.
type RejectReason string

const (
	ReasonNone           RejectReason = ""
	ReasonNegativeKelly  RejectReason = "negative_kelly"
	ReasonNoEdge         RejectReason = "no_edge"
	ReasonBelowMinimum   RejectReason = "below_minimum"
	ReasonMinPosition    RejectReason = "min_position"
	ReasonMaxPosition    RejectReason = "max_position"
	ReasonExposureLimit  RejectReason = "exposure_limit"
)

// Result es el resultado de PositionSizer.Size.
type Result struct {
	Size             float64
	FullKellyFraction float64
	Reason           RejectReason
	Rejected         bool
}

// Sizer calcula tamaños de posición con fractional Kelly.
type Sizer struct {
	cfg Config
}

// NewSizer crea un Sizer con la configuración dada.
func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// KellyFraction calcula f* = (b*p - (1-p)) / b. Devuelve 0 si p está fuera
// de (0,1) o b no es positivo.
func KellyFraction(p, b float64) float64 {
	if p <= 0 || p >= 1 || b <= 0 {
		return 0
	}
	return (b*p - (1 - p)) / b
}

// Size calcula el tamaño en USD para un lado/probabilidad/precio de mercado
// dados, respetando el bankroll y la exposición actual ya comprometida.
func (s *Sizer) Size(side domain.Side, forecastProb, marketPrice, bankroll, currentExposure float64) Result {
	prob := forecastProb
	price := marketPrice
	if side == domain.SideNo {
		prob = 1 - forecastProb
		price = 1 - marketPrice
	}

	if price <= 0 || price >= 1 {
		return Result{Rejected: true, Reason: ReasonBelowMinimum}
	}

	netOdds := (1 - price) / price
	fullKelly := KellyFraction(prob, netOdds)
	if fullKelly <= 0 {
		return Result{Rejected: true, Reason: ReasonNegativeKelly, FullKellyFraction: fullKelly}
	}

	positionPct := math.Min(fullKelly*s.cfg.KellyFraction, s.cfg.MaxPositionPct)
	size := bankroll * positionPct
	fullKellyPosition := bankroll * fullKelly

	reason := ReasonNone

	if size < s.cfg.MinPosition {
		if fullKellyPosition >= s.cfg.MinPosition {
			size = s.cfg.MinPosition
			reason = ReasonMinPosition
		} else {
			return Result{Rejected: true, Reason: ReasonBelowMinimum, FullKellyFraction: fullKelly}
		}
	}

	if size > s.cfg.MaxPosition {
		size = s.cfg.MaxPosition
		reason = ReasonMaxPosition
	}

	maxTotalExposure := bankroll * s.cfg.MaxTotalExposurePct
	remaining := maxTotalExposure - currentExposure
	if remaining <= 0 {
		return Result{Rejected: true, Reason: ReasonExposureLimit, FullKellyFraction: fullKelly}
	}
	if size > remaining {
		size = remaining
		reason = ReasonExposureLimit
	}

	size = math.Round(size*100) / 100

	return Result{Size: size, FullKellyFraction: fullKelly, Reason: reason}
}

// SizeForOpportunity es una envoltura de conveniencia sobre Size para una
// domain.Opportunity ya calculada; devuelve el rechazo no_edge si la
// oportunidad no tiene lado recomendado.
func (s *Sizer) SizeForOpportunity(o domain.Opportunity, bankroll, currentExposure float64) Result {
	if !o.HasRecommendation() {
		return Result{Rejected: true, Reason: ReasonNoEdge}
	}
	return s.Size(o.RecommendedSide, o.ForecastProb, o.MarketProb, bankroll, currentExposure)
}

// CalculateOptimalKelly deriva la fracción de Kelly a partir de estadísticas
// históricas de rendimiento (tasa de victorias, ganancia media, pérdida
// media) en lugar de una cotización puntual. Es una herramienta de revisión
// offline del bankroll, no se usa en el ciclo de trading en vivo.
func CalculateOptimalKelly(winRate, avgWin, avgLoss float64) float64 {
	if avgLoss <= 0 || winRate <= 0 || winRate >= 1 {
		return 0
	}
	b := avgWin / avgLoss
	return KellyFraction(winRate, b)
}
