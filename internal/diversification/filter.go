// Package diversification implementa DiversificationFilter: limita la
// exposición de un candidato de trade según los topes totales, por cluster
// geográfico y por fecha de resolución del portfolio actual.
package diversification

import (
	"fmt"
	"time"

	"github.com/hazza-sg/weather-trader/internal/domain"
)

// Config son los parámetros configurables del filtro.
type Config struct {
	MaxTotalExposurePct     float64
	MaxClusterExposurePct   float64
	MaxSameDayResolutionPct float64
	MinPositionsFor50Pct    int
	MinPositionsFor75Pct    int
	MinPositionSize         float64
}

// DefaultConfig reproduce los valores por defecto del sistema original.
func DefaultConfig() Config {
	return Config{
		MaxTotalExposurePct:     0.75,
		MaxClusterExposurePct:   0.30,
		MaxSameDayResolutionPct: 0.40,
		MinPositionsFor50Pct:    2,
		MinPositionsFor75Pct:    3,
		MinPositionSize:         1.0,
	}
}

// ClusterLookup resuelve la ubicación opaca de un mercado a un cluster
// geográfico opaco. Una ubicación desconocida devuelve ("", false): el
// candidato participa en los chequeos de exposición total y same-day, pero
// no en el chequeo de cluster.
type ClusterLookup interface {
	ClusterFor(location string) (string, bool)
}

// Candidate es el trade propuesto que se evalúa contra el Portfolio.
type Candidate struct {
	MarketID       string
	Location       string
	Cluster        string // si no vacío, tiene prioridad sobre ClusterLookup
	ProposedSize   float64
	ResolutionDate time.Time
	Side           domain.Side
}

// Portfolio es el estado agregado de las posiciones abiertas necesario para
// evaluar los límites de diversificación.
type Portfolio struct {
	TotalExposure          float64
	ClusterExposure        map[string]float64
	ResolutionDateExposure map[string]float64
	UniqueClusters         map[string]struct{}
}

// NewPortfolio crea un Portfolio vacío listo para acumular posiciones.
func NewPortfolio() *Portfolio {
	return &Portfolio{
		ClusterExposure:        make(map[string]float64),
		ResolutionDateExposure: make(map[string]float64),
		UniqueClusters:         make(map[string]struct{}),
	}
}

// Add incorpora una posición abierta al agregado del portfolio.
func (p *Portfolio) Add(pos domain.Position) {
	p.TotalExposure += pos.SizeUSD
	if pos.Cluster != "" {
		p.ClusterExposure[pos.Cluster] += pos.SizeUSD
		p.UniqueClusters[pos.Cluster] = struct{}{}
	}
	dateKey := pos.ResolutionTime.Format("2006-01-02")
	p.ResolutionDateExposure[dateKey] += pos.SizeUSD
}

// Result es el resultado de comprobar un Candidate contra el Portfolio.
type Result struct {
	Allowed            bool
	Reason             string
	MaxAllowedSize     float64
	ConstraintsApplied []string
}

// Filter aplica los chequeos de diversificación en orden, cada uno capaz de
// reducir MaxAllowedSize o rechazar el candidato por completo.
type Filter struct {
	cfg     Config
	cluster ClusterLookup
}

// NewFilter crea un Filter con la configuración y el lookup de clusters dados.
func NewFilter(cfg Config, lookup ClusterLookup) *Filter {
	return &Filter{cfg: cfg, cluster: lookup}
}

// Check evalúa el candidato contra el portfolio actual y el bankroll,
// aplicando en orden: tope total, tope de cluster, tope same-day, pisos de
// diversidad de cluster, y el tamaño mínimo remanente.
func (f *Filter) Check(candidate Candidate, portfolio *Portfolio, bankroll float64) Result {
	maxAllowed := candidate.ProposedSize
	var applied []string

	maxTotal := bankroll * f.cfg.MaxTotalExposurePct

	if portfolio.TotalExposure >= maxTotal {
		return Result{Allowed: false, Reason: "maximum total exposure reached", MaxAllowedSize: 0, ConstraintsApplied: []string{"total_exposure"}}
	}
	remainingCapacity := maxTotal - portfolio.TotalExposure
	if maxAllowed > remainingCapacity {
		maxAllowed = remainingCapacity
		applied = append(applied, "total_exposure")
	}

	cluster := f.resolveCluster(candidate)

	if cluster != "" && portfolio.TotalExposure > 0 && portfolio.ClusterExposure[cluster] > 0 {
		clusterLimit := portfolio.TotalExposure * f.cfg.MaxClusterExposurePct
		clusterRemaining := clusterLimit - portfolio.ClusterExposure[cluster]
		if clusterRemaining <= 0 {
			return Result{Allowed: false, Reason: fmt.Sprintf("cluster %s at maximum exposure", cluster), MaxAllowedSize: 0, ConstraintsApplied: []string{"cluster_limit"}}
		}
		if maxAllowed > clusterRemaining {
			maxAllowed = clusterRemaining
			applied = append(applied, "cluster_limit")
		}
	}

	dateKey := candidate.ResolutionDate.Format("2006-01-02")
	if portfolio.TotalExposure > 0 {
		sameDayLimit := portfolio.TotalExposure * f.cfg.MaxSameDayResolutionPct
		sameDayRemaining := sameDayLimit - portfolio.ResolutionDateExposure[dateKey]
		if sameDayRemaining <= 0 {
			return Result{Allowed: false, Reason: fmt.Sprintf("same-day resolution limit reached for %s", dateKey), MaxAllowedSize: 0, ConstraintsApplied: []string{"same_day_limit"}}
		}
		if maxAllowed > sameDayRemaining {
			maxAllowed = sameDayRemaining
			applied = append(applied, "same_day_limit")
		}
	}

	if res := f.checkClusterDiversity(candidate, cluster, portfolio, maxTotal, maxAllowed); res != nil {
		if !res.Allowed {
			return *res
		}
		if res.MaxAllowedSize < maxAllowed {
			maxAllowed = res.MaxAllowedSize
			applied = append(applied, res.ConstraintsApplied...)
		}
	}

	if maxAllowed < f.cfg.MinPositionSize {
		return Result{Allowed: false, Reason: "remaining capacity below minimum position size", MaxAllowedSize: 0, ConstraintsApplied: applied}
	}

	return Result{Allowed: true, Reason: "diversification check passed", MaxAllowedSize: maxAllowed, ConstraintsApplied: applied}
}

func (f *Filter) resolveCluster(candidate Candidate) string {
	if candidate.Cluster != "" {
		return candidate.Cluster
	}
	if f.cluster == nil {
		return ""
	}
	if c, ok := f.cluster.ClusterFor(candidate.Location); ok {
		return c
	}
	return ""
}

// checkClusterDiversity aplica los pisos de 50%/75% de despliegue. Devuelve
// nil si ningún piso aplica.
func (f *Filter) checkClusterDiversity(candidate Candidate, cluster string, portfolio *Portfolio, maxTotal, currentMaxAllowed float64) *Result {
	nClusters := len(portfolio.UniqueClusters)
	_, addsNewCluster := portfolio.UniqueClusters[cluster]
	addsNewCluster = cluster != "" && !addsNewCluster

	newExposure := portfolio.TotalExposure + currentMaxAllowed
	newExposurePct := 0.0
	if maxTotal > 0 {
		newExposurePct = newExposure / maxTotal
	}

	if newExposurePct > 0.50 && nClusters < f.cfg.MinPositionsFor50Pct && !addsNewCluster {
		capSize := maxTotal*0.50 - portfolio.TotalExposure
		if capSize <= 0 {
			return &Result{Allowed: false, Reason: fmt.Sprintf("need positions in %d clusters before exceeding 50%% deployment", f.cfg.MinPositionsFor50Pct), MaxAllowedSize: 0, ConstraintsApplied: []string{"cluster_diversity_50"}}
		}
		return &Result{Allowed: true, Reason: "capped at 50% deployment", MaxAllowedSize: capSize, ConstraintsApplied: []string{"cluster_diversity_50"}}
	}

	if newExposurePct > 0.75 && nClusters < f.cfg.MinPositionsFor75Pct {
		capSize := maxTotal*0.75 - portfolio.TotalExposure
		if capSize <= 0 {
			return &Result{Allowed: false, Reason: fmt.Sprintf("need positions in %d clusters for full deployment", f.cfg.MinPositionsFor75Pct), MaxAllowedSize: 0, ConstraintsApplied: []string{"cluster_diversity_75"}}
		}
		return &Result{Allowed: true, Reason: "capped at 75% deployment", MaxAllowedSize: capSize, ConstraintsApplied: []string{"cluster_diversity_75"}}
	}

	return nil
}

// ExposureSummary es un desglose de diagnóstico de sólo lectura de la
// exposición actual frente a los límites configurados.
type ExposureSummary struct {
	TotalExposure   float64
	MaxExposure     float64
	ExposurePct     float64
	ClusterExposure map[string]ClusterBreakdown
	SameDayExposure map[string]ClusterBreakdown
	UniqueClusters  int
}

// ClusterBreakdown es la exposición actual de un cluster o fecha frente a su límite.
type ClusterBreakdown struct {
	Current float64
	Limit   float64
	Pct     float64
}

// ExposureSummary calcula el diagnóstico de exposición del portfolio dado.
func (f *Filter) ExposureSummary(portfolio *Portfolio, bankroll float64) ExposureSummary {
	maxTotal := bankroll * f.cfg.MaxTotalExposurePct
	summary := ExposureSummary{
		TotalExposure:   portfolio.TotalExposure,
		MaxExposure:     maxTotal,
		ClusterExposure: make(map[string]ClusterBreakdown, len(portfolio.ClusterExposure)),
		SameDayExposure: make(map[string]ClusterBreakdown, len(portfolio.ResolutionDateExposure)),
		UniqueClusters:  len(portfolio.UniqueClusters),
	}
	if maxTotal > 0 {
		summary.ExposurePct = portfolio.TotalExposure / maxTotal
	}
	for cluster, exposure := range portfolio.ClusterExposure {
		limit := portfolio.TotalExposure * f.cfg.MaxClusterExposurePct
		bd := ClusterBreakdown{Current: exposure, Limit: limit}
		if limit > 0 {
			bd.Pct = exposure / limit
		}
		summary.ClusterExposure[cluster] = bd
	}
	for date, exposure := range portfolio.ResolutionDateExposure {
		limit := portfolio.TotalExposure * f.cfg.MaxSameDayResolutionPct
		bd := ClusterBreakdown{Current: exposure, Limit: limit}
		if limit > 0 {
			bd.Pct = exposure / limit
		}
		summary.SameDayExposure[date] = bd
	}
	return summary
}
