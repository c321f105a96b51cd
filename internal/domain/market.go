// Package domain contiene los tipos de datos centrales del motor: mercados,
// pronósticos, oportunidades, órdenes, posiciones y el estado de riesgo.
// Son tipos de valor puros; la lógica de negocio vive en los paquetes que
// los consumen (edge, sizing, diversification, risk, orders, positions).
package domain

import "time"

// Variable es la magnitud meteorológica que un mercado resuelve.
type Variable string

const (
	VariableTempMax Variable = "temp_max"
	VariableTempMin Variable = "temp_min"
	VariablePrecip  Variable = "precip"
	VariableBracket Variable = "bracket"
	VariableBinary  Variable = "binary"
)

// Comparison es el operador de comparación del umbral de resolución de un mercado.
type Comparison string

const (
	CompareGTE     Comparison = ">="
	CompareGT      Comparison = ">"
	CompareLTE     Comparison = "<="
	CompareLT      Comparison = "<"
	CompareBracket Comparison = "bracket" // ∈ [lower, upper)
)

// MarketSpec describe un mercado de predicción binario resuelto por clima.
// Es inmutable una vez parseado por un ports.MarketParser.
type MarketSpec struct {
	MarketID       string
	TokenYes       string
	TokenNo        string
	Location       string // clave opaca, p.ej. nombre de ciudad o estación
	Cluster        string // clave opaca o "" si no se conoce
	ResolutionTime time.Time
	Variable       Variable
	Threshold      float64
	Comparison     Comparison
	BracketUpper   float64 // sólo válido cuando Comparison == CompareBracket
	Unit           string  // "fahrenheit" | "celsius" | "mm" | "inches"
	Liquidity      float64
	YesPrice       float64 // ∈ (0,1)
}

// HoursToResolution devuelve las horas restantes hasta ResolutionTime
// vistas desde `now`. Puede ser negativo si el mercado ya debería haberse
// resuelto.
func (m MarketSpec) HoursToResolution(now time.Time) float64 {
	return m.ResolutionTime.Sub(now).Hours()
}

// EnsembleForecast agrupa las salidas de múltiples modelos numéricos para
// una ubicación y fecha objetivo dadas. Varios modelos para el mismo target
// coexisten bajo distintas claves de ModelValues.
type EnsembleForecast struct {
	Location   string
	TargetDate time.Time
	Unit       string // unidad nativa de los valores (normalmente celsius o mm)
	// ModelValues mapea model_id -> secuencia ordenada de valores de los
	// miembros del ensemble.
	ModelValues map[string][]float64
}
