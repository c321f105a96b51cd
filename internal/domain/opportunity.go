package domain

// Side es el lado de un mercado binario, o de una orden/posición derivada.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Confidence es el nivel de confianza que EdgeCalculator asigna a una Opportunity.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Opportunity es el resultado transitorio de evaluar un MarketSpec contra un
// EnsembleForecast en un ciclo. No se persiste entre ciclos.
type Opportunity struct {
	Market MarketSpec

	ForecastProb     float64 // agregado, Laplace-suavizado, ∈ (0,1)
	MarketProb       float64 // market_price clampeado a [0.01, 0.99]
	Edge             float64 // edge del lado recomendado
	EdgeYes          float64
	EdgeNo           float64
	ExpectedValue    float64 // EV por $ apostado en el lado recomendado
	ModelAgreement   float64 // ∈ [0,1]
	RecommendedSide  Side    // "" si no hay lado recomendado
	Confidence       Confidence
	ModelProbability map[string]float64 // por modelo, antes de agregar
}

// HasRecommendation indica si EdgeCalculator encontró un lado con edge positivo.
func (o Opportunity) HasRecommendation() bool {
	return o.RecommendedSide != ""
}

// IsTradeable aplica el predicado de negociabilidad: lado recomendado, edge
// dentro de [minEdge, maxEdge], y acuerdo de modelos >= minAgreement.
func (o Opportunity) IsTradeable(minEdge, maxEdge, minAgreement float64) bool {
	if !o.HasRecommendation() {
		return false
	}
	if o.Edge < minEdge || o.Edge > maxEdge {
		return false
	}
	return o.ModelAgreement >= minAgreement
}
