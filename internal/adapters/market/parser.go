package market

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hazza-sg/weather-trader/internal/domain"
	"github.com/hazza-sg/weather-trader/internal/ports"
)

// thresholdPattern extrae el operador y el valor numérico de una pregunta
// de mercado meteorológico, p.ej. "Will the high in Chicago be >= 90F on
// Aug 12?" o "Will it rain more than 1.5in in Miami this week?".
var thresholdPattern = regexp.MustCompile(`(?i)(>=|<=|>|<|at least|above|below|more than|less than)\s*(-?\d+(?:\.\d+)?)`)

var bracketPattern = regexp.MustCompile(`(?i)between\s+(-?\d+(?:\.\d+)?)\s+and\s+(-?\d+(?:\.\d+)?)`)

// Parser implementa ports.MarketParser. Es puro y determinista: la misma
// entrada produce siempre la misma salida, o el mismo (nil, nil) cuando la
// pregunta no encaja en ninguna forma reconocida — un mercado que no se
// puede interpretar se descarta en silencio, no es un error (§7).
type Parser struct{}

// NewParser crea un Parser sin estado.
func NewParser() *Parser { return &Parser{} }

// Parse convierte un ports.RawMarket en un domain.MarketSpec tipado.
// Los campos estructurales (tokens, ubicación, liquidez, fecha de
// resolución, precio) se leen del mapa Raw que acompaña al mercado; el
// umbral y el operador de comparación se derivan del texto de la pregunta
// cuando el venue no los expone como campos estructurados.
func (p *Parser) Parse(raw ports.RawMarket) (*domain.MarketSpec, error) {
	if raw.Raw == nil {
		return nil, nil
	}

	tokenYes, _ := raw.Raw["token_yes"].(string)
	tokenNo, _ := raw.Raw["token_no"].(string)
	location, _ := raw.Raw["location"].(string)
	if tokenYes == "" || tokenNo == "" || location == "" {
		return nil, nil // missing structural fields: not a market we can trade
	}

	resolutionTime, err := parseResolutionTime(raw.Raw["resolution_time"])
	if err != nil {
		return nil, nil
	}

	variable := parseVariable(raw.Raw["variable"])
	unit, _ := raw.Raw["unit"].(string)
	if unit == "" {
		unit = defaultUnit(variable)
	}

	comparison, threshold, bracketUpper, ok := parseThreshold(raw.Question, raw.Raw)
	if !ok {
		return nil, nil
	}

	yesPrice := floatField(raw.Raw["yes_price"])
	if yesPrice <= 0 || yesPrice >= 1 {
		yesPrice = 0.5
	}

	spec := &domain.MarketSpec{
		MarketID:       raw.ID,
		TokenYes:       tokenYes,
		TokenNo:        tokenNo,
		Location:       location,
		Cluster:        stringField(raw.Raw["cluster"]),
		ResolutionTime: resolutionTime,
		Variable:       variable,
		Threshold:      threshold,
		Comparison:     comparison,
		BracketUpper:   bracketUpper,
		Unit:           unit,
		Liquidity:      floatField(raw.Raw["liquidity"]),
		YesPrice:       yesPrice,
	}
	return spec, nil
}

func parseResolutionTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339, t)
	default:
		return time.Time{}, fmt.Errorf("market.Parse: missing or invalid resolution_time")
	}
}

func parseVariable(v any) domain.Variable {
	s, _ := v.(string)
	switch strings.ToLower(s) {
	case "temp_min", "temperature_min":
		return domain.VariableTempMin
	case "precip", "precipitation":
		return domain.VariablePrecip
	case "bracket":
		return domain.VariableBracket
	case "binary":
		return domain.VariableBinary
	default:
		return domain.VariableTempMax
	}
}

func defaultUnit(v domain.Variable) string {
	if v == domain.VariablePrecip {
		return "inches"
	}
	return "fahrenheit"
}

// parseThreshold derives the comparison operator, threshold, and (for
// bracket markets) the upper bound. Structured fields on Raw win when
// present; otherwise the question text is parsed as a fallback.
func parseThreshold(question string, raw map[string]any) (domain.Comparison, float64, float64, bool) {
	if cmp, ok := raw["comparison"].(string); ok && cmp != "" {
		threshold := floatField(raw["threshold"])
		if domain.Comparison(cmp) == domain.CompareBracket {
			return domain.CompareBracket, threshold, floatField(raw["bracket_upper"]), true
		}
		return domain.Comparison(cmp), threshold, 0, true
	}

	if m := bracketPattern.FindStringSubmatch(question); m != nil {
		lower, err1 := strconv.ParseFloat(m[1], 64)
		upper, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil {
			return domain.CompareBracket, lower, upper, true
		}
	}

	m := thresholdPattern.FindStringSubmatch(question)
	if m == nil {
		return "", 0, 0, false
	}
	value, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return "", 0, 0, false
	}
	return operatorFor(m[1]), value, 0, true
}

func operatorFor(token string) domain.Comparison {
	switch strings.ToLower(token) {
	case ">=", "at least", "above":
		return domain.CompareGTE
	case "<=", "below", "less than":
		return domain.CompareLTE
	case ">", "more than":
		return domain.CompareGT
	case "<":
		return domain.CompareLT
	default:
		return domain.CompareGTE
	}
}

func floatField(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}
