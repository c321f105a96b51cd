package edge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazza-sg/weather-trader/internal/domain"
)

func TestForecastProbability_S1ScenarioModels(t *testing.T) {
	c := NewCalculator(DefaultConfig())

	modelValues := map[string][]float64{
		"gfs":   {15, 16, 17, 18, 19},
		"ecmwf": {14, 17, 20},
	}

	prob, agreement, perModel := c.ForecastProbability(modelValues, 17, domain.CompareGTE, 0, "celsius", nil)

	require.Len(t, perModel, 2)
	assert.InDelta(t, 4.0/7.0, perModel["gfs"], 1e-9)
	assert.InDelta(t, 3.0/5.0, perModel["ecmwf"], 1e-9)
	assert.InDelta(t, 0.5857, prob, 1e-3)
	assert.Greater(t, agreement, 0.0)
}

func TestForecastProbability_EmptyEnsembleReturnsSentinel(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	prob, agreement, perModel := c.ForecastProbability(map[string][]float64{}, 17, domain.CompareGTE, 0, "celsius", nil)
	assert.Equal(t, 0.5, prob)
	assert.Equal(t, 0.0, agreement)
	assert.Empty(t, perModel)
}

func TestForecastProbability_FahrenheitThresholdConvertedForTemperatureModels(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	// threshold 32F == 0C; model name contains "temperature" so conversion applies.
	modelValues := map[string][]float64{"icon_temperature": {-1, 0, 1, 2}}
	_, _, perModel := c.ForecastProbability(modelValues, 32, domain.CompareGTE, 0, "fahrenheit", nil)
	// 3 of 4 members >= 0C after conversion -> (3+1)/(4+2)
	assert.InDelta(t, 4.0/6.0, perModel["icon_temperature"], 1e-9)
}

func TestLaplaceSmoothingBounds_PropertyP1(t *testing.T) {
	for n := 1; n <= 20; n++ {
		values := make([]float64, n)
		for i := range values {
			values[i] = float64(i)
		}
		p := exceedanceProbability(values, -1, 0, domain.CompareGTE) // all exceed
		lower := 1.0 / (float64(n) + 2)
		upper := (float64(n) + 1) / (float64(n) + 2)
		assert.Greater(t, p, lower-1e-9)
		assert.Less(t, p, upper+1e-9)
	}
}

func TestEdge_PositiveYesWhenForecastAboveMarket(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	o := c.Edge(0.5857, 0.40, 0.9, nil)
	assert.Equal(t, domain.SideYes, o.RecommendedSide)
	assert.InDelta(t, 0.4643, o.Edge, 1e-3)
	assert.InDelta(t, -0.3095, o.EdgeNo, 1e-3)
}

func TestEdge_NoSideWhenForecastBelowMarket(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	o := c.Edge(0.2, 0.6, 0.9, nil)
	assert.Equal(t, domain.SideNo, o.RecommendedSide)
	assert.Greater(t, o.Edge, 0.0)
}

func TestEdge_NoRecommendationWhenBothSidesNegative(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	o := c.Edge(0.5, 0.5, 0.9, nil)
	assert.Equal(t, domain.Side(""), o.RecommendedSide)
}

func TestEdge_PropertyP2(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	for _, tc := range []struct{ forecast, market float64 }{
		{0.7, 0.4}, {0.3, 0.6}, {0.5, 0.5}, {0.9, 0.1},
	} {
		o := c.Edge(tc.forecast, tc.market, 1, nil)
		if tc.forecast > tc.market {
			assert.Greater(t, o.EdgeYes, 0.0)
		} else {
			assert.LessOrEqual(t, o.EdgeYes, 0.0)
		}
	}
}

func TestConfidenceLevels(t *testing.T) {
	assert.Equal(t, domain.ConfidenceHigh, confidence(0.20, 0.85))
	assert.Equal(t, domain.ConfidenceMedium, confidence(0.10, 0.65))
	assert.Equal(t, domain.ConfidenceLow, confidence(0.02, 0.30))
}

func TestTradeable_DefaultThresholds(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	o := c.Edge(0.5857, 0.40, 0.9, nil)
	assert.True(t, c.Tradeable(o))

	tooSmall := c.Edge(0.41, 0.40, 0.9, nil)
	assert.False(t, c.Tradeable(tooSmall))
}

func TestBracketComparison(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	p := exceedanceProbability(values, 2, 4, domain.CompareBracket)
	// members in [2,4): 2,3 -> k=2, n=5
	assert.InDelta(t, 3.0/7.0, p, 1e-9)
}
