package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hazza-sg/weather-trader/internal/domain"
)

func TestKellyFraction_ZeroOutsideRange(t *testing.T) {
	assert.Equal(t, 0.0, KellyFraction(0, 1.5))
	assert.Equal(t, 0.0, KellyFraction(1, 1.5))
	assert.Equal(t, 0.0, KellyFraction(0.5, 0))
}

func TestSize_S1Scenario(t *testing.T) {
	s := NewSizer(DefaultConfig())
	result := s.Size(domain.SideYes, 0.5857, 0.40, 100, 0)
	assert.False(t, result.Rejected)
	assert.InDelta(t, 5.00, result.Size, 1e-6)
}

func TestSize_RejectsNegativeKelly(t *testing.T) {
	s := NewSizer(DefaultConfig())
	result := s.Size(domain.SideYes, 0.3, 0.6, 100, 0)
	assert.True(t, result.Rejected)
	assert.Equal(t, ReasonNegativeKelly, result.Reason)
}

func TestSize_RaisesToMinimumWhenFullKellySupportsIt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionPct = 0.0005 // force size below MinPosition pre-clamp
	s := NewSizer(cfg)
	result := s.Size(domain.SideYes, 0.9, 0.2, 1000, 0)
	assert.False(t, result.Rejected)
	assert.Equal(t, ReasonMinPosition, result.Reason)
	assert.Equal(t, DefaultConfig().MinPosition, result.Size)
}

func TestSize_ClampsToExposureRemainder(t *testing.T) {
	s := NewSizer(DefaultConfig())
	// bankroll 100, max exposure 75, already 74 committed -> remaining 1
	result := s.Size(domain.SideYes, 0.9, 0.2, 100, 74)
	assert.False(t, result.Rejected)
	assert.Equal(t, ReasonExposureLimit, result.Reason)
	assert.InDelta(t, 1.0, result.Size, 1e-6)
}

func TestSize_RejectsWhenNoExposureRemainder(t *testing.T) {
	s := NewSizer(DefaultConfig())
	result := s.Size(domain.SideYes, 0.9, 0.2, 100, 75)
	assert.True(t, result.Rejected)
	assert.Equal(t, ReasonExposureLimit, result.Reason)
}

func TestSize_NoSubstitutesProbabilityAndPrice(t *testing.T) {
	s := NewSizer(DefaultConfig())
	result := s.Size(domain.SideNo, 0.2, 0.6, 100, 0)
	assert.False(t, result.Rejected)
	assert.Greater(t, result.Size, 0.0)
}

func TestSize_PropertyP3_SizeInZeroOrMinMaxRange(t *testing.T) {
	s := NewSizer(DefaultConfig())
	cases := []struct {
		prob, price, bankroll, exposure float64
	}{
		{0.9, 0.2, 100, 0},
		{0.5857, 0.4, 100, 0},
		{0.99, 0.5, 10000, 0},
		{0.3, 0.6, 100, 0},
	}
	for _, c := range cases {
		r := s.Size(domain.SideYes, c.prob, c.price, c.bankroll, c.exposure)
		if r.Rejected {
			continue
		}
		cfg := DefaultConfig()
		assert.GreaterOrEqual(t, r.Size, cfg.MinPosition-1e-9)
		assert.LessOrEqual(t, r.Size, cfg.MaxPosition+1e-9)
	}
}

func TestCalculateOptimalKelly(t *testing.T) {
	f := CalculateOptimalKelly(0.6, 1.0, 1.0)
	assert.Greater(t, f, 0.0)
	assert.Equal(t, 0.0, CalculateOptimalKelly(0.6, 1.0, 0))
	assert.Equal(t, 0.0, CalculateOptimalKelly(0, 1.0, 1.0))
}
