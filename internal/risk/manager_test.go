package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazza-sg/weather-trader/internal/clock"
	"github.com/hazza-sg/weather-trader/internal/domain"
)

func newManager(t *testing.T, bankroll float64, at time.Time) (*Manager, *clock.Fake) {
	t.Helper()
	c := clock.NewFake(at)
	return NewManager(DefaultConfig(bankroll), c, domain.RiskState{}), c
}

func TestUpdatePnL_S2HaltOnDailyBreach(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m, c := newManager(t, 100, at)

	m.UpdatePnL(-3, c.Now())
	m.UpdatePnL(-3, c.Now())
	m.UpdatePnL(-5, c.Now())

	assert.InDelta(t, -11, m.State().DailyPnL, 1e-9)
	assert.Equal(t, domain.HaltDailyLoss, m.State().HaltCause)

	ok, _ := m.CanTrade(c.Now())
	assert.False(t, ok)

	c.Set(time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC))
	ok, _ = m.CanTrade(c.Now())
	assert.True(t, ok)
	assert.Equal(t, 0.0, m.State().DailyPnL)
}

func TestUpdatePnL_S3MonthlyHaltIsSticky(t *testing.T) {
	at := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	// Daily and weekly limits are raised above 40 so that only the monthly
	// limit is crossed; with the defaults the daily limit, checked first,
	// would set DAILY_LOSS instead.
	cfg := DefaultConfig(100)
	cfg.MaxDailyLossPct = 0.50
	cfg.MaxWeeklyLossPct = 0.50
	c := clock.NewFake(at)
	m := NewManager(cfg, c, domain.RiskState{})

	m.UpdatePnL(-40, c.Now())
	assert.Equal(t, domain.HaltMonthlyLoss, m.State().HaltCause)

	// daily rollover
	c.Set(time.Date(2026, 3, 6, 0, 0, 1, 0, time.UTC))
	m.rollover(c.Now())
	assert.Equal(t, domain.HaltMonthlyLoss, m.State().HaltCause)

	// weekly rollover
	c.Set(time.Date(2026, 3, 9, 0, 0, 1, 0, time.UTC)) // next Monday
	m.rollover(c.Now())
	assert.Equal(t, domain.HaltMonthlyLoss, m.State().HaltCause)

	err := m.ClearHalt(false)
	require.Error(t, err)
	assert.Equal(t, domain.HaltMonthlyLoss, m.State().HaltCause)

	err = m.ClearHalt(true)
	require.NoError(t, err)
	assert.Equal(t, domain.HaltNone, m.State().HaltCause)
}

func TestCanTrade_CooldownAfterLoss(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m, c := newManager(t, 100, at)
	m.UpdatePnL(-1, c.Now())

	ok, reason := m.CanTrade(c.Now())
	assert.False(t, ok)
	assert.Contains(t, reason, "cooldown")

	c.Advance(31 * time.Minute)
	ok, _ = m.CanTrade(c.Now())
	assert.True(t, ok)
}

func TestUpdatePnL_S6ResolutionAccounting(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m, c := newManager(t, 100, at)

	m.UpdatePnL(4.00, c.Now())
	assert.InDelta(t, 4.00, m.State().DailyPnL, 1e-9)
	assert.Equal(t, 0, m.State().ConsecutiveLosses)
}

func TestValidateTrade_RejectsAboveMaxTrade(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m, _ := newManager(t, 100, at)
	result := m.ValidateTrade(20, at.Add(72*time.Hour), at)
	assert.False(t, result.OK)
	assert.Equal(t, RejectMaxTrade, result.Reason)
	assert.Equal(t, DefaultConfig(100).MaxSingleTrade, result.SuggestedSize)
}

func TestValidateTrade_RejectsTooCloseToResolution(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m, _ := newManager(t, 100, at)
	result := m.ValidateTrade(5, at.Add(1*time.Hour), at)
	assert.False(t, result.OK)
	assert.Equal(t, RejectTooCloseToResolve, result.Reason)
}

func TestResetDaily_ClearsDailyHalt(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m, c := newManager(t, 100, at)
	m.UpdatePnL(-11, c.Now())
	require.Equal(t, domain.HaltDailyLoss, m.State().HaltCause)

	m.ResetDaily()
	assert.Equal(t, domain.HaltNone, m.State().HaltCause)
	assert.Equal(t, 0.0, m.State().DailyPnL)
}

func TestPropertyP5_DailyPnLEqualsSumSinceRollover(t *testing.T) {
	at := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	m, c := newManager(t, 1000, at)

	deltas := []float64{1.5, -2.25, 3.0, -0.75}
	sum := 0.0
	for _, d := range deltas {
		m.UpdatePnL(d, c.Now())
		sum += d
	}
	assert.InDelta(t, sum, m.State().DailyPnL, 1e-9)
}
