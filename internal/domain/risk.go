package domain

import "time"

// HaltCause identifica por qué RiskManager dejó de aceptar nuevas órdenes.
type HaltCause string

const (
	HaltNone        HaltCause = "NONE"
	HaltDailyLoss   HaltCause = "DAILY_LOSS"
	HaltWeeklyLoss  HaltCause = "WEEKLY_LOSS"
	HaltMonthlyLoss HaltCause = "MONTHLY_LOSS"
	HaltManual      HaltCause = "MANUAL"
	HaltSystem      HaltCause = "SYSTEM"
)

// RiskState es el estado mutable que RiskManager mantiene y que sobrevive
// entre ciclos (persistido vía ports.Storage).
type RiskState struct {
	DailyPnL   float64
	WeeklyPnL  float64
	MonthlyPnL float64
	TotalPnL   float64

	DayStart   time.Time
	WeekStart  time.Time
	MonthStart time.Time

	IsHalted      bool
	HaltCause     HaltCause
	HaltReason    string
	HaltTime      time.Time
	LastLossTime  time.Time
	ConsecutiveLosses int

	TradeCount int
	LossCount  int
}
