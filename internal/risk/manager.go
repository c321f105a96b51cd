// Package risk implementa RiskManager: contabilidad de P&L multi-horizonte
// (diario/semanal/mensual), rollover de periodos UTC, y el estado de
// halt/cooldown descrito en §4.4.
package risk

import (
	"fmt"
	"time"

	"github.com/hazza-sg/weather-trader/internal/clock"
	"github.com/hazza-sg/weather-trader/internal/domain"
)

// Config son los límites configurables de RiskManager.
type Config struct {
	InitialBankroll          float64
	MaxDailyLossPct          float64
	MaxWeeklyLossPct         float64
	MaxMonthlyLossPct        float64
	CooldownAfterLoss        time.Duration
	MaxSingleTrade           float64
	MinSingleTrade           float64
	MinHoursBeforeResolution float64
}

// DefaultConfig reproduce los límites por defecto del sistema original.
func DefaultConfig(initialBankroll float64) Config {
	return Config{
		InitialBankroll:          initialBankroll,
		MaxDailyLossPct:          0.10,
		MaxWeeklyLossPct:         0.25,
		MaxMonthlyLossPct:        0.40,
		CooldownAfterLoss:        30 * time.Minute,
		MaxSingleTrade:           10.0,
		MinSingleTrade:           1.0,
		MinHoursBeforeResolution: 12,
	}
}

// RejectReason clasifica por qué validateTrade rechazó un tamaño propuesto.
type RejectReason string

const (
	RejectNone             RejectReason = ""
	RejectHalted           RejectReason = "halted"
	RejectCooldown         RejectReason = "cooldown"
	RejectMaxTrade         RejectReason = "max_trade"
	RejectMinTrade         RejectReason = "min_trade"
	RejectTooCloseToResolve RejectReason = "too_close_to_resolution"
)

// ValidationResult es el resultado de ValidateTrade.
type ValidationResult struct {
	OK            bool
	Reason        RejectReason
	SuggestedSize float64
	Message       string
}

// Manager mantiene el RiskState y aplica las reglas de halt/cooldown.
// Todas las lecturas de "ahora" pasan por el Clock inyectado.
type Manager struct {
	cfg   Config
	clock clock.Clock
	state domain.RiskState
}

// NewManager crea un Manager con el estado inicial dado (zero-value es
// válido: se inicializa al primer rollover).
func NewManager(cfg Config, c clock.Clock, initial domain.RiskState) *Manager {
	return &Manager{cfg: cfg, clock: c, state: initial}
}

// State devuelve una copia del RiskState actual.
func (m *Manager) State() domain.RiskState {
	return m.state
}

// rollover compara `at` contra los inicios de periodo almacenados y zera
// cada periodo cuyo límite se cruzó, avanzando su inicio. El rollover
// también limpia un halt cuya causa coincide con el periodo que hizo
// rollover, excepto MONTHLY_LOSS, que nunca se auto-limpia.
func (m *Manager) rollover(at time.Time) {
	at = at.UTC()

	dayStart := startOfDay(at)
	if m.state.DayStart.IsZero() {
		m.state.DayStart = dayStart
	} else if dayStart.After(m.state.DayStart) {
		m.state.DailyPnL = 0
		m.state.DayStart = dayStart
		if m.state.HaltCause == domain.HaltDailyLoss {
			m.clearHaltInternal()
		}
	}

	weekStart := startOfWeek(at)
	if m.state.WeekStart.IsZero() {
		m.state.WeekStart = weekStart
	} else if weekStart.After(m.state.WeekStart) {
		m.state.WeeklyPnL = 0
		m.state.WeekStart = weekStart
		if m.state.HaltCause == domain.HaltWeeklyLoss {
			m.clearHaltInternal()
		}
	}

	monthStart := startOfMonth(at)
	if m.state.MonthStart.IsZero() {
		m.state.MonthStart = monthStart
	} else if monthStart.After(m.state.MonthStart) {
		m.state.MonthlyPnL = 0
		m.state.MonthStart = monthStart
		// MONTHLY_LOSS nunca se auto-limpia en rollover.
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	// time.Monday == 1; Sunday == 0. Normalizamos a offset desde lunes.
	weekday := int(d.Weekday())
	offset := (weekday + 6) % 7 // lunes -> 0
	return d.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (m *Manager) clearHaltInternal() {
	m.state.IsHalted = false
	m.state.HaltCause = domain.HaltNone
	m.state.HaltReason = ""
	m.state.HaltTime = time.Time{}
}

// UpdatePnL aplica un delta de P&L realizado a las tres ventanas y re-evalúa
// las condiciones de halt. El rollover corre primero.
func (m *Manager) UpdatePnL(delta float64, at time.Time) {
	m.rollover(at)

	m.state.DailyPnL += delta
	m.state.WeeklyPnL += delta
	m.state.MonthlyPnL += delta
	m.state.TotalPnL += delta

	m.state.TradeCount++
	if delta < 0 {
		m.state.LastLossTime = at.UTC()
		m.state.ConsecutiveLosses++
		m.state.LossCount++
	} else {
		m.state.ConsecutiveLosses = 0
	}

	m.checkHaltConditions(at)
}

// checkHaltConditions dispara un halt si alguna ventana cruzó su límite,
// en orden daily -> weekly -> monthly (el primero en la lista gana si
// varios disparan a la vez). Todos los límites usan el bankroll inicial
// como denominador.
func (m *Manager) checkHaltConditions(at time.Time) {
	bankroll0 := m.cfg.InitialBankroll

	switch {
	case m.state.DailyPnL <= -bankroll0*m.cfg.MaxDailyLossPct:
		m.setHalt(domain.HaltDailyLoss, "daily loss limit breached", at)
	case m.state.WeeklyPnL <= -bankroll0*m.cfg.MaxWeeklyLossPct:
		m.setHalt(domain.HaltWeeklyLoss, "weekly loss limit breached", at)
	case m.state.MonthlyPnL <= -bankroll0*m.cfg.MaxMonthlyLossPct:
		m.setHalt(domain.HaltMonthlyLoss, "monthly loss limit breached", at)
	}
}

func (m *Manager) setHalt(cause domain.HaltCause, reason string, at time.Time) {
	m.state.IsHalted = true
	m.state.HaltCause = cause
	m.state.HaltReason = reason
	m.state.HaltTime = at.UTC()
}

// CanTrade reporta si el motor puede emitir nuevas órdenes en este instante.
// Corre el rollover primero. Devuelve false si está halted, o si el
// cooldown posterior a la última pérdida sigue activo.
func (m *Manager) CanTrade(now time.Time) (bool, string) {
	m.rollover(now)

	if m.state.IsHalted {
		return false, fmt.Sprintf("trading halted: %s", m.state.HaltCause)
	}

	if !m.state.LastLossTime.IsZero() {
		elapsed := now.UTC().Sub(m.state.LastLossTime)
		if elapsed < m.cfg.CooldownAfterLoss {
			remaining := m.cfg.CooldownAfterLoss - elapsed
			return false, fmt.Sprintf("cooldown active, %.0f minutes remaining", remaining.Minutes())
		}
	}

	return true, ""
}

// ValidateTrade aplica CanTrade más los chequeos de tamaño y de proximidad
// a la resolución descritos en §4.4.
func (m *Manager) ValidateTrade(size float64, resolutionTime, now time.Time) ValidationResult {
	if ok, reason := m.CanTrade(now); !ok {
		return ValidationResult{OK: false, Reason: RejectHalted, Message: reason}
	}

	if size > m.cfg.MaxSingleTrade {
		return ValidationResult{OK: false, Reason: RejectMaxTrade, SuggestedSize: m.cfg.MaxSingleTrade}
	}
	if size < m.cfg.MinSingleTrade {
		return ValidationResult{OK: false, Reason: RejectMinTrade}
	}
	if resolutionTime.Sub(now).Hours() < m.cfg.MinHoursBeforeResolution {
		return ValidationResult{OK: false, Reason: RejectTooCloseToResolve}
	}

	return ValidationResult{OK: true}
}

// TriggerManualHalt impone un halt manual inmediato.
func (m *Manager) TriggerManualHalt(reason string, at time.Time) {
	m.setHalt(domain.HaltManual, reason, at)
}

// ClearHalt limpia el halt actual. Un halt MONTHLY_LOSS requiere force=true.
func (m *Manager) ClearHalt(force bool) error {
	if m.state.HaltCause == domain.HaltMonthlyLoss && !force {
		return fmt.Errorf("risk: monthly loss halt requires force clear")
	}
	m.clearHaltInternal()
	return nil
}

// ResetDaily pone a cero el P&L diario y limpia un halt DAILY_LOSS si estaba activo.
func (m *Manager) ResetDaily() {
	m.state.DailyPnL = 0
	if m.state.HaltCause == domain.HaltDailyLoss {
		m.clearHaltInternal()
	}
}

// Metrics es un snapshot de sólo lectura de las distancias a cada límite,
// usado por los eventos system_status y risk_alert.
type Metrics struct {
	DailyPnL, DailyLimit, DailyBuffer       float64
	WeeklyPnL, WeeklyLimit, WeeklyBuffer    float64
	MonthlyPnL, MonthlyLimit, MonthlyBuffer float64
	IsHalted                                bool
	HaltCause                               domain.HaltCause
	TradeCount, LossCount, ConsecutiveLosses int
}

// Metrics calcula el snapshot de métricas de riesgo actual.
func (m *Manager) Metrics() Metrics {
	bankroll0 := m.cfg.InitialBankroll
	maxDaily := bankroll0 * m.cfg.MaxDailyLossPct
	maxWeekly := bankroll0 * m.cfg.MaxWeeklyLossPct
	maxMonthly := bankroll0 * m.cfg.MaxMonthlyLossPct

	return Metrics{
		DailyPnL: m.state.DailyPnL, DailyLimit: -maxDaily, DailyBuffer: maxDaily + m.state.DailyPnL,
		WeeklyPnL: m.state.WeeklyPnL, WeeklyLimit: -maxWeekly, WeeklyBuffer: maxWeekly + m.state.WeeklyPnL,
		MonthlyPnL: m.state.MonthlyPnL, MonthlyLimit: -maxMonthly, MonthlyBuffer: maxMonthly + m.state.MonthlyPnL,
		IsHalted: m.state.IsHalted, HaltCause: m.state.HaltCause,
		TradeCount: m.state.TradeCount, LossCount: m.state.LossCount, ConsecutiveLosses: m.state.ConsecutiveLosses,
	}
}

// HaltConditionStatus describe la distancia de una condición de halt a su disparo.
type HaltConditionStatus struct {
	Triggered bool
	Message   string
}

// HaltConditionsStatus devuelve el estado de cada condición de halt evaluable.
func (m *Manager) HaltConditionsStatus() map[domain.HaltCause]HaltConditionStatus {
	bankroll0 := m.cfg.InitialBankroll
	return map[domain.HaltCause]HaltConditionStatus{
		domain.HaltDailyLoss:   {Triggered: m.state.DailyPnL <= -bankroll0*m.cfg.MaxDailyLossPct, Message: "daily loss limit"},
		domain.HaltWeeklyLoss:  {Triggered: m.state.WeeklyPnL <= -bankroll0*m.cfg.MaxWeeklyLossPct, Message: "weekly loss limit"},
		domain.HaltMonthlyLoss: {Triggered: m.state.MonthlyPnL <= -bankroll0*m.cfg.MaxMonthlyLossPct, Message: "monthly loss limit"},
	}
}
