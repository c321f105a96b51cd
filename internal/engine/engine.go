// Package engine implementa TradingEngine, el orquestador descrito en
// §4.9: agrupa RiskManager, PositionSizer, DiversificationFilter,
// EdgeCalculator, OrderMonitor y PositionTracker detrás de un ciclo de
// trading y una máquina de estados de motor (STOPPED/ACTIVE/PAUSED), en el
// estilo de pipeline numerado de
// internal/application/engine/live/engine.go del repositorio original:
// protección → descubrimiento → verificación → mantenimiento → colocación
// → reporting, adaptado de arbitraje de rewards a edge meteorológico.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazza-sg/weather-trader/internal/clock"
	"github.com/hazza-sg/weather-trader/internal/diversification"
	"github.com/hazza-sg/weather-trader/internal/domain"
	"github.com/hazza-sg/weather-trader/internal/edge"
	"github.com/hazza-sg/weather-trader/internal/orders"
	"github.com/hazza-sg/weather-trader/internal/ports"
	"github.com/hazza-sg/weather-trader/internal/positions"
	"github.com/hazza-sg/weather-trader/internal/risk"
	"github.com/hazza-sg/weather-trader/internal/scheduler"
	"github.com/hazza-sg/weather-trader/internal/sizing"
)

// State es el estado del motor en su máquina de estados de alto nivel.
type State string

const (
	StateStopped State = "STOPPED"
	StateActive  State = "ACTIVE"
	StatePaused  State = "PAUSED"
)

// Config agrupa los parámetros de orquestación no delegados a los
// subsistemas (cada uno trae su propia Config).
type Config struct {
	Bankroll      float64
	ScanLimit     int
	ScanTag       string
	WeatherModels []string
	OrderTimeout  time.Duration
}

// Dependencies son los colaboradores externos inyectados, todos detrás de
// los puertos de internal/ports.
type Dependencies struct {
	Weather   ports.WeatherClient
	Discovery ports.MarketDiscovery
	Parser    ports.MarketParser
	Venue     ports.VenueClient
	PriceFeed ports.PriceFeed
	Storage   ports.Storage
	EventBus  ports.EventBus
	Notifier  ports.Notifier
}

// clusterMap es el ClusterLookup más simple posible: lo que el
// MarketParser asignó a cada mercado, recordado por ubicación.
type clusterMap struct {
	mu sync.RWMutex
	m  map[string]string
}

func newClusterMap() *clusterMap { return &clusterMap{m: make(map[string]string)} }

func (c *clusterMap) ClusterFor(location string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.m[location]
	return cl, ok && cl != ""
}

func (c *clusterMap) remember(location, cluster string) {
	if cluster == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[location] = cluster
}

// latlon son las coordenadas geográficas de una ubicación de mercado,
// recordadas a partir de los campos opcionales lat/lon del RawMarket en el
// último market_scan que la encontró.
type latlon struct {
	Lat, Lon float64
}

// Engine es el TradingEngine: posee todos los subsistemas centrales y el
// TaskScheduler que los dispara, y expone la superficie de control de §6.3.
type Engine struct {
	clock clock.Clock
	cfg   Config
	deps  Dependencies
	log   *slog.Logger

	risk      *risk.Manager
	sizer     *sizing.Sizer
	filter    *diversification.Filter
	calc      *edge.Calculator
	monitor   *orders.Monitor
	tracker   *positions.Tracker
	scheduler *scheduler.Scheduler
	clusters  *clusterMap

	mu        sync.Mutex
	state     State
	markets   []domain.MarketSpec
	forecasts map[string]domain.EnsembleForecast // key: location|YYYY-MM-DD
	geocode   map[string]latlon                  // key: location
	orders    map[string]orderCtx                // key: order_id

	cancel context.CancelFunc
}

// New crea un Engine cableando los cinco subsistemas centrales. El motor
// arranca en STOPPED; Start lo lleva a ACTIVE y arranca el scheduler. log
// puede ser nil, en cuyo caso se usa slog.Default().
func New(cfg Config, c clock.Clock, deps Dependencies, riskCfg risk.Config, sizingCfg sizing.Config, diversificationCfg diversification.Config, edgeCfg edge.Config, initialRisk domain.RiskState, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		clock:     c,
		cfg:       cfg,
		deps:      deps,
		log:       log,
		clusters:  newClusterMap(),
		state:     StateStopped,
		forecasts: make(map[string]domain.EnsembleForecast),
		geocode:   make(map[string]latlon),
		orders:    make(map[string]orderCtx),
	}

	e.risk = risk.NewManager(riskCfg, c, initialRisk)
	e.sizer = sizing.NewSizer(sizingCfg)
	e.filter = diversification.NewFilter(diversificationCfg, e.clusters)
	e.calc = edge.NewCalculator(edgeCfg)

	e.tracker = positions.NewTracker(positions.DefaultConfig(), c, e.onRealizedPnL, e.onResolution)

	monitorCfg := orders.DefaultConfig()
	if cfg.OrderTimeout > 0 {
		monitorCfg.DefaultTimeout = cfg.OrderTimeout
	}
	e.monitor = orders.NewMonitor(monitorCfg, c, deps.Venue, e.onFill, e.onComplete)

	e.scheduler = scheduler.New(c, time.Second)
	e.registerTasks()

	return e
}

// State devuelve el estado actual del motor.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RestorePositions reconstruye el libro de posiciones abiertas del motor a
// partir de lo cargado por la composition root desde ports.Storage al
// arrancar (§6.4). Debe llamarse antes de Start.
func (e *Engine) RestorePositions(positions []domain.Position) {
	e.tracker.Restore(positions)
}

// RiskState devuelve una copia de sólo lectura del RiskState actual, para
// los reportes de consola y el control surface de §6.3.
func (e *Engine) RiskState() domain.RiskState {
	return e.risk.State()
}

// OpenPositions devuelve las posiciones abiertas actuales del motor.
func (e *Engine) OpenPositions() []domain.Position {
	return e.tracker.GetOpenPositions()
}

func (e *Engine) registerTasks() {
	for _, task := range scheduler.DefaultTasks() {
		fn, ok := e.taskFuncFor(task.Name)
		if !ok {
			continue
		}
		e.scheduler.Register(task, fn)
	}
}

func (e *Engine) taskFuncFor(name string) (scheduler.TaskFunc, bool) {
	switch name {
	case "risk_check":
		return e.runRiskCheck, true
	case "price_update":
		return e.runPriceUpdate, true
	case "order_monitor":
		return e.monitor.Poll, true
	case "market_scan":
		return e.runMarketScan, true
	case "forecast_update":
		return e.runForecastUpdate, true
	case "trading_cycle":
		return e.runTradingCycle, true
	case "status_broadcast":
		return e.runStatusBroadcast, true
	case "metrics_log":
		return e.runMetricsLog, true
	default:
		return nil, false
	}
}

// --- control surface (§6.3) ---

// Start lleva el motor de STOPPED a ACTIVE y arranca el scheduler en tiempo real.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateActive {
		e.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.state = StateActive
	e.mu.Unlock()

	go e.scheduler.Start(runCtx)
	e.publish(domain.NewSystemStatusEvent(e.clock.Now(), "active", "engine started"))
	return nil
}

// Pause suspende el bucle de tareas sin perder estado; ACTIVE → PAUSED.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.state == StateActive {
		e.state = StatePaused
	}
	e.mu.Unlock()
	e.scheduler.Pause()
	e.publish(domain.NewSystemStatusEvent(e.clock.Now(), "paused", "engine paused"))
}

// Resume reanuda un motor en PAUSED; PAUSED → ACTIVE.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.state == StatePaused {
		e.state = StateActive
	}
	e.mu.Unlock()
	e.scheduler.Resume()
	e.publish(domain.NewSystemStatusEvent(e.clock.Now(), "active", "engine resumed"))
}

// Stop detiene el scheduler y cierra los clientes externos; cualquier
// estado → STOPPED.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.state = StateStopped
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.scheduler.Stop()
	e.monitor.CancelAll(context.Background())
	if e.deps.PriceFeed != nil {
		e.deps.PriceFeed.Close()
	}
	if e.deps.Storage != nil {
		e.deps.Storage.Close()
	}
	e.publish(domain.NewSystemStatusEvent(e.clock.Now(), "stopped", "engine stopped"))
}

// ResetDailyPnL reinicia manualmente el acumulado de P&L diario.
func (e *Engine) ResetDailyPnL() {
	e.risk.ResetDaily()
}

// ClearHalt limpia un halt activo; un halt MONTHLY_LOSS exige force=true.
func (e *Engine) ClearHalt(force bool) error {
	return e.risk.ClearHalt(force)
}

// ClosePosition cierra manualmente una posición al precio actual de mercado.
func (e *Engine) ClosePosition(ctx context.Context, positionID string) error {
	positions := e.tracker.GetOpenPositions()
	var target *domain.Position
	for i := range positions {
		if positions[i].PositionID == positionID {
			target = &positions[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("engine.ClosePosition: unknown position %q", positionID)
	}

	price, found, err := e.deps.Venue.Midpoint(ctx, target.TokenID)
	if err != nil {
		return fmt.Errorf("engine.ClosePosition: %w", err)
	}
	if !found {
		price = target.CurrentPrice
	}

	closed, ok := e.tracker.Close(positionID, price, e.clock.Now())
	if !ok {
		return fmt.Errorf("engine.ClosePosition: position %q already closed", positionID)
	}
	e.persistPosition(ctx, closed, true)
	return nil
}

// PlaceManualTrade emite una orden fuera del ciclo automático de trading,
// saltándose EdgeCalculator/PositionSizer/DiversificationFilter pero
// conservando la validación de RiskManager.
func (e *Engine) PlaceManualTrade(ctx context.Context, market domain.MarketSpec, side domain.Side, size float64, price float64) error {
	now := e.clock.Now()
	validation := e.risk.ValidateTrade(size, market.ResolutionTime, now)
	if !validation.OK {
		return fmt.Errorf("engine.PlaceManualTrade: rejected: %s", validation.Reason)
	}

	if price <= 0 {
		var found bool
		tokenID := market.TokenYes
		if side == domain.SideNo {
			tokenID = market.TokenNo
		}
		var err error
		price, found, err = e.deps.Venue.Midpoint(ctx, tokenID)
		if err != nil {
			return fmt.Errorf("engine.PlaceManualTrade: midpoint: %w", err)
		}
		if !found {
			return fmt.Errorf("engine.PlaceManualTrade: no active midpoint for %s", tokenID)
		}
	}

	return e.submitOrder(ctx, market, side, size, price, domain.OrderMeta{IsManual: true})
}
