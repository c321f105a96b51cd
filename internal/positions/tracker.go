// Package positions implementa PositionTracker: el libro de posiciones
// abiertas indexado por mercado/ubicación/fecha de resolución, el tick de
// actualización de precio, la detección de resolución, y el flujo de P&L
// realizado hacia RiskManager, descritos en §4.8.
package positions

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazza-sg/weather-trader/internal/clock"
	"github.com/hazza-sg/weather-trader/internal/domain"
)

// Config controla el comportamiento del heurístico de resolución de respaldo.
type Config struct {
	// ResolutionHighThreshold y ResolutionLowThreshold son los umbrales de
	// precio usados para inferir el outcome de un mercado cuando el venue no
	// reporta una resolución explícita. Esto es sólo un respaldo: una
	// resolución reportada por el venue siempre tiene prioridad.
	ResolutionHighThreshold float64
	ResolutionLowThreshold  float64
}

// DefaultConfig reproduce los umbrales heurísticos del sistema original.
func DefaultConfig() Config {
	return Config{ResolutionHighThreshold: 0.95, ResolutionLowThreshold: 0.05}
}

// OnRealizedPnL se invoca con cada delta de P&L realizado (resolución o
// cierre manual), para que el llamador lo propague a RiskManager.UpdatePnL.
type OnRealizedPnL func(delta float64, at time.Time)

// OnResolution se invoca una vez por posición cuando resuelve.
type OnResolution func(domain.ResolutionEvent)

// Tracker mantiene las posiciones abiertas indexadas por varias claves y
// aplica las transiciones de estado descritas en §4.8. Todos los métodos
// son seguros para llamar desde un único goroutine de tareas programadas;
// el mutex protege sólo contra lecturas concurrentes desde el motor HTTP.
type Tracker struct {
	cfg   Config
	clock clock.Clock

	onRealizedPnL OnRealizedPnL
	onResolution  OnResolution

	mu               sync.Mutex
	byID             map[string]*domain.Position
	byMarketID       map[string][]string
	byLocation       map[string][]string
	byResolutionDate map[string][]string
	closedAt         map[string]time.Time
}

// NewTracker crea un Tracker vacío.
func NewTracker(cfg Config, c clock.Clock, onRealizedPnL OnRealizedPnL, onResolution OnResolution) *Tracker {
	return &Tracker{
		cfg:              cfg,
		clock:            c,
		onRealizedPnL:    onRealizedPnL,
		onResolution:     onResolution,
		byID:             make(map[string]*domain.Position),
		byMarketID:       make(map[string][]string),
		byLocation:       make(map[string][]string),
		byResolutionDate: make(map[string][]string),
		closedAt:         make(map[string]time.Time),
	}
}

func resolutionDateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Restore reconstruye el índice en memoria a partir de posiciones abiertas
// cargadas de ports.Storage, para que el tracking de posiciones sobreviva a
// un reinicio (§6.4). Las posiciones restauradas deben venir con Status
// OPEN; cualquier otro estado se ignora.
func (t *Tracker) Restore(positions []domain.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range positions {
		if p.Status != domain.PositionOpen {
			continue
		}
		pos := p
		t.byID[pos.PositionID] = &pos
		t.byMarketID[pos.MarketID] = append(t.byMarketID[pos.MarketID], pos.PositionID)
		t.byLocation[pos.Location] = append(t.byLocation[pos.Location], pos.PositionID)
		dateKey := resolutionDateKey(pos.ResolutionTime)
		t.byResolutionDate[dateKey] = append(t.byResolutionDate[dateKey], pos.PositionID)
	}
}

// OnFill aplica un fill de orden al libro: crea una posición nueva, o la
// combina con una posición abierta existente para el mismo mercado/token/lado
// según la regla de coste promedio ponderado.
func (t *Tracker) OnFill(market domain.MarketSpec, side domain.Side, fill domain.FillEvent) domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range t.byMarketID[market.MarketID] {
		existing := t.byID[id]
		if existing.TokenID == market.TokenYes && side == domain.SideYes && existing.Status == domain.PositionOpen {
			merged := existing.MergeFill(fill.Price, fill.Quantity)
			t.byID[id] = &merged
			return merged
		}
		if existing.TokenID == market.TokenNo && side == domain.SideNo && existing.Status == domain.PositionOpen {
			merged := existing.MergeFill(fill.Price, fill.Quantity)
			t.byID[id] = &merged
			return merged
		}
	}

	tokenID := market.TokenYes
	if side == domain.SideNo {
		tokenID = market.TokenNo
	}

	pos := domain.Position{
		PositionID:     uuid.NewString(),
		MarketID:       market.MarketID,
		TokenID:        tokenID,
		Side:           side,
		EntryPrice:     fill.Price,
		Quantity:       fill.Quantity,
		SizeUSD:        fill.Size,
		CurrentPrice:   fill.Price,
		Status:         domain.PositionOpen,
		ResolutionTime: market.ResolutionTime,
		Location:       market.Location,
		Cluster:        market.Cluster,
	}

	t.byID[pos.PositionID] = &pos
	t.byMarketID[pos.MarketID] = append(t.byMarketID[pos.MarketID], pos.PositionID)
	t.byLocation[pos.Location] = append(t.byLocation[pos.Location], pos.PositionID)
	dateKey := resolutionDateKey(pos.ResolutionTime)
	t.byResolutionDate[dateKey] = append(t.byResolutionDate[dateKey], pos.PositionID)

	return pos
}

// UpdatePrice aplica un tick de precio a toda posición abierta sobre tokenID,
// recalculando su P&L no realizado.
func (t *Tracker) UpdatePrice(tokenID string, price float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.byID {
		if p.TokenID != tokenID || p.Status != domain.PositionOpen {
			continue
		}
		p.CurrentPrice = price
		p.UnrealizedPnL = p.CalculateUnrealizedPnL()
	}
}

// CheckResolutions examina las posiciones abiertas cuya resolución venció y
// les aplica el heurístico de precio de respaldo (>=0.95 YES, <=0.05 NO). Una
// posición cuyo precio no cruza ninguno de los dos umbrales permanece abierta
// hasta que el venue reporte la resolución explícita vía ResolveMarket.
func (t *Tracker) CheckResolutions(now time.Time) []domain.ResolutionEvent {
	t.mu.Lock()
	var due []*domain.Position
	for _, p := range t.byID {
		if p.Status == domain.PositionOpen && !p.ResolutionTime.After(now) {
			due = append(due, p)
		}
	}
	t.mu.Unlock()

	var events []domain.ResolutionEvent
	for _, p := range due {
		var outcome domain.Side
		switch {
		case p.CurrentPrice >= t.cfg.ResolutionHighThreshold:
			outcome = domain.SideYes
		case p.CurrentPrice <= t.cfg.ResolutionLowThreshold:
			outcome = domain.SideNo
		default:
			continue // no venue resolution yet and price is inconclusive
		}
		if ev, ok := t.resolve(p.PositionID, outcome, now); ok {
			events = append(events, ev)
		}
	}
	return events
}

// ResolveMarket aplica la resolución autoritativa reportada por el venue a
// toda posición abierta de marketID, sin pasar por el heurístico de precio.
func (t *Tracker) ResolveMarket(marketID string, outcome domain.Side, now time.Time) []domain.ResolutionEvent {
	t.mu.Lock()
	ids := append([]string(nil), t.byMarketID[marketID]...)
	t.mu.Unlock()

	var events []domain.ResolutionEvent
	for _, id := range ids {
		t.mu.Lock()
		p, ok := t.byID[id]
		isOpen := ok && p.Status == domain.PositionOpen
		t.mu.Unlock()
		if !isOpen {
			continue
		}
		if ev, ok := t.resolve(id, outcome, now); ok {
			events = append(events, ev)
		}
	}
	return events
}

func (t *Tracker) resolve(positionID string, outcome domain.Side, at time.Time) (domain.ResolutionEvent, bool) {
	t.mu.Lock()
	p, ok := t.byID[positionID]
	if !ok || p.Status != domain.PositionOpen {
		t.mu.Unlock()
		return domain.ResolutionEvent{}, false
	}
	realized := p.RealizedOnResolution(outcome)
	p.RealizedPnL = realized
	p.Status = domain.PositionExpired
	t.closedAt[positionID] = at
	snapshot := *p
	t.mu.Unlock()

	if t.onRealizedPnL != nil {
		t.onRealizedPnL(realized, at)
	}
	event := domain.ResolutionEvent{Position: snapshot, Outcome: outcome, At: at}
	if t.onResolution != nil {
		t.onResolution(event)
	}
	return event, true
}

// Close cierra manualmente una posición abierta a exitPrice, realizando su
// P&L inmediatamente en vez de esperar a la resolución del mercado.
func (t *Tracker) Close(positionID string, exitPrice float64, at time.Time) (domain.Position, bool) {
	t.mu.Lock()
	p, ok := t.byID[positionID]
	if !ok || p.Status != domain.PositionOpen {
		t.mu.Unlock()
		return domain.Position{}, false
	}
	realized := p.RealizedOnClose(exitPrice)
	p.RealizedPnL = realized
	p.CurrentPrice = exitPrice
	p.Status = domain.PositionClosed
	t.closedAt[positionID] = at
	snapshot := *p
	t.mu.Unlock()

	if t.onRealizedPnL != nil {
		t.onRealizedPnL(realized, at)
	}
	return snapshot, true
}

// GetOpenPositions devuelve todas las posiciones OPEN actuales.
func (t *Tracker) GetOpenPositions() []domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.Position
	for _, p := range t.byID {
		if p.Status == domain.PositionOpen {
			out = append(out, *p)
		}
	}
	return out
}

// GetPositionsForMarket devuelve todas las posiciones conocidas de un mercado.
func (t *Tracker) GetPositionsForMarket(marketID string) []domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.Position
	for _, id := range t.byMarketID[marketID] {
		out = append(out, *t.byID[id])
	}
	return out
}

// GetPositionsForLocation devuelve todas las posiciones conocidas de una ubicación.
func (t *Tracker) GetPositionsForLocation(location string) []domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.Position
	for _, id := range t.byLocation[location] {
		out = append(out, *t.byID[id])
	}
	return out
}

// GetPositionsForResolutionDate devuelve todas las posiciones que resuelven en esa fecha UTC.
func (t *Tracker) GetPositionsForResolutionDate(date time.Time) []domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.Position
	for _, id := range t.byResolutionDate[resolutionDateKey(date)] {
		out = append(out, *t.byID[id])
	}
	return out
}

// Statistics cuenta las posiciones conocidas por estado.
func (t *Tracker) Statistics() map[domain.PositionStatus]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := make(map[domain.PositionStatus]int)
	for _, p := range t.byID {
		stats[p.Status]++
	}
	return stats
}

// PruneClosed elimina del índice en memoria las posiciones no-abiertas
// cerradas hace más de olderThan, para acotar la memoria de un proceso de
// larga duración. No afecta P&L ya propagado.
func (t *Tracker) PruneClosed(olderThan time.Duration) int {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, closedAt := range t.closedAt {
		if now.Sub(closedAt) < olderThan {
			continue
		}
		p, ok := t.byID[id]
		if !ok {
			delete(t.closedAt, id)
			continue
		}
		t.byMarketID[p.MarketID] = removeID(t.byMarketID[p.MarketID], id)
		t.byLocation[p.Location] = removeID(t.byLocation[p.Location], id)
		dateKey := resolutionDateKey(p.ResolutionTime)
		t.byResolutionDate[dateKey] = removeID(t.byResolutionDate[dateKey], id)
		delete(t.byID, id)
		delete(t.closedAt, id)
		removed++
	}
	return removed
}

func removeID(ids []string, target string) []string {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
