package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hazza-sg/weather-trader/internal/diversification"
	"github.com/hazza-sg/weather-trader/internal/domain"
	"github.com/hazza-sg/weather-trader/internal/ports"
)

// orderCtx recuerda el mercado/lado de una orden emitida, ya que
// domain.FillEvent sólo lleva el order_id: el monitor es agnóstico de
// dominio y no conoce el mercado al que pertenece una orden.
type orderCtx struct {
	Market domain.MarketSpec
	Side   domain.Side
}

func forecastKey(location string, targetDate time.Time) string {
	return location + "|" + targetDate.UTC().Format("2006-01-02")
}

// runMarketScan refresca el universo de mercados activos vía
// MarketDiscovery + MarketParser. Un mercado que el parser descarta en
// silencio (nil, nil) simplemente no entra al universo de este ciclo.
func (e *Engine) runMarketScan(ctx context.Context) error {
	raw, err := e.deps.Discovery.ListActive(ctx, e.cfg.ScanLimit, e.cfg.ScanTag)
	if err != nil {
		return fmt.Errorf("market_scan: %w", err)
	}

	markets := make([]domain.MarketSpec, 0, len(raw))
	geo := make(map[string]latlon)
	for _, r := range raw {
		spec, err := e.deps.Parser.Parse(r)
		if err != nil {
			e.logf("market_scan: discarding %s: %v", r.ID, err)
			continue
		}
		if spec == nil {
			continue
		}
		markets = append(markets, *spec)
		e.clusters.remember(spec.Location, spec.Cluster)
		if lat, lon, ok := rawCoordinates(r); ok {
			geo[spec.Location] = latlon{Lat: lat, Lon: lon}
		}
	}

	e.mu.Lock()
	e.markets = markets
	for loc, coords := range geo {
		e.geocode[loc] = coords
	}
	e.mu.Unlock()
	return nil
}

// rawCoordinates extrae lat/lon del mapa sin interpretar de un RawMarket,
// si el venue de descubrimiento los expone. Ausentes, el mercado participa
// en el universo pero su ubicación no puede obtener pronóstico.
func rawCoordinates(r ports.RawMarket) (lat, lon float64, ok bool) {
	if r.Raw == nil {
		return 0, 0, false
	}
	latVal, latOK := toFloat(r.Raw["lat"])
	lonVal, lonOK := toFloat(r.Raw["lon"])
	if !latOK || !lonOK {
		return 0, 0, false
	}
	return latVal, lonVal, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// runForecastUpdate refresca el ensemble meteorológico para cada ubicación
// única del universo de mercados conocido.
func (e *Engine) runForecastUpdate(ctx context.Context) error {
	e.mu.Lock()
	markets := append([]domain.MarketSpec(nil), e.markets...)
	e.mu.Unlock()

	seen := make(map[string]bool)
	for _, m := range markets {
		key := forecastKey(m.Location, m.ResolutionTime)
		if seen[key] {
			continue
		}
		seen[key] = true

		e.mu.Lock()
		coords, ok := e.geocode[m.Location]
		e.mu.Unlock()
		if !ok {
			continue
		}
		lat, lon := coords.Lat, coords.Lon
		values, err := e.deps.Weather.Ensemble(ctx, lat, lon, m.ResolutionTime, e.cfg.WeatherModels, m.Variable)
		if err != nil {
			e.logf("forecast_update: %s: %v", m.Location, err)
			continue
		}

		e.mu.Lock()
		e.forecasts[key] = domain.EnsembleForecast{
			Location:    m.Location,
			TargetDate:  m.ResolutionTime,
			Unit:        m.Unit,
			ModelValues: values,
		}
		e.mu.Unlock()
	}
	return nil
}

// runTradingCycle es el algoritmo central de §4.9: por cada mercado del
// universo conocido, deriva una Opportunity, la dimensiona, la filtra por
// diversificación, y si ambos aprueban coloca la orden.
func (e *Engine) runTradingCycle(ctx context.Context) error {
	now := e.clock.Now()
	if ok, reason := e.risk.CanTrade(now); !ok {
		e.logf("trading_cycle: skipped, %s", reason)
		return nil
	}

	e.mu.Lock()
	markets := append([]domain.MarketSpec(nil), e.markets...)
	e.mu.Unlock()

	portfolio := diversification.NewPortfolio()
	for _, p := range e.tracker.GetOpenPositions() {
		portfolio.Add(p)
	}
	bankroll := e.cfg.Bankroll + e.risk.State().TotalPnL
	currentExposure := portfolio.TotalExposure

	var opportunities []domain.Opportunity
	for _, market := range markets {
		forecast, ok := e.forecasts[forecastKey(market.Location, market.ResolutionTime)]
		if !ok {
			continue
		}

		prob, agreement, perModel := e.calc.ForecastProbability(forecast.ModelValues, market.Threshold, market.Comparison, market.BracketUpper, market.Unit, nil)
		opp := e.calc.Edge(prob, market.YesPrice, agreement, perModel)
		opp.Market = market
		opportunities = append(opportunities, opp)

		if !e.calc.Tradeable(opp) {
			continue
		}

		e.publish(domain.NewEdgeAlertEvent(now, market.MarketID, opp.Edge, opp.ForecastProb, opp.MarketProb))

		sizeResult := e.sizer.SizeForOpportunity(opp, bankroll, currentExposure)
		if sizeResult.Rejected {
			continue
		}

		candidate := diversification.Candidate{
			MarketID:       market.MarketID,
			Location:       market.Location,
			Cluster:        market.Cluster,
			ProposedSize:   sizeResult.Size,
			ResolutionDate: market.ResolutionTime,
			Side:           opp.RecommendedSide,
		}
		filterResult := e.filter.Check(candidate, portfolio, bankroll)
		if !filterResult.Allowed {
			continue
		}

		finalSize := sizeResult.Size
		if filterResult.MaxAllowedSize > 0 && filterResult.MaxAllowedSize < finalSize {
			finalSize = filterResult.MaxAllowedSize
		}

		validation := e.risk.ValidateTrade(finalSize, market.ResolutionTime, now)
		if !validation.OK {
			continue
		}

		orderPrice := market.YesPrice
		if opp.RecommendedSide == domain.SideNo {
			orderPrice = 1 - market.YesPrice
		}
		if err := e.submitOrder(ctx, market, opp.RecommendedSide, finalSize, orderPrice, domain.OrderMeta{
			EdgeAtEntry:  opp.Edge,
			ForecastProb: opp.ForecastProb,
		}); err != nil {
			e.logf("trading_cycle: %s: %v", market.MarketID, err)
			continue
		}

		currentExposure += finalSize
	}

	if e.deps.Notifier != nil && len(opportunities) > 0 {
		_ = e.deps.Notifier.Notify(ctx, opportunities)
	}
	return nil
}

// submitOrder coloca una orden de apertura en el venue y la enrola en
// OrderMonitor. El motor sólo abre posiciones comprando el token del lado
// recomendado; nunca vende en corto.
func (e *Engine) submitOrder(ctx context.Context, market domain.MarketSpec, side domain.Side, sizeUSD, price float64, meta domain.OrderMeta) error {
	tokenID := market.TokenYes
	if side == domain.SideNo {
		tokenID = market.TokenNo
	}

	quote, err := e.deps.Venue.Place(ctx, tokenID, domain.OrderBuy, price, sizeUSD)
	if err != nil {
		return fmt.Errorf("place: %w", err)
	}

	orderID := quote.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}
	status := quote.Status
	if status == "" {
		status = domain.OrderOpen
	}
	if status == domain.OrderRejected {
		return fmt.Errorf("order rejected by venue for %s", market.MarketID)
	}

	quantity := 0.0
	if price > 0 {
		quantity = sizeUSD / price
	}

	order := domain.Order{
		OrderID:   orderID,
		MarketID:  market.MarketID,
		TokenID:   tokenID,
		Side:      domain.OrderBuy,
		Price:     price,
		SizeUSD:   sizeUSD,
		Quantity:  quantity,
		Status:    status,
		CreatedAt: e.clock.Now(),
		Meta:      meta,
	}

	e.mu.Lock()
	if e.orders == nil {
		e.orders = make(map[string]orderCtx)
	}
	e.orders[orderID] = orderCtx{Market: market, Side: side}
	e.mu.Unlock()

	e.monitor.AddOrder(order)
	return nil
}

// onFill se entrega exactamente una vez por fill detectado por OrderMonitor
// y aplica el fill al libro de posiciones.
func (e *Engine) onFill(fill domain.FillEvent) {
	e.mu.Lock()
	oc, ok := e.orders[fill.OrderID]
	e.mu.Unlock()
	if !ok {
		return
	}

	position := e.tracker.OnFill(oc.Market, oc.Side, fill)
	ctx := context.Background()
	if err := e.deps.Storage.SavePosition(ctx, position); err != nil {
		e.logf("onFill: save position: %v", err)
	}

	now := e.clock.Now()
	e.publish(domain.NewPositionUpdateEvent(now, position.PositionID, position.CurrentPrice, position.UnrealizedPnL))
	e.publish(domain.NewTradeExecutedEvent(now, fill.OrderID, oc.Market.MarketID, oc.Side, fill.Size, fill.Price))
}

// onComplete se entrega cuando una orden alcanza un estado terminal y
// libera siempre el contexto de la orden; OrderMonitor entrega onFill antes
// de la transición terminal, así que todo fill ya fue aplicado.
func (e *Engine) onComplete(o domain.Order) {
	e.mu.Lock()
	delete(e.orders, o.OrderID)
	e.mu.Unlock()

	if o.Status != domain.OrderFilled && o.FilledSize == 0 {
		e.publish(domain.NewRiskAlertEvent(e.clock.Now(), "order_"+string(o.Status), 0, 0))
	}
}

// onRealizedPnL propaga un P&L realizado (resolución o cierre manual) a
// RiskManager y persiste el snapshot de riesgo resultante.
func (e *Engine) onRealizedPnL(delta float64, at time.Time) {
	e.risk.UpdatePnL(delta, at)

	ctx := context.Background()
	state := e.risk.State()
	if err := e.deps.Storage.SaveRiskSnapshot(ctx, state); err != nil {
		e.logf("onRealizedPnL: save risk snapshot: %v", err)
	}

	if state.IsHalted {
		e.publish(domain.NewHaltTriggeredEvent(at, state.HaltCause, state.HaltCause != domain.HaltMonthlyLoss))
	}
}

// onResolution persiste el trade cerrado correspondiente y limpia la
// posición resuelta del almacén.
func (e *Engine) onResolution(ev domain.ResolutionEvent) {
	ctx := context.Background()

	exitPrice := 0.0
	if ev.Outcome == ev.Position.Side {
		exitPrice = 1.0
	}
	result := "loss"
	if ev.Position.RealizedPnL > 0 {
		result = "win"
	}

	trade := ports.CompletedTrade{
		TradeID:     uuid.NewString(),
		MarketID:    ev.Position.MarketID,
		Side:        ev.Position.Side,
		Size:        ev.Position.Quantity,
		EntryPrice:  ev.Position.EntryPrice,
		ExitPrice:   exitPrice,
		RealizedPnL: ev.Position.RealizedPnL,
		Result:      result,
		ClosedAt:    ev.At,
	}
	if err := e.deps.Storage.SaveTrade(ctx, trade); err != nil {
		e.logf("onResolution: save trade: %v", err)
	}
	if err := e.deps.Storage.DeletePosition(ctx, ev.Position.PositionID); err != nil {
		e.logf("onResolution: delete position: %v", err)
	}

	e.publish(domain.NewTradeResolvedEvent(ev.At, ev.Position.PositionID, result, ev.Position.RealizedPnL))
}

// runRiskCheck vuelve a evaluar las condiciones de halt en cada tick, ya
// que el rollover de periodo y el cooldown dependen del tiempo transcurrido,
// no sólo de trades nuevos.
func (e *Engine) runRiskCheck(ctx context.Context) error {
	now := e.clock.Now()
	e.risk.CanTrade(now)

	if err := e.deps.Storage.SaveRiskSnapshot(ctx, e.risk.State()); err != nil {
		return fmt.Errorf("risk_check: %w", err)
	}
	return nil
}

// runPriceUpdate vacía el canal de actualizaciones del feed de precios,
// aplica cada tick a las posiciones abiertas, y comprueba resoluciones por
// heurístico de precio sobre las que vencieron.
func (e *Engine) runPriceUpdate(ctx context.Context) error {
	updates := e.deps.PriceFeed.Updates()
	now := e.clock.Now()

drain:
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				break drain
			}
			e.tracker.UpdatePrice(u.TokenID, u.Mid, u.At)
		default:
			break drain
		}
	}

	for _, ev := range e.tracker.CheckResolutions(now) {
		e.logf("price_update: resolved %s as %s", ev.Position.PositionID, ev.Outcome)
	}
	return nil
}

// runStatusBroadcast publica el estado operativo del motor como evento
// system_status; no imprime nada por el Notifier.
func (e *Engine) runStatusBroadcast(ctx context.Context) error {
	state := e.State()
	e.publish(domain.NewSystemStatusEvent(e.clock.Now(), string(state), "heartbeat"))
	return nil
}

// runMetricsLog escribe en el log el recuento de órdenes/posiciones por
// estado; no persiste nada.
func (e *Engine) runMetricsLog(ctx context.Context) error {
	orderStats := e.monitor.Statistics()
	positionStats := e.tracker.Statistics()
	e.logf("metrics: orders=%v positions=%v", orderStats, positionStats)
	return nil
}

// persistPosition guarda o borra una posición según siga abierta, usado
// tras un cierre manual fuera del ciclo de resolución automática.
func (e *Engine) persistPosition(ctx context.Context, p domain.Position, closed bool) {
	if closed {
		if err := e.deps.Storage.DeletePosition(ctx, p.PositionID); err != nil {
			e.logf("persistPosition: delete: %v", err)
		}
		e.publish(domain.NewPositionUpdateEvent(e.clock.Now(), p.PositionID, p.CurrentPrice, p.RealizedPnL))
		return
	}
	if err := e.deps.Storage.SavePosition(ctx, p); err != nil {
		e.logf("persistPosition: save: %v", err)
	}
}

// publish envía un evento al EventBus con un contexto acotado, ignorando el
// error: un fallo de publicación no debe interrumpir el ciclo del motor.
func (e *Engine) publish(event domain.Event) {
	if e.deps.EventBus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.deps.EventBus.Publish(ctx, event); err != nil {
		e.logf("publish: %v", err)
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.log == nil {
		return
	}
	e.log.Info(fmt.Sprintf(format, args...))
}
