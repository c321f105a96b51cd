package domain

import "time"

// Channel es el nombre de canal sobre el que se publican los eventos
// salientes. "all" es un comodín que los suscriptores pueden usar para
// recibir todos los canales.
type Channel string

const (
	ChannelPrices    Channel = "prices"
	ChannelPositions Channel = "positions"
	ChannelTrades    Channel = "trades"
	ChannelAlerts    Channel = "alerts"
	ChannelSystem    Channel = "system"
	ChannelAll       Channel = "all"
)

// EventType es el tipo de evento dentro de un canal.
type EventType string

const (
	EventPriceUpdate     EventType = "price_update"
	EventPositionUpdate  EventType = "position_update"
	EventTradeExecuted   EventType = "trade_executed"
	EventTradeResolved   EventType = "trade_resolved"
	EventEdgeAlert       EventType = "edge_alert"
	EventRiskAlert       EventType = "risk_alert"
	EventSystemStatus    EventType = "system_status"
	EventHaltTriggered   EventType = "halt_triggered"
)

// Event es el sobre común para todo lo publicado por el motor. Payload
// contiene las claves específicas de cada EventType, documentadas junto a
// cada constructor NewXxxEvent.
type Event struct {
	Channel   Channel
	Type      EventType
	Timestamp time.Time
	Payload   map[string]any
}

// NewPriceUpdateEvent construye un evento price_update en el canal prices.
func NewPriceUpdateEvent(at time.Time, marketID, tokenID string, price float64, side Side) Event {
	return Event{
		Channel:   ChannelPrices,
		Type:      EventPriceUpdate,
		Timestamp: at,
		Payload: map[string]any{
			"market_id": marketID,
			"token_id":  tokenID,
			"price":     price,
			"side":      side,
		},
	}
}

// NewPositionUpdateEvent construye un evento position_update en el canal positions.
func NewPositionUpdateEvent(at time.Time, positionID string, currentPrice, unrealizedPnL float64) Event {
	return Event{
		Channel:   ChannelPositions,
		Type:      EventPositionUpdate,
		Timestamp: at,
		Payload: map[string]any{
			"position_id":    positionID,
			"current_price":  currentPrice,
			"unrealized_pnl": unrealizedPnL,
		},
	}
}

// NewTradeExecutedEvent construye un evento trade_executed en el canal trades.
func NewTradeExecutedEvent(at time.Time, tradeID, marketID string, side Side, size, price float64) Event {
	return Event{
		Channel:   ChannelTrades,
		Type:      EventTradeExecuted,
		Timestamp: at,
		Payload: map[string]any{
			"trade_id": tradeID,
			"market":   marketID,
			"side":     side,
			"size":     size,
			"price":    price,
		},
	}
}

// NewTradeResolvedEvent construye un evento trade_resolved en el canal trades.
func NewTradeResolvedEvent(at time.Time, tradeID, result string, pnl float64) Event {
	return Event{
		Channel:   ChannelTrades,
		Type:      EventTradeResolved,
		Timestamp: at,
		Payload: map[string]any{
			"trade_id": tradeID,
			"result":   result,
			"pnl":      pnl,
		},
	}
}

// NewEdgeAlertEvent construye un evento edge_alert en el canal alerts.
func NewEdgeAlertEvent(at time.Time, marketID string, edge, forecastProb, marketProb float64) Event {
	return Event{
		Channel:   ChannelAlerts,
		Type:      EventEdgeAlert,
		Timestamp: at,
		Payload: map[string]any{
			"market_id":           marketID,
			"edge":                edge,
			"forecast_probability": forecastProb,
			"market_probability":  marketProb,
		},
	}
}

// NewRiskAlertEvent construye un evento risk_alert en el canal alerts.
func NewRiskAlertEvent(at time.Time, alertType string, currentValue, limitValue float64) Event {
	return Event{
		Channel:   ChannelAlerts,
		Type:      EventRiskAlert,
		Timestamp: at,
		Payload: map[string]any{
			"alert_type":    alertType,
			"current_value": currentValue,
			"limit_value":   limitValue,
		},
	}
}

// NewSystemStatusEvent construye un evento system_status en el canal system.
func NewSystemStatusEvent(at time.Time, status, message string) Event {
	return Event{
		Channel:   ChannelSystem,
		Type:      EventSystemStatus,
		Timestamp: at,
		Payload: map[string]any{
			"status":  status,
			"message": message,
		},
	}
}

// NewHaltTriggeredEvent construye un evento halt_triggered en el canal system.
func NewHaltTriggeredEvent(at time.Time, reason HaltCause, canAutoRecover bool) Event {
	return Event{
		Channel:   ChannelSystem,
		Type:      EventHaltTriggered,
		Timestamp: at,
		Payload: map[string]any{
			"reason":           reason,
			"can_auto_recover": canAutoRecover,
		},
	}
}
