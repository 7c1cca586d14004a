package websocket

import (
	"time"

	"tradecore/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypePositionUpdate - обновление открытой позиции
	// Отправляется на каждом тике мониторинга
	MessageTypePositionUpdate MessageType = "positionUpdate"

	// MessageTypeTradeClosed - позиция закрыта
	MessageTypeTradeClosed MessageType = "tradeClosed"

	// MessageTypeRiskEvent - риск-событие (funding, предупреждение о
	// ликвидации, отклонение сигнала)
	MessageTypeRiskEvent MessageType = "riskEvent"

	// MessageTypePortfolioUpdate - снимок состояния портфеля
	MessageTypePortfolioUpdate MessageType = "portfolioUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// PositionUpdateMessage - сообщение об обновлении позиции
//
// Содержит текущую цену, нереализованный PNL и цену ликвидации.
type PositionUpdateMessage struct {
	BaseMessage
	Symbol string              `json:"symbol"`
	Data   *PositionUpdateData `json:"data"`
}

// PositionUpdateData - данные обновления позиции
type PositionUpdateData struct {
	Type          string  `json:"type"`
	Direction     string  `json:"direction"`
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	RealizedPnl   float64 `json:"realized_pnl"`

	// Для контрактных позиций
	Leverage         float64 `json:"leverage,omitempty"`
	LiquidationPrice float64 `json:"liquidation_price,omitempty"`
	FundingRate      float64 `json:"funding_rate,omitempty"`

	LastUpdate time.Time `json:"last_update"`
}

// TradeClosedMessage - сообщение о закрытой сделке
type TradeClosedMessage struct {
	BaseMessage
	Data *models.Trade `json:"data"`
}

// RiskEventMessage - сообщение о риск-событии
type RiskEventMessage struct {
	BaseMessage
	Data *models.RiskEvent `json:"data"`
}

// PortfolioUpdateMessage - сообщение о состоянии портфеля
type PortfolioUpdateMessage struct {
	BaseMessage
	Data *models.PortfolioState `json:"data"`
}

// NewPositionUpdateMessage создает сообщение обновления позиции
func NewPositionUpdateMessage(p *models.Position) *PositionUpdateMessage {
	data := &PositionUpdateData{
		Type:          string(p.Type),
		Direction:     string(p.Direction),
		Size:          p.Size,
		EntryPrice:    p.EntryPrice,
		CurrentPrice:  p.CurrentPrice,
		UnrealizedPnl: p.UnrealizedPnl,
		RealizedPnl:   p.RealizedPnl,
		LastUpdate:    time.Now(),
	}
	if p.IsContract() {
		data.Leverage = p.Leverage
		data.LiquidationPrice = p.LiquidationPrice
		data.FundingRate = p.FundingRate
	}

	return &PositionUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePositionUpdate,
			Timestamp: time.Now(),
		},
		Symbol: p.Symbol,
		Data:   data,
	}
}

// NewTradeClosedMessage создает сообщение о закрытой сделке
func NewTradeClosedMessage(trade *models.Trade) *TradeClosedMessage {
	return &TradeClosedMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeTradeClosed,
			Timestamp: time.Now(),
		},
		Data: trade,
	}
}

// NewRiskEventMessage создает сообщение о риск-событии
func NewRiskEventMessage(event *models.RiskEvent) *RiskEventMessage {
	return &RiskEventMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeRiskEvent,
			Timestamp: time.Now(),
		},
		Data: event,
	}
}

// NewPortfolioUpdateMessage создает сообщение о состоянии портфеля
func NewPortfolioUpdateMessage(state *models.PortfolioState) *PortfolioUpdateMessage {
	return &PortfolioUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePortfolioUpdate,
			Timestamp: time.Now(),
		},
		Data: state,
	}
}
