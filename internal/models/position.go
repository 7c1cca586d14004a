package models

import (
	"fmt"
	"time"
)

// Направление позиции
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Sign возвращает знак направления для расчёта PNL (+1 long, -1 short)
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Тип позиции: спот или бессрочный контракт
//
// Вместо наследования используется тег типа с исчерпывающим
// switch в местах расчёта (PNL, ликвидация). Контрактные поля
// заполнены только при PositionContract.
type PositionType string

const (
	PositionSpot     PositionType = "spot"
	PositionContract PositionType = "contract"
)

// Режим маржи контрактной позиции
type MarginType string

const (
	MarginIsolated MarginType = "isolated"
	MarginCross    MarginType = "cross"
)

// Position представляет открытую позицию
//
// Инварианты (нарушение = баг, см. Validate):
// - Size > 0, EntryPrice > 0
// - ровно одна открытая позиция на символ (контролирует PositionBook)
// - для контракта: Leverage >= 1, MaintenanceMargin > 0,
//   LiquidationPrice на убыточной стороне от EntryPrice
type Position struct {
	Symbol       string                 `json:"symbol"`
	Type         PositionType           `json:"type"`
	Direction    Direction              `json:"direction"`
	Size         float64                `json:"size"`
	EntryPrice   float64                `json:"entry_price"`
	CurrentPrice float64                `json:"current_price"`
	StopLoss     float64                `json:"stop_loss"`
	TakeProfit   float64                `json:"take_profit"`
	AgentName    string                 `json:"agent_name"`
	OpenTime     time.Time              `json:"open_time"`

	UnrealizedPnl float64 `json:"unrealized_pnl"`
	RealizedPnl   float64 `json:"realized_pnl"` // накопленный funding и частичные фиксации
	MarginUsed    float64 `json:"margin_used"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Контрактные поля (заполнены только при Type == PositionContract)
	Leverage          float64    `json:"leverage,omitempty"`
	MarginType        MarginType `json:"margin_type,omitempty"`
	LiquidationPrice  float64    `json:"liquidation_price,omitempty"`
	MaintenanceMargin float64    `json:"maintenance_margin,omitempty"`
	FundingRate       float64    `json:"funding_rate,omitempty"`
	NextFundingTime   time.Time  `json:"next_funding_time,omitempty"`
}

// IsContract возвращает true для контрактной позиции
func (p *Position) IsContract() bool {
	return p.Type == PositionContract
}

// NotionalValue возвращает экономическую экспозицию позиции
//
// Контракт: size * entryPrice * leverage; спот: size * entryPrice.
func (p *Position) NotionalValue() float64 {
	if p.IsContract() {
		return p.Size * p.EntryPrice * p.Leverage
	}
	return p.Size * p.EntryPrice
}

// Validate проверяет инварианты позиции
//
// Нарушение означает баг в вызывающем коде, а не плохой ввод:
// PositionBook паникует, а не скрывает повреждение учёта.
func (p *Position) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("position symbol is empty")
	}
	if p.Direction != DirectionLong && p.Direction != DirectionShort {
		return fmt.Errorf("position %s: invalid direction %q", p.Symbol, p.Direction)
	}
	if p.Size <= 0 {
		return fmt.Errorf("position %s: size must be positive, got %v", p.Symbol, p.Size)
	}
	if p.EntryPrice <= 0 {
		return fmt.Errorf("position %s: entry price must be positive, got %v", p.Symbol, p.EntryPrice)
	}

	switch p.Type {
	case PositionSpot:
		return nil
	case PositionContract:
		if p.Leverage < 1 {
			return fmt.Errorf("position %s: leverage must be >= 1, got %v", p.Symbol, p.Leverage)
		}
		if p.MarginType != MarginIsolated && p.MarginType != MarginCross {
			return fmt.Errorf("position %s: invalid margin type %q", p.Symbol, p.MarginType)
		}
		if p.MaintenanceMargin <= 0 {
			return fmt.Errorf("position %s: maintenance margin must be positive, got %v", p.Symbol, p.MaintenanceMargin)
		}
		// Цена ликвидации всегда на убыточной стороне от входа
		if p.Direction == DirectionLong && p.LiquidationPrice >= p.EntryPrice {
			return fmt.Errorf("position %s: long liquidation price %v >= entry %v", p.Symbol, p.LiquidationPrice, p.EntryPrice)
		}
		if p.Direction == DirectionShort && p.LiquidationPrice <= p.EntryPrice {
			return fmt.Errorf("position %s: short liquidation price %v <= entry %v", p.Symbol, p.LiquidationPrice, p.EntryPrice)
		}
		return nil
	default:
		return fmt.Errorf("position %s: unknown position type %q", p.Symbol, p.Type)
	}
}

// Состояния жизненного цикла позиции по символу (state machine)
const (
	StateNone       = "NONE"       // позиции нет
	StateOpen       = "OPEN"       // позиция открыта
	StateMonitoring = "MONITORING" // позиция под наблюдением цикла
	StateClosing    = "CLOSING"    // идёт закрытие
	StateClosed     = "CLOSED"     // закрыта, ожидает очистки
)
