package models

import (
	"fmt"
	"time"

	"tradecore/pkg/utils"
)

// Направление сигнала (вход от генераторов сигналов)
const (
	SignalBuy  = "buy"
	SignalSell = "sell"
)

// ContractParams - контрактные параметры сигнала
//
// Сигналы несут их в metadata ("contract", "leverage", "margin_type");
// парсинг в типизированную структуру происходит один раз на входе,
// дальше ядро работает только с типизированными полями.
type ContractParams struct {
	Leverage   int        `json:"leverage"`
	MarginType MarginType `json:"margin_type"`
}

// TradeSignal - торговый сигнал от внешнего генератора
//
// Вход считается недоверенным: Validate обязателен до обработки.
type TradeSignal struct {
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction"` // buy, sell
	Price      float64   `json:"price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Size       float64   `json:"size"` // верхняя граница; финальный размер считает RiskManager
	Confidence float64   `json:"confidence"`
	AgentName  string    `json:"agent_name"`
	Timestamp  time.Time `json:"timestamp"`

	// Contract != nil => контрактный сигнал
	Contract *ContractParams `json:"contract,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Validate проверяет корректность сигнала
func (s *TradeSignal) Validate() error {
	if err := utils.ValidateSymbol(s.Symbol); err != nil {
		return fmt.Errorf("signal symbol: %w", err)
	}
	if s.Direction != SignalBuy && s.Direction != SignalSell {
		return fmt.Errorf("signal %s: direction must be buy or sell, got %q", s.Symbol, s.Direction)
	}
	if s.Price <= 0 {
		return fmt.Errorf("signal %s: price must be positive, got %v", s.Symbol, s.Price)
	}
	if s.Size <= 0 {
		return fmt.Errorf("signal %s: size must be positive, got %v", s.Symbol, s.Size)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("signal %s: confidence must be in [0, 1], got %v", s.Symbol, s.Confidence)
	}
	if s.Contract != nil && s.Contract.Leverage < 1 {
		return fmt.Errorf("signal %s: leverage must be >= 1, got %d", s.Symbol, s.Contract.Leverage)
	}
	return nil
}

// IsContract возвращает true для контрактного сигнала
func (s *TradeSignal) IsContract() bool {
	return s.Contract != nil
}

// PositionDirection преобразует buy/sell в направление позиции
func (s *TradeSignal) PositionDirection() Direction {
	if s.Direction == SignalSell {
		return DirectionShort
	}
	return DirectionLong
}
