package models

import "time"

// CloseReason - причина закрытия позиции
type CloseReason string

const (
	CloseReasonLiquidation    CloseReason = "LIQUIDATION"
	CloseReasonStopLoss       CloseReason = "STOP_LOSS"
	CloseReasonTakeProfit     CloseReason = "TAKE_PROFIT"
	CloseReasonSignalReversal CloseReason = "SIGNAL_REVERSAL"
	CloseReasonShutdown       CloseReason = "SYSTEM_SHUTDOWN"
)

// Priority возвращает приоритет причины закрытия
//
// За один тик применяется ровно одна причина - с наибольшим приоритетом.
// LIQUIDATION > STOP_LOSS > TAKE_PROFIT > SIGNAL_REVERSAL > SYSTEM_SHUTDOWN
func (r CloseReason) Priority() int {
	switch r {
	case CloseReasonLiquidation:
		return 5
	case CloseReasonStopLoss:
		return 4
	case CloseReasonTakeProfit:
		return 3
	case CloseReasonSignalReversal:
		return 2
	case CloseReasonShutdown:
		return 1
	default:
		return 0
	}
}

// Trade - неизменяемая запись о завершённой сделке
//
// Создаётся ровно один раз, атомарно с удалением позиции из PositionBook.
type Trade struct {
	Symbol     string    `json:"symbol" db:"symbol"`
	Direction  Direction `json:"direction" db:"direction"`
	Size       float64   `json:"size" db:"size"`
	EntryPrice float64   `json:"entry_price" db:"entry_price"`
	ExitPrice  float64   `json:"exit_price" db:"exit_price"`
	StopLoss   float64   `json:"stop_loss" db:"stop_loss"`
	TakeProfit float64   `json:"take_profit" db:"take_profit"`
	AgentName  string    `json:"agent_name" db:"agent_name"`
	OpenTime   time.Time `json:"open_time" db:"open_time"`
	CloseTime  time.Time `json:"close_time" db:"close_time"`
	Pnl        float64   `json:"pnl" db:"pnl"`

	CloseReason CloseReason            `json:"close_reason" db:"close_reason"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
}

// ReturnPct возвращает доходность сделки относительно цены входа
func (t *Trade) ReturnPct() float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	return t.Pnl / t.EntryPrice
}

// IsWin возвращает true для прибыльной сделки
func (t *Trade) IsWin() bool {
	return t.Pnl > 0
}
