package models

import (
	"math"
	"time"
)

// PortfolioState - агрегированный снимок состояния портфеля
//
// Пересчитывается на каждый тик мониторинга и отдаётся наружу
// только копией: мутировать снимок бессмысленно.
type PortfolioState struct {
	Timestamp   time.Time `json:"timestamp"`
	TotalEquity float64   `json:"total_equity"`
	UsedMargin  float64   `json:"used_margin"`
	FreeMargin  float64   `json:"free_margin"`
	MarginLevel float64   `json:"margin_level"` // +Inf при нулевой использованной марже
	TotalPnl    float64   `json:"total_pnl"`
	DailyPnl    float64   `json:"daily_pnl"`
	Drawdown    float64   `json:"drawdown"`

	OpenPositions int                `json:"open_positions"`
	Exposure      map[string]float64 `json:"exposure,omitempty"` // symbol -> notional
}

// ComputeMarginLevel возвращает уровень маржи equity/usedMargin
//
// При нулевой использованной марже уровень бесконечен (позиций с
// маржой нет, ограничивать нечего).
func ComputeMarginLevel(equity, usedMargin float64) float64 {
	if usedMargin <= 0 {
		return math.Inf(1)
	}
	return equity / usedMargin
}

// ExecutionAction - тип действия исполнителя над позицией
type ExecutionAction string

const (
	ActionOpen   ExecutionAction = "open"
	ActionModify ExecutionAction = "modify"
	ActionClose  ExecutionAction = "close"
)

// ExecutionReport - отчёт об исполнении (открытие/изменение/закрытие)
//
// Отправляется в ReportingSink после каждого действия над позицией.
type ExecutionReport struct {
	Timestamp  time.Time       `json:"timestamp"`
	Symbol     string          `json:"symbol"`
	Action     ExecutionAction `json:"action"`
	Direction  Direction       `json:"direction"`
	Price      float64         `json:"price"`
	Size       float64         `json:"size"`
	AgentName  string          `json:"agent_name"`
	Confidence float64         `json:"confidence,omitempty"`
	Reason     string          `json:"reason,omitempty"` // причина закрытия/отклонения

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PerformanceReport - сводка эффективности по закрытым сделкам
//
// Формируется при каждом закрытии позиции и уходит агенту-источнику
// как обратная связь для генератора сигналов.
type PerformanceReport struct {
	Timestamp   time.Time `json:"timestamp"`
	AgentName   string    `json:"agent_name"`
	TotalPnl    float64   `json:"total_pnl"`
	DailyPnl    float64   `json:"daily_pnl"`
	TotalTrades int       `json:"total_trades"`
	WinTrades   int       `json:"win_trades"`
	LossTrades  int       `json:"loss_trades"`
	WinRate     float64   `json:"win_rate"`
	AvgProfit   float64   `json:"avg_profit"`
	AvgLoss     float64   `json:"avg_loss"`
	MaxDrawdown float64   `json:"max_drawdown"`
	Sharpe      float64   `json:"sharpe"`
}

// RiskEventType - тип риск-события
type RiskEventType string

const (
	RiskEventLiquidationWarning RiskEventType = "liquidation_warning" // цена в опасной близости к ликвидации
	RiskEventLiquidation        RiskEventType = "liquidation"
	RiskEventFunding            RiskEventType = "funding_payment"
	RiskEventMarginCall         RiskEventType = "margin_call"
	RiskEventPriceDeviation     RiskEventType = "price_deviation" // расхождение источников цен > порога
	RiskEventLimitRejected      RiskEventType = "limit_rejected"  // сигнал отклонён риск-проверкой
	RiskEventDrawdown           RiskEventType = "drawdown_limit"
	RiskEventDailyLoss          RiskEventType = "daily_loss_limit"
)

// Серьёзность риск-события
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// RiskEvent - событие риск-менеджмента для внешних потребителей
type RiskEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Type      RiskEventType `json:"type"`
	Severity  string        `json:"severity"`
	Symbol    string        `json:"symbol,omitempty"`
	Message   string        `json:"message"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
