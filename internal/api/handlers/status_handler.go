package handlers

import (
	"math"
	"net/http"

	"github.com/gorilla/mux"

	"tradecore/internal/bot"
	"tradecore/internal/models"
)

// StatusProvider - срез StatusService, нужный StatusHandler
type StatusProvider interface {
	Positions() []models.Position
	Position(symbol string) (models.Position, bool)
	Portfolio() *models.PortfolioState
	RiskReport() *bot.RiskReport
}

// StatusHandler обрабатывает запросы о текущем состоянии ядра.
//
// Endpoints:
// - GET /api/v1/positions - открытые позиции
// - GET /api/v1/positions/{symbol} - позиция по символу
// - GET /api/v1/portfolio - состояние портфеля
// - GET /api/v1/risk - отчёт риск-менеджера
type StatusHandler struct {
	status StatusProvider
}

// NewStatusHandler создает новый StatusHandler
func NewStatusHandler(status StatusProvider) *StatusHandler {
	return &StatusHandler{status: status}
}

// GetPositions возвращает все открытые позиции.
//
// GET /api/v1/positions
//
// Response 200 OK:
//
//	[
//	  {
//	    "symbol": "BTC/USDT",
//	    "type": "contract",
//	    "direction": "long",
//	    "size": 0.5,
//	    "entry_price": 50000,
//	    "current_price": 50750,
//	    "unrealized_pnl": 375,
//	    "leverage": 3,
//	    "liquidation_price": 33583.33
//	  }
//	]
func (h *StatusHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.status.Positions()
	if positions == nil {
		positions = []models.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetPosition возвращает позицию по символу.
//
// GET /api/v1/positions/{symbol}
//
// Response 404 Not Found:
//
//	{"error": "position not found"}
func (h *StatusHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	position, ok := h.status.Position(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "position not found", symbol)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

// GetPortfolio возвращает агрегированное состояние портфеля.
//
// GET /api/v1/portfolio
//
// Response 200 OK:
//
//	{
//	  "total_equity": 100375,
//	  "used_margin": 8333.33,
//	  "free_margin": 92041.67,
//	  "margin_level": 12.04,
//	  "daily_pnl": 375,
//	  "drawdown": 0,
//	  "open_positions": 1,
//	  "exposure": {"BTC/USDT": 75000}
//	}
//
// Без маржинальных позиций уровень маржи бесконечен; в JSON он
// отдаётся нулём, бесконечность не сериализуется.
func (h *StatusHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	state := *h.status.Portfolio()
	if math.IsInf(state.MarginLevel, 0) {
		state.MarginLevel = 0
	}
	writeJSON(w, http.StatusOK, &state)
}

// GetRiskReport возвращает отчёт риск-менеджера.
//
// GET /api/v1/risk
//
// Включает equity, drawdown, win rate, Sharpe/Sortino, VaR 95%.
func (h *StatusHandler) GetRiskReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status.RiskReport())
}
