package handlers

import (
	"context"
	"net/http"
	"strconv"

	"tradecore/internal/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryProvider - срез StatusService с историческими данными
type HistoryProvider interface {
	RecentTrades(ctx context.Context, limit int) ([]*models.Trade, error)
	AgentTrades(ctx context.Context, agentName string, limit int) ([]*models.Trade, error)
	RecentRiskEvents(ctx context.Context, limit int) ([]*models.RiskEvent, error)
}

// HistoryHandler обрабатывает запросы к истории торговли.
//
// Endpoints:
// - GET /api/v1/trades?agent=&limit= - закрытые сделки
// - GET /api/v1/risk-events?limit= - журнал риск-событий
type HistoryHandler struct {
	history HistoryProvider
}

// NewHistoryHandler создает новый HistoryHandler
func NewHistoryHandler(history HistoryProvider) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// parseLimit читает limit из query string с ограничением сверху
func parseLimit(r *http.Request) int {
	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			if limit > maxHistoryLimit {
				limit = maxHistoryLimit
			}
		}
	}
	return limit
}

// GetTrades возвращает последние закрытые сделки.
//
// GET /api/v1/trades?agent=trend-follower&limit=50
//
// Query Parameters:
// - agent (optional): фильтр по имени агента
// - limit (optional): количество сделок (по умолчанию 50, максимум 500)
func (h *HistoryHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	var trades []*models.Trade
	var err error
	if agent := r.URL.Query().Get("agent"); agent != "" {
		trades, err = h.history.AgentTrades(r.Context(), agent, limit)
	} else {
		trades, err = h.history.RecentTrades(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get trades", err.Error())
		return
	}

	if trades == nil {
		trades = []*models.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetRiskEvents возвращает журнал риск-событий.
//
// GET /api/v1/risk-events?limit=50
func (h *HistoryHandler) GetRiskEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.history.RecentRiskEvents(r.Context(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get risk events", err.Error())
		return
	}

	if events == nil {
		events = []*models.RiskEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
