// Package api - HTTP поверхность торгового ядра (status API + /metrics).
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tradecore/internal/api/handlers"
	"tradecore/internal/api/middleware"
	"tradecore/internal/service"
	"tradecore/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Status *service.StatusService
	Hub    *websocket.Hub
	Logger *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── GET /positions - открытые позиции
//	├── GET /positions/{symbol} - позиция по символу
//	├── GET /portfolio - состояние портфеля
//	├── GET /risk - отчёт риск-менеджера
//	├── GET /trades - закрытые сделки
//	└── GET /risk-events - журнал риск-событий
//
// /ws/stream - WebSocket для real-time обновлений
// /metrics - Prometheus метрики
// /health - liveness probe
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS)

	// API v1 routes
	apiRouter := router.PathPrefix("/api/v1").Subrouter()

	if deps.Status != nil {
		statusHandler := handlers.NewStatusHandler(deps.Status)
		apiRouter.HandleFunc("/positions", statusHandler.GetPositions).Methods("GET")
		// {symbol:.+} пропускает слэш внутри символа (BTC/USDT)
		apiRouter.HandleFunc("/positions/{symbol:.+}", statusHandler.GetPosition).Methods("GET")
		apiRouter.HandleFunc("/portfolio", statusHandler.GetPortfolio).Methods("GET")
		apiRouter.HandleFunc("/risk", statusHandler.GetRiskReport).Methods("GET")

		historyHandler := handlers.NewHistoryHandler(deps.Status)
		apiRouter.HandleFunc("/trades", historyHandler.GetTrades).Methods("GET")
		apiRouter.HandleFunc("/risk-events", historyHandler.GetRiskEvents).Methods("GET")
	}

	// WebSocket route
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
