package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/api"
	"tradecore/internal/bot"
	"tradecore/internal/config"
	"tradecore/internal/marketdata"
	"tradecore/internal/models"
	"tradecore/internal/reporting"
	"tradecore/internal/repository"
	"tradecore/internal/service"
	"tradecore/internal/websocket"
	"tradecore/pkg/retry"
	"tradecore/pkg/utils"
)

// Интервал трансляции портфеля и позиций в WebSocket
const broadcastInterval = 2 * time.Second

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.InitLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer func() { _ = logger.Sync() }()
	zl := logger.Logger

	// Reporting sink: без БД торгуем дальше, но без истории
	var (
		sink       reporting.Sink = reporting.NoopSink{}
		tradeStore service.TradeStore
		eventStore service.EventStore
		history    bot.ReturnsProvider
	)
	pg, err := repository.NewPostgresSink(cfg.Database)
	if err != nil {
		zl.Warn("database unavailable, reporting disabled", zap.Error(err))
	} else {
		sink = reporting.NewRetryingSink(pg, zl)
		tradeStore = pg.Trades()
		eventStore = pg.Reports()
		history = pg.Trades()
		zl.Info("connected to database",
			zap.String("host", cfg.Database.Host),
			zap.String("db", cfg.Database.Name))
	}

	// Источники цен
	sources := buildSources(cfg, zl)
	if len(sources) == 0 {
		zl.Fatal("no price sources configured")
	}

	resolver := marketdata.NewResolver(sources, marketdata.ResolverConfig{
		CallTimeout: cfg.Resolver.CallTimeout,
		Retry: retry.Config{
			MaxAttempts:  cfg.Resolver.MaxRetries,
			BaseDelay:    cfg.Resolver.RetryBaseDelay,
			MaxDelay:     cfg.Resolver.RetryMaxDelay,
			Factor:       2.0,
			JitterFactor: 0.1,
			RetryIf:      retry.RetryIfNotContext,
		},
		PreferredSource: os.Getenv("PREFERRED_PRICE_SOURCE"),
	}, zl)

	// Ядро: книга позиций, риск-менеджер, исполнитель, мониторинг
	book := bot.NewPositionBook()
	risk := bot.NewRiskManager(cfg.Risk, history, zl)
	executor := bot.NewTradeExecutor(*cfg, book, risk, resolver, sink, zl)
	monitor := bot.NewMonitor(cfg.Executor, executor, book, risk, resolver, sink, zl)

	// WebSocket hub: трансляция событий клиентам
	hub := websocket.NewHub(zl)
	go hub.Run()

	risk.SetOnRiskEvent(func(event models.RiskEvent) {
		hub.BroadcastRiskEvent(&event)
	})
	executor.SetOnTradeClosed(func(trade *models.Trade) {
		hub.BroadcastTradeClosed(trade)
	})
	executor.SetOnPerformance(func(*models.PerformanceReport) {
		hub.BroadcastPortfolioUpdate(executor.PortfolioState())
	})
	resolver.SetOnDeviation(func(symbol string, maxDeviation float64) {
		event := &models.RiskEvent{
			Timestamp: time.Now(),
			Type:      models.RiskEventPriceDeviation,
			Severity:  models.SeverityWarning,
			Symbol:    symbol,
			Message:   fmt.Sprintf("⚠️ Источники цен %s расходятся на %.2f%%", symbol, maxDeviation*100),
			Metadata:  map[string]interface{}{"max_deviation": maxDeviation},
		}
		_ = sink.SaveRiskEvent(context.Background(), event)
		hub.BroadcastRiskEvent(event)
	})

	// Status API
	statusService := service.NewStatusService(book, risk, executor, tradeStore, eventStore)
	router := api.SetupRoutes(&api.Dependencies{
		Status: statusService,
		Hub:    hub,
		Logger: zl,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go monitor.Start(ctx)
	go broadcastLoop(ctx, hub, book, executor)

	go func() {
		zl.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down")

	// Сначала закрываем позиции: резолвер и sink ещё должны работать
	for _, err := range monitor.Shutdown() {
		zl.Error("shutdown close error", zap.Error(err))
	}
	cancel()

	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}

	_ = resolver.Close()
	if err := sink.Close(); err != nil {
		zl.Error("sink close error", zap.Error(err))
	}
	marketdata.CloseGlobalClient()

	zl.Info("server exited")
}

// buildSources собирает источники цен из окружения
//
// PRICE_SOURCES: "name=baseURL,name=baseURL" для REST шлюзов.
// PRICE_WS_URL (+ PRICE_WS_NAME): опциональный streaming источник;
// подписывается на контрактные пары из конфигурации.
func buildSources(cfg *config.Config, logger *zap.Logger) []marketdata.PriceSource {
	raw := os.Getenv("PRICE_SOURCES")
	if raw == "" {
		raw = "primary=http://localhost:9101,secondary=http://localhost:9102"
	}

	var sources []marketdata.PriceSource
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, baseURL, ok := strings.Cut(part, "=")
		if !ok || name == "" || baseURL == "" {
			logger.Warn("skipping malformed price source entry", zap.String("entry", part))
			continue
		}
		sources = append(sources, marketdata.NewHTTPSource(marketdata.HTTPSourceConfig{
			Name:    name,
			BaseURL: baseURL,
		}))
		logger.Info("price source registered",
			zap.String("name", name),
			zap.String("base_url", baseURL))
	}

	wsURL := os.Getenv("PRICE_WS_URL")
	if wsURL == "" {
		return sources
	}

	wsName := os.Getenv("PRICE_WS_NAME")
	if wsName == "" {
		wsName = "stream"
	}
	ws := marketdata.NewWSSource(wsName, wsURL, marketdata.DefaultWSReconnectConfig(), logger)
	if err := ws.Connect(); err != nil {
		// Источник переподключится сам; до тех пор резолвер его пропускает
		logger.Warn("ws source connect failed", zap.String("source", wsName), zap.Error(err))
	}
	for _, symbol := range cfg.Contract.EnabledPairs {
		if err := ws.Subscribe(symbol); err != nil {
			logger.Warn("ws subscribe failed",
				zap.String("source", wsName),
				zap.String("symbol", symbol),
				zap.Error(err))
		}
	}
	return append(sources, ws)
}

// broadcastLoop периодически транслирует портфель и позиции в hub
func broadcastLoop(ctx context.Context, hub *websocket.Hub, book *bot.PositionBook, executor *bot.TradeExecutor) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if hub.ClientCount() == 0 {
				continue
			}
			hub.BroadcastPortfolioUpdate(executor.PortfolioState())
			positions := book.Snapshot()
			for i := range positions {
				hub.BroadcastPositionUpdate(&positions[i])
			}
		}
	}
}
