package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/config"
	"tradecore/internal/models"
	"tradecore/internal/reporting"
)

// Интервал обновления ставок финансирования контрактных позиций
const fundingRefreshInterval = time.Minute

// Monitor - мониторинг-цикл открытых позиций
//
// Каждый тик: резолв цен всех позиций, обновление PNL и funding,
// проверка условий закрытия. За один тик к позиции применяется ровно
// одна причина закрытия - с наибольшим приоритетом.
//
// Интервал тика адаптивный: при ошибках резолва удваивается до
// потолка, после первого чистого тика возвращается к базовому.
// Деградация источников не должна превращаться в шторм запросов.
type Monitor struct {
	config   config.ExecutorConfig
	executor *TradeExecutor
	book     *PositionBook
	risk     *RiskManager
	resolver PriceResolver
	sink     reporting.Sink
	logger   *zap.Logger

	interval           time.Duration
	lastFundingRefresh time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// NewMonitor создаёт мониторинг-цикл
func NewMonitor(
	cfg config.ExecutorConfig,
	executor *TradeExecutor,
	book *PositionBook,
	risk *RiskManager,
	resolver PriceResolver,
	sink reporting.Sink,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		config:   cfg,
		executor: executor,
		book:     book,
		risk:     risk,
		resolver: resolver,
		sink:     sink,
		logger:   logger.Named("monitor"),
		interval: cfg.TickInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start запускает цикл. Блокирует до остановки контекстом или Stop.
func (m *Monitor) Start(ctx context.Context) {
	defer close(m.doneCh)

	m.logger.Info("monitor started",
		zap.Duration("tick_interval", m.config.TickInterval),
		zap.Duration("max_tick_interval", m.config.MaxTickInterval))

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-timer.C:
			clean := m.tick(ctx)
			m.adjustInterval(clean)
			timer.Reset(m.interval)
		}
	}
}

// Stop останавливает цикл и дожидается завершения текущего тика
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

// adjustInterval адаптирует интервал тика
//
// Чистый тик сбрасывает backoff полностью: одна удачная итерация
// означает, что источники снова живы.
func (m *Monitor) adjustInterval(clean bool) {
	if clean {
		m.interval = m.config.TickInterval
	} else {
		m.interval *= 2
		if m.interval > m.config.MaxTickInterval {
			m.interval = m.config.MaxTickInterval
		}
		tickErrors.Inc()
		m.logger.Warn("tick degraded, backing off", zap.Duration("interval", m.interval))
	}
	tickIntervalGauge.Set(m.interval.Seconds())
}

// tick выполняет одну итерацию мониторинга
//
// Возвращает true, если все резолвы цен прошли без ошибок.
func (m *Monitor) tick(ctx context.Context) bool {
	start := time.Now()
	defer func() {
		tickDuration.Observe(time.Since(start).Seconds())
	}()

	snapshot := m.book.Snapshot()
	if len(snapshot) == 0 {
		return true
	}

	tickCtx, cancel := context.WithTimeout(ctx, m.config.TickTimeout)
	defer cancel()

	// Параллельный резолв цен всех позиций
	prices := make(map[string]float64, len(snapshot))
	var pricesMu sync.Mutex
	clean := true

	var wg sync.WaitGroup
	for _, p := range snapshot {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			resolution, err := m.resolver.ResolvePrice(tickCtx, symbol)
			if err != nil {
				m.logger.Warn("price resolution failed",
					zap.String("symbol", symbol), zap.Error(err))
				pricesMu.Lock()
				clean = false
				pricesMu.Unlock()
				return
			}
			pricesMu.Lock()
			prices[symbol] = resolution.Price
			pricesMu.Unlock()
		}(p.Symbol)
	}
	wg.Wait()

	m.refreshFundingRates(tickCtx, snapshot)

	// PNL, funding, предупреждения о ликвидации
	events := m.risk.UpdatePositions(m.book, prices, time.Now())
	for i := range events {
		_ = m.sink.SaveRiskEvent(tickCtx, &events[i])
	}

	// Условия закрытия по свежим ценам
	for symbol, price := range prices {
		position, ok := m.book.Get(symbol)
		if !ok {
			continue
		}
		if reason, triggered := closeReason(&position, price); triggered {
			m.closePosition(tickCtx, symbol, reason, price)
		}
	}

	return clean
}

// closeReason возвращает причину закрытия с наибольшим приоритетом
//
// LIQUIDATION > STOP_LOSS > TAKE_PROFIT; проверки идут в порядке
// убывания приоритета, срабатывает первая.
func closeReason(p *models.Position, price float64) (models.CloseReason, bool) {
	if ShouldLiquidate(p, price) {
		return models.CloseReasonLiquidation, true
	}

	if p.StopLoss > 0 {
		if p.Direction == models.DirectionLong && price <= p.StopLoss {
			return models.CloseReasonStopLoss, true
		}
		if p.Direction == models.DirectionShort && price >= p.StopLoss {
			return models.CloseReasonStopLoss, true
		}
	}

	if p.TakeProfit > 0 {
		if p.Direction == models.DirectionLong && price >= p.TakeProfit {
			return models.CloseReasonTakeProfit, true
		}
		if p.Direction == models.DirectionShort && price <= p.TakeProfit {
			return models.CloseReasonTakeProfit, true
		}
	}

	return "", false
}

// closePosition закрывает позицию и сообщает о ликвидации
func (m *Monitor) closePosition(ctx context.Context, symbol string, reason models.CloseReason, price float64) {
	trade, err := m.executor.ClosePosition(ctx, symbol, reason, price)
	if err != nil {
		m.logger.Error("monitor close failed",
			zap.String("symbol", symbol),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return
	}

	if reason == models.CloseReasonLiquidation {
		_ = m.sink.SaveRiskEvent(ctx, &models.RiskEvent{
			Timestamp: time.Now(),
			Type:      models.RiskEventLiquidation,
			Severity:  models.SeverityCritical,
			Symbol:    symbol,
			Message:   "💥 Position liquidated",
			Metadata: map[string]interface{}{
				"exit_price": price,
				"pnl":        trade.Pnl,
				"direction":  string(trade.Direction),
			},
		})
	}
}

// refreshFundingRates обновляет ставки финансирования контрактов
//
// Не чаще раза в минуту: ставка меняется редко, а запрос дорогой.
func (m *Monitor) refreshFundingRates(ctx context.Context, snapshot []models.Position) {
	if time.Since(m.lastFundingRefresh) < fundingRefreshInterval {
		return
	}
	m.lastFundingRefresh = time.Now()

	for _, p := range snapshot {
		if !p.IsContract() {
			continue
		}
		rate, err := m.resolver.GetFundingRate(ctx, p.Symbol)
		if err != nil {
			m.logger.Debug("funding rate refresh failed",
				zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		_ = m.book.Update(p.Symbol, func(pos *models.Position) {
			pos.FundingRate = rate
		})
	}
}

// Shutdown останавливает цикл и закрывает все позиции
//
// Закрытие ограничено ShutdownTimeout: зависший источник цен не
// должен держать процесс бесконечно (позиции закроются по последней
// известной цене).
func (m *Monitor) Shutdown() []error {
	m.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), m.config.ShutdownTimeout)
	defer cancel()

	m.logger.Info("closing all positions on shutdown",
		zap.Int("open_positions", m.book.Len()))
	return m.executor.CloseAll(ctx, models.CloseReasonShutdown)
}
