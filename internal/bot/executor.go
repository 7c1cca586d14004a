package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/config"
	"tradecore/internal/marketdata"
	"tradecore/internal/models"
	"tradecore/internal/reporting"
	"tradecore/pkg/utils"
)

// Outcome - исход обработки сигнала
//
// Отклонение - нормальный исход: вызывающий получает Outcome и
// sentinel-ошибку причины, а не исключение.
type Outcome string

const (
	OutcomeOpened   Outcome = "opened"
	OutcomeModified Outcome = "modified"
	OutcomeClosed   Outcome = "closed"
	OutcomeRejected Outcome = "rejected"
)

// PriceResolver - срез резолвера, нужный исполнителю
type PriceResolver interface {
	ResolvePrice(ctx context.Context, symbol string) (*marketdata.Resolution, error)
	GetFundingRate(ctx context.Context, symbol string) (float64, error)
}

// TradeExecutor - исполнитель торговых сигналов
//
// Единственный писатель PositionBook: все открытия, изменения и
// закрытия позиций проходят через него. Разворот сигнала закрывает
// существующую позицию и открывает новую в противоположную сторону.
type TradeExecutor struct {
	config   config.Config
	book     *PositionBook
	risk     *RiskManager
	resolver PriceResolver
	sink     reporting.Sink
	logger   *zap.Logger

	// Колбэк обратной связи для агента-источника сигнала
	onPerformance func(*models.PerformanceReport)

	// Колбэк о закрытой сделке (трансляция наружу)
	onTradeClosed func(*models.Trade)

	// Жизненный цикл по символам
	states   map[string]string
	statesMu sync.Mutex

	// Сериализация обработки сигналов (single writer)
	processMu sync.Mutex

	shuttingDown int32 // atomic
}

// NewTradeExecutor создаёт исполнитель
func NewTradeExecutor(
	cfg config.Config,
	book *PositionBook,
	risk *RiskManager,
	resolver PriceResolver,
	sink reporting.Sink,
	logger *zap.Logger,
) *TradeExecutor {
	return &TradeExecutor{
		config:   cfg,
		book:     book,
		risk:     risk,
		resolver: resolver,
		sink:     sink,
		logger:   logger.Named("executor"),
		states:   make(map[string]string),
	}
}

// SetOnPerformance устанавливает колбэк обратной связи для агентов
func (e *TradeExecutor) SetOnPerformance(fn func(*models.PerformanceReport)) {
	e.onPerformance = fn
}

// SetOnTradeClosed устанавливает колбэк о закрытии сделки
func (e *TradeExecutor) SetOnTradeClosed(fn func(*models.Trade)) {
	e.onTradeClosed = fn
}

// State возвращает состояние жизненного цикла символа
func (e *TradeExecutor) State(symbol string) string {
	e.statesMu.Lock()
	defer e.statesMu.Unlock()
	if s, ok := e.states[symbol]; ok {
		return s
	}
	return models.StateNone
}

// transition переводит символ в новое состояние
//
// Недопустимый переход - баг исполнителя, паникуем как и PositionBook.
func (e *TradeExecutor) transition(symbol, to string) {
	e.statesMu.Lock()
	defer e.statesMu.Unlock()

	from, ok := e.states[symbol]
	if !ok {
		from = models.StateNone
	}
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("executor: invalid transition %s -> %s for %s", from, to, symbol))
	}
	if to == models.StateNone {
		delete(e.states, symbol)
		return
	}
	e.states[symbol] = to
}

// isShuttingDown возвращает true после начала остановки
func (e *TradeExecutor) isShuttingDown() bool {
	return atomic.LoadInt32(&e.shuttingDown) == 1
}

// beginShutdown запрещает приём новых сигналов
func (e *TradeExecutor) beginShutdown() {
	atomic.StoreInt32(&e.shuttingDown, 1)
}

// ============================================================
// Обработка сигнала
// ============================================================

// ProcessSignal обрабатывает торговый сигнал
//
// Исходы:
//   - OutcomeOpened: открыта новая позиция
//   - OutcomeModified: обновлены SL/TP существующей позиции того же направления
//   - OutcomeClosed: разворот закрыл позицию, но новая не открылась
//   - OutcomeRejected: сигнал отклонён (ошибка говорит почему)
func (e *TradeExecutor) ProcessSignal(ctx context.Context, signal *models.TradeSignal) (Outcome, error) {
	if e.isShuttingDown() {
		return OutcomeRejected, ErrShuttingDown
	}

	if err := signal.Validate(); err != nil {
		e.reject(ctx, signal, err)
		return OutcomeRejected, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}

	e.processMu.Lock()
	defer e.processMu.Unlock()

	existing, hasPosition := e.book.Get(signal.Symbol)
	if hasPosition {
		if existing.Direction == signal.PositionDirection() {
			return e.modifyPosition(ctx, &existing, signal)
		}
		// Разворот: закрываем текущую, затем пытаемся открыть новую
		if _, err := e.closeLocked(ctx, signal.Symbol, models.CloseReasonSignalReversal, 0); err != nil {
			return OutcomeRejected, fmt.Errorf("reversal close failed: %w", err)
		}
		outcome, err := e.openPosition(ctx, signal)
		if err != nil {
			// Старая позиция уже закрыта - это состоявшееся действие
			return OutcomeClosed, err
		}
		return outcome, nil
	}

	return e.openPosition(ctx, signal)
}

// modifyPosition обновляет SL/TP позиции того же направления
func (e *TradeExecutor) modifyPosition(ctx context.Context, existing *models.Position, signal *models.TradeSignal) (Outcome, error) {
	err := e.book.Update(signal.Symbol, func(p *models.Position) {
		if signal.StopLoss > 0 {
			p.StopLoss = signal.StopLoss
		}
		if signal.TakeProfit > 0 {
			p.TakeProfit = signal.TakeProfit
		}
	})
	if err != nil {
		return OutcomeRejected, err
	}

	signalsProcessed.WithLabelValues(string(OutcomeModified)).Inc()
	e.logger.Info("position modified",
		zap.String("symbol", signal.Symbol),
		zap.Float64("stop_loss", signal.StopLoss),
		zap.Float64("take_profit", signal.TakeProfit),
		zap.String("agent", signal.AgentName))

	_ = e.sink.SaveExecution(ctx, &models.ExecutionReport{
		Timestamp:  time.Now(),
		Symbol:     signal.Symbol,
		Action:     models.ActionModify,
		Direction:  existing.Direction,
		Price:      existing.CurrentPrice,
		Size:       existing.Size,
		AgentName:  signal.AgentName,
		Confidence: signal.Confidence,
	})
	return OutcomeModified, nil
}

// openPosition открывает новую позицию по сигналу
func (e *TradeExecutor) openPosition(ctx context.Context, signal *models.TradeSignal) (Outcome, error) {
	// Контрактные ограничения конфигурации
	if signal.IsContract() {
		if !e.config.Contract.ContractAllowed(signal.Symbol) {
			err := fmt.Errorf("%w: %s", ErrContractNotAllowed, signal.Symbol)
			e.reject(ctx, signal, err)
			return OutcomeRejected, err
		}
		if !e.config.Contract.LeverageAllowed(signal.Contract.Leverage) {
			err := fmt.Errorf("%w: %dx not in options", ErrLeverageExceeded, signal.Contract.Leverage)
			e.reject(ctx, signal, err)
			return OutcomeRejected, err
		}
		if !e.config.Contract.MarginTypeAllowed(string(signal.Contract.MarginType)) {
			err := fmt.Errorf("%w: %s", ErrMarginTypeNotAllowed, signal.Contract.MarginType)
			e.reject(ctx, signal, err)
			return OutcomeRejected, err
		}
	}

	// SL/TP из ATR, если сигнал пришёл без уровней
	signal = e.deriveProtectiveLevels(signal)

	// Риск-проверки
	if err := e.risk.CheckPositionRisk(ctx, signal, e.book); err != nil {
		e.reject(ctx, signal, err)
		return OutcomeRejected, err
	}

	// Размер позиции с поправкой на волатильность
	size, err := e.risk.CalculatePositionSize(signal, signalVolatility(signal))
	if err != nil {
		e.reject(ctx, signal, err)
		return OutcomeRejected, err
	}

	// Цена входа: свежий резолв, сигнальная цена как fallback
	entryPrice := signal.Price
	if resolution, err := e.resolver.ResolvePrice(ctx, signal.Symbol); err == nil {
		entryPrice = resolution.Price
	} else {
		e.logger.Warn("entry price resolution failed, using signal price",
			zap.String("symbol", signal.Symbol), zap.Error(err))
	}

	position := &models.Position{
		Symbol:       signal.Symbol,
		Type:         models.PositionSpot,
		Direction:    signal.PositionDirection(),
		Size:         size,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		StopLoss:     signal.StopLoss,
		TakeProfit:   signal.TakeProfit,
		AgentName:    signal.AgentName,
		OpenTime:     time.Now(),
		MarginUsed:   size * entryPrice,
		Metadata:     signal.Metadata,
	}

	if signal.IsContract() {
		leverage := float64(signal.Contract.Leverage)
		mmr := e.config.Risk.MinMaintenanceMarginRate
		position.Type = models.PositionContract
		position.Leverage = leverage
		position.MarginType = signal.Contract.MarginType
		position.MaintenanceMargin = size * entryPrice * mmr
		position.MarginUsed = size * entryPrice / leverage

		availableMargin := e.risk.Equity() - e.book.UsedMargin() - position.MarginUsed
		position.LiquidationPrice = CalculateLiquidationPrice(
			position.Direction, entryPrice, leverage, position.MarginType,
			mmr, availableMargin, size,
		)

		if rate, err := e.resolver.GetFundingRate(ctx, signal.Symbol); err == nil {
			position.FundingRate = rate
		} else {
			// Фид funding недоступен: консервативная ставка по умолчанию
			position.FundingRate = defaultFundingRate
			e.logger.Warn("funding rate unavailable, using default",
				zap.String("symbol", signal.Symbol),
				zap.Float64("rate", defaultFundingRate),
				zap.Error(err))
		}
		interval := time.Duration(e.config.Risk.FundingIntervalHours) * time.Hour
		position.NextFundingTime = utils.NextIntervalBoundary(time.Now(), interval)
	}

	e.book.Open(position)
	e.transition(signal.Symbol, models.StateOpen)
	e.transition(signal.Symbol, models.StateMonitoring)

	signalsProcessed.WithLabelValues(string(OutcomeOpened)).Inc()
	e.logger.Info("position opened",
		zap.String("symbol", position.Symbol),
		zap.String("type", string(position.Type)),
		zap.String("direction", string(position.Direction)),
		zap.Float64("size", size),
		zap.Float64("entry_price", entryPrice),
		zap.Float64("liquidation_price", position.LiquidationPrice),
		zap.String("agent", signal.AgentName))

	_ = e.sink.SaveExecution(ctx, &models.ExecutionReport{
		Timestamp:  time.Now(),
		Symbol:     position.Symbol,
		Action:     models.ActionOpen,
		Direction:  position.Direction,
		Price:      entryPrice,
		Size:       size,
		AgentName:  signal.AgentName,
		Confidence: signal.Confidence,
		Metadata:   signal.Metadata,
	})

	return OutcomeOpened, nil
}

// Ставка funding при недоступном фиде (0.01% за интервал)
const defaultFundingRate = 0.0001

// deriveProtectiveLevels достраивает SL/TP сигнала от ATR
//
// Если сигнал пришёл без уровней, а в метаданных есть "atr", стоп
// ставится на atr*StopLossATRMultiple от цены, тейк - на
// atr*TakeProfitATRMultiple в сторону прибыли. Исходный сигнал
// не мутируется.
func (e *TradeExecutor) deriveProtectiveLevels(signal *models.TradeSignal) *models.TradeSignal {
	if signal.StopLoss > 0 && signal.TakeProfit > 0 {
		return signal
	}
	atr := signalATR(signal)
	if atr <= 0 {
		return signal
	}

	derived := *signal
	sign := 1.0
	if derived.PositionDirection() == models.DirectionShort {
		sign = -1.0
	}
	if derived.StopLoss <= 0 {
		derived.StopLoss = derived.Price - sign*atr*e.config.Risk.StopLossATRMultiple
	}
	if derived.TakeProfit <= 0 {
		derived.TakeProfit = derived.Price + sign*atr*e.config.Risk.TakeProfitATRMultiple
	}
	return &derived
}

// signalATR извлекает ATR из метаданных сигнала
func signalATR(signal *models.TradeSignal) float64 {
	if signal.Metadata == nil {
		return 0
	}
	if v, ok := signal.Metadata["atr"].(float64); ok && v > 0 {
		return v
	}
	return 0
}

// signalVolatility извлекает оценку волатильности из метаданных сигнала
func signalVolatility(signal *models.TradeSignal) float64 {
	if signal.Metadata == nil {
		return 0
	}
	if v, ok := signal.Metadata["volatility"].(float64); ok && v > 0 {
		return v
	}
	return 0
}

// reject фиксирует отклонение сигнала
func (e *TradeExecutor) reject(ctx context.Context, signal *models.TradeSignal, cause error) {
	signalsProcessed.WithLabelValues(string(OutcomeRejected)).Inc()
	signalRejections.WithLabelValues(rejectionReason(cause)).Inc()

	e.logger.Info("signal rejected",
		zap.String("symbol", signal.Symbol),
		zap.String("agent", signal.AgentName),
		zap.Error(cause))

	_ = e.sink.SaveRiskEvent(ctx, &models.RiskEvent{
		Timestamp: time.Now(),
		Type:      models.RiskEventLimitRejected,
		Severity:  models.SeverityInfo,
		Symbol:    signal.Symbol,
		Message:   fmt.Sprintf("Signal rejected: %v", cause),
		Metadata: map[string]interface{}{
			"agent":  signal.AgentName,
			"reason": rejectionReason(cause),
		},
	})
}

// rejectionReason возвращает метку причины для метрик
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientMargin):
		return "insufficient_margin"
	case errors.Is(err, ErrPositionLimitReached):
		return "position_limit"
	case errors.Is(err, ErrLeverageExceeded):
		return "leverage"
	case errors.Is(err, ErrContractNotAllowed):
		return "contract_not_allowed"
	case errors.Is(err, ErrMarginTypeNotAllowed):
		return "margin_type"
	case errors.Is(err, ErrCorrelationLimitExceeded):
		return "correlation"
	case errors.Is(err, ErrDailyLossLimitReached):
		return "daily_loss_limit"
	case errors.Is(err, ErrMaxDrawdownExceeded):
		return "max_drawdown"
	case errors.Is(err, ErrZeroPriceRisk):
		return "zero_price_risk"
	case errors.Is(err, ErrInvalidSignal):
		return "invalid_signal"
	default:
		return "other"
	}
}

// ============================================================
// Закрытие позиций
// ============================================================

// ClosePosition закрывает позицию по символу
//
// exitPrice = 0 означает "по текущей рыночной цене".
func (e *TradeExecutor) ClosePosition(ctx context.Context, symbol string, reason models.CloseReason, exitPrice float64) (*models.Trade, error) {
	e.processMu.Lock()
	defer e.processMu.Unlock()
	return e.closeLocked(ctx, symbol, reason, exitPrice)
}

// closeLocked закрывает позицию под processMu
func (e *TradeExecutor) closeLocked(ctx context.Context, symbol string, reason models.CloseReason, exitPrice float64) (*models.Trade, error) {
	position, ok := e.book.Get(symbol)
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, ErrPositionNotFound)
	}

	if exitPrice <= 0 {
		if resolution, err := e.resolver.ResolvePrice(ctx, symbol); err == nil {
			exitPrice = resolution.Price
		} else {
			// Резолв недоступен - закрываем по последней известной цене
			e.logger.Warn("close price resolution failed, using last known price",
				zap.String("symbol", symbol), zap.Error(err))
			exitPrice = position.CurrentPrice
			if exitPrice <= 0 {
				exitPrice = position.EntryPrice
			}
		}
	}

	e.transition(symbol, models.StateClosing)

	trade, err := e.book.Close(symbol, exitPrice, reason)
	if err != nil {
		return nil, err
	}
	e.risk.ApplyTrade(trade)

	e.transition(symbol, models.StateClosed)
	e.transition(symbol, models.StateNone)

	signalsProcessed.WithLabelValues(string(OutcomeClosed)).Inc()
	e.logger.Info("position closed",
		zap.String("symbol", symbol),
		zap.String("reason", string(reason)),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("pnl", trade.Pnl),
		zap.String("held", utils.FormatDuration(trade.CloseTime.Sub(trade.OpenTime))),
		zap.String("agent", trade.AgentName))

	_ = e.sink.SaveTrade(ctx, trade)
	_ = e.sink.SaveExecution(ctx, &models.ExecutionReport{
		Timestamp: time.Now(),
		Symbol:    symbol,
		Action:    models.ActionClose,
		Direction: trade.Direction,
		Price:     exitPrice,
		Size:      trade.Size,
		AgentName: trade.AgentName,
		Reason:    string(reason),
	})

	if e.onTradeClosed != nil {
		e.onTradeClosed(trade)
	}

	e.sendPerformance(ctx, trade.AgentName)

	return trade, nil
}

// sendPerformance отправляет сводку эффективности агенту-источнику
func (e *TradeExecutor) sendPerformance(ctx context.Context, agentName string) {
	riskReport := e.risk.Report()
	report := &models.PerformanceReport{
		Timestamp:   time.Now(),
		AgentName:   agentName,
		TotalPnl:    riskReport.Equity - e.config.Risk.InitialEquity,
		DailyPnl:    riskReport.DailyPnl,
		TotalTrades: riskReport.TotalTrades,
		WinRate:     riskReport.WinRate,
		AvgProfit:   riskReport.AvgProfit,
		AvgLoss:     riskReport.AvgLoss,
		MaxDrawdown: riskReport.Drawdown,
		Sharpe:      riskReport.Sharpe,
	}
	report.WinTrades = int(float64(report.TotalTrades) * report.WinRate)
	report.LossTrades = report.TotalTrades - report.WinTrades

	_ = e.sink.SavePerformance(ctx, report)
	if e.onPerformance != nil {
		e.onPerformance(report)
	}
}

// CloseAll закрывает все открытые позиции (graceful shutdown)
//
// Новые сигналы отклоняются с момента вызова. Ошибки закрытия
// отдельных позиций не останавливают остальные.
func (e *TradeExecutor) CloseAll(ctx context.Context, reason models.CloseReason) []error {
	e.beginShutdown()

	e.processMu.Lock()
	defer e.processMu.Unlock()

	var errs []error
	for _, p := range e.book.Snapshot() {
		if _, err := e.closeLocked(ctx, p.Symbol, reason, 0); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Symbol, err))
			e.logger.Error("close on shutdown failed",
				zap.String("symbol", p.Symbol), zap.Error(err))
		}
	}
	return errs
}

// PortfolioState строит снимок состояния портфеля
func (e *TradeExecutor) PortfolioState() *models.PortfolioState {
	equity := e.risk.Equity()
	usedMargin := e.book.UsedMargin()
	positions := e.book.Snapshot()

	exposure := make(map[string]float64, len(positions))
	for _, p := range positions {
		exposure[p.Symbol] = p.NotionalValue()
	}

	return &models.PortfolioState{
		Timestamp:     time.Now(),
		TotalEquity:   equity,
		UsedMargin:    usedMargin,
		FreeMargin:    equity - usedMargin,
		MarginLevel:   models.ComputeMarginLevel(equity, usedMargin),
		TotalPnl:      equity - e.config.Risk.InitialEquity + e.book.UnrealizedPnl(),
		DailyPnl:      e.risk.DailyPnl(),
		Drawdown:      e.risk.Drawdown(),
		OpenPositions: len(positions),
		Exposure:      exposure,
	}
}
