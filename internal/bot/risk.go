package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/config"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// ReturnsProvider отдаёт историю доходностей символа для расчёта корреляций
//
// Реализацию подключает вызывающий (репозиторий сделок, внешний сервис).
type ReturnsProvider interface {
	Returns(ctx context.Context, symbol string, periods int) ([]float64, error)
}

// Количество периодов истории для корреляционной проверки
const correlationPeriods = 30

// Порог критической близости к цене ликвидации
const liquidationCriticalThreshold = 0.02

// RiskManager - централизованный менеджер рисков
//
// Функции:
// - Проверка сигнала перед открытием: лимиты позиций, маржа, плечо,
//   экспозиция, дневной убыток, просадка, корреляция
// - Расчёт размера позиции от riskPerTrade с поправкой на волатильность
// - Расчёт цены ликвидации (isolated и cross)
// - Обновление PNL и применение funding по границам интервала
// - Предупреждения о приближении к ликвидации
// - Учёт equity, пика, дневного PNL и доходностей сделок
type RiskManager struct {
	config  config.RiskConfig
	history ReturnsProvider // nil = корреляционная проверка пропускается
	logger  *zap.Logger

	// Колбэк для риск-событий (подключает исполнитель)
	onRiskEvent func(models.RiskEvent)

	mu          sync.Mutex
	equity      float64
	peakEquity  float64
	dayAnchor   time.Time // начало текущего торгового дня (UTC)
	dayStart    float64   // equity на начало дня
	tradeReturns []float64
	wins        int
	losses      int
	sumProfit   float64
	sumLoss     float64
}

// NewRiskManager создаёт риск-менеджер
func NewRiskManager(cfg config.RiskConfig, history ReturnsProvider, logger *zap.Logger) *RiskManager {
	now := time.Now().UTC()
	return &RiskManager{
		config:     cfg,
		history:    history,
		logger:     logger.Named("risk"),
		equity:     cfg.InitialEquity,
		peakEquity: cfg.InitialEquity,
		dayAnchor:  utils.GetDayStartFrom(now),
		dayStart:   cfg.InitialEquity,
	}
}

// SetOnRiskEvent устанавливает колбэк для риск-событий
func (rm *RiskManager) SetOnRiskEvent(fn func(models.RiskEvent)) {
	rm.onRiskEvent = fn
}

func (rm *RiskManager) emit(event models.RiskEvent) {
	riskEventsTotal.WithLabelValues(string(event.Type), event.Severity).Inc()
	if rm.onRiskEvent != nil {
		rm.onRiskEvent(event)
	}
}

// rollDay сбрасывает дневной учёт при смене торгового дня
// ВАЖНО: вызывается под локом
func (rm *RiskManager) rollDay(now time.Time) {
	day := utils.GetDayStartFrom(now)
	if day.After(rm.dayAnchor) {
		rm.dayAnchor = day
		rm.dayStart = rm.equity
	}
}

// Equity возвращает текущий реализованный капитал
func (rm *RiskManager) Equity() float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.equity
}

// DailyPnl возвращает реализованный PNL с начала торгового дня
func (rm *RiskManager) DailyPnl() float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.rollDay(time.Now())
	return rm.equity - rm.dayStart
}

// Drawdown возвращает текущую просадку от пика equity
func (rm *RiskManager) Drawdown() float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.peakEquity <= 0 {
		return 0
	}
	return (rm.peakEquity - rm.equity) / rm.peakEquity
}

// ApplyTrade учитывает закрытую сделку в equity и статистике
func (rm *RiskManager) ApplyTrade(trade *models.Trade) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.rollDay(trade.CloseTime)
	rm.equity += trade.Pnl
	if rm.equity > rm.peakEquity {
		rm.peakEquity = rm.equity
	}

	rm.tradeReturns = append(rm.tradeReturns, trade.ReturnPct())
	if trade.IsWin() {
		rm.wins++
		rm.sumProfit += trade.Pnl
	} else {
		rm.losses++
		rm.sumLoss += trade.Pnl
	}

	pnlTotal.Add(trade.Pnl)
	equityGauge.Set(rm.equity)
}

// ============================================================
// Проверка сигнала перед открытием
// ============================================================

// CheckPositionRisk проверяет допустимость открытия позиции по сигналу
//
// Возвращает sentinel-ошибку конкретной проверки; nil = сигнал допустим.
// Порядок проверок: от дешёвых к дорогим, корреляция последней.
func (rm *RiskManager) CheckPositionRisk(ctx context.Context, signal *models.TradeSignal, book *PositionBook) error {
	rm.mu.Lock()
	rm.rollDay(time.Now())
	equity := rm.equity
	dayStart := rm.dayStart
	dailyPnl := rm.equity - rm.dayStart
	peak := rm.peakEquity
	rm.mu.Unlock()

	// Лимит количества позиций
	if book.Len() >= rm.config.PositionLimit {
		return fmt.Errorf("%w: %d open", ErrPositionLimitReached, book.Len())
	}

	// Плечо контракта
	leverage := 1.0
	if signal.IsContract() {
		leverage = float64(signal.Contract.Leverage)
		if leverage > rm.config.MaxLeverage {
			return fmt.Errorf("%w: %v > %v", ErrLeverageExceeded, leverage, rm.config.MaxLeverage)
		}
	}

	// Дневной лимит убытка
	if rm.config.DailyLossLimit > 0 && dailyPnl <= -rm.config.DailyLossLimit*dayStart {
		return fmt.Errorf("%w: daily pnl %.2f", ErrDailyLossLimitReached, dailyPnl)
	}

	// Просадка от пика
	if rm.config.MaxDrawdown > 0 && peak > 0 {
		drawdown := (peak - equity) / peak
		if drawdown >= rm.config.MaxDrawdown {
			return fmt.Errorf("%w: drawdown %.2f%%", ErrMaxDrawdownExceeded, drawdown*100)
		}
	}

	// Маржа: требуемая = notional / leverage, свободная = equity - used
	notional := signal.Size * signal.Price
	requiredMargin := notional / leverage
	freeMargin := equity - book.UsedMargin()
	if requiredMargin > freeMargin {
		return fmt.Errorf("%w: required %.2f, free %.2f", ErrInsufficientMargin, requiredMargin, freeMargin)
	}

	// Суммарная экспозиция портфеля
	if rm.config.LeverageLimit > 0 {
		totalNotional := notional * leverage
		for _, p := range book.Snapshot() {
			totalNotional += p.NotionalValue()
		}
		if totalNotional > rm.config.LeverageLimit*equity {
			return fmt.Errorf("%w: portfolio exposure %.2f exceeds %.2fx equity",
				ErrLeverageExceeded, totalNotional, rm.config.LeverageLimit)
		}
	}

	// Корреляция с открытыми позициями
	return rm.checkCorrelation(ctx, signal, book)
}

// checkCorrelation проверяет среднюю корреляцию символа с портфелем
//
// Fail-open: при недоступной истории сигнал пропускается с warning -
// блокировать торговлю из-за отказа вспомогательного сервиса хуже,
// чем временно торговать без проверки диверсификации.
func (rm *RiskManager) checkCorrelation(ctx context.Context, signal *models.TradeSignal, book *PositionBook) error {
	if rm.history == nil || rm.config.CorrelationLimit <= 0 {
		return nil
	}
	open := book.Snapshot()
	if len(open) < rm.config.MinDiversification {
		return nil
	}

	candidate, err := rm.history.Returns(ctx, signal.Symbol, correlationPeriods)
	if err != nil {
		rm.logger.Warn("correlation check skipped: history unavailable",
			zap.String("symbol", signal.Symbol), zap.Error(err))
		return nil
	}

	sum := 0.0
	count := 0
	for _, p := range open {
		if p.Symbol == signal.Symbol {
			continue
		}
		other, err := rm.history.Returns(ctx, p.Symbol, correlationPeriods)
		if err != nil {
			rm.logger.Warn("correlation check skipped for position",
				zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		sum += utils.Abs(utils.Correlation(candidate, other))
		count++
	}

	if count == 0 {
		return nil
	}
	avg := sum / float64(count)
	if avg > rm.config.CorrelationLimit {
		return fmt.Errorf("%w: avg correlation %.2f > %.2f", ErrCorrelationLimitExceeded, avg, rm.config.CorrelationLimit)
	}
	return nil
}

// ============================================================
// Размер позиции
// ============================================================

// CalculatePositionSize возвращает размер позиции от riskPerTrade
//
// riskAmount = riskPerTrade * equity, при волатильности выше 2%
// масштабируется вниз (0.02 / volatility). Размер ограничен сверху
// maxPositionSize * equity / price и сигнальным размером.
func (rm *RiskManager) CalculatePositionSize(signal *models.TradeSignal, volatility float64) (float64, error) {
	priceRisk := utils.Abs(signal.Price - signal.StopLoss)
	if priceRisk == 0 {
		return 0, fmt.Errorf("%s: %w", signal.Symbol, ErrZeroPriceRisk)
	}

	equity := rm.Equity()
	riskAmount := rm.config.RiskPerTrade * equity
	if volatility > 0.02 {
		riskAmount *= 0.02 / volatility
	}

	size := riskAmount / priceRisk

	maxSize := rm.config.MaxPositionSize * equity / signal.Price
	size = utils.Min(size, maxSize)
	size = utils.Min(size, signal.Size)

	if rm.config.MaxPositionValue > 0 {
		size = utils.Min(size, rm.config.MaxPositionValue/signal.Price)
	}

	return size, nil
}

// ============================================================
// Ликвидация
// ============================================================

// CalculateLiquidationPrice возвращает цену ликвидации контрактной позиции
//
// Isolated: залогом служит только маржа позиции:
//   long:  entry * (1 - 1/leverage + mmr)
//   short: entry * (1 + 1/leverage - mmr)
//
// Cross: залогом служит вся свободная маржа счёта:
//   long:  entry * (1 - available / (size * entry))
//   short: entry * (1 + available / (size * entry))
func CalculateLiquidationPrice(
	direction models.Direction,
	entryPrice float64,
	leverage float64,
	marginType models.MarginType,
	maintenanceMarginRate float64,
	availableMargin float64,
	size float64,
) float64 {
	if marginType == models.MarginCross {
		if size <= 0 || entryPrice <= 0 {
			return 0
		}
		buffer := availableMargin / (size * entryPrice)
		if direction == models.DirectionLong {
			return entryPrice * (1 - buffer)
		}
		return entryPrice * (1 + buffer)
	}

	if direction == models.DirectionLong {
		return entryPrice * (1 - 1/leverage + maintenanceMarginRate)
	}
	return entryPrice * (1 + 1/leverage - maintenanceMarginRate)
}

// ============================================================
// Обновление позиций: PNL, funding, близость к ликвидации
// ============================================================

// UpdatePositions обновляет позиции по свежим ценам
//
// Для каждого символа из prices: текущая цена, нереализованный PNL,
// поддерживающая маржа и цена ликвидации по новой цене, funding по
// границе интервала, предупреждения о близости ликвидации.
// Funding применяется ровно один раз на границу: NextFundingTime
// сдвигается на интервал вперёд, повторный вызов в том же интервале
// ничего не списывает. После позиций проверяются счётные лимиты:
// просадка, дневной убыток, маржин-колл.
func (rm *RiskManager) UpdatePositions(book *PositionBook, prices map[string]float64, now time.Time) []models.RiskEvent {
	interval := time.Duration(rm.config.FundingIntervalHours) * time.Hour
	var events []models.RiskEvent

	// Снимок счёта до цикла: book.Update держит write-лок книги,
	// обращаться к book.UsedMargin внутри колбэка нельзя
	equity := rm.Equity()
	usedMargin := book.UsedMargin()

	for symbol, price := range prices {
		if !utils.IsFinite(price) || price <= 0 {
			continue
		}

		var positionEvents []models.RiskEvent
		err := book.Update(symbol, func(p *models.Position) {
			p.CurrentPrice = price
			p.UnrealizedPnl = utils.CalculatePNL(string(p.Direction), p.EntryPrice, price, p.Size)

			if !p.IsContract() {
				return
			}

			// Поддерживающая маржа следует за ценой; для cross цена
			// ликвидации зависит от свободной маржи остального счёта
			p.MaintenanceMargin = p.Size * price * rm.config.MinMaintenanceMarginRate
			available := equity - (usedMargin - p.MarginUsed)
			p.LiquidationPrice = CalculateLiquidationPrice(
				p.Direction, p.EntryPrice, p.Leverage, p.MarginType,
				rm.config.MinMaintenanceMarginRate, available, p.Size)

			// Funding по границам интервала
			for !p.NextFundingTime.IsZero() && !now.Before(p.NextFundingTime) {
				payment := -p.Direction.Sign() * p.FundingRate * p.Size * price
				p.RealizedPnl += payment
				p.NextFundingTime = p.NextFundingTime.Add(interval)

				fundingPayments.WithLabelValues(symbol).Inc()
				positionEvents = append(positionEvents, models.RiskEvent{
					Timestamp: now,
					Type:      models.RiskEventFunding,
					Severity:  models.SeverityInfo,
					Symbol:    symbol,
					Message:   fmt.Sprintf("Funding %.4f USDT for %s (rate %.6f)", payment, symbol, p.FundingRate),
					Metadata: map[string]interface{}{
						"payment":      payment,
						"funding_rate": p.FundingRate,
						"direction":    string(p.Direction),
					},
				})
			}

			// Близость к цене ликвидации
			if p.LiquidationPrice > 0 {
				distance := utils.Abs(price-p.LiquidationPrice) / price
				if distance <= liquidationCriticalThreshold {
					positionEvents = append(positionEvents, liquidationProximityEvent(p, price, distance, models.SeverityCritical, now))
				} else if distance <= rm.config.LiquidationWarnThreshold {
					positionEvents = append(positionEvents, liquidationProximityEvent(p, price, distance, models.SeverityWarning, now))
				}
			}
		})
		if err != nil {
			continue // позиции по символу нет
		}
		events = append(events, positionEvents...)
	}

	events = append(events, rm.accountLimitEvents(equity, usedMargin, now)...)

	for _, event := range events {
		rm.emit(event)
	}
	return events
}

// accountLimitEvents проверяет лимиты уровня счёта
//
// Просадка и дневной убыток - критические события, маржин-колл -
// предупреждение при свободной марже ниже порога.
func (rm *RiskManager) accountLimitEvents(equity, usedMargin float64, now time.Time) []models.RiskEvent {
	rm.mu.Lock()
	rm.rollDay(now)
	dayStart := rm.dayStart
	dailyPnl := rm.equity - rm.dayStart
	peak := rm.peakEquity
	rm.mu.Unlock()

	var events []models.RiskEvent

	if rm.config.MaxDrawdown > 0 && peak > 0 {
		drawdown := (peak - equity) / peak
		if drawdown >= rm.config.MaxDrawdown {
			events = append(events, models.RiskEvent{
				Timestamp: now,
				Type:      models.RiskEventDrawdown,
				Severity:  models.SeverityCritical,
				Message: fmt.Sprintf("🚨 Просадка %.1f%% превысила лимит %.1f%%",
					drawdown*100, rm.config.MaxDrawdown*100),
				Metadata: map[string]interface{}{
					"drawdown":    drawdown,
					"peak_equity": peak,
					"equity":      equity,
				},
			})
		}
	}

	if rm.config.DailyLossLimit > 0 && dayStart > 0 && dailyPnl <= -rm.config.DailyLossLimit*dayStart {
		events = append(events, models.RiskEvent{
			Timestamp: now,
			Type:      models.RiskEventDailyLoss,
			Severity:  models.SeverityCritical,
			Message: fmt.Sprintf("🚨 Дневной убыток %.2f USDT превысил лимит %.1f%%",
				dailyPnl, rm.config.DailyLossLimit*100),
			Metadata: map[string]interface{}{
				"daily_pnl": dailyPnl,
				"day_start": dayStart,
			},
		})
	}

	if rm.config.MarginCallThreshold > 0 && usedMargin > 0 {
		freeMargin := equity - usedMargin
		if freeMargin < rm.config.MarginCallThreshold*equity {
			events = append(events, models.RiskEvent{
				Timestamp: now,
				Type:      models.RiskEventMarginCall,
				Severity:  models.SeverityWarning,
				Message: fmt.Sprintf("⚠️ Margin call: свободная маржа %.2f ниже %.0f%% капитала",
					freeMargin, rm.config.MarginCallThreshold*100),
				Metadata: map[string]interface{}{
					"free_margin": freeMargin,
					"used_margin": usedMargin,
					"equity":      equity,
				},
			})
		}
	}

	return events
}

func liquidationProximityEvent(p *models.Position, price, distance float64, severity string, now time.Time) models.RiskEvent {
	return models.RiskEvent{
		Timestamp: now,
		Type:      models.RiskEventLiquidationWarning,
		Severity:  severity,
		Symbol:    p.Symbol,
		Message: fmt.Sprintf("⚠️ %s: price %.2f within %.1f%% of liquidation %.2f",
			p.Symbol, price, distance*100, p.LiquidationPrice),
		Metadata: map[string]interface{}{
			"price":             price,
			"liquidation_price": p.LiquidationPrice,
			"distance":          distance,
			"direction":         string(p.Direction),
		},
	}
}

// ShouldLiquidate возвращает true, если цена пересекла цену ликвидации
func ShouldLiquidate(p *models.Position, price float64) bool {
	if !p.IsContract() || p.LiquidationPrice <= 0 {
		return false
	}
	if p.Direction == models.DirectionLong {
		return price <= p.LiquidationPrice
	}
	return price >= p.LiquidationPrice
}

// ============================================================
// Риск-отчёт
// ============================================================

// RiskReport - сводка риск-метрик портфеля
type RiskReport struct {
	Timestamp   time.Time `json:"timestamp"`
	Equity      float64   `json:"equity"`
	PeakEquity  float64   `json:"peak_equity"`
	Drawdown    float64   `json:"drawdown"`
	DailyPnl    float64   `json:"daily_pnl"`
	TotalTrades int       `json:"total_trades"`
	WinRate     float64   `json:"win_rate"`
	AvgProfit   float64   `json:"avg_profit"`
	AvgLoss     float64   `json:"avg_loss"`

	Sharpe            float64 `json:"sharpe"`
	Sortino           float64 `json:"sortino"`
	VaR95             float64 `json:"var_95"`
	ExpectedShortfall float64 `json:"expected_shortfall"`
}

// Report строит риск-отчёт по накопленной статистике сделок
func (rm *RiskManager) Report() *RiskReport {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.rollDay(time.Now())

	report := &RiskReport{
		Timestamp:   time.Now(),
		Equity:      rm.equity,
		PeakEquity:  rm.peakEquity,
		DailyPnl:    rm.equity - rm.dayStart,
		TotalTrades: rm.wins + rm.losses,
	}
	if rm.peakEquity > 0 {
		report.Drawdown = (rm.peakEquity - rm.equity) / rm.peakEquity
	}
	if report.TotalTrades > 0 {
		report.WinRate = float64(rm.wins) / float64(report.TotalTrades)
	}
	if rm.wins > 0 {
		report.AvgProfit = rm.sumProfit / float64(rm.wins)
	}
	if rm.losses > 0 {
		report.AvgLoss = rm.sumLoss / float64(rm.losses)
	}

	returns := rm.tradeReturns
	if len(returns) >= 2 {
		mean := utils.Mean(returns)
		stddev := utils.StdDev(returns)
		if stddev > 0 {
			report.Sharpe = mean / stddev
		}

		// Sortino: в знаменателе только волатильность убытков
		var downside []float64
		for _, r := range returns {
			if r < 0 {
				downside = append(downside, r)
			}
		}
		if len(downside) >= 2 {
			if dd := utils.StdDev(downside); dd > 0 {
				report.Sortino = mean / dd
			}
		}

		// VaR 95%: 5-й перцентиль доходностей
		report.VaR95 = utils.Percentile(returns, 5)

		// Expected Shortfall: средний убыток в хвосте за VaR
		var tail []float64
		for _, r := range returns {
			if r <= report.VaR95 {
				tail = append(tail, r)
			}
		}
		if len(tail) > 0 {
			report.ExpectedShortfall = utils.Mean(tail)
		}
	}

	return report
}
