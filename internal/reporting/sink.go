// Package reporting отвечает за доставку отчётов ядра внешним потребителям.
package reporting

import (
	"context"

	"go.uber.org/zap"

	"tradecore/internal/models"
	"tradecore/pkg/retry"
)

// Sink - приёмник отчётов торгового ядра
//
// Реализации: PostgresSink (internal/repository), NoopSink для тестов.
type Sink interface {
	// SaveTrade сохраняет запись о завершённой сделке
	SaveTrade(ctx context.Context, trade *models.Trade) error

	// SaveExecution сохраняет отчёт об исполнении
	SaveExecution(ctx context.Context, report *models.ExecutionReport) error

	// SaveRiskEvent сохраняет риск-событие
	SaveRiskEvent(ctx context.Context, event *models.RiskEvent) error

	// SavePerformance сохраняет сводку эффективности
	SavePerformance(ctx context.Context, report *models.PerformanceReport) error

	// Close закрывает приёмник
	Close() error
}

// RetryingSink оборачивает Sink политикой повторов
//
// Отчётность не должна блокировать торговлю: после исчерпания попыток
// отчёт отбрасывается с ошибкой в лог, а не останавливает исполнителя.
type RetryingSink struct {
	inner  Sink
	config retry.Config
	logger *zap.Logger
}

// NewRetryingSink создаёт обёртку с политикой повторов по умолчанию
func NewRetryingSink(inner Sink, logger *zap.Logger) *RetryingSink {
	return &RetryingSink{
		inner:  inner,
		config: retry.SinkConfig(),
		logger: logger.Named("reporting"),
	}
}

func (s *RetryingSink) save(ctx context.Context, kind string, op func() error) error {
	err := retry.Do(ctx, op, s.config)
	if err != nil {
		s.logger.Error("report dropped after retries",
			zap.String("kind", kind),
			zap.Error(err))
		reportsDropped.WithLabelValues(kind).Inc()
	} else {
		reportsSaved.WithLabelValues(kind).Inc()
	}
	// Ошибка наружу не возвращается: отчёт либо сохранён, либо отброшен
	return nil
}

func (s *RetryingSink) SaveTrade(ctx context.Context, trade *models.Trade) error {
	return s.save(ctx, "trade", func() error { return s.inner.SaveTrade(ctx, trade) })
}

func (s *RetryingSink) SaveExecution(ctx context.Context, report *models.ExecutionReport) error {
	return s.save(ctx, "execution", func() error { return s.inner.SaveExecution(ctx, report) })
}

func (s *RetryingSink) SaveRiskEvent(ctx context.Context, event *models.RiskEvent) error {
	return s.save(ctx, "risk_event", func() error { return s.inner.SaveRiskEvent(ctx, event) })
}

func (s *RetryingSink) SavePerformance(ctx context.Context, report *models.PerformanceReport) error {
	return s.save(ctx, "performance", func() error { return s.inner.SavePerformance(ctx, report) })
}

func (s *RetryingSink) Close() error {
	return s.inner.Close()
}

// NoopSink - приёмник, который молча принимает всё (тесты, dry-run)
type NoopSink struct{}

func (NoopSink) SaveTrade(context.Context, *models.Trade) error                 { return nil }
func (NoopSink) SaveExecution(context.Context, *models.ExecutionReport) error   { return nil }
func (NoopSink) SaveRiskEvent(context.Context, *models.RiskEvent) error         { return nil }
func (NoopSink) SavePerformance(context.Context, *models.PerformanceReport) error { return nil }
func (NoopSink) Close() error                                                   { return nil }
