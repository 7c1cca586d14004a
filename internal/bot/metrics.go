package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах

// ============ Сигналы и позиции ============

// signalsProcessed - обработанные сигналы по исходам
var signalsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "executor",
		Name:      "signals_processed_total",
		Help:      "Total number of processed trade signals by outcome",
	},
	[]string{"outcome"}, // opened, modified, closed, rejected
)

// signalRejections - отклонённые сигналы по причинам
var signalRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "executor",
		Name:      "signal_rejections_total",
		Help:      "Total number of rejected signals by reason",
	},
	[]string{"reason"},
)

// openPositions - текущее количество открытых позиций
var openPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "positions",
		Name:      "open",
		Help:      "Current number of open positions",
	},
)

// positionsClosed - закрытые позиции по причинам
var positionsClosed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "positions",
		Name:      "closed_total",
		Help:      "Total number of closed positions by reason",
	},
	[]string{"symbol", "reason"},
)

// ============ Риск ============

// riskEventsTotal - риск-события по типам и серьёзности
var riskEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "risk",
		Name:      "events_total",
		Help:      "Total number of risk events",
	},
	[]string{"type", "severity"},
)

// fundingPayments - применённые funding-платежи
var fundingPayments = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "risk",
		Name:      "funding_payments_total",
		Help:      "Total number of funding payments applied",
	},
	[]string{"symbol"},
)

// pnlTotal - суммарный реализованный PNL в USDT
var pnlTotal = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "risk",
		Name:      "pnl_total_usdt",
		Help:      "Total realized PnL in USDT",
	},
)

// equityGauge - текущий капитал
var equityGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "risk",
		Name:      "equity_usdt",
		Help:      "Current realized equity in USDT",
	},
)

// ============ Мониторинг-цикл ============

// tickDuration - длительность тика мониторинга
var tickDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "tradecore",
		Subsystem: "monitor",
		Name:      "tick_duration_seconds",
		Help:      "Monitoring tick duration in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
)

// tickIntervalGauge - текущий интервал между тиками (растёт при ошибках)
var tickIntervalGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "monitor",
		Name:      "tick_interval_seconds",
		Help:      "Current adaptive tick interval in seconds",
	},
)

// tickErrors - тики, завершившиеся ошибкой резолва цен
var tickErrors = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "monitor",
		Name:      "tick_errors_total",
		Help:      "Total number of monitoring ticks with price resolution errors",
	},
)
