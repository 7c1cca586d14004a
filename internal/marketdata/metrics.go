package marketdata

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики разрешения цен
// ============================================================

// sourceLatency - время ответа источника цен
var sourceLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "tradecore",
		Subsystem: "marketdata",
		Name:      "source_latency_seconds",
		Help:      "Price source response time in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"source"},
)

// sourceErrors - ошибки источников (включая таймауты и 429)
var sourceErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "marketdata",
		Name:      "source_errors_total",
		Help:      "Total number of price source errors",
	},
	[]string{"source"},
)

// resolveFailures - разрешение цены не удалось ни по одному источнику
var resolveFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "marketdata",
		Name:      "resolve_failures_total",
		Help:      "Number of price resolutions where all sources failed",
	},
	[]string{"symbol"},
)

// resolvedPrice - последняя средневзвешенная цена
var resolvedPrice = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "marketdata",
		Name:      "resolved_price",
		Help:      "Last resolved weighted-average price",
	},
	[]string{"symbol"},
)

// priceDeviations - расхождения источников больше порога
var priceDeviations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "marketdata",
		Name:      "price_deviations_total",
		Help:      "Number of resolutions where sources diverged beyond threshold",
	},
	[]string{"symbol"},
)

// sourceQuality - последняя оценка качества источника (0-100)
var sourceQuality = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "marketdata",
		Name:      "source_quality_score",
		Help:      "Last computed source quality score (0-100)",
	},
	[]string{"source", "symbol"},
)
