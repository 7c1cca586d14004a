package reporting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// reportsSaved - успешно доставленные отчёты
var reportsSaved = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "reporting",
		Name:      "saved_total",
		Help:      "Total number of reports saved to the sink",
	},
	[]string{"kind"},
)

// reportsDropped - отчёты, отброшенные после исчерпания попыток
var reportsDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "reporting",
		Name:      "dropped_total",
		Help:      "Total number of reports dropped after retry exhaustion",
	},
	[]string{"kind"},
)
