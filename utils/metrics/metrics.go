package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// DefaultNamespace prefixes every metric when none is configured
const DefaultNamespace = "flashbridge"

type MetricsConfig struct {
	Namespace string
	// IncludeRuntime adds the Go and process collectors
	IncludeRuntime bool
}

// NewRegistry builds the registry served by the metrics endpoint
func NewRegistry(cfg *MetricsConfig, log *zap.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	if cfg != nil && cfg.IncludeRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if log != nil {
		log.Debug("Metrics registry created", zap.Bool("runtime", cfg != nil && cfg.IncludeRuntime))
	}
	return reg
}

// FlashLoanMetrics tracks loans served by a lender adapter. A nil
// registerer leaves the collectors unregistered.
type FlashLoanMetrics struct {
	Loans       *prometheus.CounterVec
	Volume      *prometheus.CounterVec
	Fees        *prometheus.CounterVec
	Errors      *prometheus.CounterVec
	Rejected    prometheus.Counter
	LoanLatency prometheus.Histogram
}

func NewFlashLoanMetrics(namespace string, reg prometheus.Registerer) *FlashLoanMetrics {
	factory := promauto.With(reg)
	return &FlashLoanMetrics{
		Loans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "loans_total",
			Help:      "Total number of completed flash loans",
		}, []string{"token"}),
		Volume: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "volume_base_units_total",
			Help:      "Total principal lent in token base units",
		}, []string{"token"}),
		Fees: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "fees_base_units_total",
			Help:      "Total fees charged in token base units",
		}, []string{"token"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "errors_total",
			Help:      "Total number of failed flash loans by reason",
		}, []string{"reason"}),
		Rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "rejected_callbacks_total",
			Help:      "Total number of callbacks refused by the adapter",
		}),
		LoanLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "loan_duration_seconds",
			Help:      "Time taken to execute a flash loan",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
}

// RouterMetrics tracks lender selection by the manager
type RouterMetrics struct {
	Selections  *prometheus.CounterVec
	Executions  prometheus.Counter
	Failures    prometheus.Counter
	SuccessRate prometheus.Gauge
}

func NewRouterMetrics(namespace string, reg prometheus.Registerer) *RouterMetrics {
	factory := promauto.With(reg)
	return &RouterMetrics{
		Selections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "lender_selections_total",
			Help:      "Number of times each lender was selected",
		}, []string{"lender"}),
		Executions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "executions_total",
			Help:      "Total number of routed flash loans",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "failures_total",
			Help:      "Total number of routed flash loans that reverted",
		}),
		SuccessRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "success_rate",
			Help:      "Share of routed flash loans that succeeded",
		}),
	}
}

// SimulationMetrics tracks dry runs
type SimulationMetrics struct {
	Runs        *prometheus.CounterVec
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

func NewSimulationMetrics(namespace string, reg prometheus.Registerer) *SimulationMetrics {
	factory := promauto.With(reg)
	return &SimulationMetrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "runs_total",
			Help:      "Total number of simulated flash loans by outcome",
		}, []string{"outcome"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "cache_hits_total",
			Help:      "Simulations answered from the cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "cache_misses_total",
			Help:      "Simulations that had to execute",
		}),
	}
}
