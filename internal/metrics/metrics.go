package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes forecast cycle metrics to Prometheus.
type Recorder struct {
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	diagnostics    *prometheus.CounterVec
	currentPrice   *prometheus.GaugeVec
	adjustedDrift  *prometheus.GaugeVec
	stepVolatility *prometheus.GaugeVec
	cacheOps       *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quant",
				Name:      "forecast_cycles_total",
				Help:      "Forecast cycles by outcome",
			},
			[]string{"outcome"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "quant",
				Name:      "forecast_cycle_duration_seconds",
				Help:      "Duration of forecast cycles in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		diagnostics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quant",
				Name:      "diagnostics_total",
				Help:      "Non-fatal degradations absorbed by the pipeline",
			},
			[]string{"kind"},
		),
		currentPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "quant",
				Name:      "current_price",
				Help:      "Last observed target price",
			},
			[]string{"target"},
		),
		adjustedDrift: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "quant",
				Name:      "adjusted_drift_ratio",
				Help:      "Macro-adjusted drift per step",
			},
			[]string{"target"},
		),
		stepVolatility: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "quant",
				Name:      "step_volatility_ratio",
				Help:      "Per-step volatility of log returns",
			},
			[]string{"target"},
		),
		cacheOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quant",
				Name:      "cache_operations_total",
				Help:      "Forecast cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// RecordCycle counts a finished cycle and observes its duration.
func (r *Recorder) RecordCycle(outcome string, d time.Duration) {
	r.cycles.WithLabelValues(outcome).Inc()
	r.cycleDuration.Observe(d.Seconds())
}

// RecordForecast sets the headline gauges for target.
func (r *Recorder) RecordForecast(target string, currentPrice, adjustedDrift, stepVolatility float64) {
	r.currentPrice.WithLabelValues(target).Set(currentPrice)
	r.adjustedDrift.WithLabelValues(target).Set(adjustedDrift)
	r.stepVolatility.WithLabelValues(target).Set(stepVolatility)
}

// RecordDiagnostic counts one absorbed degradation.
func (r *Recorder) RecordDiagnostic(kind string) {
	r.diagnostics.WithLabelValues(kind).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func (r *Recorder) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheOps.WithLabelValues(result).Inc()
}
