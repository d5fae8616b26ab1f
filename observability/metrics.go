package observability

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// EngineMetrics wraps collectors tracking disbursement engine health.
type EngineMetrics struct {
	runLatency *prometheus.HistogramVec
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	disbursed  *prometheus.CounterVec
	inFlight   prometheus.Gauge
	eligible   prometheus.Gauge
}

// Engine exposes the metrics registry for the disbursement engine.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			runLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "treasury",
				Subsystem: "engine",
				Name:      "run_latency_seconds",
				Help:      "Latency distribution for disbursement runs.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"trigger"}),
			runs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "treasury",
				Subsystem: "engine",
				Name:      "runs_total",
				Help:      "Count of disbursement runs segmented by trigger and outcome.",
			}, []string{"trigger", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "treasury",
				Subsystem: "engine",
				Name:      "failures_total",
				Help:      "Count of failed disbursement runs segmented by failure category.",
			}, []string{"reason"}),
			disbursed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "treasury",
				Subsystem: "engine",
				Name:      "disbursed_total",
				Help:      "Total value disbursed per token in smallest units.",
			}, []string{"token"}),
			inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "treasury",
				Subsystem: "engine",
				Name:      "runs_in_flight",
				Help:      "Number of disbursement runs currently executing.",
			}),
			eligible: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "treasury",
				Subsystem: "engine",
				Name:      "eligible_tenants",
				Help:      "Tenants found eligible during the latest scheduler tick.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.runLatency,
			engineRegistry.runs,
			engineRegistry.failures,
			engineRegistry.disbursed,
			engineRegistry.inFlight,
			engineRegistry.eligible,
		)
	})
	return engineRegistry
}

// ObserveRun records the latency of a completed run.
func (m *EngineMetrics) ObserveRun(trigger string, d time.Duration) {
	if m == nil {
		return
	}
	m.runLatency.WithLabelValues(labelValue(trigger)).Observe(d.Seconds())
}

// RecordOutcome counts one finished run.
func (m *EngineMetrics) RecordOutcome(trigger, outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(labelValue(trigger), labelValue(outcome)).Inc()
}

// RecordFailure increments the failure counter for the supplied reason.
func (m *EngineMetrics) RecordFailure(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.failures.WithLabelValues(reason).Inc()
}

// RecordDisbursed adds the settled value for a token.
func (m *EngineMetrics) RecordDisbursed(token string, amount *big.Int) {
	if m == nil {
		return
	}
	m.disbursed.WithLabelValues(labelValue(token)).Add(bigToFloat(amount))
}

// RunStarted increments the in-flight gauge.
func (m *EngineMetrics) RunStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// RunFinished decrements the in-flight gauge.
func (m *EngineMetrics) RunFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// SetEligible publishes the eligible tenant count for the latest tick.
func (m *EngineMetrics) SetEligible(count int) {
	if m == nil {
		return
	}
	m.eligible.Set(float64(count))
}

func labelValue(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	return f
}
