package engine

import "treasuryd/observability"

// Metrics exposes Prometheus collectors for engine instrumentation.
type Metrics = observability.EngineMetrics

// NewMetrics returns the lazily initialised metrics registry.
func NewMetrics() *Metrics { return observability.Engine() }
