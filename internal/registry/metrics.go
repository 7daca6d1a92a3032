package registry

import "time"

// Metrics records per-operation outcomes. result is "success" or an error kind name.
type Metrics interface {
	ObserveOperation(operation, result string, elapsed time.Duration)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObserveOperation(string, string, time.Duration) {}
