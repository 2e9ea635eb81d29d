package usecase

import "sync/atomic"

// Metrics holds the orchestrator's counters. Safe for concurrent turns.
type Metrics struct {
	turns          atomic.Int64
	executions     atomic.Int64
	restarts       atomic.Int64
	upstreamErrors atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters, as reported by
// the status endpoint.
type MetricsSnapshot struct {
	Turns          int64 `json:"turns"`
	Executions     int64 `json:"executions"`
	Restarts       int64 `json:"restarts"`
	UpstreamErrors int64 `json:"upstream_errors"`
}

// Snapshot returns a consistent-enough copy for reporting purposes.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Turns:          m.turns.Load(),
		Executions:     m.executions.Load(),
		Restarts:       m.restarts.Load(),
		UpstreamErrors: m.upstreamErrors.Load(),
	}
}
