package ocppgw

import (
	"context"
	"sync/atomic"
	"time"
)

// routerMetrics uses lock-free atomics so unrelated envelopes never contend.
type routerMetrics struct {
	received         atomic.Uint64
	forwarded        atomic.Uint64
	replaced         atomic.Uint64
	rejected         atomic.Uint64
	dropped          atomic.Uint64
	lateResponses    atomic.Uint64
	unknownResponses atomic.Uint64
	errors           atomic.Uint64
	processingNs     atomic.Int64
}

// recordProcessingTime keeps an exponential moving average of per-envelope
// processing time.
func (m *routerMetrics) recordProcessingTime(ns int64) {
	const alpha = 0.2
	current := m.processingNs.Load()
	if current == 0 {
		m.processingNs.Store(ns)
		return
	}
	m.processingNs.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}

// Metrics is the observable telemetry of one router.
type Metrics struct {
	Received            uint64
	Forwarded           uint64
	Replaced            uint64
	Rejected            uint64
	Dropped             uint64
	LateResponses       uint64
	UnknownResponses    uint64
	Errors              uint64
	PendingRequests     int
	EventsDropped       uint64
	AvgProcessingTimeMs float64
}

// HealthStatus reports router health for liveness/readiness probes.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}

// GetMetrics returns current router metrics.
func (r *Router) GetMetrics() Metrics {
	m := Metrics{
		Received:            r.metrics.received.Load(),
		Forwarded:           r.metrics.forwarded.Load(),
		Replaced:            r.metrics.replaced.Load(),
		Rejected:            r.metrics.rejected.Load(),
		Dropped:             r.metrics.dropped.Load(),
		LateResponses:       r.metrics.lateResponses.Load(),
		UnknownResponses:    r.metrics.unknownResponses.Load(),
		Errors:              r.metrics.errors.Load(),
		AvgProcessingTimeMs: float64(r.metrics.processingNs.Load()) / 1e6,
	}
	if r.observerPool != nil {
		m.EventsDropped = r.observerPool.Stats().Dropped
	}
	if t, ok := r.pending.(*PendingTable); ok {
		m.PendingRequests = t.Len()
	}
	return m
}

// Health checks router health.
func (r *Router) Health(context.Context) HealthStatus {
	if r.closed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: r.clock.Now(),
			Message:   "router is closed",
		}
	}

	m := r.GetMetrics()
	status := "healthy"
	// Degraded when more than 5% of envelopes hit an internal error.
	if m.Errors > 0 && m.Received > 0 && float64(m.Errors)/float64(m.Received) > 0.05 {
		status = "degraded"
	}

	return HealthStatus{
		Status:    status,
		Metrics:   m,
		Timestamp: r.clock.Now(),
	}
}
