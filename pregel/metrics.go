package pregel

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible metrics for workflow execution
// monitoring.
//
// Metrics exposed (all namespaced with "pregel_"):
//
//  1. active_vertices (gauge): vertices computing in the current superstep.
//  2. queue_depth (gauge): messages pending delivery across all vertices.
//  3. compute_latency_ms (histogram): vertex computation duration.
//     Labels: workflow_id, vertex_id, status (success/error/timeout).
//  4. retries_total (counter): cumulative vertex retry attempts.
//     Labels: workflow_id, vertex_id, reason.
//  5. messages_routed_total (counter): messages routed between vertices.
//  6. checkpoints_total (counter): checkpoints saved, by status.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := pregel.NewMetrics(registry)
//	rt := pregel.NewRuntime[S, U](initial, pregel.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	activeVertices prometheus.Gauge
	queueDepth     prometheus.Gauge
	computeLatency *prometheus.HistogramVec
	retries        *prometheus.CounterVec
	messagesRouted prometheus.Counter
	checkpoints    *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics creates and registers all workflow metrics with the provided
// registry. Pass nil to use the default global registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	m := &Metrics{enabled: true}

	m.activeVertices = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "pregel",
		Name:      "active_vertices",
		Help:      "Number of vertices computing in the current superstep",
	})

	m.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "pregel",
		Name:      "queue_depth",
		Help:      "Messages pending delivery across all vertex queues",
	})

	m.computeLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pregel",
		Name:      "compute_latency_ms",
		Help:      "Vertex computation duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"workflow_id", "vertex_id", "status"})

	m.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pregel",
		Name:      "retries_total",
		Help:      "Cumulative count of vertex retry attempts",
	}, []string{"workflow_id", "vertex_id", "reason"})

	m.messagesRouted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "pregel",
		Name:      "messages_routed_total",
		Help:      "Messages routed between vertices across all supersteps",
	})

	m.checkpoints = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pregel",
		Name:      "checkpoints_total",
		Help:      "Checkpoints saved, by status",
	}, []string{"workflow_id", "status"})

	return m
}

// RecordComputeLatency records one vertex computation's duration. Status is
// one of "success", "error", "timeout".
func (m *Metrics) RecordComputeLatency(workflowID, vertexID string, latency time.Duration, status string) {
	if !m.isEnabled() {
		return
	}
	m.computeLatency.WithLabelValues(workflowID, vertexID, status).Observe(float64(latency.Milliseconds()))
}

// IncRetries increments the retry counter for a vertex.
func (m *Metrics) IncRetries(workflowID, vertexID, reason string) {
	if !m.isEnabled() {
		return
	}
	m.retries.WithLabelValues(workflowID, vertexID, reason).Inc()
}

// IncCheckpoints increments the checkpoint counter. Status is "saved" or
// "failed".
func (m *Metrics) IncCheckpoints(workflowID, status string) {
	if !m.isEnabled() {
		return
	}
	m.checkpoints.WithLabelValues(workflowID, status).Inc()
}

// AddMessagesRouted adds to the routed message counter.
func (m *Metrics) AddMessagesRouted(n int) {
	if !m.isEnabled() || n <= 0 {
		return
	}
	m.messagesRouted.Add(float64(n))
}

// SetActiveVertices sets the active vertex gauge.
func (m *Metrics) SetActiveVertices(n int) {
	if !m.isEnabled() {
		return
	}
	m.activeVertices.Set(float64(n))
}

// SetQueueDepth sets the pending message gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if !m.isEnabled() {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Disable temporarily disables metric recording (useful for testing).
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable re-enables metric recording after Disable.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

func (m *Metrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}
