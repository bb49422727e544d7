// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package workflow

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects Prometheus series for wave progress and node
// outcomes. A nil *Metrics is valid and every method becomes a no-op,
// so callers that don't want metrics can omit registration entirely.
type Metrics struct {
	nodesStarted   *prometheus.CounterVec
	nodesCompleted *prometheus.CounterVec
	nodesFailed    *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	waveSize       prometheus.Histogram
	activeNodes    prometheus.Gauge
}

// NewMetrics builds workflow engine metrics and registers them against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		nodesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Subsystem: "workflow",
			Name:      "nodes_started_total",
			Help:      "Total number of workflow nodes started.",
		}, []string{"kind"}),
		nodesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Subsystem: "workflow",
			Name:      "nodes_completed_total",
			Help:      "Total number of workflow nodes that completed successfully.",
		}, []string{"kind"}),
		nodesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Subsystem: "workflow",
			Name:      "nodes_failed_total",
			Help:      "Total number of workflow nodes that failed terminally.",
		}, []string{"kind", "reason"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maestro",
			Subsystem: "workflow",
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		}, []string{"kind"}),
		waveSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "maestro",
			Subsystem: "workflow",
			Name:      "wave_size",
			Help:      "Number of nodes dispatched per wave.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
		activeNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "maestro",
			Subsystem: "workflow",
			Name:      "active_nodes",
			Help:      "Number of nodes currently running across all workflows.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.nodesStarted, m.nodesCompleted, m.nodesFailed, m.nodeDuration, m.waveSize, m.activeNodes)
	}
	return m
}

func (m *Metrics) nodeStarted(kind NodeKind) {
	if m == nil {
		return
	}
	m.nodesStarted.WithLabelValues(string(kind)).Inc()
	m.activeNodes.Inc()
}

func (m *Metrics) nodeCompleted(kind NodeKind, seconds float64) {
	if m == nil {
		return
	}
	m.nodesCompleted.WithLabelValues(string(kind)).Inc()
	m.nodeDuration.WithLabelValues(string(kind)).Observe(seconds)
	m.activeNodes.Dec()
}

func (m *Metrics) nodeFailed(kind NodeKind, reason string, seconds float64) {
	if m == nil {
		return
	}
	m.nodesFailed.WithLabelValues(string(kind), reason).Inc()
	m.nodeDuration.WithLabelValues(string(kind)).Observe(seconds)
	m.activeNodes.Dec()
}

func (m *Metrics) waveDispatched(size int) {
	if m == nil {
		return
	}
	m.waveSize.Observe(float64(size))
}
