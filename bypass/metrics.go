// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package bypass

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects Prometheus series for bypass request outcomes. A nil
// *Metrics is valid and every method becomes a no-op.
type Metrics struct {
	requestedTotal *prometheus.CounterVec
	approvedTotal  *prometheus.CounterVec
	rejectedTotal  *prometheus.CounterVec
	expiredTotal   *prometheus.CounterVec
}

// NewMetrics builds bypass manager metrics and registers them against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Subsystem: "bypass",
			Name:      "requested_total",
			Help:      "Total number of bypass requests created.",
		}, []string{"phase", "gate"}),
		approvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Subsystem: "bypass",
			Name:      "approved_total",
			Help:      "Total number of bypass requests approved and activated.",
		}, []string{"phase", "gate"}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Subsystem: "bypass",
			Name:      "rejected_total",
			Help:      "Total number of bypass requests rejected.",
		}, []string{"phase", "gate"}),
		expiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Subsystem: "bypass",
			Name:      "expired_total",
			Help:      "Total number of active bypasses that expired.",
		}, []string{"phase", "gate"}),
	}

	if reg != nil {
		reg.MustRegister(m.requestedTotal, m.approvedTotal, m.rejectedTotal, m.expiredTotal)
	}
	return m
}

func (m *Metrics) requested(phase, gate string) {
	if m == nil {
		return
	}
	m.requestedTotal.WithLabelValues(phase, gate).Inc()
}

func (m *Metrics) approved(phase, gate string) {
	if m == nil {
		return
	}
	m.approvedTotal.WithLabelValues(phase, gate).Inc()
}

func (m *Metrics) rejected(phase, gate string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(phase, gate).Inc()
}

func (m *Metrics) expired(phase, gate string) {
	if m == nil {
		return
	}
	m.expiredTotal.WithLabelValues(phase, gate).Inc()
}
