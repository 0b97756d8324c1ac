// Package metrics exposes Prometheus instrumentation for slot lifecycle
// decisions.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SlotMetrics groups the counters recorded by the engine, reconciler and
// sweep.
type SlotMetrics struct {
	Granted          *prometheus.CounterVec
	Revoked          *prometheus.CounterVec
	PingDecisions    *prometheus.CounterVec
	ReconcileFailure *prometheus.CounterVec
	SweepRuns        *prometheus.CounterVec
}

var (
	instance *SlotMetrics
	once     sync.Once
)

// Get returns the singleton registered with the default registry.
func Get() *SlotMetrics {
	once.Do(func() {
		instance = New()
		instance.MustRegister(prometheus.DefaultRegisterer)
	})
	return instance
}

// New builds an unregistered set of counters.  Tests use it with their
// own registry.
func New() *SlotMetrics {
	return &SlotMetrics{
		Granted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotwatcher",
			Name:      "slots_granted_total",
			Help:      "Slots granted, by tier",
		}, []string{"tier"}),
		Revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotwatcher",
			Name:      "slots_revoked_total",
			Help:      "Slots deactivated, by reason",
		}, []string{"reason"}),
		PingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotwatcher",
			Name:      "ping_decisions_total",
			Help:      "Broadcast attempts evaluated against the quota, by decision",
		}, []string{"decision"}),
		ReconcileFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotwatcher",
			Name:      "reconcile_failures_total",
			Help:      "Failed calls to the external authorization system, by operation",
		}, []string{"op"}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotwatcher",
			Name:      "sweep_runs_total",
			Help:      "Expiration sweeps, by outcome",
		}, []string{"outcome"}),
	}
}

// MustRegister registers every counter with reg.
func (m *SlotMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.Granted, m.Revoked, m.PingDecisions, m.ReconcileFailure, m.SweepRuns)
}

// The helpers below are nil-safe so components can run without metrics.

func (m *SlotMetrics) SlotGranted(tier string) {
	if m != nil {
		m.Granted.WithLabelValues(tier).Inc()
	}
}

func (m *SlotMetrics) SlotRevoked(reason string) {
	if m != nil {
		m.Revoked.WithLabelValues(reason).Inc()
	}
}

func (m *SlotMetrics) PingDecision(decision string) {
	if m != nil {
		m.PingDecisions.WithLabelValues(decision).Inc()
	}
}

func (m *SlotMetrics) ReconcileFailed(op string) {
	if m != nil {
		m.ReconcileFailure.WithLabelValues(op).Inc()
	}
}

func (m *SlotMetrics) SweepRun(outcome string) {
	if m != nil {
		m.SweepRuns.WithLabelValues(outcome).Inc()
	}
}
