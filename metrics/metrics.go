// Package metrics provides Prometheus metrics for session lifecycle operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for session operations.
// A nil *Metrics, or one built without a registerer, records nothing.
type Metrics struct {
	enabled bool

	// Sign-in metrics
	signInsTotal *prometheus.CounterVec
	signedIn     prometheus.Gauge

	// Refresh metrics
	refreshesTotal *prometheus.CounterVec

	// Credential flow metrics
	flowCallsTotal     *prometheus.CounterVec
	flowFallbacksTotal *prometheus.CounterVec

	// Storage metrics
	storageFailuresTotal *prometheus.CounterVec
	persistRetriesTotal  prometheus.Counter

	// Event fan-out metrics
	listenerPanicsTotal prometheus.Counter
}

// New creates and registers metrics on reg.
// If reg is nil, returns a no-op Metrics instance.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{enabled: reg != nil}

	if !m.enabled {
		return m
	}
	factory := promauto.With(reg)

	m.signInsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_sign_ins_total",
		Help: "Total sign-in attempts",
	}, []string{"method", "result"})

	m.signedIn = factory.NewGauge(prometheus.GaugeOpts{
		Name: "authkit_signed_in",
		Help: "Whether a session is currently held (0=signed out, 1=signed in)",
	})

	m.refreshesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_refreshes_total",
		Help: "Total token refresh attempts by outcome",
	}, []string{"outcome"})

	m.flowCallsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_flow_calls_total",
		Help: "Total credential flow calls by operation and serving source",
	}, []string{"operation", "source"})

	m.flowFallbacksTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_flow_fallbacks_total",
		Help: "Total identity provider fallbacks by operation and reason",
	}, []string{"operation", "reason"})

	m.storageFailuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_storage_failures_total",
		Help: "Total absorbed secure storage failures",
	}, []string{"op"})

	m.persistRetriesTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "authkit_persist_retries_total",
		Help: "Total session writes retried after failed read-back verification",
	})

	m.listenerPanicsTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "authkit_listener_panics_total",
		Help: "Total auth state listeners that panicked during notification",
	})

	return m
}

func (m *Metrics) on() bool { return m != nil && m.enabled }

// RecordSignIn records a sign-in attempt. method is password, apple or google;
// result is success or failure.
func (m *Metrics) RecordSignIn(method, result string) {
	if !m.on() {
		return
	}
	m.signInsTotal.WithLabelValues(method, result).Inc()
}

// SetSignedIn sets the signed-in gauge.
func (m *Metrics) SetSignedIn(signedIn bool) {
	if !m.on() {
		return
	}
	v := 0.0
	if signedIn {
		v = 1.0
	}
	m.signedIn.Set(v)
}

// RecordRefresh records a refresh outcome: refreshed, network_error or auth_error.
func (m *Metrics) RecordRefresh(outcome string) {
	if !m.on() {
		return
	}
	m.refreshesTotal.WithLabelValues(outcome).Inc()
}

// RecordFlowCall records which source served a credential flow operation.
func (m *Metrics) RecordFlowCall(operation, source string) {
	if !m.on() {
		return
	}
	m.flowCallsTotal.WithLabelValues(operation, source).Inc()
}

// RecordFallback records a fallback to the identity provider.
func (m *Metrics) RecordFallback(operation, reason string) {
	if !m.on() {
		return
	}
	m.flowFallbacksTotal.WithLabelValues(operation, reason).Inc()
}

// RecordStorageFailure records an absorbed storage error for get, set or delete.
func (m *Metrics) RecordStorageFailure(op string) {
	if !m.on() {
		return
	}
	m.storageFailuresTotal.WithLabelValues(op).Inc()
}

// RecordPersistRetry records a retried session write.
func (m *Metrics) RecordPersistRetry() {
	if !m.on() {
		return
	}
	m.persistRetriesTotal.Inc()
}

// RecordListenerPanic records a listener that panicked.
func (m *Metrics) RecordListenerPanic() {
	if !m.on() {
		return
	}
	m.listenerPanicsTotal.Inc()
}
