package goIAM

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID int

const (
	// MetricLoginSuccess is an exported constant or variable used by the identity engine.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure is an exported constant or variable used by the identity engine.
	MetricLoginFailure
	// MetricLockoutTriggered is an exported constant or variable used by the identity engine.
	MetricLockoutTriggered
	// MetricLockoutCleared is an exported constant or variable used by the identity engine.
	MetricLockoutCleared
	// MetricTokenIssued is an exported constant or variable used by the identity engine.
	MetricTokenIssued
	// MetricTokenRejected is an exported constant or variable used by the identity engine.
	MetricTokenRejected
	// MetricTokenRevoked is an exported constant or variable used by the identity engine.
	MetricTokenRevoked
	// MetricPasswordChanged is an exported constant or variable used by the identity engine.
	MetricPasswordChanged
	// MetricPasswordRejected is an exported constant or variable used by the identity engine.
	MetricPasswordRejected
	// MetricGroupMutation is an exported constant or variable used by the identity engine.
	MetricGroupMutation
	// MetricGroupCycleRejected is an exported constant or variable used by the identity engine.
	MetricGroupCycleRejected

	metricCount
)

// MetricNames maps every MetricID to its stable exposition name.
var MetricNames = map[MetricID]string{
	MetricLoginSuccess:       "goiam_login_success_total",
	MetricLoginFailure:       "goiam_login_failure_total",
	MetricLockoutTriggered:   "goiam_lockout_triggered_total",
	MetricLockoutCleared:     "goiam_lockout_cleared_total",
	MetricTokenIssued:        "goiam_token_issued_total",
	MetricTokenRejected:      "goiam_token_rejected_total",
	MetricTokenRevoked:       "goiam_token_revoked_total",
	MetricPasswordChanged:    "goiam_password_changed_total",
	MetricPasswordRejected:   "goiam_password_rejected_total",
	MetricGroupMutation:      "goiam_group_mutation_total",
	MetricGroupCycleRejected: "goiam_group_cycle_rejected_total",
}

// Metrics holds the engine's atomic counters.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc describes the inc operation and its observable behavior.
//
// Inc does not mutate shared global state beyond the receiver and can be used concurrently.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id < 0 || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot does not mutate shared global state and can be used concurrently.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snapshot := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snapshot
	}
	for id := MetricID(0); id < metricCount; id++ {
		snapshot.Counters[id] = m.counters[id].Load()
	}
	return snapshot
}
