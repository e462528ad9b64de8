// Package metrics exposes Prometheus counters for the session lifecycle.
// A nil *SessionMetrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Validation outcomes.
const (
	OutcomeValid        = "valid"
	OutcomeInvalid      = "invalid"
	OutcomeStoreFailure = "store_failure"
)

// Revocation kinds.
const (
	RevokeLogout      = "logout"
	RevokeAll         = "all"
	RevokeConsolidate = "consolidate"
)

// SessionMetrics groups the nfc4care_* counters.
type SessionMetrics struct {
	issued       prometheus.Counter
	superseded   prometheus.Counter
	validations  *prometheus.CounterVec
	revoked      *prometheus.CounterVec
	swept        prometheus.Counter
	purged       prometheus.Counter
	consolidated prometheus.Counter
	failures     *prometheus.CounterVec
}

// NewSessionMetrics creates the counters and registers them on reg.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nfc4care_sessions_issued_total",
			Help: "Session tokens issued.",
		}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nfc4care_sessions_superseded_total",
			Help: "Live sessions revoked because a newer login replaced them.",
		}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nfc4care_session_validations_total",
			Help: "Token validations by outcome.",
		}, []string{"outcome"}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nfc4care_sessions_revoked_total",
			Help: "Sessions revoked by kind.",
		}, []string{"kind"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nfc4care_sessions_swept_total",
			Help: "Sessions marked expired by the sweep.",
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nfc4care_sessions_purged_total",
			Help: "Sessions deleted after the retention window.",
		}),
		consolidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nfc4care_sessions_consolidated_total",
			Help: "Duplicate live sessions revoked by consolidation.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nfc4care_maintenance_failures_total",
			Help: "Failed maintenance runs by task.",
		}, []string{"task"}),
	}
	if reg != nil {
		reg.MustRegister(m.issued, m.superseded, m.validations, m.revoked,
			m.swept, m.purged, m.consolidated, m.failures)
	}
	return m
}

func (m *SessionMetrics) Issued(superseded int64) {
	if m == nil {
		return
	}
	m.issued.Inc()
	if superseded > 0 {
		m.superseded.Add(float64(superseded))
	}
}

func (m *SessionMetrics) Validation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *SessionMetrics) Revoked(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revoked.WithLabelValues(kind).Add(float64(n))
}

func (m *SessionMetrics) Swept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}

func (m *SessionMetrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}

func (m *SessionMetrics) Consolidated(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.consolidated.Add(float64(n))
}

func (m *SessionMetrics) MaintenanceFailure(task string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(task).Inc()
}
