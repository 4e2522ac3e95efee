package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the fallback identity subsystem.
// All methods are nil-safe so wiring stays optional in tests.
type Metrics struct {
	// Registrations by path ("primary" | "fallback").
	Registrations *prometheus.CounterVec

	// Codes issued by purpose.
	CodesIssued *prometheus.CounterVec

	// Code verifications by purpose and outcome ("ok", "invalid", "expired",
	// "not_found", "too_many_attempts").
	CodeVerifications *prometheus.CounterVec

	// Sync classifications by kind ("synced" | "skipped" | "error").
	SyncOutcomes *prometheus.CounterVec

	// 1 while fallback mode is active, 0 otherwise.
	FallbackActive prometheus.Gauge
}

// New creates and registers all fallback subsystem metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_fallback_registrations_total",
			Help: "Total registrations by storage path",
		}, []string{"path"}),

		CodesIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_fallback_codes_issued_total",
			Help: "Total one-time codes issued by purpose",
		}, []string{"purpose"}),

		CodeVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_fallback_code_verifications_total",
			Help: "Total one-time code verification attempts by purpose and outcome",
		}, []string{"purpose", "outcome"}),

		SyncOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_fallback_sync_outcomes_total",
			Help: "Total pending users classified during reconciliation runs",
		}, []string{"kind"}),

		FallbackActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_fallback_active",
			Help: "Whether the process is currently in fallback mode",
		}),
	}
}

func (m *Metrics) IncRegistration(path string) {
	if m != nil {
		m.Registrations.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) IncCodeIssued(purpose string) {
	if m != nil {
		m.CodesIssued.WithLabelValues(purpose).Inc()
	}
}

func (m *Metrics) IncCodeVerification(purpose, outcome string) {
	if m != nil {
		m.CodeVerifications.WithLabelValues(purpose, outcome).Inc()
	}
}

func (m *Metrics) AddSyncOutcomes(kind string, n int) {
	if m != nil && n > 0 {
		m.SyncOutcomes.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) SetFallbackActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.FallbackActive.Set(1)
	} else {
		m.FallbackActive.Set(0)
	}
}
