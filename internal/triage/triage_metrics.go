package triage

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/warden/internal/incident"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	RunsTotal            *prometheus.CounterVec
	RunDuration          *prometheus.HistogramVec
	DiagnosisParses      *prometheus.CounterVec
	CollaboratorFailures *prometheus.CounterVec
	IncidentsDelegated   prometheus.Counter
	EnrichQueueRejected  prometheus.Counter
	EnrichmentsTotal     *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_triage_runs_total",
			Help: "Total triage runs by final status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_triage_run_duration_seconds",
			Help:    "Duration of triage runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}, []string{"status"}),
		DiagnosisParses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_diagnosis_parses_total",
			Help: "Diagnosis parses by mode (json contract vs raw fallback).",
		}, []string{"mode"}),
		CollaboratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_collaborator_failures_total",
			Help: "Failed calls to optional sub-services, by collaborator.",
		}, []string{"collaborator"}),
		IncidentsDelegated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_incidents_delegated_total",
			Help: "Tickets handed to the incident enrichment path.",
		}),
		EnrichQueueRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_enrichment_queue_rejected_total",
			Help: "Enrichment delegations rejected because the queue was full.",
		}),
		EnrichmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_enrichments_total",
			Help: "Completed enrichment tasks by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.DiagnosisParses,
		m.CollaboratorFailures,
		m.IncidentsDelegated,
		m.EnrichQueueRejected,
		m.EnrichmentsTotal,
	)

	return m
}

// Hooks returns triage Hooks that increment the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnParse: func(mode string) {
			m.DiagnosisParses.WithLabelValues(mode).Inc()
		},
		OnCollaboratorFailure: func(name string) {
			m.CollaboratorFailures.WithLabelValues(name).Inc()
		},
		OnComplete: func(status string, seconds float64) {
			m.RunsTotal.WithLabelValues(status).Inc()
			m.RunDuration.WithLabelValues(status).Observe(seconds)
		},
		OnDelegated: func() {
			m.IncidentsDelegated.Inc()
		},
	}
}

// EnricherHooks returns incident Hooks backed by the same metrics.
func (m *Metrics) EnricherHooks() incident.Hooks {
	return incident.Hooks{
		OnQueueFull: func() {
			m.EnrichQueueRejected.Inc()
		},
		OnFinished: func(outcome string) {
			m.EnrichmentsTotal.WithLabelValues(outcome).Inc()
		},
	}
}
