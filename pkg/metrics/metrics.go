package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formdesk_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// SubmissionsReceived counts contact form submissions by station and outcome (stored|failed).
	SubmissionsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formdesk_submissions_received_total",
			Help: "Total number of contact form submissions received",
		},
		[]string{"station", "result"},
	)

	// NewFieldsDetected counts payload keys seen for the first time on an existing form.
	NewFieldsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formdesk_new_fields_detected_total",
			Help: "Total number of previously unseen form fields detected on intake",
		},
	)

	// FilterQueries counts submission list queries by the filter groups they applied.
	FilterQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formdesk_filter_queries_total",
			Help: "Total number of filtered submission queries by filter group",
		},
		[]string{"filter"},
	)

	// SmartDefaultSource counts which stage resolved a smart default column set.
	SmartDefaultSource = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formdesk_smart_default_source_total",
			Help: "Smart default resolutions by source (config|form|frequency|fallback)",
		},
		[]string{"source"},
	)

	// MaintenanceRuns records cleaner job executions by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formdesk_maintenance_runs_total",
			Help: "Maintenance job executions",
		},
		[]string{"job", "result"},
	)

	// HealthProbeUp reports the last result of each health probe (1 up, 0 otherwise).
	HealthProbeUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "formdesk_health_probe_up",
			Help: "Last health probe result per component",
		},
		[]string{"component", "kind"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formdesk_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
