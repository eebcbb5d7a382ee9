package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var (
	ValidationTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustshield_validations_total",
			Help: "Identity validations by outcome",
		},
		[]string{"result"},
	)

	BlocksTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustshield_blocks_total",
			Help: "Address blocks placed, by reason",
		},
		[]string{"reason"},
	)

	AnomaliesTotal = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "trustshield_anomalies_total",
			Help: "Signal bundles scored at or above the anomaly threshold",
		},
	)

	AuditEventsDropped = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "trustshield_audit_events_dropped_total",
			Help: "Audit events dropped because the dispatch channel was full",
		},
	)
)

// Validation result label values.
const (
	ResultAllowed          = "allowed"
	ResultBlocked          = "blocked"
	ResultRateLimited      = "rate_limited"
	ResultInvalidTenant    = "invalid_tenant"
	ResultUnauthorizedUser = "unauthorized_user"
	ResultInternalError    = "internal_error"
)

// Registry exposes the engine's metrics registry so embedding services can
// mount it on their metrics endpoint.
func Registry() *prometheus.Registry {
	return registry
}
