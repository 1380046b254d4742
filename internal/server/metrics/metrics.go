// Package metrics exposes Prometheus instrumentation for the vault
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the service collectors. Registered on a dedicated
// registry so tests can construct instances without collisions.
type Metrics struct {
	Registry *prometheus.Registry

	VaultOps        *prometheus.CounterVec
	VaultOpDuration *prometheus.HistogramVec
	CacheHits       *prometheus.CounterVec
	OutboxDrained   prometheus.Counter
	OutboxFailures  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		VaultOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_operations_total",
			Help: "Vault operations by operation and outcome.",
		}, []string{"operation", "outcome"}),

		VaultOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_operation_duration_seconds",
			Help:    "Vault operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_list_cache_requests_total",
			Help: "Secret list cache lookups by result.",
		}, []string{"result"}),

		OutboxDrained: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_audit_outbox_drained_total",
			Help: "Audit intents successfully drained.",
		}),

		OutboxFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_audit_outbox_failures_total",
			Help: "Audit intent drain attempts that failed and will retry.",
		}),
	}
}
