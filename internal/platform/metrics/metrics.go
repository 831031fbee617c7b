package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	Invocations        *prometheus.CounterVec
	Upgrades           prometheus.Counter
	AdminChanges       prometheus.Counter
	ProxiesCreated     prometheus.Counter
	InvocationDuration prometheus.Histogram
}

// New creates and registers all Prometheus metrics. Call once per process;
// promauto registers against the default registry.
func New() *Metrics {
	return &Metrics{
		Invocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "slotgate_invocations_total",
			Help: "Proxy invocations by routing path and outcome",
		}, []string{"path", "outcome"}),
		Upgrades: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slotgate_upgrades_total",
			Help: "Successful backend reference changes",
		}),
		AdminChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slotgate_admin_changes_total",
			Help: "Successful administrator changes",
		}),
		ProxiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slotgate_proxies_created_total",
			Help: "Proxy instances created",
		}),
		InvocationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "slotgate_invocation_duration_seconds",
			Help:    "End-to-end invocation latency including commit",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveInvocation records one finished invocation. Nil-safe so wiring
// metrics stays optional in tests.
func (m *Metrics) ObserveInvocation(path, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Invocations.WithLabelValues(path, outcome).Inc()
	m.InvocationDuration.Observe(d.Seconds())
}

// IncrementUpgrades counts a successful upgrade_to.
func (m *Metrics) IncrementUpgrades() {
	if m == nil {
		return
	}
	m.Upgrades.Inc()
}

// IncrementAdminChanges counts a successful change_admin.
func (m *Metrics) IncrementAdminChanges() {
	if m == nil {
		return
	}
	m.AdminChanges.Inc()
}

// IncrementProxiesCreated counts a proxy construction.
func (m *Metrics) IncrementProxiesCreated() {
	if m == nil {
		return
	}
	m.ProxiesCreated.Inc()
}
