// Package metrics exposes Prometheus collectors for lock activity.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Acquisitions tracks successful lock acquisitions.
	Acquisitions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verrou_acquisitions_total",
		Help: "Total number of successful lock acquisitions",
	})
	// AcquireFailures tracks acquisitions that gave up or were cancelled.
	AcquireFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verrou_acquire_failures_total",
		Help: "Total number of failed lock acquisitions",
	})
	// AcquireRetries tracks individual failed save attempts inside the retry loop.
	AcquireRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verrou_acquire_retries_total",
		Help: "Total number of failed acquisition attempts that were retried",
	})
	// Releases tracks lock releases, forced ones included.
	Releases = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verrou_releases_total",
		Help: "Total number of lock releases",
	})
	// Extensions tracks successful lease extensions.
	Extensions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verrou_extensions_total",
		Help: "Total number of lease extensions",
	})
	// AcquireWait observes the time spent waiting for a lock to be acquired.
	AcquireWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "verrou_acquire_wait_seconds",
		Help:    "Time spent acquiring locks",
		Buckets: prometheus.DefBuckets,
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers verrou core metrics on the provided registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Acquisitions, AcquireFailures, AcquireRetries, Releases, Extensions, AcquireWait)
}
