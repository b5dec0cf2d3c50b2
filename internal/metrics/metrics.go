package metrics

import (
	"net/http"
	"time"

	"github.com/fbz-tec/pgxserve/core/exporters"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pgxserve"

// Collector records export metrics. It implements exporters.Observer.
//
// Metrics:
//   - pgxserve_exports_total: exports by mode and outcome
//   - pgxserve_export_bytes_total: body bytes sent by mode
//   - pgxserve_export_duration_seconds: export duration by mode
//   - pgxserve_cleanup_failures_total: temporary files that could not be deleted
type Collector struct {
	registry *prometheus.Registry

	exportsTotal    *prometheus.CounterVec
	bytesTotal      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	cleanupFailures prometheus.Counter
}

var _ exporters.Observer = (*Collector)(nil)

// NewCollector creates a Collector with its own registry. A nil registry
// gets a fresh one with the Go and process collectors.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		exportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Total number of exports by delivery mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_bytes_total",
				Help:      "Total number of body bytes sent",
			},
			[]string{"mode"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "export_duration_seconds",
				Help:      "Duration of exports in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"mode"},
		),
		cleanupFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_failures_total",
				Help:      "Temporary files that could not be deleted",
			},
		),
	}

	registry.MustRegister(c.exportsTotal, c.bytesTotal, c.duration, c.cleanupFailures)
	return c
}

func (c *Collector) ExportFinished(mode exporters.Mode, outcome string, bytes int64, elapsed time.Duration) {
	m := string(mode)
	c.exportsTotal.WithLabelValues(m, outcome).Inc()
	c.bytesTotal.WithLabelValues(m).Add(float64(bytes))
	c.duration.WithLabelValues(m).Observe(elapsed.Seconds())
}

func (c *Collector) CleanupFailed() {
	c.cleanupFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
