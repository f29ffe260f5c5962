package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the service metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	actions      *prometheus.CounterVec
	actionTime   *prometheus.HistogramVec
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	lockWait     prometheus.Histogram
	lockTimeouts prometheus.Counter
	events       *prometheus.CounterVec
}

// New registers all service metrics under the given namespace.
func New(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Actions handled, by action name and outcome",
		}, []string{"action", "status"}),
		actionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Action latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Read-through cache hits",
		}, []string{"key"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Read-through cache misses",
		}, []string{"key"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_lock_wait_seconds",
			Help:      "Time spent waiting for the write lock",
			Buckets:   []float64{.001, .01, .05, .1, .5, 1, 5, 15, 30},
		}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_lock_failures_total",
			Help:      "Write lock acquisitions that failed or timed out",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published, by type and outcome",
		}, []string{"event_type", "status"}),
	}

	c.registry.MustRegister(
		c.actions, c.actionTime,
		c.cacheHits, c.cacheMisses,
		c.lockWait, c.lockTimeouts,
		c.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveAction records one dispatched action.
func (c *Collector) ObserveAction(action, status string, d time.Duration) {
	c.actions.WithLabelValues(action, status).Inc()
	c.actionTime.WithLabelValues(action).Observe(d.Seconds())
}

// CacheHit counts a read served from cache.
func (c *Collector) CacheHit(key string) {
	c.cacheHits.WithLabelValues(key).Inc()
}

// CacheMiss counts a read that had to recompute.
func (c *Collector) CacheMiss(key string) {
	c.cacheMisses.WithLabelValues(key).Inc()
}

// ObserveLockWait records how long a write waited for the gate.
func (c *Collector) ObserveLockWait(d time.Duration, acquired bool) {
	c.lockWait.Observe(d.Seconds())
	if !acquired {
		c.lockTimeouts.Inc()
	}
}

// EventPublished records a publish attempt outcome.
func (c *Collector) EventPublished(eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.events.WithLabelValues(eventType, status).Inc()
}

// Registry exposes the underlying registry for tests and custom exporters.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
