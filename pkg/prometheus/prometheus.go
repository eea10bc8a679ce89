// Package prometheus provides a rudder.MetricsProvider backed by
// Prometheus collectors.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zoobzio/rudder"
)

// Provider implements rudder.MetricsProvider with Prometheus counters and
// histograms. All collectors are registered against the given registerer at
// construction time.
type Provider struct {
	reloadsTotal    *prometheus.CounterVec
	reloadDuration  *prometheus.HistogramVec
	changesReceived prometheus.Counter
	stateChanges    *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	cacheSwept      prometheus.Counter
}

// New creates a Provider and registers its collectors. Pass
// prometheus.DefaultRegisterer for the process-global registry, or a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Provider {
	p := &Provider{
		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rudder",
			Name:      "reloads_total",
			Help:      "Reload attempts by outcome and failure stage.",
		}, []string{"outcome", "stage"}),
		reloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rudder",
			Name:      "reload_duration_seconds",
			Help:      "Reload pipeline duration by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		changesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rudder",
			Name:      "changes_received_total",
			Help:      "Raw change events received from the watcher.",
		}),
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rudder",
			Name:      "state_transitions_total",
			Help:      "Reload pipeline state transitions.",
		}, []string{"from", "to"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rudder",
			Name:      "cache_hits_total",
			Help:      "Derived-value cache hits by key.",
		}, []string{"key"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rudder",
			Name:      "cache_misses_total",
			Help:      "Derived-value cache misses by key.",
		}, []string{"key"}),
		cacheSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rudder",
			Name:      "cache_swept_entries_total",
			Help:      "Expired cache entries removed by the sweeper.",
		}),
	}

	reg.MustRegister(
		p.reloadsTotal,
		p.reloadDuration,
		p.changesReceived,
		p.stateChanges,
		p.cacheHits,
		p.cacheMisses,
		p.cacheSwept,
	)
	return p
}

// OnStateChange records a reload pipeline state transition.
func (p *Provider) OnStateChange(from, to rudder.State) {
	p.stateChanges.WithLabelValues(from.String(), to.String()).Inc()
}

// OnReloadSuccess records a successfully applied reload.
func (p *Provider) OnReloadSuccess(_ int, d time.Duration) {
	p.reloadsTotal.WithLabelValues("success", "").Inc()
	p.reloadDuration.WithLabelValues("success").Observe(d.Seconds())
}

// OnReloadFailure records a rejected or failed reload by stage.
func (p *Provider) OnReloadFailure(stage string, d time.Duration) {
	p.reloadsTotal.WithLabelValues("failure", stage).Inc()
	p.reloadDuration.WithLabelValues("failure").Observe(d.Seconds())
}

// OnChangeReceived records a raw change event from the watcher.
func (p *Provider) OnChangeReceived() {
	p.changesReceived.Inc()
}

// OnCacheHit records a derived-value cache hit.
func (p *Provider) OnCacheHit(key string) {
	p.cacheHits.WithLabelValues(key).Inc()
}

// OnCacheMiss records a derived-value cache miss.
func (p *Provider) OnCacheMiss(key string) {
	p.cacheMisses.WithLabelValues(key).Inc()
}

// OnCacheSweep records expired entries removed by a sweep.
func (p *Provider) OnCacheSweep(removed int) {
	p.cacheSwept.Add(float64(removed))
}

var _ rudder.MetricsProvider = (*Provider)(nil)
