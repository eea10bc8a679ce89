package rudder

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key manager events.
type MetricsProvider interface {
	// OnStateChange is called when the reload pipeline transitions between states.
	OnStateChange(from, to State)

	// OnReloadSuccess is called when a candidate is applied.
	// Changed is the number of changed fields; duration covers decode,
	// validation, and apply.
	OnReloadSuccess(changed int, duration time.Duration)

	// OnReloadFailure is called when a reload fails at any stage.
	// Stage indicates where the failure occurred: "load", "decode",
	// "validate", or "classify".
	OnReloadFailure(stage string, duration time.Duration)

	// OnChangeReceived is called when raw data is received from the watcher.
	OnChangeReceived()

	// OnCacheHit is called when a cached value is served unexpired.
	OnCacheHit(key string)

	// OnCacheMiss is called when a cache read triggers a recompute.
	OnCacheMiss(key string)

	// OnCacheSweep is called after a background sweep, with the number of
	// expired entries removed.
	OnCacheSweep(removed int)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnStateChange(_, _ State)                  {}
func (NoOpMetricsProvider) OnReloadSuccess(_ int, _ time.Duration)    {}
func (NoOpMetricsProvider) OnReloadFailure(_ string, _ time.Duration) {}
func (NoOpMetricsProvider) OnChangeReceived()                         {}
func (NoOpMetricsProvider) OnCacheHit(_ string)                       {}
func (NoOpMetricsProvider) OnCacheMiss(_ string)                      {}
func (NoOpMetricsProvider) OnCacheSweep(_ int)                        {}
