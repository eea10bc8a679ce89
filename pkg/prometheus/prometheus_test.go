package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zoobzio/rudder"
)

func TestProvider_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(reg)

	p.OnChangeReceived()
	p.OnChangeReceived()

	if got := testutil.ToFloat64(p.changesReceived); got != 2 {
		t.Errorf("expected 2 changes received, got %v", got)
	}
}

func TestProvider_ReloadOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(reg)

	p.OnReloadSuccess(3, 10*time.Millisecond)
	p.OnReloadFailure("validate", 5*time.Millisecond)
	p.OnReloadFailure("validate", 5*time.Millisecond)

	if got := testutil.ToFloat64(p.reloadsTotal.WithLabelValues("success", "")); got != 1 {
		t.Errorf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(p.reloadsTotal.WithLabelValues("failure", "validate")); got != 2 {
		t.Errorf("expected 2 validate failures, got %v", got)
	}
}

func TestProvider_StateTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(reg)

	p.OnStateChange(rudder.StateIdle, rudder.StateValidating)
	p.OnStateChange(rudder.StateValidating, rudder.StateApplying)
	p.OnStateChange(rudder.StateIdle, rudder.StateValidating)

	if got := testutil.ToFloat64(p.stateChanges.WithLabelValues("idle", "validating")); got != 2 {
		t.Errorf("expected 2 idle->validating transitions, got %v", got)
	}
}

func TestProvider_CacheCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(reg)

	p.OnCacheHit("LEVERAGE")
	p.OnCacheHit("LEVERAGE")
	p.OnCacheMiss("LEVERAGE")
	p.OnCacheSweep(4)

	if got := testutil.ToFloat64(p.cacheHits.WithLabelValues("LEVERAGE")); got != 2 {
		t.Errorf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(p.cacheMisses.WithLabelValues("LEVERAGE")); got != 1 {
		t.Errorf("expected 1 miss, got %v", got)
	}
	if got := testutil.ToFloat64(p.cacheSwept); got != 4 {
		t.Errorf("expected 4 swept entries, got %v", got)
	}
}

func TestProvider_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	New(reg)
}
