package rudder

import "testing"

func TestSignalNames(t *testing.T) {
	tests := []struct {
		signal interface{ Name() string }
		want   string
	}{
		{ManagerStarted, "rudder.manager.started"},
		{ManagerStopped, "rudder.manager.stopped"},
		{StateChanged, "rudder.state.changed"},
		{ChangeReceived, "rudder.reload.change.received"},
		{ReloadRejected, "rudder.reload.rejected"},
		{ReloadApplied, "rudder.reload.applied"},
		{RollbackApplied, "rudder.reload.rolled_back"},
		{CacheSwept, "rudder.cache.swept"},
		{SubscriberPanicked, "rudder.subscriber.panicked"},
		{NotifyFailed, "rudder.notify.failed"},
	}
	for _, tt := range tests {
		if got := tt.signal.Name(); got != tt.want {
			t.Errorf("expected name %q, got %q", tt.want, got)
		}
	}
}
