package rudder

import (
	"context"
	"os"
	"time"

	"github.com/zoobzio/clockz"
)

// PollWatcher watches a file by polling its modification time and size.
// Use this on filesystems where OS change notification is unavailable or
// unreliable (network mounts, some containers). For local files prefer
// FileWatcher.
type PollWatcher struct {
	path     string
	interval time.Duration
	clock    clockz.Clock
}

// PollOption configures a PollWatcher.
type PollOption func(*PollWatcher)

// WithPollClock sets a custom clock for poll scheduling.
// Use this with clockz.FakeClock for deterministic testing.
func WithPollClock(clock clockz.Clock) PollOption {
	return func(w *PollWatcher) {
		w.clock = clock
	}
}

// NewPollWatcher creates a PollWatcher for the given file path, checking
// for changes every interval.
func NewPollWatcher(path string, interval time.Duration, opts ...PollOption) *PollWatcher {
	w := &PollWatcher{
		path:     path,
		interval: interval,
		clock:    clockz.RealClock,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Load reads and returns the current file contents.
func (w *PollWatcher) Load(_ context.Context) ([]byte, error) {
	return os.ReadFile(w.path)
}

// Watch begins polling the file and returns a channel that emits the file
// contents whenever its modification time or size changes. The current
// contents are emitted immediately to support initial configuration loading.
func (w *PollWatcher) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		var lastMod time.Time
		var lastSize int64

		if info, err := os.Stat(w.path); err == nil {
			lastMod = info.ModTime()
			lastSize = info.Size()
			if data, err := os.ReadFile(w.path); err == nil {
				select {
				case out <- data:
				case <-ctx.Done():
					return
				}
			}
		}

		timer := w.clock.NewTimer(w.interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-timer.C():
				info, err := os.Stat(w.path)
				if err == nil && (info.ModTime() != lastMod || info.Size() != lastSize) {
					lastMod = info.ModTime()
					lastSize = info.Size()
					if data, err := os.ReadFile(w.path); err == nil {
						select {
						case out <- data:
						case <-ctx.Done():
							return
						}
					}
				}
				timer.Reset(w.interval)
			}
		}
	}()

	return out, nil
}

// Ensure PollWatcher supports on-demand loads for manual reload.
var _ Loader = (*PollWatcher)(nil)
