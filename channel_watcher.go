package rudder

import "context"

// ChannelWatcher feeds a Manager from a channel of raw configuration
// payloads. Anything that can produce encoded config bytes, a message
// consumer, a test harness, an admin endpoint, can push candidates through
// it without implementing Watcher itself.
type ChannelWatcher struct {
	ch   <-chan []byte
	sync bool
}

// NewChannelWatcher wraps ch behind a forwarding goroutine so the source
// channel is decoupled from the Manager's lifecycle: cancelling the watch
// context stops delivery without the producer noticing.
func NewChannelWatcher(ch <-chan []byte) *ChannelWatcher {
	return &ChannelWatcher{ch: ch}
}

// NewSyncChannelWatcher hands the source channel to the Manager directly,
// with no goroutine in between. Combined with SyncMode() and Process(),
// every send becomes a deterministic step in a test.
func NewSyncChannelWatcher(ch <-chan []byte) *ChannelWatcher {
	return &ChannelWatcher{ch: ch, sync: true}
}

// Watch implements Watcher. The returned channel closes when the source
// channel closes or, in forwarding mode, when ctx is cancelled.
func (w *ChannelWatcher) Watch(ctx context.Context) (<-chan []byte, error) {
	if w.sync {
		return w.ch, nil
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			var raw []byte
			var ok bool
			select {
			case <-ctx.Done():
				return
			case raw, ok = <-w.ch:
				if !ok {
					return
				}
			}
			select {
			case out <- raw:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
