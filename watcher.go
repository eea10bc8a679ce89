package rudder

import "context"

// Watcher observes a configuration source for changes and emits raw bytes
// on a channel. Implementations must emit the current value immediately upon
// Watch() being called to support initial configuration loading.
type Watcher interface {
	// Watch begins observing the source and returns a channel that emits
	// raw bytes when changes occur. The channel is closed when the context
	// is canceled or an unrecoverable error occurs.
	//
	// Implementations should emit the current value immediately to support
	// initial configuration loading.
	Watch(ctx context.Context) (<-chan []byte, error)
}

// Loader is implemented by watchers that can read the source on demand.
// Manual reload requires the configured watcher to implement Loader.
type Loader interface {
	// Load reads and returns the current raw contents of the source.
	Load(ctx context.Context) ([]byte, error)
}
