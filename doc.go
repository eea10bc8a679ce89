// Package rudder provides hot-reloadable configuration for long-running
// trading processes: edit the configuration source and the running process
// picks the change up within seconds, without a restart and without ever
// operating on a half-applied or invalid configuration.
//
// A Manager owns one configuration source. Raw bytes from a Watcher are
// decoded by a Codec into a flat field map, validated against a field
// policy table, diffed against the current snapshot, and classified: fields
// marked hot-reloadable apply atomically via a pointer swap, while a change
// touching any restart-required field rejects the whole candidate and keeps
// the previous snapshot active.
//
// Basic usage:
//
//	manager := rudder.New(rudder.NewFileWatcher(".env"))
//	if err := manager.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer manager.Stop()
//
//	cfg := manager.Config()
//	fmt.Println(cfg.Leverage, cfg.Assets)
//
// Readers call Config() for a consistent immutable snapshot, or Cached()
// for typed derived values with TTL caching. Subscribers receive committed
// changes with old and new values per field. Every reload attempt is
// recorded in a bounded change history, and Rollback() reverses recent
// successful changes by replaying their old values through the same
// validation and apply path.
//
// Watching, debouncing, TTL expiry, and sweeping are all driven through a
// clockz.Clock, so tests inject a fake clock and advance time
// deterministically. SyncMode() removes background goroutines entirely for
// step-by-step test control.
package rudder
