package rudder

import "github.com/zoobzio/capitan"

// Manager lifecycle signals.
var (
	// ManagerStarted is emitted when a Manager begins watching.
	ManagerStarted = capitan.NewSignal(
		"rudder.manager.started",
		"Manager watching started",
	)

	// ManagerStopped is emitted when a Manager shuts down.
	ManagerStopped = capitan.NewSignal(
		"rudder.manager.stopped",
		"Manager shut down",
	)

	// StateChanged is emitted when the reload pipeline transitions between states.
	StateChanged = capitan.NewSignal(
		"rudder.state.changed",
		"Reload pipeline state transition",
	)
)

// Reload pipeline signals.
var (
	// ChangeReceived is emitted when raw data is received from the watcher.
	ChangeReceived = capitan.NewSignal(
		"rudder.reload.change.received",
		"Raw change received from watcher",
	)

	// ReloadRejected is emitted when a candidate is rejected by decoding,
	// validation, or change classification.
	ReloadRejected = capitan.NewSignal(
		"rudder.reload.rejected",
		"Reload candidate rejected",
	)

	// ReloadApplied is emitted when a candidate becomes the current snapshot.
	ReloadApplied = capitan.NewSignal(
		"rudder.reload.applied",
		"Snapshot applied successfully",
	)

	// RollbackApplied is emitted when a rollback snapshot becomes current.
	RollbackApplied = capitan.NewSignal(
		"rudder.reload.rolled_back",
		"Rollback applied successfully",
	)
)

// Cache and subscriber signals.
var (
	// CacheSwept is emitted after a background sweep removes expired entries.
	CacheSwept = capitan.NewSignal(
		"rudder.cache.swept",
		"Expired cache entries removed",
	)

	// SubscriberPanicked is emitted when a subscriber callback panics.
	// The panic is contained; other subscribers are unaffected.
	SubscriberPanicked = capitan.NewSignal(
		"rudder.subscriber.panicked",
		"Subscriber callback panicked",
	)

	// NotifyFailed is emitted when the notification pipeline returns an
	// error after a swap has committed. Configuration state is unaffected.
	NotifyFailed = capitan.NewSignal(
		"rudder.notify.failed",
		"Notification pipeline failed",
	)
)
