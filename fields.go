package rudder

import "github.com/zoobzio/capitan"

// Field keys for Manager events.
var (
	// KeyState is the current state of the reload pipeline.
	KeyState = capitan.NewStringKey("state")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyDebounce is the configured debounce window.
	KeyDebounce = capitan.NewDurationKey("debounce")

	// KeyTrigger identifies what started a reload: "watcher", "manual", or "rollback".
	KeyTrigger = capitan.NewStringKey("trigger")

	// KeyVersion is the snapshot version after an apply.
	KeyVersion = capitan.NewIntKey("version")

	// KeyChanged is the number of changed fields in an apply.
	KeyChanged = capitan.NewIntKey("changed")

	// KeyRemoved is the number of entries removed by a cache sweep.
	KeyRemoved = capitan.NewIntKey("removed")

	// KeySubscriber is the id of a subscriber callback.
	KeySubscriber = capitan.NewIntKey("subscriber")
)
