package rudder

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by Manager operations.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("manager already started")

	// ErrNotStarted is returned for operations requiring a started manager.
	ErrNotStarted = errors.New("manager not started")

	// ErrUnknownCacheKey is returned when invalidating a key that is not
	// cached. Non-fatal; callers may ignore it.
	ErrUnknownCacheKey = errors.New("cache key not found")

	// ErrReloadUnsupported is returned from manual reload when the
	// configured watcher cannot load on demand.
	ErrReloadUnsupported = errors.New("watcher does not support on-demand load")

	// ErrNothingToRollback is returned when rollback is requested but the
	// history holds no successful change records.
	ErrNothingToRollback = errors.New("no successful changes to roll back")
)

// ValidationError reports a rejected candidate along with every violation.
// The current snapshot is untouched when this error is returned.
type ValidationError struct {
	Result ValidationResult
}

// Error returns a summary of all violations.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Result.Messages(), "; "))
}

// ReloadError reports a reload attempt that failed before validation could
// pass judgment: the source was unreadable or its contents unparsable.
// Non-fatal; the previous snapshot is retained and watching continues.
type ReloadError struct {
	Stage string // "load", "decode", "validate", or "apply"
	Err   error
}

// Error returns the failed stage and the underlying cause.
func (e *ReloadError) Error() string {
	return fmt.Sprintf("reload %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ReloadError) Unwrap() error {
	return e.Err
}

// RestartRequiredError reports a candidate rejected because at least one
// changed field requires a process restart. The entire batch is rejected;
// no field is partially applied.
type RestartRequiredError struct {
	Fields []string
}

// Error names the offending fields.
func (e *RestartRequiredError) Error() string {
	return fmt.Sprintf("fields require restart: %s", strings.Join(e.Fields, ", "))
}
