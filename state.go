package rudder

// State represents the current phase of the reload pipeline. The reloader
// cycles Idle → Debouncing → Validating → Applying → Idle on success, or
// Validating → Rejected → Idle on failure. There is no terminal state; the
// pipeline runs for the process lifetime.
type State int32

const (
	// StateIdle indicates no reload is in progress.
	StateIdle State = iota

	// StateDebouncing indicates change events are being coalesced and a
	// reload attempt is scheduled for the end of the debounce window.
	StateDebouncing

	// StateValidating indicates a candidate is being decoded and validated.
	StateValidating

	// StateApplying indicates a validated candidate is being published as
	// the current snapshot.
	StateApplying

	// StateRejected indicates the last candidate failed validation or
	// change classification. The previous snapshot remains current.
	StateRejected
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDebouncing:
		return "debouncing"
	case StateValidating:
		return "validating"
	case StateApplying:
		return "applying"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}
