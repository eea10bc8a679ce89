package rudder

// Request carries a committed configuration change through the notification
// pipeline. By the time a Request is built, the new snapshot is already
// current: pipeline stages observe the transition, they cannot veto it.
type Request struct {
	// Previous is the superseded snapshot.
	Previous *Snapshot

	// Current is the snapshot that was just published.
	Current *Snapshot

	// Changed maps each changed field to its old and new values.
	// Secret field values are redacted.
	Changed map[string]FieldChange

	// Raw contains the original bytes received from the watcher.
	// This is useful for debugging or logging purposes.
	Raw []byte
}
