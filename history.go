package rudder

import (
	"sync"
	"time"
)

// ChangeStatus is the outcome recorded for one field transition.
type ChangeStatus int

const (
	// StatusAny matches every status in a history query.
	StatusAny ChangeStatus = iota

	// StatusSuccess marks a change that was applied.
	StatusSuccess

	// StatusFailed marks a change that was rejected.
	StatusFailed

	// StatusRolledBack marks a change applied by a rollback.
	StatusRolledBack
)

// String returns the string representation of the status.
func (s ChangeStatus) String() string {
	switch s {
	case StatusAny:
		return "any"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// ChangeRecord is the audit entry for one field's transition. Secret field
// values are redacted before a record is built.
type ChangeRecord struct {
	Timestamp time.Time
	Field     string
	Old       string
	New       string
	Status    ChangeStatus
	Reason    string
	Duration  time.Duration

	// consumed marks a success record already reversed by a rollback, so a
	// later rollback steps past it to the change before it.
	consumed bool
}

// HistoryQuery selects change records. The zero value matches everything.
type HistoryQuery struct {
	// Limit caps the number of records returned. Zero means no cap.
	Limit int

	// Offset skips that many matching records, newest first.
	Offset int

	// Field restricts results to one field. Empty matches all fields.
	Field string

	// Status restricts results to one outcome. StatusAny matches all.
	Status ChangeStatus
}

// changeRing is a thread-safe bounded ring buffer of change records.
// When full, the oldest record is evicted first.
type changeRing struct {
	mu      sync.RWMutex
	records []ChangeRecord
	size    int
	head    int
	count   int
}

// newChangeRing creates a ring buffer with the given capacity.
func newChangeRing(size int) *changeRing {
	if size <= 0 {
		size = DefaultHistoryCapacity
	}
	return &changeRing{
		records: make([]ChangeRecord, size),
		size:    size,
	}
}

// push appends a record, evicting the oldest when at capacity.
func (r *changeRing) push(rec ChangeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[r.head] = rec
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// len returns the number of stored records.
func (r *changeRing) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// query returns matching records, newest first.
func (r *changeRing) query(q HistoryQuery) []ChangeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ChangeRecord
	skipped := 0
	for i := 0; i < r.count; i++ {
		// Walk backwards from the most recent record.
		idx := (r.head - 1 - i + r.size) % r.size
		rec := r.records[idx]

		if q.Field != "" && rec.Field != q.Field {
			continue
		}
		if q.Status != StatusAny && rec.Status != q.Status {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}

		out = append(out, rec)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

// recentSuccesses returns up to steps most recent successfully applied
// records, newest first. Failed and rolled-back records do not count, and
// neither do successes a prior rollback already reversed.
func (r *changeRing) recentSuccesses(steps int) []ChangeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ChangeRecord
	for i := 0; i < r.count && len(out) < steps; i++ {
		idx := (r.head - 1 - i + r.size) % r.size
		if r.records[idx].Status == StatusSuccess && !r.records[idx].consumed {
			out = append(out, r.records[idx])
		}
	}
	return out
}

// consumeSuccesses marks the n most recent unconsumed success records as
// consumed. Called after a rollback has been applied, using the same
// newest-first traversal as recentSuccesses so it marks exactly the records
// the rollback reversed.
func (r *changeRing) consumeSuccesses(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.count && n > 0; i++ {
		idx := (r.head - 1 - i + r.size) % r.size
		if r.records[idx].Status == StatusSuccess && !r.records[idx].consumed {
			r.records[idx].consumed = true
			n--
		}
	}
}
