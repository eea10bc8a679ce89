package rudder

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// Reload triggers, recorded in signals and used to pick record status.
const (
	triggerStartup  = "startup"
	triggerWatcher  = "watcher"
	triggerManual   = "manual"
	triggerRollback = "rollback"
)

// redacted replaces secret field values wherever a change is exposed:
// change records, subscriber payloads, and signals.
const redacted = "[redacted]"

// Reload triggers the reload pipeline synchronously, skipping the debounce
// wait. The configured watcher must implement Loader; otherwise
// ErrReloadUnsupported is returned. Manual reloads serialize with
// watcher-triggered ones through the same single-writer queue.
func (m *Manager) Reload(ctx context.Context) error {
	loader, ok := m.watcher.(Loader)
	if !ok {
		return ErrReloadUnsupported
	}
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	raw, err := loader.Load(ctx)
	if err != nil {
		rerr := &ReloadError{Stage: "load", Err: err}
		m.recordFailure(ctx, "", rerr.Error(), 0)
		if m.metrics != nil {
			m.metrics.OnReloadFailure("load", 0)
		}
		return rerr
	}
	return m.processCandidate(ctx, raw, triggerManual)
}

// watch processes changes from the watcher channel with debouncing.
// Multiple events arriving within the debounce window collapse into a
// single reload attempt scheduled for window end, so an editor mid-write
// does not trigger redundant reloads.
func (m *Manager) watch(ctx context.Context, changes <-chan []byte) {
	defer m.wg.Done()

	var (
		timer      clockz.Timer
		pending    []byte
		hasPending bool
	)

	for {
		// Get timer channel or nil if no timer
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-m.shutdownCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case raw, ok := <-changes:
			if !ok {
				// Channel closed, process any pending change
				if hasPending {
					_ = m.processCandidate(ctx, pending, triggerWatcher) //nolint:errcheck // Outcome recorded in history
				}
				return
			}

			capitan.Emit(ctx, ChangeReceived)
			if m.metrics != nil {
				m.metrics.OnChangeReceived()
			}
			pending = raw
			hasPending = true
			m.transitionState(ctx, StateDebouncing)

			// Reset or start debounce timer
			if timer == nil {
				timer = m.clock.NewTimer(m.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(m.debounce)
			}

		case <-timerC:
			if hasPending {
				_ = m.processCandidate(ctx, pending, triggerWatcher) //nolint:errcheck // Outcome recorded in history
				hasPending = false
			}
		}
	}
}

// sweepLoop removes expired cache entries on a fixed interval, independent
// of read traffic.
func (m *Manager) sweepLoop(ctx context.Context) {
	defer m.wg.Done()

	timer := m.clock.NewTimer(m.sweepInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.shutdownCh:
			return
		case <-timer.C():
			if removed := m.cache.sweep(); removed > 0 {
				capitan.Emit(ctx, CacheSwept,
					KeyRemoved.Field(removed),
				)
				if m.metrics != nil {
					m.metrics.OnCacheSweep(removed)
				}
			}
			timer.Reset(m.sweepInterval)
		}
	}
}

// processCandidate runs one candidate through decode, validation, diff,
// classification, and apply. It either fully succeeds (the candidate
// becomes current and success records are appended) or fully fails (the
// current snapshot is untouched and failure is recorded); no partial field
// application is possible.
func (m *Manager) processCandidate(ctx context.Context, raw []byte, trigger string) error {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	start := m.clock.Now()
	initial := trigger == triggerStartup
	m.transitionState(ctx, StateValidating)

	values, err := m.codec.Decode(raw)
	if err != nil {
		rerr := &ReloadError{Stage: "decode", Err: err}
		m.rejectCandidate(ctx, "", rerr.Error(), "decode", start)
		return rerr
	}

	if m.shouldValidate(trigger) {
		result := Validate(values, m.policies)
		m.setValidation(result)
		if !result.Valid() {
			verr := &ValidationError{Result: result}
			m.rejectCandidate(ctx, "", strings.Join(result.Messages(), "; "), "validate", start)
			return verr
		}
	}

	old := m.current.Load()
	var oldValues map[string]string
	if old != nil {
		oldValues = old.Fields()
	}
	changed := diffValues(oldValues, values)

	if !initial && len(changed) == 0 {
		// Nothing changed: success with no new history entries.
		m.finishReload()
		m.transitionState(ctx, StateIdle)
		return nil
	}

	if !initial {
		if restart := m.restartFields(changed); len(restart) > 0 {
			duration := m.clock.Since(start)
			for _, field := range restart {
				change := m.redactChange(field, changed[field])
				m.history.push(ChangeRecord{
					Timestamp: m.clock.Now(),
					Field:     field,
					Old:       change.Old,
					New:       change.New,
					Status:    StatusFailed,
					Reason:    "field requires restart",
					Duration:  duration,
				})
			}
			rerr := &RestartRequiredError{Fields: restart}
			capitan.Emit(ctx, ReloadRejected,
				KeyTrigger.Field(trigger),
				KeyError.Field(rerr.Error()),
			)
			if m.metrics != nil {
				m.metrics.OnReloadFailure("classify", duration)
			}
			m.transitionState(ctx, StateRejected)
			m.transitionState(ctx, StateIdle)
			return rerr
		}
	}

	m.apply(ctx, applyInput{
		values:  values,
		old:     old,
		raw:     raw,
		changed: changed,
		trigger: trigger,
		start:   start,
	})
	return nil
}

// applyInput carries a validated, classified candidate into apply.
type applyInput struct {
	values  map[string]string
	old     *Snapshot
	raw     []byte
	changed map[string]FieldChange
	trigger string
	start   time.Time
}

// apply atomically publishes the candidate as the current snapshot,
// invalidates the cache entries of changed fields, appends history records,
// and notifies subscribers. The atomic pointer store is the sole critical
// operation: readers see either the old or the new snapshot, never a mix.
// Notification runs after the swap commits, so a subscriber reading
// Config() mid-notification always sees the new snapshot.
func (m *Manager) apply(ctx context.Context, in applyInput) {
	m.transitionState(ctx, StateApplying)

	version := m.version.Add(1)
	snap := newSnapshot(in.values, version, m.clock.Now())
	m.current.Store(snap)

	status := StatusSuccess
	signal := ReloadApplied
	if in.trigger == triggerRollback {
		status = StatusRolledBack
		signal = RollbackApplied
	}

	redactedChanged := make(map[string]FieldChange, len(in.changed))
	for field, change := range in.changed {
		redactedChanged[field] = m.redactChange(field, change)
		_ = m.cache.invalidate(field) //nolint:errcheck // Uncached fields have nothing to invalidate
	}

	duration := m.clock.Since(in.start)
	initial := in.trigger == triggerStartup
	if !initial {
		for _, field := range sortedFields(redactedChanged) {
			change := redactedChanged[field]
			m.history.push(ChangeRecord{
				Timestamp: m.clock.Now(),
				Field:     field,
				Old:       change.Old,
				New:       change.New,
				Status:    status,
				Duration:  duration,
			})
		}
	}

	m.finishReload()
	capitan.Emit(ctx, signal,
		KeyTrigger.Field(in.trigger),
		KeyVersion.Field(int(version)),
		KeyChanged.Field(len(in.changed)),
	)
	if m.metrics != nil {
		m.metrics.OnReloadSuccess(len(in.changed), duration)
	}

	// The initial snapshot has no previous state to announce.
	if !initial && in.old != nil {
		req := &Request{
			Previous: in.old,
			Current:  snap,
			Changed:  redactedChanged,
			Raw:      in.raw,
		}
		if _, err := m.pipeline.Process(ctx, req); err != nil {
			capitan.Emit(ctx, NotifyFailed,
				KeyError.Field(err.Error()),
			)
		}
	}

	m.transitionState(ctx, StateIdle)
}

// Rollback constructs a candidate by reversing the most recent steps
// successfully applied change records field by field, re-validates it, and
// applies it through the normal apply path with rolled_back status. A
// rollback whose resulting snapshot would be invalid is rejected, leaving
// current state unchanged. Only successful records count toward steps;
// failed and rolled-back records are skipped, as are successes a prior
// rollback already reversed. Rolling back with no eligible records returns
// ErrNothingToRollback.
func (m *Manager) Rollback(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	start := m.clock.Now()
	records := m.history.recentSuccesses(steps)
	if len(records) == 0 {
		return ErrNothingToRollback
	}

	old := m.current.Load()
	values := old.Fields()
	for _, rec := range records {
		if rec.Old == "" {
			delete(values, rec.Field)
		} else {
			values[rec.Field] = rec.Old
		}
	}

	m.transitionState(ctx, StateValidating)
	result := Validate(values, m.policies)
	m.setValidation(result)
	if !result.Valid() {
		verr := &ValidationError{Result: result}
		m.rejectCandidate(ctx, records[0].Field, verr.Error(), "validate", start)
		return verr
	}

	changed := diffValues(old.Fields(), values)
	if len(changed) == 0 {
		m.transitionState(ctx, StateIdle)
		return nil
	}

	m.apply(ctx, applyInput{
		values:  values,
		old:     old,
		changed: changed,
		trigger: triggerRollback,
		start:   start,
	})
	m.history.consumeSuccesses(len(records))
	return nil
}

// shouldValidate reports whether the trigger's validation policy is on.
func (m *Manager) shouldValidate(trigger string) bool {
	if trigger == triggerStartup {
		return m.validateOnStartup
	}
	return m.validateOnReload
}

// restartFields returns the changed fields classified restart-required,
// sorted for deterministic reporting. Fields without a policy entry are
// treated as hot.
func (m *Manager) restartFields(changed map[string]FieldChange) []string {
	var restart []string
	for field := range changed {
		if policy, ok := m.policies[field]; ok && policy.Reload == ReloadRestart {
			restart = append(restart, field)
		}
	}
	sort.Strings(restart)
	return restart
}

// redactChange blanks secret field values before they reach records,
// subscribers, or signals.
func (m *Manager) redactChange(field string, change FieldChange) FieldChange {
	policy, ok := m.policies[field]
	if !ok || !policy.Secret {
		return change
	}
	if change.Old != "" {
		change.Old = redacted
	}
	if change.New != "" {
		change.New = redacted
	}
	return change
}

// rejectCandidate records a failed reload attempt and returns the pipeline
// to idle. The current snapshot is untouched.
func (m *Manager) rejectCandidate(ctx context.Context, field, reason, stage string, start time.Time) {
	duration := m.clock.Since(start)
	m.history.push(ChangeRecord{
		Timestamp: m.clock.Now(),
		Field:     field,
		Status:    StatusFailed,
		Reason:    reason,
		Duration:  duration,
	})
	capitan.Emit(ctx, ReloadRejected,
		KeyError.Field(reason),
	)
	if m.metrics != nil {
		m.metrics.OnReloadFailure(stage, duration)
	}
	m.transitionState(ctx, StateRejected)
	m.transitionState(ctx, StateIdle)
}

// recordFailure appends a failed record without state transitions, for
// failures happening before the pipeline engages (source load errors).
func (m *Manager) recordFailure(ctx context.Context, field, reason string, duration time.Duration) {
	if m.history == nil {
		return
	}
	m.history.push(ChangeRecord{
		Timestamp: m.clock.Now(),
		Field:     field,
		Status:    StatusFailed,
		Reason:    reason,
		Duration:  duration,
	})
	capitan.Emit(ctx, ReloadRejected,
		KeyError.Field(reason),
	)
}

// setValidation stores the outcome of the most recent validation attempt.
func (m *Manager) setValidation(result ValidationResult) {
	m.statusMu.Lock()
	m.lastValidation = result
	m.lastValidated = m.clock.Now()
	m.lastValid = result.Valid()
	m.statusMu.Unlock()
}

// finishReload updates reload bookkeeping after a successful attempt.
func (m *Manager) finishReload() {
	m.statusMu.Lock()
	m.lastReload = m.clock.Now()
	m.statusMu.Unlock()
	m.reloadCount.Add(1)
}

// transitionState updates the pipeline state and emits a transition signal
// if it changed.
func (m *Manager) transitionState(ctx context.Context, to State) {
	from := State(m.state.Swap(int32(to)))
	if from == to {
		return
	}
	capitan.Emit(ctx, StateChanged,
		KeyOldState.Field(from.String()),
		KeyNewState.Field(to.String()),
	)
	if m.metrics != nil {
		m.metrics.OnStateChange(from, to)
	}
}

// sortedFields returns map keys in sorted order for deterministic history.
func sortedFields(changed map[string]FieldChange) []string {
	fields := make([]string, 0, len(changed))
	for field := range changed {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
