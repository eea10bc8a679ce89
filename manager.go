package rudder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

// Defaults for configured policy inputs.
const (
	// DefaultDebounce is the default debounce window for change processing.
	DefaultDebounce = 1 * time.Second

	// DefaultTTL is the default time-to-live for cached derived values.
	DefaultTTL = 1 * time.Hour

	// DefaultSweepInterval is the default interval between cache sweeps.
	DefaultSweepInterval = 5 * time.Minute

	// DefaultHistoryCapacity is the default change-history ring size.
	DefaultHistoryCapacity = 100
)

// SubscriberFunc receives committed configuration changes. Old is the
// superseded snapshot, current the one just published, and changed maps each
// changed field to its old and new values. Callbacks run outside the
// registry lock; a panic is contained and does not affect other subscribers
// or the already-committed swap.
type SubscriberFunc func(old, current *Snapshot, changed map[string]FieldChange)

// Status is a point-in-time view of manager health. IsValid and
// ValidationErrors reflect the most recent validation attempt, including a
// rejected candidate; the active configuration itself always remains the
// last-known-good snapshot.
type Status struct {
	IsValid          bool
	LastValidated    time.Time
	ValidationErrors []string
	CacheStats       Stats
	IsWatching       bool
	State            State
	LastReload       time.Time
	ReloadCount      uint64
	LastChange       *ChangeRecord
	Version          uint64
}

// Manager owns the hot-reloadable configuration subsystem: the current
// snapshot, the derived-value cache, the reload pipeline, the change
// history, and the subscriber registry. Construct one Manager at process
// startup and pass it by reference to every consumer; there is no ambient
// global instance.
type Manager struct {
	watcher  Watcher
	pipeline pipz.Chainable[*Request]
	policies map[string]FieldPolicy
	codec    Codec
	clock    clockz.Clock
	metrics  MetricsProvider
	onStop   func(State)

	debounce          time.Duration
	startupTimeout    time.Duration
	sweepInterval     time.Duration
	defaultTTL        time.Duration
	ttls              map[string]time.Duration
	historyCap        int
	watchEnabled      bool
	validateOnStartup bool
	validateOnReload  bool
	syncMode          bool

	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	state   atomic.Int32
	cache   *cache
	history *changeRing

	// applyMu is the single-writer reload queue: manual, watcher-triggered,
	// and rollback candidates serialize through it in FIFO order.
	applyMu sync.Mutex

	subMu       sync.RWMutex
	subscribers map[uint64]SubscriberFunc
	nextSubID   atomic.Uint64

	statusMu       sync.Mutex
	lastValidation ValidationResult
	lastValidated  time.Time
	lastValid      bool
	lastReload     time.Time
	reloadCount    atomic.Uint64

	mu         sync.Mutex
	started    bool
	stopped    atomic.Bool
	shutdownCh chan struct{}
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	// For sync mode: channel to receive changes
	changes <-chan []byte
}

// New creates a Manager that watches a source for configuration changes.
//
// The watcher emits raw bytes when the source changes. Bytes are decoded to
// a flat field map by the configured codec, validated against the field
// policy table, diffed against the current snapshot, and classified by
// reload class. Hot changes are applied atomically; restart-required changes
// reject the whole candidate.
//
// Pipeline options (With*) configure the notification pipeline. Instance
// configuration uses chainable methods before calling Start().
//
// Example:
//
//	manager := rudder.New(
//	    rudder.NewFileWatcher(".env"),
//	    rudder.WithTimeout(5*time.Second),
//	).Debounce(time.Second)
func New(watcher Watcher, opts ...Option) *Manager {
	m := &Manager{
		watcher:           watcher,
		policies:          DefaultPolicies(),
		codec:             EnvCodec{},
		clock:             clockz.RealClock,
		debounce:          DefaultDebounce,
		sweepInterval:     DefaultSweepInterval,
		defaultTTL:        DefaultTTL,
		historyCap:        DefaultHistoryCapacity,
		watchEnabled:      true,
		validateOnStartup: true,
		validateOnReload:  true,
		subscribers:       make(map[uint64]SubscriberFunc),
	}

	terminal := pipz.Effect(notifyID, func(ctx context.Context, req *Request) error {
		m.notifySubscribers(ctx, req)
		return nil
	})
	m.pipeline = buildPipeline(terminal, opts)
	m.state.Store(int32(StateIdle))

	return m
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Debounce sets the debounce window for change processing.
// Changes arriving within this window are coalesced into a single reload
// attempt. Default: 1s. Must be called before Start().
func (m *Manager) Debounce(d time.Duration) *Manager {
	m.debounce = d
	return m
}

// Clock sets a custom clock for time operations.
// Use this with clockz.FakeClock for deterministic debounce and TTL testing.
// Must be called before Start().
func (m *Manager) Clock(clock clockz.Clock) *Manager {
	m.clock = clock
	return m
}

// Codec sets the codec for decoding source data.
// Default: EnvCodec. Must be called before Start().
func (m *Manager) Codec(codec Codec) *Manager {
	m.codec = codec
	return m
}

// Policies replaces the field policy table.
// Default: DefaultPolicies(). Must be called before Start().
func (m *Manager) Policies(policies map[string]FieldPolicy) *Manager {
	m.policies = policies
	return m
}

// Metrics sets a metrics provider for observability integration.
// Must be called before Start().
func (m *Manager) Metrics(provider MetricsProvider) *Manager {
	m.metrics = provider
	return m
}

// SyncMode enables synchronous processing for testing.
// In sync mode, changes are processed via Process() without debouncing or
// background goroutines, making tests deterministic. Must be called before
// Start().
func (m *Manager) SyncMode() *Manager {
	m.syncMode = true
	return m
}

// StartupTimeout sets the maximum duration to wait for the initial
// configuration value from the watcher. If the watcher fails to emit within
// this duration, Start() returns an error.
// Default: no timeout (wait indefinitely). Must be called before Start().
func (m *Manager) StartupTimeout(d time.Duration) *Manager {
	m.startupTimeout = d
	return m
}

// OnStop sets a callback invoked when the manager stops, receiving the
// final pipeline state. Must be called before Start().
func (m *Manager) OnStop(fn func(State)) *Manager {
	m.onStop = fn
	return m
}

// HistoryCapacity sets the change-history ring size. Oldest records are
// evicted first once the ring is full. Default: 100. Must be called before
// Start().
func (m *Manager) HistoryCapacity(n int) *Manager {
	m.historyCap = n
	return m
}

// CacheTTL sets the default time-to-live for cached derived values.
// Default: 1h. Must be called before Start().
func (m *Manager) CacheTTL(d time.Duration) *Manager {
	m.defaultTTL = d
	return m
}

// FieldTTL sets a per-field TTL override. Must be called before Start().
func (m *Manager) FieldTTL(key string, d time.Duration) *Manager {
	if m.ttls == nil {
		m.ttls = make(map[string]time.Duration)
	}
	m.ttls[key] = d
	return m
}

// SweepInterval sets the interval between background cache sweeps.
// Default: 5m. Must be called before Start().
func (m *Manager) SweepInterval(d time.Duration) *Manager {
	m.sweepInterval = d
	return m
}

// WatchDisabled turns off change watching: the initial snapshot is still
// loaded through the watcher, but subsequent changes are picked up only by
// manual Reload(). Must be called before Start().
func (m *Manager) WatchDisabled() *Manager {
	m.watchEnabled = false
	return m
}

// ValidateOnStartup controls whether the initial snapshot is validated.
// Default: true. Must be called before Start().
func (m *Manager) ValidateOnStartup(v bool) *Manager {
	m.validateOnStartup = v
	return m
}

// ValidateOnReload controls whether reload candidates are validated.
// Default: true. Must be called before Start().
func (m *Manager) ValidateOnReload(v bool) *Manager {
	m.validateOnReload = v
	return m
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start loads the initial snapshot and begins watching for changes. It
// blocks until the first configuration is processed. If the initial
// snapshot fails to load or validate, Start returns the error and the
// manager does not run: the owning process must refuse to start rather
// than operate on unknown configuration.
//
// Start can only be called once. Subsequent calls return ErrAlreadyStarted.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.cache = newCache(m.defaultTTL, m.ttls, m.clock)
	m.history = newChangeRing(m.historyCap)
	m.shutdownCh = make(chan struct{})

	watchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	capitan.Emit(ctx, ManagerStarted,
		KeyDebounce.Field(m.debounce),
	)

	changes, err := m.watcher.Watch(watchCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	// Wrap context with startup timeout if configured
	startupCtx := ctx
	if m.startupTimeout > 0 {
		var timeoutCancel context.CancelFunc
		startupCtx, timeoutCancel = m.clock.WithTimeout(ctx, m.startupTimeout)
		defer timeoutCancel()
	}

	select {
	case <-startupCtx.Done():
		cancel()
		if m.startupTimeout > 0 && errors.Is(startupCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("startup timeout: watcher did not emit initial value within %v", m.startupTimeout)
		}
		return startupCtx.Err()
	case raw, ok := <-changes:
		if !ok {
			cancel()
			return fmt.Errorf("watcher closed before emitting initial value")
		}
		capitan.Emit(ctx, ChangeReceived)
		if m.metrics != nil {
			m.metrics.OnChangeReceived()
		}
		if err := m.processCandidate(ctx, raw, triggerStartup); err != nil {
			cancel()
			return err
		}
	}

	if m.syncMode {
		// In sync mode, store channel for manual processing
		m.changes = changes
		return nil
	}

	if m.watchEnabled {
		m.wg.Add(1)
		go m.watch(watchCtx, changes)
	}

	m.wg.Add(1)
	go m.sweepLoop(watchCtx)

	return nil
}

// Stop shuts the manager down: the watcher and sweep loops are canceled,
// goroutines are drained, and the subscriber registry is cleared. Stop is
// idempotent and safe to call once Start has returned. An in-flight reload
// either completes fully or is abandoned before applying; no reload is
// partially applied across a shutdown boundary.
func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return
	}
	if !m.stopped.CompareAndSwap(false, true) {
		return
	}

	close(m.shutdownCh)
	m.cancel()
	m.wg.Wait()

	m.subMu.Lock()
	m.subscribers = make(map[uint64]SubscriberFunc)
	m.subMu.Unlock()

	finalState := m.State()
	capitan.Emit(context.Background(), ManagerStopped,
		KeyState.Field(finalState.String()),
	)
	if m.onStop != nil {
		m.onStop(finalState)
	}
}

// Process reads and processes the next value from the watcher without
// debouncing. This is only available in sync mode and is used for
// deterministic testing. Returns false if no value is available or the
// channel is closed.
func (m *Manager) Process(ctx context.Context) bool {
	if !m.syncMode {
		return false
	}

	select {
	case raw, ok := <-m.changes:
		if !ok {
			return false
		}
		capitan.Emit(ctx, ChangeReceived)
		if m.metrics != nil {
			m.metrics.OnChangeReceived()
		}
		_ = m.processCandidate(ctx, raw, triggerWatcher) //nolint:errcheck // Outcome recorded in history and status
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// Read Path
// -----------------------------------------------------------------------------

// Config returns the current snapshot via a lock-free pointer load. Callers
// observe either the fully-old or fully-new snapshot, never a mix. Returns
// nil before Start has applied the initial snapshot.
func (m *Manager) Config() *Snapshot {
	return m.current.Load()
}

// State returns the current state of the reload pipeline.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Cached returns the derived value for a field, computed from the current
// snapshot and cached with the field's TTL. The derivation parses the raw
// value per the field's policy (lists are split, numbers parsed, and so on).
func (m *Manager) Cached(key string) (any, error) {
	return m.CachedFunc(key, func(snap *Snapshot) (any, error) {
		policy, ok := m.policies[key]
		return snap.derived(key, policy, ok), nil
	})
}

// CachedFunc returns the cached value for key, invoking compute against the
// current snapshot on a miss or after expiry.
func (m *Manager) CachedFunc(key string, compute func(*Snapshot) (any, error)) (any, error) {
	if m.cache == nil {
		return nil, ErrNotStarted
	}
	value, hit, err := m.cache.get(key, func() (any, error) {
		snap := m.current.Load()
		if snap == nil {
			return nil, ErrNotStarted
		}
		return compute(snap)
	})
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		if hit {
			m.metrics.OnCacheHit(key)
		} else {
			m.metrics.OnCacheMiss(key)
		}
	}
	return value, nil
}

// CacheStats returns hit/miss counters and the live entry count.
func (m *Manager) CacheStats() Stats {
	if m.cache == nil {
		return Stats{}
	}
	return m.cache.stats()
}

// ClearCache removes the given cached keys, or every entry when called with
// no arguments. Unknown keys are reported via ErrUnknownCacheKey but do not
// stop the remaining removals.
func (m *Manager) ClearCache(keys ...string) error {
	if m.cache == nil {
		return ErrNotStarted
	}
	if len(keys) == 0 {
		m.cache.invalidateAll()
		return nil
	}
	var errs []error
	for _, key := range keys {
		if err := m.cache.invalidate(key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// History returns change records matching the query, newest first.
func (m *Manager) History(q HistoryQuery) []ChangeRecord {
	if m.history == nil {
		return nil
	}
	return m.history.query(q)
}

// ValidateCandidate decodes and validates raw candidate bytes without
// touching the current snapshot. Useful for pre-flight checks from an
// administrative transport.
func (m *Manager) ValidateCandidate(raw []byte) (ValidationResult, error) {
	values, err := m.codec.Decode(raw)
	if err != nil {
		return nil, &ReloadError{Stage: "decode", Err: err}
	}
	return Validate(values, m.policies), nil
}

// Status returns a point-in-time view of manager health.
func (m *Manager) Status() Status {
	m.statusMu.Lock()
	st := Status{
		IsValid:          m.lastValid,
		LastValidated:    m.lastValidated,
		ValidationErrors: m.lastValidation.Messages(),
		LastReload:       m.lastReload,
	}
	m.statusMu.Unlock()

	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	st.CacheStats = m.CacheStats()
	st.IsWatching = started && m.watchEnabled && !m.syncMode && !m.stopped.Load()
	st.State = m.State()
	st.ReloadCount = m.reloadCount.Load()
	if recs := m.History(HistoryQuery{Limit: 1}); len(recs) > 0 {
		st.LastChange = &recs[0]
	}
	if snap := m.current.Load(); snap != nil {
		st.Version = snap.Version
	}
	return st
}

// -----------------------------------------------------------------------------
// Subscriber Registry
// -----------------------------------------------------------------------------

// Subscribe registers a callback for committed configuration changes and
// returns an id for deterministic Unsubscribe.
func (m *Manager) Subscribe(fn SubscriberFunc) uint64 {
	id := m.nextSubID.Add(1)
	m.subMu.Lock()
	m.subscribers[id] = fn
	m.subMu.Unlock()
	return id
}

// Unsubscribe removes a subscription. Returns false if the id is unknown.
func (m *Manager) Unsubscribe(id uint64) bool {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if _, ok := m.subscribers[id]; !ok {
		return false
	}
	delete(m.subscribers, id)
	return true
}

// notifySubscribers delivers a committed change to every subscriber. The
// registry lock is held only long enough to copy the subscriber list, so a
// blocking callback cannot prevent new subscriptions. Panics are contained
// per subscriber.
func (m *Manager) notifySubscribers(ctx context.Context, req *Request) {
	m.subMu.RLock()
	ids := make([]uint64, 0, len(m.subscribers))
	fns := make([]SubscriberFunc, 0, len(m.subscribers))
	for id, fn := range m.subscribers {
		ids = append(ids, id)
		fns = append(fns, fn)
	}
	m.subMu.RUnlock()

	for i, fn := range fns {
		m.invokeSubscriber(ctx, ids[i], fn, req)
	}
}

// invokeSubscriber calls one subscriber with panic containment.
func (m *Manager) invokeSubscriber(ctx context.Context, id uint64, fn SubscriberFunc, req *Request) {
	defer func() {
		if r := recover(); r != nil {
			capitan.Emit(ctx, SubscriberPanicked,
				KeySubscriber.Field(int(id)),
				KeyError.Field(fmt.Sprint(r)),
			)
		}
	}()
	fn(req.Previous, req.Current, req.Changed)
}
