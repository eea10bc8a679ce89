package rudder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// loaderWatcher is a channel-fed watcher that also supports on-demand loads.
type loaderWatcher struct {
	ch    chan []byte
	data  atomic.Value // []byte
	fail  atomic.Bool
	loads atomic.Int32
}

func newLoaderWatcher(initial []byte) *loaderWatcher {
	w := &loaderWatcher{ch: make(chan []byte, 10)}
	w.data.Store(initial)
	w.ch <- initial
	return w
}

func (w *loaderWatcher) Watch(_ context.Context) (<-chan []byte, error) {
	return w.ch, nil
}

func (w *loaderWatcher) Load(_ context.Context) ([]byte, error) {
	w.loads.Add(1)
	if w.fail.Load() {
		return nil, errors.New("source unavailable")
	}
	return w.data.Load().([]byte), nil
}

// waitForWaiters blocks until at least one timer is registered on the fake
// clock, failing the test after a second.
func waitForWaiters(t *testing.T, clock *clockz.FakeClock) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !clock.HasWaiters() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for clock waiters")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestReload_Manual(t *testing.T) {
	w := newLoaderWatcher(envFrom(validValues()))
	m := New(w).SyncMode()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	values := validValues()
	values["LEVERAGE"] = "20"
	w.data.Store(envFrom(values))

	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := m.Config().Leverage; got != 20 {
		t.Errorf("expected leverage 20, got %v", got)
	}
	if w.loads.Load() != 1 {
		t.Errorf("expected 1 load, got %d", w.loads.Load())
	}
}

func TestReload_LoadFailure(t *testing.T) {
	w := newLoaderWatcher(envFrom(validValues()))
	m := New(w).SyncMode()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	w.fail.Store(true)

	err := m.Reload(context.Background())
	var rerr *ReloadError
	if !errors.As(err, &rerr) || rerr.Stage != "load" {
		t.Fatalf("expected load-stage ReloadError, got %v", err)
	}

	// Previous snapshot retained
	if got := m.Config().Leverage; got != 10 {
		t.Errorf("config should be untouched, got leverage %v", got)
	}
	if recs := m.History(HistoryQuery{Status: StatusFailed}); len(recs) != 1 {
		t.Errorf("expected 1 failed record, got %d", len(recs))
	}
}

func TestReload_UnsupportedWatcher(t *testing.T) {
	m, _ := syncManager(t, validValues())
	if err := m.Reload(context.Background()); !errors.Is(err, ErrReloadUnsupported) {
		t.Errorf("expected ErrReloadUnsupported, got %v", err)
	}
}

func TestReload_NotStarted(t *testing.T) {
	w := newLoaderWatcher(envFrom(validValues()))
	m := New(w)
	if err := m.Reload(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestDebounce_CoalescesRapidChanges(t *testing.T) {
	clock := clockz.NewFakeClock()
	ch := make(chan []byte, 10)
	ch <- envFrom(validValues())

	m := New(NewChannelWatcher(ch)).
		Debounce(100 * time.Millisecond).
		Clock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	// Five rapid changes inside one debounce window
	for i := 11; i <= 15; i++ {
		values := validValues()
		values["LEVERAGE"] = fmt.Sprintf("%d", i)
		ch <- envFrom(values)
	}

	// Allow the watch goroutine to receive the changes
	time.Sleep(20 * time.Millisecond)

	if got := m.Config().Leverage; got != 10 {
		t.Errorf("expected no apply while debouncing, got leverage %v", got)
	}

	clock.Advance(150 * time.Millisecond)
	clock.BlockUntilReady()
	time.Sleep(20 * time.Millisecond)

	// Only the last candidate applied
	if got := m.Config().Leverage; got != 15 {
		t.Errorf("expected leverage 15 after debounce, got %v", got)
	}
	if recs := m.History(HistoryQuery{Status: StatusSuccess}); len(recs) != 1 {
		t.Errorf("five events should coalesce into one record, got %d", len(recs))
	}
}

func TestSweepLoop_RemovesExpiredEntries(t *testing.T) {
	clock := clockz.NewFakeClock()
	ch := make(chan []byte, 1)
	ch <- envFrom(validValues())

	m := New(NewChannelWatcher(ch)).
		Clock(clock).
		CacheTTL(30 * time.Second).
		SweepInterval(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	if _, err := m.Cached("LEVERAGE"); err != nil {
		t.Fatalf("Cached() error = %v", err)
	}
	if st := m.CacheStats(); st.Entries != 1 {
		t.Fatalf("expected 1 entry, got %d", st.Entries)
	}

	// The sweep goroutine registers its timer asynchronously; advancing
	// before that leaves the deadline beyond the advanced time.
	waitForWaiters(t, clock)

	clock.Advance(2 * time.Minute)
	clock.BlockUntilReady()
	time.Sleep(20 * time.Millisecond)

	if st := m.CacheStats(); st.Entries != 0 {
		t.Errorf("expected swept cache, got %d entries", st.Entries)
	}
}

func TestRollback_ReversesLastChange(t *testing.T) {
	m, ch := syncManager(t, validValues())
	ctx := context.Background()

	values := validValues()
	values["LEVERAGE"] = "15"
	ch <- envFrom(values)
	m.Process(ctx)

	if err := m.Rollback(ctx, 1); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if got := m.Config().Leverage; got != 10 {
		t.Errorf("expected leverage restored to 10, got %v", got)
	}
	if got := m.Config().Version; got != 3 {
		t.Errorf("rollback should bump the version, got %d", got)
	}

	recs := m.History(HistoryQuery{Status: StatusRolledBack})
	if len(recs) != 1 {
		t.Fatalf("expected 1 rolled_back record, got %d", len(recs))
	}
	if recs[0].Field != "LEVERAGE" || recs[0].Old != "15" || recs[0].New != "10" {
		t.Errorf("unexpected record: %+v", recs[0])
	}
}

func TestRollback_MultipleSteps(t *testing.T) {
	m, ch := syncManager(t, validValues())
	ctx := context.Background()

	for _, lev := range []string{"15", "20"} {
		values := validValues()
		values["LEVERAGE"] = lev
		ch <- envFrom(values)
		m.Process(ctx)
	}

	if err := m.Rollback(ctx, 2); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if got := m.Config().Leverage; got != 10 {
		t.Errorf("expected leverage 10 after two-step rollback, got %v", got)
	}
}

func TestRollback_SkipsFailedRecords(t *testing.T) {
	m, ch := syncManager(t, validValues())
	ctx := context.Background()

	// One success, then one rejection
	values := validValues()
	values["LEVERAGE"] = "15"
	ch <- envFrom(values)
	m.Process(ctx)

	values["LEVERAGE"] = "30"
	ch <- envFrom(values)
	m.Process(ctx)

	if err := m.Rollback(ctx, 1); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if got := m.Config().Leverage; got != 10 {
		t.Errorf("rollback should reverse the last success, got leverage %v", got)
	}
}

func TestRollback_NothingToRollBack(t *testing.T) {
	m, _ := syncManager(t, validValues())
	if err := m.Rollback(context.Background(), 1); !errors.Is(err, ErrNothingToRollback) {
		t.Errorf("expected ErrNothingToRollback, got %v", err)
	}
}

func TestRollback_RolledBackRecordsDoNotCount(t *testing.T) {
	m, ch := syncManager(t, validValues())
	ctx := context.Background()

	values := validValues()
	values["LEVERAGE"] = "15"
	ch <- envFrom(values)
	m.Process(ctx)

	if err := m.Rollback(ctx, 1); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	// The rollback consumed the only success; a second rollback has nothing
	if err := m.Rollback(ctx, 1); !errors.Is(err, ErrNothingToRollback) {
		t.Errorf("expected ErrNothingToRollback, got %v", err)
	}
}

func TestRollback_StepsPastConsumedRecords(t *testing.T) {
	m, ch := syncManager(t, validValues())
	ctx := context.Background()

	for _, lev := range []string{"15", "20"} {
		values := validValues()
		values["LEVERAGE"] = lev
		ch <- envFrom(values)
		m.Process(ctx)
	}

	if err := m.Rollback(ctx, 1); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if got := m.Config().Leverage; got != 15 {
		t.Fatalf("first rollback should restore 15, got %v", got)
	}

	// The 20-change is consumed; a second rollback targets the 15-change,
	// not the one already reversed.
	if err := m.Rollback(ctx, 1); err != nil {
		t.Fatalf("second Rollback() error = %v", err)
	}
	if got := m.Config().Leverage; got != 10 {
		t.Errorf("second rollback should restore 10, got %v", got)
	}

	if err := m.Rollback(ctx, 1); !errors.Is(err, ErrNothingToRollback) {
		t.Errorf("expected ErrNothingToRollback, got %v", err)
	}
}

func TestRollback_NewChangeAfterRollbackIsRollbackable(t *testing.T) {
	m, ch := syncManager(t, validValues())
	ctx := context.Background()

	values := validValues()
	values["LEVERAGE"] = "15"
	ch <- envFrom(values)
	m.Process(ctx)

	if err := m.Rollback(ctx, 1); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	values["LEVERAGE"] = "20"
	ch <- envFrom(values)
	m.Process(ctx)

	if err := m.Rollback(ctx, 1); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if got := m.Config().Leverage; got != 10 {
		t.Errorf("expected leverage 10, got %v", got)
	}
}

func TestRollback_NotStarted(t *testing.T) {
	ch := make(chan []byte, 1)
	m := New(NewSyncChannelWatcher(ch))
	if err := m.Rollback(context.Background(), 1); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestRollback_BoolFieldRestored(t *testing.T) {
	m, ch := syncManager(t, validValues())
	ctx := context.Background()

	values := validValues()
	values["DRY_RUN"] = "false"
	ch <- envFrom(values)
	m.Process(ctx)

	if m.Config().DryRun {
		t.Fatal("expected dry run disabled")
	}
	if err := m.Rollback(ctx, 1); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if !m.Config().DryRun {
		t.Error("expected dry run restored")
	}
}

func TestRollback_AddedFieldRemoved(t *testing.T) {
	m, ch := syncManager(t, validValues())
	ctx := context.Background()

	// Fields without a policy entry are hot and skip validation
	values := validValues()
	values["EXTRA_NOTE"] = "hello"
	ch <- envFrom(values)
	m.Process(ctx)

	if v, ok := m.Config().Value("EXTRA_NOTE"); !ok || v != "hello" {
		t.Fatalf("expected added field, got %q ok=%v", v, ok)
	}
	if err := m.Rollback(ctx, 1); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if _, ok := m.Config().Value("EXTRA_NOTE"); ok {
		t.Error("rollback should remove a field that was added")
	}
}
