package rudder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestPollWatcher_EmitsInitialContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "LEVERAGE=10\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewPollWatcher(path, time.Second)
	ch, err := w.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != "LEVERAGE=10\n" {
			t.Errorf("unexpected contents: %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for initial contents")
	}
}

func TestPollWatcher_DetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "LEVERAGE=10\n")

	clock := clockz.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewPollWatcher(path, time.Second, WithPollClock(clock))
	ch, err := w.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	<-ch // drain initial

	// Content of a different size guarantees a size change even when the
	// filesystem's mtime resolution is coarse
	writeFile(t, path, "LEVERAGE=1500\n")

	waitForWaiters(t, clock)
	clock.Advance(2 * time.Second)
	clock.BlockUntilReady()

	select {
	case data := <-ch:
		if string(data) != "LEVERAGE=1500\n" {
			t.Errorf("unexpected contents: %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change")
	}
}

func TestPollWatcher_NoEmissionWithoutChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "LEVERAGE=10\n")

	clock := clockz.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewPollWatcher(path, time.Second, WithPollClock(clock))
	ch, err := w.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	<-ch // drain initial

	waitForWaiters(t, clock)
	clock.Advance(2 * time.Second)
	clock.BlockUntilReady()

	select {
	case data := <-ch:
		t.Errorf("unexpected emission: %q", data)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPollWatcher_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "LEVERAGE=10\n")

	w := NewPollWatcher(path, time.Second)
	data, err := w.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(data) != "LEVERAGE=10\n" {
		t.Errorf("unexpected contents: %q", data)
	}
}

func TestPollWatcher_MissingFileEmitsNothing(t *testing.T) {
	w := NewPollWatcher(filepath.Join(t.TempDir(), "absent"), time.Second)
	ch, err := w.Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case <-ch:
		t.Error("missing file should emit nothing initially")
	case <-time.After(200 * time.Millisecond):
	}
}
