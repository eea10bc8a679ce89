package rudder

import (
	"context"
	"testing"
	"time"
)

func TestChannelWatcher_ForwardsValues(t *testing.T) {
	ch := make(chan []byte, 2)
	ch <- []byte("first")
	ch <- []byte("second")

	w := NewChannelWatcher(ch)
	out, err := w.Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	for _, want := range []string{"first", "second"} {
		select {
		case got := <-out:
			if string(got) != want {
				t.Errorf("expected %q, got %q", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %q", want)
		}
	}
}

func TestChannelWatcher_ClosesWhenSourceCloses(t *testing.T) {
	ch := make(chan []byte)
	w := NewChannelWatcher(ch)
	out, err := w.Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	close(ch)

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close")
	}
}

func TestChannelWatcher_ClosesOnContextCancel(t *testing.T) {
	ch := make(chan []byte)
	ctx, cancel := context.WithCancel(context.Background())

	w := NewChannelWatcher(ch)
	out, err := w.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close")
	}
}

func TestSyncChannelWatcher_ReturnsSourceDirectly(t *testing.T) {
	ch := make(chan []byte, 1)
	w := NewSyncChannelWatcher(ch)
	out, err := w.Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	ch <- []byte("value")
	select {
	case got := <-out:
		if string(got) != "value" {
			t.Errorf("expected value, got %q", got)
		}
	default:
		t.Error("sync watcher should pass values through without a goroutine")
	}
}
