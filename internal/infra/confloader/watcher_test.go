package confloader

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcher_Watch(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := w.Watch(path); err != nil {
		t.Errorf("Watch() error = %v", err)
	}
	if err := w.Watch("/nonexistent/dir/config.yaml"); err == nil {
		t.Error("Watch() of a missing directory succeeded")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.StartAsync()

	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestWatcher_NotifiesWatchedFileOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w, err := NewWatcher(WithWatcherDebounce(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	var calls atomic.Int32
	changed := make(chan string, 4)
	w.OnChange(func(p string) {
		calls.Add(1)
		changed <- p
	})
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	w.StartAsync()

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// A burst of writes is delivered once.
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("a: 2\n"), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	select {
	case p := <-changed:
		if p != path {
			t.Errorf("changed path = %q, want %q", p, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("callbacks = %d, want 1", n)
	}
}
