package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/schemagate/core/watch"
)

func startWatcher(t *testing.T, dir string, calls *atomic.Int32) context.CancelFunc {
	t.Helper()

	w, err := watch.New(dir, 50*time.Millisecond, zerolog.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, func(context.Context) error {
			calls.Add(1)
			return nil
		})
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to start
	time.Sleep(20 * time.Millisecond)
	return cancel
}

func waitFor(t *testing.T, calls *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls.Load() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("callback ran %d times, want %d", calls.Load(), want)
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, dir, &calls)

	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, "consensus.yaml")
		if err := os.WriteFile(path, []byte("types: []\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, &calls, 1)

	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("callback ran %d times for one burst, want 1", got)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, dir, &calls)

	for _, name := range []string{"README.md", ".consensus.yaml.swp", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(200 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("callback ran %d times, want 0", got)
	}
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, dir, &calls)

	sub := filepath.Join(dir, "wallet")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	waitFor(t, &calls, 1)

	if err := os.WriteFile(filepath.Join(sub, "events.yml"), []byte("types: []\n"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, &calls, 2)
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	w, err := watch.New(dir, 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx, func(context.Context) error { return nil }) }()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_MissingDir(t *testing.T) {
	if _, err := watch.New(filepath.Join(t.TempDir(), "absent"), 0, zerolog.Nop()); err == nil {
		t.Error("New should fail for a missing directory")
	}
}
