package filewatcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recorder struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (r *recorder) OnFileChange(ev ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) first() ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[0]
}

// startWatcher runs w until the test ends and returns once Start is running.
func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		err := <-done
		assert.True(t, errors.Is(err, context.Canceled), "unexpected Start error: %v", err)
		_ = w.Close()
	})
	// fsnotify delivers events from the moment Add returns; give Start a tick to enter its loop.
	time.Sleep(20 * time.Millisecond)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatcher_NotifiesOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asiriapos.yaml")
	writeFile(t, path, "site:\n  name: A\n")

	w, err := NewWatcher(path, 30*time.Millisecond)
	require.NoError(t, err)
	rec := &recorder{}
	w.AddListener(rec)
	startWatcher(t, w)

	writeFile(t, path, "site:\n  name: B\n")

	require.Eventually(t, func() bool { return rec.count() > 0 }, 2*time.Second, 10*time.Millisecond)
	ev := rec.first()
	assert.NoError(t, ev.Error)
	assert.Equal(t, w.Path(), ev.Path)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asiriapos.yaml")
	writeFile(t, path, "0")

	w, err := NewWatcher(path, 150*time.Millisecond)
	require.NoError(t, err)
	rec := &recorder{}
	w.AddListener(rec)
	startWatcher(t, w)

	for i := 0; i < 5; i++ {
		writeFile(t, path, string(rune('a'+i)))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return rec.count() > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestWatcher_SeesRenameOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asiriapos.yaml")
	writeFile(t, path, "old")

	w, err := NewWatcher(path, 30*time.Millisecond)
	require.NoError(t, err)
	rec := &recorder{}
	w.AddListener(rec)
	startWatcher(t, w)

	tmp := filepath.Join(dir, ".asiriapos.yaml.tmp")
	writeFile(t, tmp, "new")
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool { return rec.count() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asiriapos.yaml")
	writeFile(t, path, "x")

	w, err := NewWatcher(path, 20*time.Millisecond)
	require.NoError(t, err)
	rec := &recorder{}
	w.AddListener(rec)
	startWatcher(t, w)

	writeFile(t, filepath.Join(dir, "other.yaml"), "y")
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestWatcher_ListenersRunInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asiriapos.yaml")
	writeFile(t, path, "x")

	w, err := NewWatcher(path, 20*time.Millisecond)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		w.AddListener(ListenerFunc(func(ChangeEvent) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}))
	}
	startWatcher(t, w)

	writeFile(t, path, "y")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 3
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, order[:3])
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope", "asiriapos.yaml"), time.Millisecond)
	assert.Error(t, err)
}

func TestWatcher_StopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "asiriapos.yaml")
	writeFile(t, path, "x")

	w, err := NewWatcher(path, time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	require.NoError(t, w.Close())
}
