// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]string
	notify  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 16)}
}

func (r *recorder) onChange(_ context.Context, changed []string) error {
	r.mu.Lock()
	r.batches = append(r.batches, changed)
	r.mu.Unlock()
	r.notify <- struct{}{}
	return nil
}

func (r *recorder) wait(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-r.notify:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for change callback")
	}
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...)
}

func startWatcher(t *testing.T, cfg Config) (context.CancelFunc, <-chan error) {
	t.Helper()
	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the event loop a moment to start draining.
	time.Sleep(20 * time.Millisecond)
	return cancel, done
}

func TestWatcherDebounce(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	startWatcher(t, Config{
		Roots:    []string{root},
		Patterns: []string{"*"},
		Debounce: 100 * time.Millisecond,
		OnChange: rec.onChange,
	})

	for _, name := range []string{"python", "python3", "python3.12"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), nil, 0o755))
	}
	rec.wait(t, 3*time.Second)

	batches := rec.snapshot()
	require.Len(t, batches, 1)
	assert.Contains(t, batches[0], filepath.Join(root, "python3.12"))
}

func TestWatcherNewVenvDirectory(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	startWatcher(t, Config{
		Roots:    []string{root},
		Debounce: 100 * time.Millisecond,
		OnChange: rec.onChange,
	})

	venv := filepath.Join(root, "proj")
	require.NoError(t, os.Mkdir(venv, 0o755))
	rec.wait(t, 3*time.Second)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(venv, "pyvenv.cfg"), []byte("home = /usr/bin\n"), 0o644))
	rec.wait(t, 3*time.Second)

	var all []string
	for _, b := range rec.snapshot() {
		all = append(all, b...)
	}
	assert.Contains(t, all, filepath.Join(venv, "pyvenv.cfg"))
}

func TestWatcherIgnorePatterns(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	startWatcher(t, Config{
		Roots:    []string{root},
		Patterns: []string{"**/*"},
		Ignore:   []string{"**/*.log"},
		Debounce: 50 * time.Millisecond,
		OnChange: rec.onChange,
	})

	require.NoError(t, os.WriteFile(filepath.Join(root, "debug.log"), nil, 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	require.NoError(t, os.WriteFile(filepath.Join(root, "pyvenv.cfg"), nil, 0o644))
	rec.wait(t, 3*time.Second)
	batches := rec.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{filepath.Join(root, "pyvenv.cfg")}, batches[0])
}

func TestWatcherContextCancel(t *testing.T) {
	root := t.TempDir()
	cancel, done := startWatcher(t, Config{Roots: []string{root}})
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcherRunOnce(t *testing.T) {
	w, err := New(Config{Roots: []string{t.TempDir()}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.Error(t, w.Run(ctx))
}

func TestWatcherSkipsMissingRoots(t *testing.T) {
	root := t.TempDir()
	w, err := New(Config{Roots: []string{root, filepath.Join(root, "missing")}})
	require.NoError(t, err)
	defer w.fsw.Close()

	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	assert.Equal(t, []string{abs}, w.Roots())
}

func TestWatcherMaxDepth(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	w, err := New(Config{Roots: []string{root}, MaxDepth: 1})
	require.NoError(t, err)
	defer w.fsw.Close()

	watched := w.fsw.WatchList()
	assert.Contains(t, watched, filepath.Join(root, "a"))
	assert.NotContains(t, watched, filepath.Join(root, "a", "b"))
}

func TestWatcherRootsOf(t *testing.T) {
	outer := t.TempDir()
	inner := filepath.Join(outer, "projects")
	require.NoError(t, os.Mkdir(inner, 0o755))

	w, err := New(Config{Roots: []string{outer, inner}})
	require.NoError(t, err)
	defer w.fsw.Close()

	got := w.RootsOf([]string{
		filepath.Join(inner, "app", ".venv", "pyvenv.cfg"),
		filepath.Join(inner, "other"),
		"/elsewhere/python",
	})
	assert.Equal(t, []string{inner}, got)
}

func TestDefaultIgnores(t *testing.T) {
	w := &Watcher{ignores: defaultIgnores}
	for _, rel := range []string{
		".git/HEAD",
		"proj/.venv/lib/python3.12/site-packages/pip/__init__.py",
		"pkg/__pycache__/mod.pyc",
		"notes.swp",
	} {
		assert.True(t, w.isIgnored(rel), rel)
	}
	assert.False(t, w.isIgnored("proj/.venv/bin/python"))
}

func TestDefaultPatterns(t *testing.T) {
	w := &Watcher{patterns: DefaultPatterns}
	for _, rel := range []string{
		"proj/.venv/bin/python3",
		"proj/.venv/pyvenv.cfg",
		"env/Scripts/python.exe",
		"miniconda/envs/ml/conda-meta",
		"new-project",
	} {
		assert.True(t, w.matchesPatterns(rel), rel)
	}
	assert.False(t, w.matchesPatterns("proj/src/main.py"))
}

func TestInvalidPattern(t *testing.T) {
	_, err := New(Config{Patterns: []string{"[invalid"}})
	assert.ErrorContains(t, err, "invalid watch pattern")

	_, err = New(Config{Ignore: []string{"[invalid"}})
	assert.ErrorContains(t, err, "invalid ignore pattern")
}
