package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"forge/internal/config"
	"forge/internal/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// recordingRunner captures target dispatches from the watcher.
type recordingRunner struct {
	mu      sync.Mutex
	targets []string
	err     error
}

func (r *recordingRunner) Run(_ context.Context, name string, _ task.Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, name)
	return r.err
}

func (r *recordingRunner) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.targets...)
}

func watchConfig() *config.Config {
	cfg := config.Default()
	cfg.Watch.Targets = []string{"build", "test"}
	cfg.Watch.Debounce = "50ms"
	return cfg
}

func startWatcher(t *testing.T, cfg *config.Config, root string, runner TargetRunner) (*Watcher, chan struct{}) {
	t.Helper()
	w, err := New(cfg, root, runner)
	require.NoError(t, err)

	ran := make(chan struct{}, 16)
	w.onRun = func([]string, error) { ran <- struct{}{} }

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w, ran
}

func TestWatcher_TriggersTargetsOnGoFileChange(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	dir := t.TempDir()
	runner := &recordingRunner{}
	w, ran := startWatcher(t, watchConfig(), dir, runner)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never triggered")
	}

	assert.Equal(t, []string{"build", "test"}, runner.seen())

	stats := w.Stats()
	assert.Equal(t, 1, stats.RunsTriggered)
	assert.Zero(t, stats.RunsFailed)
	assert.Equal(t, filepath.Join(dir, "main.go"), stats.LastEventPath)
}

func TestWatcher_IgnoresOtherExtensions(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	dir := t.TempDir()
	runner := &recordingRunner{}
	w, ran := startWatcher(t, watchConfig(), dir, runner)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("scratch\n"), 0o644))

	select {
	case <-ran:
		t.Fatal("non-source change must not trigger a run")
	case <-time.After(300 * time.Millisecond):
	}

	assert.Empty(t, runner.seen())
	assert.Zero(t, w.Stats().RunsTriggered)
}

func TestWatcher_RapidSavesCollapseIntoOneRun(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	dir := t.TempDir()
	runner := &recordingRunner{}
	w, ran := startWatcher(t, watchConfig(), dir, runner)

	path := filepath.Join(dir, "main.go")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never triggered")
	}

	// The burst settles as a single run.
	assert.Equal(t, 1, w.Stats().RunsTriggered)
}

func TestWatcher_TargetFailureCountsAndKeepsWatching(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	dir := t.TempDir()
	runner := &recordingRunner{err: &task.ExitError{Code: 1, Target: "build"}}
	w, ran := startWatcher(t, watchConfig(), dir, runner)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never triggered")
	}

	// build fails, test never runs, loop survives.
	assert.Equal(t, []string{"build"}, runner.seen())
	assert.Equal(t, 1, w.Stats().RunsFailed)
}

func TestWatcher_StartFailureReleasesWatcher(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := filepath.Join(t.TempDir(), "does-not-exist")
	w, err := New(watchConfig(), root, &recordingRunner{})
	require.NoError(t, err)

	require.Error(t, w.Start(context.Background()))
	// The failed start already released the filesystem watcher; Stop is a
	// no-op and goleak sees no leftover event goroutine.
	w.Stop()
}

func TestWatcher_StartStopIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := New(watchConfig(), t.TempDir(), &recordingRunner{})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()), "second start is a no-op")

	w.Stop()
	w.Stop() // safe to call twice
}

func TestSkipDir(t *testing.T) {
	assert.True(t, skipDir(".git"))
	assert.True(t, skipDir("_build"))
	assert.True(t, skipDir("vendor"))
	assert.True(t, skipDir("testdata"))
	assert.False(t, skipDir("internal"))
	assert.False(t, skipDir("cmd"))
}
