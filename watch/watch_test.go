// ffwatcher/watch/watch_test.go
package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ffwatcher/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingSubmitter) Submit(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recordingSubmitter) submitted(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.paths {
		if p == path {
			return true
		}
	}
	return false
}

func startDispatcher(t *testing.T, root string) (*Dispatcher, *recordingSubmitter) {
	t.Helper()
	cfg := &config.Config{
		Inputs:     []config.Input{{Path: root, Extensions: []string{"mp4"}}},
		EventDelay: 10 * time.Millisecond,
	}
	sub := &recordingSubmitter{}
	d := NewDispatcher(cfg, sub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, d.Start(ctx))
	return d, sub
}

func TestDispatcherCatchesUpExistingFiles(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "nested")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	existing := filepath.Join(root, "old.mp4")
	deep := filepath.Join(nested, "deep.mp4")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(deep, []byte("x"), 0o644))

	_, sub := startDispatcher(t, root)

	assert.Eventually(t, func() bool {
		return sub.submitted(existing) && sub.submitted(deep)
	}, time.Second, 10*time.Millisecond)
}

func TestDispatcherSubmitsNewFiles(t *testing.T) {
	root := t.TempDir()
	_, sub := startDispatcher(t, root)

	path := filepath.Join(root, "new.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	assert.Eventually(t, func() bool { return sub.submitted(path) }, time.Second, 10*time.Millisecond)
}

func TestDispatcherWatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	_, sub := startDispatcher(t, root)

	sub2 := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub2, 0o755))
	// Give the dispatcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub2, "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	assert.Eventually(t, func() bool { return sub.submitted(path) }, time.Second, 10*time.Millisecond)
}

func TestDispatcherSubmitsFilesInMovedDirectory(t *testing.T) {
	root := t.TempDir()
	_, sub := startDispatcher(t, root)

	// Assemble a populated directory elsewhere, then move it into the root.
	// Its files arrive without per-file events of their own.
	staging := filepath.Join(t.TempDir(), "batch")
	require.NoError(t, os.MkdirAll(staging, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "one.mp4"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "two.mp4"), []byte("x"), 0o644))

	moved := filepath.Join(root, "batch")
	require.NoError(t, os.Rename(staging, moved))

	assert.Eventually(t, func() bool {
		return sub.submitted(filepath.Join(moved, "one.mp4")) &&
			sub.submitted(filepath.Join(moved, "two.mp4"))
	}, time.Second, 10*time.Millisecond)
}

func TestDispatcherFailsOnMissingRoot(t *testing.T) {
	cfg := &config.Config{
		Inputs:     []config.Input{{Path: filepath.Join(t.TempDir(), "does-not-exist")}},
		EventDelay: time.Millisecond,
	}
	d := NewDispatcher(cfg, &recordingSubmitter{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.Error(t, d.Start(ctx))
}
