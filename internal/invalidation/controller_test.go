package invalidation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/conneroisu/svgrender/internal/catalog"
	"github.com/conneroisu/svgrender/internal/metrics"
	"github.com/conneroisu/svgrender/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	paths []string
	// seen is the store's catalog length observed at broadcast time.
	seen  []int
	store *catalog.Store
}

func (n *recordingNotifier) Reload(_ context.Context, path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
	n.seen = append(n.seen, n.store.Load().Len())
}

type rebuildCounter struct {
	mu    sync.Mutex
	ok    int
	fails int
}

func (r *rebuildCounter) ObserveRender(int, bool, time.Duration, error) {}
func (r *rebuildCounter) IncServe(metrics.ServeOutcome) {}
func (r *rebuildCounter) ObservePublish(int, time.Duration) {}
func (r *rebuildCounter) IncRebuild(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.fails++
		return
	}
	r.ok++
}

func TestHandleSwapsCatalog(t *testing.T) {
	store := catalog.NewStore(catalog.Empty())
	notifier := &recordingNotifier{store: store}
	rec := &rebuildCounter{}

	next := catalog.New(catalog.NewEntry("logo", "/logo.svg"))
	c := New(store, func(context.Context) (*catalog.Catalog, error) { return next, nil }, notifier, nil, rec)

	require.NoError(t, c.Handle(context.Background(), watcher.Event{Op: watcher.OpAdd, Path: "/logo.svg"}))

	assert.Same(t, next, store.Load())
	assert.Equal(t, []string{"/logo.svg"}, notifier.paths)
	// The reload is broadcast before the swap.
	assert.Equal(t, []int{0}, notifier.seen)
	assert.Equal(t, 1, rec.ok)
}

func TestHandleFailedRebuildKeepsCatalog(t *testing.T) {
	current := catalog.New(catalog.NewEntry("logo", "/logo.svg"))
	store := catalog.NewStore(current)
	rec := &rebuildCounter{}
	boom := errors.New("boom")

	c := New(store, func(context.Context) (*catalog.Catalog, error) { return nil, boom }, nil, nil, rec)

	err := c.Handle(context.Background(), watcher.Event{Op: watcher.OpChange, Path: "/logo.svg"})
	assert.ErrorIs(t, err, boom)
	assert.Same(t, current, store.Load())
	assert.Equal(t, 1, rec.fails)
}

func TestEachEventRebuilds(t *testing.T) {
	store := catalog.NewStore(nil)
	var calls int
	c := New(store, func(context.Context) (*catalog.Catalog, error) {
		calls++
		return catalog.Empty(), nil
	}, nil, nil, nil)

	events := make(chan watcher.Event, 3)
	events <- watcher.Event{Op: watcher.OpAdd, Path: "/a.svg"}
	events <- watcher.Event{Op: watcher.OpChange, Path: "/a.svg"}
	events <- watcher.Event{Op: watcher.OpUnlink, Path: "/a.svg"}
	close(events)

	c.Run(context.Background(), events)
	assert.Equal(t, 3, calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	c := New(catalog.NewStore(nil), func(context.Context) (*catalog.Catalog, error) {
		return catalog.Empty(), nil
	}, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, make(chan watcher.Event))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// A reader that loaded the catalog before a change event keeps a working
// snapshot through the rebuild.
func TestInFlightReaderKeepsSnapshot(t *testing.T) {
	root := t.TempDir()
	logo := filepath.Join(root, "logo.svg")
	require.NoError(t, os.WriteFile(logo, []byte("<svg/>"), 0o644))

	build := func(ctx context.Context) (*catalog.Catalog, error) {
		return catalog.Build(ctx, catalog.Options{Root: root, Pattern: "*.svg"})
	}
	initial, err := build(context.Background())
	require.NoError(t, err)
	store := catalog.NewStore(initial)
	c := New(store, build, nil, nil, nil)

	held := store.Load()

	require.NoError(t, os.WriteFile(logo, []byte(`<svg viewBox="0 0 1 1"/>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "mark.svg"), []byte("<svg/>"), 0o644))
	require.NoError(t, c.Handle(context.Background(), watcher.Event{Op: watcher.OpChange, Path: logo}))

	entry, ok := held.Lookup("logo")
	require.True(t, ok)
	_, err = os.ReadFile(entry.Path)
	assert.NoError(t, err)
	assert.Equal(t, 1, held.Len())
	assert.Equal(t, 2, store.Load().Len())
}
