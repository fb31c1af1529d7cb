// Package invalidation rebuilds the catalog when source files change and
// tells connected clients to reload.
package invalidation

import (
	"context"

	"github.com/conneroisu/svgrender/internal/catalog"
	"github.com/conneroisu/svgrender/internal/logging"
	"github.com/conneroisu/svgrender/internal/metrics"
	"github.com/conneroisu/svgrender/internal/watcher"
)

// Notifier broadcasts a full reload to dev clients.
type Notifier interface {
	Reload(ctx context.Context, path string)
}

// RebuildFunc produces a fresh catalog.
type RebuildFunc func(ctx context.Context) (*catalog.Catalog, error)

// Controller swaps a new catalog into the store after every file event.
// Events are not coalesced: each one triggers its own rebuild.
type Controller struct {
	store    *catalog.Store
	rebuild  RebuildFunc
	notifier Notifier
	logger   logging.Logger
	recorder metrics.Recorder
}

// New creates a controller. A nil notifier disables reload broadcasts.
func New(store *catalog.Store, rebuild RebuildFunc, notifier Notifier, logger logging.Logger, recorder metrics.Recorder) *Controller {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Controller{
		store:    store,
		rebuild:  rebuild,
		notifier: notifier,
		logger:   logger.WithComponent("invalidation"),
		recorder: metrics.OrNoop(recorder),
	}
}

// Handle reacts to one event: it broadcasts a reload, rebuilds the catalog
// and swaps it in. On failure the previous catalog stays current and the
// error is returned.
func (c *Controller) Handle(ctx context.Context, ev watcher.Event) error {
	c.logger.Info(ctx, "Source changed", "op", string(ev.Op), "path", ev.Path)
	if c.notifier != nil {
		c.notifier.Reload(ctx, ev.Path)
	}

	perf := logging.StartOperation(c.logger, "rebuild")
	next, err := c.rebuild(ctx)
	c.recorder.IncRebuild(err)
	if err != nil {
		perf.EndWithError(ctx, err, "path", ev.Path)
		return err
	}

	prev := c.store.Swap(next)
	perf.End(ctx, "entries", next.Len(), "previous", prev.Len())
	for _, skipped := range next.Skipped() {
		c.logger.Debug(ctx, "Source left out of catalog", "error", skipped.Error())
	}
	return nil
}

// Run handles events until the channel closes or ctx is cancelled.
// Rebuild failures are logged and do not stop the loop.
func (c *Controller) Run(ctx context.Context, events <-chan watcher.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.Handle(ctx, ev); err != nil && ctx.Err() == nil {
				c.logger.Warn(ctx, err, "Catalog rebuild failed, keeping previous catalog", "path", ev.Path)
			}
		}
	}
}
