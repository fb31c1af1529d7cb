package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/conneroisu/svgrender/internal/catalog"
	"github.com/conneroisu/svgrender/internal/config"
	"github.com/conneroisu/svgrender/internal/invalidation"
	"github.com/conneroisu/svgrender/internal/logging"
	"github.com/conneroisu/svgrender/internal/metrics"
	"github.com/conneroisu/svgrender/internal/renderer"
	"github.com/conneroisu/svgrender/internal/server"
	"github.com/conneroisu/svgrender/internal/watcher"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s", "dev"},
		Short:   "Start the development server",
		Long: `Start the development server. Assets under the URL prefix are rendered
on request, without optimization, and revalidated with ETags. Source
changes rebuild the catalog and reload connected browsers.

Examples:
  svgrender serve
  svgrender serve --port 3000 --scales 1,2,3
  svgrender serve --static-dir public --metrics`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	config.AddServerFlags(serveCmd.Flags())
	return serveCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// serve runs the dev server until ctx ends.
func serve(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	rebuild := func(ctx context.Context) (*catalog.Catalog, error) {
		return catalog.Build(ctx, catalog.Options{
			Root:    cfg.Root,
			Pattern: cfg.Pattern,
			Logger:  logger,
		})
	}

	w, initial, err := watchThenBuild(ctx, cfg, logger, rebuild)
	if err != nil {
		return err
	}
	defer w.Close()
	store := catalog.NewStore(initial)

	var (
		recorder       metrics.Recorder
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheusRecorder(nil)
		recorder = prom
		metricsHandler = prom.Handler()
	}

	srv := server.New(cfg, store, renderer.Instrument(renderer.Render, recorder), logger, recorder, metricsHandler)

	controller := invalidation.New(store, rebuild, srv.Hub(), logger, recorder)
	go controller.Run(ctx, w.Events())

	logger.Info(ctx, "Catalog ready", "assets", initial.Len(), "root", cfg.Root, "pattern", cfg.Pattern)
	return srv.Start(ctx)
}

// watchThenBuild registers the watches before the first build, so any file
// the initial catalog misses still produces an event.
func watchThenBuild(
	ctx context.Context,
	cfg *config.Config,
	logger logging.Logger,
	build invalidation.RebuildFunc,
) (*watcher.Watcher, *catalog.Catalog, error) {
	w, err := watcher.New(cfg.Root, cfg.Pattern, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Close()
		return nil, nil, err
	}

	initial, err := build(ctx)
	if err != nil {
		_ = w.Close()
		return nil, nil, err
	}
	return w, initial, nil
}
