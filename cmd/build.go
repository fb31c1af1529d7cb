package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/conneroisu/svgrender/internal/catalog"
	"github.com/conneroisu/svgrender/internal/config"
	"github.com/conneroisu/svgrender/internal/logging"
	"github.com/conneroisu/svgrender/internal/manifest"
	"github.com/conneroisu/svgrender/internal/metrics"
	"github.com/conneroisu/svgrender/internal/publish"
	"github.com/conneroisu/svgrender/internal/renderer"
	"github.com/spf13/cobra"
)

func newBuildCommand() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:     "build",
		Aliases: []string{"b"},
		Short:   "Render every asset into the output directory",
		Long: `Render every source at every configured scale, with optimization and
content-hashed filenames, and write the manifest next to them.

Examples:
  svgrender build
  svgrender build --out-dir public --url-prefix https://cdn.example.com/img/
  svgrender build --clean --copy-original --module-file manifest.js`,
		Args: cobra.NoArgs,
		RunE: runBuild,
	}
	config.AddBuildFlags(buildCmd.Flags())
	buildCmd.Flags().Bool("clean", false, "Remove the output directory first")
	return buildCmd
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clean, _ := cmd.Flags().GetBool("clean")
	return build(ctx, cfg, logger, clean, cmd.OutOrStdout())
}

// BuildSummary describes a completed build.
type BuildSummary struct {
	OutDir       string
	Sources      int
	Skipped      int
	Result       publish.Result
	ManifestPath string
	ModulePath   string
}

func build(ctx context.Context, cfg *config.Config, logger logging.Logger, clean bool, out io.Writer) error {
	start := time.Now()
	outDir := outputDir(cfg)

	if clean {
		if err := cleanOutput(outDir, cfg.Root); err != nil {
			return err
		}
	}

	cat, err := catalog.Build(ctx, catalog.Options{
		Root:        cfg.Root,
		Pattern:     cfg.Pattern,
		Hashing:     true,
		Concurrency: cfg.Build.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	var prom *metrics.PrometheusRecorder
	var recorder metrics.Recorder
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheusRecorder(nil)
		recorder = prom
	}

	render := renderer.Renderer{OptimizeLevel: optimizeLevel(cfg.Build.OptimizeLevel)}.Render
	publisher := publish.New(publish.Options{
		Scales:          cfg.Scales,
		IncludeOriginal: cfg.CopyOriginal,
		Concurrency:     cfg.Build.Concurrency,
	}, publish.NewDirEmitter(outDir, cfg.URLPrefix), renderer.Instrument(render, recorder), logger, recorder)

	result, err := publisher.Publish(ctx, cat)
	if err != nil {
		return err
	}

	summary := BuildSummary{
		OutDir:  outDir,
		Sources: cat.Len(),
		Skipped: len(cat.Skipped()),
		Result:  result,
	}

	m := manifest.Build(cat, cfg.Scales, cfg.URLPrefix, cfg.CopyOriginal)
	summary.ManifestPath, summary.ModulePath, err = writeManifest(ctx, outDir, cfg.Build, m)
	if err != nil {
		return err
	}

	printSummary(out, summary, time.Since(start))
	if prom != nil {
		if err := prom.WriteText(out); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

// writeManifest writes the JSON manifest and, when configured, the ES module
// into outDir.
func writeManifest(ctx context.Context, outDir string, bc config.BuildConfig, m manifest.Manifest) (string, string, error) {
	emitter := publish.NewDirEmitter(outDir, "")

	data, err := m.JSON()
	if err != nil {
		return "", "", err
	}
	if err := emitter.Emit(ctx, bc.ManifestFile, data); err != nil {
		return "", "", fmt.Errorf("writing manifest: %w", err)
	}
	manifestPath := filepath.Join(outDir, bc.ManifestFile)

	if bc.ModuleFile == "" {
		return manifestPath, "", nil
	}
	src, err := manifest.ModuleSource(m)
	if err != nil {
		return "", "", err
	}
	if err := emitter.Emit(ctx, bc.ModuleFile, []byte(src)); err != nil {
		return "", "", fmt.Errorf("writing manifest module: %w", err)
	}
	return manifestPath, filepath.Join(outDir, bc.ModuleFile), nil
}

func printSummary(out io.Writer, s BuildSummary, elapsed time.Duration) {
	fmt.Fprintf(out, "Published %d files from %d sources to %s in %s\n",
		len(s.Result.Filenames), s.Sources, s.OutDir, elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  rendered:  %d\n", s.Result.Rendered)
	if s.Result.Originals > 0 {
		fmt.Fprintf(out, "  originals: %d\n", s.Result.Originals)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(out, "  skipped:   %d (see warnings)\n", s.Skipped)
	}
	fmt.Fprintf(out, "  manifest:  %s\n", s.ManifestPath)
	if s.ModulePath != "" {
		fmt.Fprintf(out, "  module:    %s\n", s.ModulePath)
	}
}

// outputDir resolves the configured output directory against the root.
func outputDir(cfg *config.Config) string {
	if filepath.IsAbs(cfg.Build.OutDir) {
		return filepath.Clean(cfg.Build.OutDir)
	}
	return filepath.Join(cfg.Root, cfg.Build.OutDir)
}

// cleanOutput removes outDir unless doing so would delete the sources.
func cleanOutput(outDir, root string) error {
	rel, err := filepath.Rel(outDir, root)
	if err == nil && (rel == "." || !strings.HasPrefix(rel, "..")) {
		return fmt.Errorf("refusing to clean %s: it contains the project root", outDir)
	}
	if err := os.RemoveAll(outDir); err != nil {
		return fmt.Errorf("cleaning %s: %w", outDir, err)
	}
	return nil
}

// optimizeLevel maps the configured level onto renderer.Renderer, where
// zero selects the default.
func optimizeLevel(level int) int {
	if level == 0 {
		return -1
	}
	return level
}
