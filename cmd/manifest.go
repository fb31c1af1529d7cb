package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/conneroisu/svgrender/internal/catalog"
	"github.com/conneroisu/svgrender/internal/config"
	"github.com/conneroisu/svgrender/internal/manifest"
	"github.com/spf13/cobra"
)

// Manifest output formats.
const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatJS   = "js"
	formatGo   = "go"
)

func newManifestCommand() *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:     "manifest",
		Aliases: []string{"m"},
		Short:   "Print the asset manifest",
		Long: `Print the manifest for the current sources without rendering anything.

Without --hashed the URLs match the dev server; with it they match a build.

Examples:
  svgrender manifest
  svgrender manifest --hashed --format yaml
  svgrender manifest --format go --package assets -o assets/manifest_gen.go`,
		Args: cobra.NoArgs,
		RunE: runManifest,
	}
	manifestCmd.Flags().StringP("format", "f", formatJSON, "Output format (json, yaml, js, go)")
	manifestCmd.Flags().Bool("hashed", false, "Use content-hashed filenames")
	manifestCmd.Flags().String("package", "assets", "Package name for --format go")
	manifestCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	return manifestCmd
}

func runManifest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	format, _ := cmd.Flags().GetString("format")
	hashed, _ := cmd.Flags().GetBool("hashed")
	pkg, _ := cmd.Flags().GetString("package")
	output, _ := cmd.Flags().GetString("output")

	cat, err := catalog.Build(cmd.Context(), catalog.Options{
		Root:        cfg.Root,
		Pattern:     cfg.Pattern,
		Hashing:     hashed,
		Concurrency: cfg.Build.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	data, err := encodeManifest(cfg, cat, format, pkg)
	if err != nil {
		return err
	}

	if output == "" {
		return writeAll(cmd.OutOrStdout(), data)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	return nil
}

func encodeManifest(cfg *config.Config, cat *catalog.Catalog, format, pkg string) ([]byte, error) {
	m := manifest.Build(cat, cfg.Scales, cfg.URLPrefix, cfg.CopyOriginal)

	switch format {
	case formatJSON:
		return m.JSON()
	case formatYAML:
		return m.YAML()
	case formatJS:
		src, err := manifest.ModuleSource(m)
		return []byte(src), err
	case formatGo:
		return manifest.GoSource(m, pkg)
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, js, go)", format)
	}
}

func writeAll(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}
