package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/svgrender/internal/assetname"
	"github.com/conneroisu/svgrender/internal/renderer"
	"github.com/spf13/cobra"
)

func newRenderCommand() *cobra.Command {
	renderCmd := &cobra.Command{
		Use:     "render <file.svg>",
		Aliases: []string{"r"},
		Short:   "Render a single SVG file to PNG",
		Long: `Render one SVG file at the given scale. The output defaults to the
file's name with the scale suffix, next to the source.

Examples:
  svgrender render logo.svg               # writes logo.png
  svgrender render logo.svg -s 2          # writes logo@2x.png
  svgrender render logo.svg -o - > a.png  # writes to stdout`,
		Args: cobra.ExactArgs(1),
		RunE: runRender,
	}
	renderCmd.Flags().IntP("scale", "s", 1, "Scale factor")
	renderCmd.Flags().Bool("optimize", false, "Optimize the PNG")
	renderCmd.Flags().Int("optimize-level", renderer.DefaultOptimizeLevel, "PNG optimization level (0-3)")
	renderCmd.Flags().StringP("output", "o", "", "Output file, - for stdout")
	return renderCmd
}

func runRender(cmd *cobra.Command, args []string) error {
	input := args[0]
	scale, _ := cmd.Flags().GetInt("scale")
	optimize, _ := cmd.Flags().GetBool("optimize")
	level, _ := cmd.Flags().GetInt("optimize-level")
	output, _ := cmd.Flags().GetString("output")

	if level < 0 || level > 3 {
		return fmt.Errorf("optimize level %d is not in range 0-3", level)
	}

	src, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading %s: %w", input, err)
	}

	data, err := renderer.Renderer{OptimizeLevel: optimizeLevel(level)}.Render(src, scale, optimize)
	if err != nil {
		return err
	}

	if output == "-" {
		return writeAll(cmd.OutOrStdout(), data)
	}
	if output == "" {
		output = defaultRenderOutput(input, scale)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d bytes)\n", output, len(data))
	return nil
}

// defaultRenderOutput names the PNG for input at scale using the published
// filename rule without a digest fragment.
func defaultRenderOutput(input string, scale int) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(input), assetname.Compose(name, "", scale, assetname.ExtPNG))
}
