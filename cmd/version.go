package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/conneroisu/svgrender/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version information for svgrender.

Examples:
  svgrender version              # Show short version
  svgrender version --detailed   # Show detailed version info
  svgrender version --format json # Output as JSON`,
		Args: cobra.NoArgs,
		RunE: runVersion,
	}
	versionCmd.Flags().StringP("format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().Bool("detailed", false, "Show detailed version information")
	return versionCmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	detailed, _ := cmd.Flags().GetBool("detailed")
	info := version.Get()
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "text":
		if detailed {
			fmt.Fprintln(out, info.String())
		} else {
			fmt.Fprintf(out, "svgrender %s\n", info.Short())
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
	}
}
