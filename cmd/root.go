// Package cmd provides the svgrender command-line interface.
//
// Configuration is read with the following precedence, highest first:
//  1. Command-line flags (--port, --scales, ...)
//  2. Environment variables (SVGRENDER_SERVER_PORT, SVGRENDER_SCALES, ...)
//  3. The config file: --config, then SVGRENDER_CONFIG_FILE, then
//     .svgrender.yml in the working directory
//  4. Built-in defaults
package cmd

import (
	"os"

	"github.com/conneroisu/svgrender/internal/config"
	"github.com/conneroisu/svgrender/internal/logging"
	"github.com/spf13/cobra"
)

// configFileEnv names a config file when --config is not given.
const configFileEnv = config.EnvPrefix + "_CONFIG_FILE"

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "svgrender",
		Short: "Render SVG sources to multi-scale PNG assets",
		Long: `svgrender turns a directory of SVG sources into PNG assets at a set of
scales, plus a manifest mapping each asset name to its URLs.

During development the serve command renders assets on request and
reloads connected browsers when a source changes. The build command
renders every asset once, with content-hashed filenames, into an
output directory.

Quick Start:
  svgrender serve                 Start the development server
  svgrender build                 Publish assets and manifest.json
  svgrender manifest              Print the manifest
  svgrender render logo.svg -s 2  Render one file`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default is .svgrender.yml, can also use "+configFileEnv+" env var)")
	config.AddSourceFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newServeCommand(),
		newBuildCommand(),
		newManifestCommand(),
		newRenderCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// loadConfig resolves the configuration for cmd from its config file, the
// environment and the flags set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	if file == "" {
		file = os.Getenv(configFileEnv)
	}

	v := config.New(file)
	if err := config.ReadFile(v); err != nil {
		return nil, err
	}
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func newLogger(cmd *cobra.Command, cfg *config.Config) logging.Logger {
	lc := cfg.LoggerConfig()
	lc.Output = cmd.ErrOrStderr()
	return logging.NewLogger(lc)
}
