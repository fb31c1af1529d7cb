package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"root":            "root",
	"pattern":         "pattern",
	"url-prefix":      "url_prefix",
	"scales":          "scales",
	"copy-original":   "copy_original",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"metrics":         "metrics.enabled",
	"out-dir":         "build.out_dir",
	"concurrency":     "build.concurrency",
	"optimize-level":  "build.optimize_level",
	"manifest-file":   "build.manifest_file",
	"module-file":     "build.module_file",
	"host":            "server.host",
	"port":            "server.port",
	"static-dir":      "server.static_dir",
	"max-connections": "server.max_connections",
	"compress":        "server.compress",
}

// AddSourceFlags defines the flags shared by every command that reads the
// asset catalog.
func AddSourceFlags(fs *pflag.FlagSet) {
	fs.String("root", ".", "Project root the pattern is relative to")
	fs.String("pattern", "assets/**/*.svg", "Glob pattern of SVG sources")
	fs.String("url-prefix", "/assets/", "URL prefix of delivered assets")
	fs.IntSlice("scales", []int{1, 2}, "Scales to render")
	fs.Bool("copy-original", false, "Also publish and serve the original SVG")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "text", "Log format (text, json)")
}

// AddBuildFlags defines the build command flags.
func AddBuildFlags(fs *pflag.FlagSet) {
	fs.String("out-dir", "dist", "Output directory")
	fs.Int("concurrency", 0, "Parallel renders (0 = number of CPUs)")
	fs.Int("optimize-level", 3, "PNG optimization level (0-3)")
	fs.String("manifest-file", "manifest.json", "Manifest file name written to the output directory")
	fs.String("module-file", "", "ES module file name written next to the manifest (empty to skip)")
	fs.Bool("metrics", false, "Print render metrics after the build")
}

// AddServerFlags defines the serve command flags.
func AddServerFlags(fs *pflag.FlagSet) {
	fs.String("host", "localhost", "Host to bind")
	fs.IntP("port", "p", 5173, "Port to listen on")
	fs.String("static-dir", "", "Directory served for requests outside the asset prefix")
	fs.Int("max-connections", 256, "Maximum concurrent connections (0 = unlimited)")
	fs.Bool("compress", true, "Gzip compressible responses")
	fs.Bool("metrics", false, "Expose Prometheus metrics at /metrics")
}

// BindFlags binds every known flag present in fs to its config key. Only
// flags set on the command line override file and environment values.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("binding flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}
