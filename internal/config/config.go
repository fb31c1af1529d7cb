// Package config loads svgrender settings using Viper from a YAML file,
// SVGRENDER_ environment variables and command-line flags.
//
// Load returns an explicit *Config that the commands hand to each
// component's constructor; nothing outside cmd/ reads Viper directly.
package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/conneroisu/svgrender/internal/assetname"
	"github.com/conneroisu/svgrender/internal/errors"
	"github.com/conneroisu/svgrender/internal/logging"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. SVGRENDER_SERVER_PORT.
const EnvPrefix = "SVGRENDER"

// DefaultConfigName is the config file looked up in the working directory.
const DefaultConfigName = ".svgrender"

type Config struct {
	Root         string `mapstructure:"root"`
	Pattern      string `mapstructure:"pattern"`
	URLPrefix    string `mapstructure:"url_prefix"`
	Scales       []int  `mapstructure:"scales"`
	CopyOriginal bool   `mapstructure:"copy_original"`

	Build   BuildConfig   `mapstructure:"build"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

type BuildConfig struct {
	OutDir        string `mapstructure:"out_dir"`
	Concurrency   int    `mapstructure:"concurrency"`
	OptimizeLevel int    `mapstructure:"optimize_level"`
	ManifestFile  string `mapstructure:"manifest_file"`
	ModuleFile    string `mapstructure:"module_file"`
}

type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	StaticDir      string `mapstructure:"static_dir"`
	MaxConnections int    `mapstructure:"max_connections"`
	Compress       bool   `mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("pattern", "assets/**/*.svg")
	v.SetDefault("url_prefix", "/assets/")
	v.SetDefault("scales", []int{1, 2})
	v.SetDefault("copy_original", false)

	v.SetDefault("build.out_dir", "dist")
	v.SetDefault("build.concurrency", 0)
	v.SetDefault("build.optimize_level", 3)
	v.SetDefault("build.manifest_file", "manifest.json")
	v.SetDefault("build.module_file", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 5173)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.max_connections", 256)
	v.SetDefault("server.compress", true)

	v.SetDefault("metrics.enabled", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a Viper instance with defaults, the config file search path
// and environment overrides configured. file may be empty.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads the configured file. A missing default file is not an
// error; a missing explicit file is.
func ReadFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && v.ConfigFileUsed() == "" {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Load decodes v into a Config, normalizes it and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.Root == "" {
		c.Root = "."
	}
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return errors.NewConfigError(fmt.Sprintf("resolving root %q: %v", c.Root, err))
	}
	c.Root = root

	c.Pattern = strings.TrimSpace(c.Pattern)
	if c.URLPrefix == "" {
		c.URLPrefix = "/"
	}
	if !strings.HasSuffix(c.URLPrefix, "/") {
		c.URLPrefix += "/"
	}

	c.Scales = NormalizeScales(c.Scales)
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	return nil
}

// NormalizeScales sorts scales and drops duplicates.
func NormalizeScales(scales []int) []int {
	seen := make(map[int]bool, len(scales))
	out := make([]int, 0, len(scales))
	for _, s := range scales {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

func validateConfig(c *Config) error {
	if c.Pattern == "" {
		return errors.NewConfigError("pattern must not be empty")
	}
	if !doublestar.ValidatePattern(filepath.ToSlash(c.Pattern)) {
		return errors.NewConfigError(fmt.Sprintf("pattern %q is not a valid glob", c.Pattern))
	}

	if len(c.Scales) == 0 {
		return errors.NewConfigError("scales must list at least one scale")
	}
	for _, s := range c.Scales {
		if s <= 0 {
			return errors.NewConfigError(fmt.Sprintf("scale %d is not positive", s))
		}
		if s > assetname.MaxScale {
			return errors.NewConfigError(fmt.Sprintf("scale %d exceeds %d", s, assetname.MaxScale))
		}
	}

	if err := validateBuildConfig(&c.Build); err != nil {
		return err
	}
	if err := validateServerConfig(&c.Server); err != nil {
		return err
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errors.NewConfigError(err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.NewConfigError(fmt.Sprintf("log format %q must be text or json", c.Log.Format))
	}
	return nil
}

func validateBuildConfig(c *BuildConfig) error {
	if c.OutDir == "" {
		return errors.NewConfigError("build.out_dir must not be empty")
	}
	if c.Concurrency < 0 {
		return errors.NewConfigError("build.concurrency must not be negative")
	}
	if c.OptimizeLevel < 0 || c.OptimizeLevel > 3 {
		return errors.NewConfigError(fmt.Sprintf("build.optimize_level %d is not in range 0-3", c.OptimizeLevel))
	}
	for key, name := range map[string]string{"build.manifest_file": c.ManifestFile, "build.module_file": c.ModuleFile} {
		if name != "" && (filepath.Base(name) != name || name == "..") {
			return errors.NewConfigError(fmt.Sprintf("%s %q must be a plain file name", key, name))
		}
	}
	return nil
}

func validateServerConfig(c *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing.
	if c.Port < 0 || c.Port > 65535 {
		return errors.NewConfigError(fmt.Sprintf("server.port %d is not in valid range 0-65535", c.Port))
	}
	if c.MaxConnections < 0 {
		return errors.NewConfigError("server.max_connections must not be negative")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", "/"}
	for _, char := range dangerousChars {
		if strings.Contains(c.Host, char) {
			return errors.NewConfigError(fmt.Sprintf("server.host contains dangerous character: %s", char))
		}
	}
	return nil
}

// Addr returns host:port for the dev server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggerConfig converts the log settings for logging.NewLogger.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	lc := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		lc.Level = level
	}
	lc.Format = c.Log.Format
	return lc
}
