package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/conneroisu/svgrender/internal/errors"
	"github.com/conneroisu/svgrender/internal/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, cfg.Root)
	assert.Equal(t, "assets/**/*.svg", cfg.Pattern)
	assert.Equal(t, "/assets/", cfg.URLPrefix)
	assert.Equal(t, []int{1, 2}, cfg.Scales)
	assert.False(t, cfg.CopyOriginal)
	assert.Equal(t, "dist", cfg.Build.OutDir)
	assert.Equal(t, 3, cfg.Build.OptimizeLevel)
	assert.Equal(t, "manifest.json", cfg.Build.ManifestFile)
	assert.Equal(t, 5173, cfg.Server.Port)
	assert.Equal(t, 256, cfg.Server.MaxConnections)
	assert.True(t, cfg.Server.Compress)
	assert.Equal(t, "localhost:5173", cfg.Server.Addr())
}

func TestLoadNormalizes(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("url_prefix", "/static")
	v.Set("scales", []int{3, 1, 3, 2})
	v.Set("log.level", "DEBUG")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/static/", cfg.URLPrefix)
	assert.Equal(t, []int{1, 2, 3}, cfg.Scales)
	assert.Equal(t, logging.LevelDebug, cfg.LoggerConfig().Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "svgrender.yml")
	require.NoError(t, os.WriteFile(file, []byte(`
pattern: "icons/*.svg"
url_prefix: "https://cdn.example.com/img/"
scales: [1, 2, 3]
copy_original: true
build:
  out_dir: public
  module_file: manifest.js
server:
  port: 8080
`), 0o644))

	v := New(file)
	require.NoError(t, ReadFile(v))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "icons/*.svg", cfg.Pattern)
	assert.Equal(t, "https://cdn.example.com/img/", cfg.URLPrefix)
	assert.Equal(t, []int{1, 2, 3}, cfg.Scales)
	assert.True(t, cfg.CopyOriginal)
	assert.Equal(t, "public", cfg.Build.OutDir)
	assert.Equal(t, "manifest.js", cfg.Build.ModuleFile)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestReadFileMissing(t *testing.T) {
	v := New(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, ReadFile(v))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	assert.NoError(t, ReadFile(New("")))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SVGRENDER_SERVER_PORT", "9000")
	t.Setenv("SVGRENDER_SCALES", "1,4")
	t.Setenv("SVGRENDER_COPY_ORIGINAL", "true")

	cfg, err := Load(New(""))
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []int{1, 4}, cfg.Scales)
	assert.True(t, cfg.CopyOriginal)
}

func TestBindFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddSourceFlags(fs)
	AddServerFlags(fs)
	require.NoError(t, fs.Parse([]string{"--scales", "2,1", "--port", "7000", "--copy-original"}))

	v := New("")
	require.NoError(t, BindFlags(v, fs))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, cfg.Scales)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.True(t, cfg.CopyOriginal)
	assert.Equal(t, "assets/**/*.svg", cfg.Pattern)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  interface{}
	}{
		{"empty scales", "scales", []int{}},
		{"zero scale", "scales", []int{0, 1}},
		{"negative scale", "scales", []int{-2}},
		{"scale too large for request paths", "scales", []int{1, 10000}},
		{"empty pattern", "pattern", "  "},
		{"bad pattern", "pattern", "{a,b"},
		{"port out of range", "server.port", 70000},
		{"dangerous host", "server.host", "localhost;rm"},
		{"optimize level", "build.optimize_level", 4},
		{"negative concurrency", "build.concurrency", -1},
		{"manifest path", "build.manifest_file", "../manifest.json"},
		{"log level", "log.level", "loud"},
		{"log format", "log.format", "xml"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.val)

			cfg, err := Load(v)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, errors.IsKind(err, errors.KindConfig), err.Error())
		})
	}
}

func TestLargestScaleAccepted(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("scales", []int{9999})

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, []int{9999}, cfg.Scales)
}

func TestNormalizeScales(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, NormalizeScales([]int{3, 2, 2, 1}))
	assert.Empty(t, NormalizeScales(nil))
}
