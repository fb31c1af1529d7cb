package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conneroisu/svgrender/internal/catalog"
	"github.com/conneroisu/svgrender/internal/config"
	"github.com/conneroisu/svgrender/internal/errors"
	"github.com/conneroisu/svgrender/internal/logging"
	"github.com/conneroisu/svgrender/internal/manifest"
	"github.com/conneroisu/svgrender/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const logoSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 8"><rect width="10" height="8" fill="#3366cc"/></svg>`

// project creates a root with assets/logo.svg and assets/icons/arrow.svg.
func project(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "assets", "icons"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "assets", "logo.svg"), []byte(logoSVG), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "assets", "icons", "arrow.svg"), []byte(logoSVG), 0o644))
	return root
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestBuildCommand(t *testing.T) {
	root := project(t)

	stdout, _, err := run(t, "build", "--root", root, "--scales", "1,2", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Published 4 files from 2 sources")

	data, err := os.ReadFile(filepath.Join(root, "dist", "manifest.json"))
	require.NoError(t, err)

	var m manifest.Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	require.Contains(t, m["1"], "logo")
	require.Contains(t, m["1"], "arrow")

	for _, name := range []string{"logo", "arrow"} {
		one, two := m["1"][name], m["2"][name]
		assert.True(t, strings.HasPrefix(one, "/assets/"+name+"-"), one)
		assert.True(t, strings.HasSuffix(two, "@2x.png"), two)

		f, err := os.Open(filepath.Join(root, "dist", filepath.FromSlash(two)))
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(f)
		_ = f.Close()
		require.NoError(t, err)
		assert.Equal(t, 20, cfg.Width)
	}

	// Same content, same digest: both entries share a fragment.
	assert.Equal(t,
		strings.TrimPrefix(m["1"]["logo"], "/assets/logo"),
		strings.TrimPrefix(m["1"]["arrow"], "/assets/arrow"))
}

func TestBuildCommandModuleAndOriginals(t *testing.T) {
	root := project(t)

	stdout, _, err := run(t, "build", "--root", root, "--scales", "1",
		"--copy-original", "--module-file", "manifest.js", "--out-dir", "public", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "originals: 2")

	module, err := os.ReadFile(filepath.Join(root, "public", "manifest.js"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(module), "export default {"))

	matches, err := filepath.Glob(filepath.Join(root, "public", "assets", "logo-*.svg"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestBuildCommandMetrics(t *testing.T) {
	root := project(t)

	stdout, _, err := run(t, "build", "--root", root, "--scales", "1,2", "--metrics", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "svgrender_published_artifacts_total 4")
	assert.Contains(t, stdout, `svgrender_render_results_total{result="success"} 4`)
}

func TestBuildCommandClean(t *testing.T) {
	root := project(t)
	stale := filepath.Join(root, "dist", "assets", "stale.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	_, _, err := run(t, "build", "--root", root, "--clean", "--log-level", "error")
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
}

func TestCleanOutputRefusesRoot(t *testing.T) {
	root := t.TempDir()
	assert.Error(t, cleanOutput(root, root))
	assert.Error(t, cleanOutput(filepath.Dir(root), root))
	assert.NoError(t, cleanOutput(filepath.Join(root, "dist"), root))
}

func TestBuildCommandRejectsBadConfig(t *testing.T) {
	root := project(t)

	_, _, err := run(t, "build", "--root", root, "--scales", "0", "--log-level", "error")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	_, _, err = run(t, "build", "--root", filepath.Join(root, "missing"), "--log-level", "error")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindDiscovery))
}

func TestManifestCommand(t *testing.T) {
	root := project(t)

	stdout, _, err := run(t, "manifest", "--root", root, "--log-level", "error")
	require.NoError(t, err)
	var m manifest.Manifest
	require.NoError(t, json.Unmarshal([]byte(stdout), &m))
	assert.Equal(t, "/assets/logo@2x.png", m["2"]["logo"])

	stdout, _, err = run(t, "manifest", "--root", root, "--hashed", "--format", "yaml", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "logo: /assets/logo-")

	stdout, _, err = run(t, "manifest", "--root", root, "--format", "js", "--log-level", "error")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "export default {"))

	out := filepath.Join(t.TempDir(), "manifest_gen.go")
	_, _, err = run(t, "manifest", "--root", root, "--format", "go", "--package", "icons", "-o", out, "--log-level", "error")
	require.NoError(t, err)
	src, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(src), "package icons")

	_, _, err = run(t, "manifest", "--root", root, "--format", "xml")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestConfigFileFromEnv(t *testing.T) {
	root := project(t)
	file := filepath.Join(t.TempDir(), "svgrender.yml")
	require.NoError(t, os.WriteFile(file, []byte("scales: [3]\nurl_prefix: /img/\n"), 0o644))
	t.Setenv(configFileEnv, file)

	stdout, _, err := run(t, "manifest", "--root", root, "--log-level", "error")
	require.NoError(t, err)

	var m manifest.Manifest
	require.NoError(t, json.Unmarshal([]byte(stdout), &m))
	assert.Equal(t, map[string]string{"logo": "/img/logo@3x.png", "arrow": "/img/arrow@3x.png"}, m["3"])
	assert.NotContains(t, m, "1")

	// Flags win over the file.
	stdout, _, err = run(t, "manifest", "--root", root, "--scales", "1", "--log-level", "error")
	require.NoError(t, err)
	m = nil
	require.NoError(t, json.Unmarshal([]byte(stdout), &m))
	assert.Equal(t, "/img/logo.png", m["1"]["logo"])
	assert.NotContains(t, m, "3")
}

func TestMissingExplicitConfigFile(t *testing.T) {
	_, _, err := run(t, "manifest", "--config", filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "logo.svg")
	require.NoError(t, os.WriteFile(input, []byte(logoSVG), 0o644))

	_, stderr, err := run(t, "render", input, "-s", "2", "--optimize")
	require.NoError(t, err)
	assert.Contains(t, stderr, "logo@2x.png")

	f, err := os.Open(filepath.Join(dir, "logo@2x.png"))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 16, cfg.Height)

	stdout, _, err := run(t, "render", input, "-o", "-")
	require.NoError(t, err)
	cfg, err = png.DecodeConfig(strings.NewReader(stdout))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Width)
}

func TestRenderCommandErrors(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "bad.svg")
	require.NoError(t, os.WriteFile(input, []byte("<html/>"), 0o644))

	_, _, err := run(t, "render", input)
	assert.True(t, errors.IsKind(err, errors.KindRender))

	_, _, err = run(t, "render", filepath.Join(dir, "missing.svg"))
	assert.Error(t, err)

	_, _, err = run(t, "render", input, "--optimize-level", "9")
	assert.ErrorContains(t, err, "not in range")

	_, _, err = run(t, "render")
	assert.Error(t, err)
}

func TestDefaultRenderOutput(t *testing.T) {
	assert.Equal(t, filepath.Join("icons", "arrow.png"), defaultRenderOutput(filepath.Join("icons", "arrow.svg"), 1))
	assert.Equal(t, "arrow@3x.png", defaultRenderOutput("arrow.svg", 3))
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "svgrender "))

	stdout, _, err = run(t, "version", "--format", "json")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Contains(t, info, "version")

	_, _, err = run(t, "version", "--format", "toml")
	assert.Error(t, err)
}

func TestServeFailsWithoutRoot(t *testing.T) {
	cfg := &config.Config{
		Root:    filepath.Join(t.TempDir(), "missing"),
		Pattern: "**/*.svg",
		Scales:  []int{1},
	}
	err := serve(context.Background(), cfg, logging.Nop())
	assert.True(t, errors.IsKind(err, errors.KindDiscovery))
}

func TestWatchThenBuildSeesLateFiles(t *testing.T) {
	root := project(t)
	cfg := &config.Config{Root: root, Pattern: "assets/**/*.svg", Scales: []int{1}}
	late := filepath.Join(root, "assets", "late.svg")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The file appears after the scan, before serving starts.
	build := func(ctx context.Context) (*catalog.Catalog, error) {
		cat, err := catalog.Build(ctx, catalog.Options{Root: cfg.Root, Pattern: cfg.Pattern})
		if err != nil {
			return nil, err
		}
		return cat, os.WriteFile(late, []byte(logoSVG), 0o644)
	}

	w, initial, err := watchThenBuild(ctx, cfg, logging.Nop(), build)
	require.NoError(t, err)
	defer w.Close()

	_, ok := initial.Lookup("late")
	assert.False(t, ok)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if filepath.Base(ev.Path) == "late.svg" {
				assert.Equal(t, watcher.OpAdd, ev.Op)
				return
			}
		case <-deadline:
			t.Fatal("no event for a file created after the initial build")
		}
	}
}

func TestWatchThenBuildMissingRoot(t *testing.T) {
	cfg := &config.Config{Root: filepath.Join(t.TempDir(), "missing"), Pattern: "**/*.svg"}
	_, _, err := watchThenBuild(context.Background(), cfg, logging.Nop(), func(context.Context) (*catalog.Catalog, error) {
		t.Fatal("build must not run without a root")
		return nil, nil
	})
	assert.True(t, errors.IsKind(err, errors.KindDiscovery))
}

func TestOptimizeLevel(t *testing.T) {
	assert.Equal(t, -1, optimizeLevel(0))
	assert.Equal(t, 2, optimizeLevel(2))
}
