package catalog

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/conneroisu/svgrender/internal/assetname"
	"github.com/conneroisu/svgrender/internal/errors"
	"github.com/conneroisu/svgrender/internal/fingerprint"
	"github.com/conneroisu/svgrender/internal/logging"
)

// Options configures a catalog build.
type Options struct {
	// Root is the directory the pattern is relative to.
	Root string
	// Pattern is a doublestar glob: *, **, {a,b}, [...].
	Pattern string
	// Hashing reads and digests every file. Required for publishing.
	Hashing bool
	// Concurrency bounds parallel hashing. Zero means NumCPU, capped at 8.
	Concurrency int
	Logger      logging.Logger
}

type match struct {
	name   string
	path   string
	digest fingerprint.Digest
	err    error
}

// Build expands the pattern and returns a new catalog.
//
// Pattern or root problems are discovery errors and abort the build. A file
// that cannot be read in hashing mode, or whose name would collide with a
// generated scale variant, is skipped with a warning.
func Build(ctx context.Context, opts Options) (*Catalog, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("catalog")

	root, pattern, err := ResolvePattern(opts.Root, opts.Pattern)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.NewDiscoveryError(errors.CodeRootMissing, "stat root "+root, err)
	}
	if !info.IsDir() {
		return nil, errors.NewDiscoveryError(errors.CodeRootMissing, root+" is not a directory", nil)
	}

	paths, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.NewDiscoveryError(errors.CodeBadPattern, "expanding "+pattern, err)
	}

	matches := make([]match, len(paths))
	for i, p := range paths {
		matches[i] = match{
			name: stem(p),
			path: filepath.Join(root, filepath.FromSlash(p)),
		}
	}

	if opts.Hashing {
		if err := hashAll(ctx, matches, opts.Concurrency); err != nil {
			return nil, err
		}
	}

	skipped := errors.NewCollector()
	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		switch {
		case m.err != nil:
			skipped.Add(m.err)
			logger.Warn(ctx, m.err, "Skipping unreadable source", "path", m.path)
			continue
		case m.name == "" || assetname.HasScaleSuffix(m.name):
			err := &errors.Error{
				Kind:    errors.KindRead,
				Code:    errors.CodeAmbiguousName,
				Message: "name is empty or ends in a scale suffix",
				Path:    m.path,
				Name:    m.name,
			}
			skipped.Add(err)
			logger.Warn(ctx, err, "Skipping source with ambiguous name", "path", m.path)
			continue
		}

		if opts.Hashing {
			entries = append(entries, NewHashedEntry(m.name, m.path, m.digest))
		} else {
			entries = append(entries, NewEntry(m.name, m.path))
		}
	}

	cat := newCatalog(entries, skipped.Errors())
	logger.Debug(ctx, "Catalog built",
		"root", root,
		"pattern", pattern,
		"matches", len(paths),
		"entries", cat.Len(),
		"skipped", skipped.Len(),
	)
	return cat, nil
}

// ResolvePattern makes root absolute and splits an absolute pattern into
// its static base and the glob part. The returned pattern is slash
// separated and relative to the returned root.
func ResolvePattern(root, pattern string) (string, string, error) {
	pattern = filepath.ToSlash(strings.TrimSpace(pattern))
	if pattern == "" {
		return "", "", errors.NewDiscoveryError(errors.CodeBadPattern, "empty pattern", nil)
	}

	if path.IsAbs(pattern) || filepath.IsAbs(filepath.FromSlash(pattern)) {
		base, rest := doublestar.SplitPattern(pattern)
		root, pattern = filepath.FromSlash(base), rest
	} else {
		pattern = strings.TrimPrefix(path.Clean(pattern), "./")
		if pattern == ".." || strings.HasPrefix(pattern, "../") {
			base, rest := doublestar.SplitPattern(pattern)
			root, pattern = filepath.Join(root, filepath.FromSlash(base)), rest
		}
	}

	if !doublestar.ValidatePattern(pattern) {
		return "", "", errors.NewDiscoveryError(errors.CodeBadPattern,
			fmt.Sprintf("invalid pattern %q", pattern), doublestar.ErrBadPattern)
	}

	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", "", errors.NewDiscoveryError(errors.CodeRootMissing, "resolving root "+root, err)
	}
	return abs, pattern, nil
}

// stem returns the base name without its extension.
func stem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// hashAll digests every match with bounded parallelism. Read failures are
// stored on the match; only context cancellation aborts.
func hashAll(ctx context.Context, matches []match, concurrency int) error {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
		if concurrency > 8 {
			concurrency = 8
		}
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i := range matches {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return err
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(m *match) {
			defer wg.Done()
			defer func() { <-sem }()
			d, err := fingerprint.File(m.path)
			if err != nil {
				m.err = errors.NewReadError(m.path, err)
				return
			}
			m.digest = d
		}(&matches[i])
	}
	wg.Wait()
	return ctx.Err()
}
