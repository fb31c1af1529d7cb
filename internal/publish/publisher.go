// Package publish renders every catalog entry at every configured scale and
// emits the results as immutable, content-addressed artifacts.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/svgrender/internal/assetname"
	"github.com/conneroisu/svgrender/internal/catalog"
	"github.com/conneroisu/svgrender/internal/errors"
	"github.com/conneroisu/svgrender/internal/fingerprint"
	"github.com/conneroisu/svgrender/internal/logging"
	"github.com/conneroisu/svgrender/internal/manifest"
	"github.com/conneroisu/svgrender/internal/metrics"
	"github.com/conneroisu/svgrender/internal/renderer"
	"golang.org/x/sync/errgroup"
)

// Emitter writes one output asset. Implementations must be safe for
// concurrent use.
type Emitter interface {
	Emit(ctx context.Context, filename string, data []byte) error
}

// Options configures a Publisher.
type Options struct {
	Scales []int
	// IncludeOriginal also emits each source verbatim as {name}{-frag}.svg.
	IncludeOriginal bool
	// Concurrency bounds parallel renders. Zero means runtime.NumCPU().
	Concurrency int
}

// Result summarizes a publish run.
type Result struct {
	// Filenames lists every emitted artifact, sorted.
	Filenames []string
	Rendered  int
	Originals int
	Duration  time.Duration
}

// Publisher renders and emits artifacts for a hashed catalog.
type Publisher struct {
	opts     Options
	emitter  Emitter
	render   renderer.Func
	logger   logging.Logger
	recorder metrics.Recorder
}

// New creates a publisher. Duplicate scales are collapsed.
func New(opts Options, emitter Emitter, render renderer.Func, logger logging.Logger, recorder metrics.Recorder) *Publisher {
	if logger == nil {
		logger = logging.Nop()
	}
	if render == nil {
		render = renderer.Render
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	opts.Scales = uniqueScales(opts.Scales)

	return &Publisher{
		opts:     opts,
		emitter:  emitter,
		render:   render,
		logger:   logger.WithComponent("publish"),
		recorder: metrics.OrNoop(recorder),
	}
}

// task is one unit of work: a render at scale, or the original when
// scale is zero.
type task struct {
	entry catalog.Entry
	scale int
}

// Publish emits every (entry, scale) artifact of cat. The first failure
// cancels outstanding work and is returned; the build must not ship with a
// missing asset.
func (p *Publisher) Publish(ctx context.Context, cat *catalog.Catalog) (Result, error) {
	if cat.Len() > 0 && !cat.Hashed() {
		return Result{}, fmt.Errorf("publish requires a hashed catalog")
	}

	perf := logging.StartOperation(p.logger, "publish")
	start := time.Now()

	tasks := make([]task, 0, cat.Len()*(len(p.opts.Scales)+1))
	for _, e := range cat.Entries() {
		if p.opts.IncludeOriginal {
			tasks = append(tasks, task{entry: e})
		}
		for _, scale := range p.opts.Scales {
			tasks = append(tasks, task{entry: e, scale: scale})
		}
	}

	var (
		mu        sync.Mutex
		filenames = make([]string, 0, len(tasks))
		rendered  int
		originals int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			name, err := p.run(gctx, t)
			if err != nil {
				return err
			}
			mu.Lock()
			filenames = append(filenames, name)
			if t.scale == 0 {
				originals++
			} else {
				rendered++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		perf.EndWithError(ctx, err, "entries", cat.Len())
		return Result{}, err
	}

	sort.Strings(filenames)
	res := Result{
		Filenames: filenames,
		Rendered:  rendered,
		Originals: originals,
		Duration:  time.Since(start),
	}
	p.recorder.ObservePublish(len(filenames), res.Duration)
	perf.End(ctx, "entries", cat.Len(), "artifacts", len(filenames))
	return res, nil
}

func (p *Publisher) run(ctx context.Context, t task) (string, error) {
	src, err := readSource(t.entry)
	if err != nil {
		return "", err
	}

	if t.scale == 0 {
		filename := manifest.Filename(t.entry, 1, assetname.ExtSVG)
		return filename, p.emit(ctx, filename, src)
	}

	out, err := p.render(src, t.scale, true)
	if err != nil {
		return "", annotate(err, t.entry, t.scale)
	}

	filename := manifest.Filename(t.entry, t.scale, assetname.ExtPNG)
	p.logger.Debug(ctx, "Rendered asset", "name", t.entry.Name, "scale", t.scale, "file", filename, "bytes", len(out))
	return filename, p.emit(ctx, filename, out)
}

func (p *Publisher) emit(ctx context.Context, filename string, data []byte) error {
	if err := p.emitter.Emit(ctx, filename, data); err != nil {
		return errors.NewPublishError(filename, err)
	}
	return nil
}

// readSource reads the entry's bytes and checks them against the digest the
// catalog recorded, so the filename always matches the content.
func readSource(e catalog.Entry) ([]byte, error) {
	src, err := os.ReadFile(filepath.Clean(e.Path))
	if err != nil {
		return nil, errors.NewReadError(e.Path, err).WithAsset(e.Name, 0)
	}
	if want, ok := e.Digest(); ok {
		if got := fingerprint.Sum(src); got != want {
			return nil, errors.NewReadError(e.Path,
				fmt.Errorf("source changed during build: digest %s, cataloged %s", got.Fragment(), want.Fragment())).
				WithAsset(e.Name, 0)
		}
	}
	return src, nil
}

// annotate attaches the asset identity to a render failure.
func annotate(err error, e catalog.Entry, scale int) error {
	var rerr *errors.Error
	if errors.As(err, &rerr) {
		annotated := *rerr
		return annotated.WithAsset(e.Name, scale).WithPath(e.Path)
	}
	return errors.NewRenderError(errors.CodeEncodeFailed, "rendering", err).
		WithAsset(e.Name, scale).
		WithPath(e.Path)
}

func uniqueScales(scales []int) []int {
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

// sameFile reports whether path already holds exactly data.
func sameFile(path string, data []byte) bool {
	existing, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Equal(existing, data)
}
