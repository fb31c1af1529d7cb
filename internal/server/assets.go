package server

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/conneroisu/svgrender/internal/assetname"
	"github.com/conneroisu/svgrender/internal/catalog"
	"github.com/conneroisu/svgrender/internal/errors"
	"github.com/conneroisu/svgrender/internal/fingerprint"
	"github.com/conneroisu/svgrender/internal/logging"
	"github.com/conneroisu/svgrender/internal/metrics"
	"github.com/conneroisu/svgrender/internal/renderer"
	"github.com/google/uuid"
)

// CatalogSource yields the current catalog snapshot.
type CatalogSource interface {
	Load() *catalog.Catalog
}

// AssetOptions configures the asset handler.
type AssetOptions struct {
	URLPrefix string
	Scales    []int
	// ServeOriginal allows {name}.svg requests.
	ServeOriginal bool
}

// AssetHandler renders catalog entries on demand. It never answers with a
// server error: anything it cannot serve goes to the next handler.
type AssetHandler struct {
	prefix        string
	scales        map[int]bool
	serveOriginal bool
	source        CatalogSource
	render        renderer.Func
	logger        logging.Logger
	recorder      metrics.Recorder
}

// NewAssetHandler creates an asset handler. Only the path part of the URL
// prefix is matched, so a CDN prefix still works against the dev server.
func NewAssetHandler(opts AssetOptions, source CatalogSource, render renderer.Func, logger logging.Logger, recorder metrics.Recorder) *AssetHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	if render == nil {
		render = renderer.Render
	}

	prefix := "/"
	if p := assetname.PrefixPath(opts.URLPrefix); p != "" {
		prefix = "/" + p + "/"
	}

	scales := make(map[int]bool, len(opts.Scales))
	for _, s := range opts.Scales {
		scales[s] = true
	}

	return &AssetHandler{
		prefix:        prefix,
		scales:        scales,
		serveOriginal: opts.ServeOriginal,
		source:        source,
		render:        render,
		logger:        logger.WithComponent("assets"),
		recorder:      metrics.OrNoop(recorder),
	}
}

// Prefix returns the URL path prefix the handler answers under.
func (h *AssetHandler) Prefix() string {
	return h.prefix
}

// Wrap returns a handler that serves assets and passes everything else to
// next.
func (h *AssetHandler) Wrap(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.serve(w, r) {
			h.recorder.IncServe(metrics.ServeDelegated)
			next.ServeHTTP(w, r)
		}
	})
}

// serve handles r and reports whether a response was written.
func (h *AssetHandler) serve(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	rest, ok := strings.CutPrefix(r.URL.Path, h.prefix)
	if !ok || rest == "" {
		return false
	}

	ref, err := assetname.Parse(path.Base(rest))
	if err != nil {
		return false
	}
	if !h.accepts(ref) {
		return false
	}

	// The snapshot is held for the whole request; a concurrent rebuild
	// does not affect it.
	entry, ok := h.source.Load().Lookup(ref.Name)
	if !ok {
		return false
	}

	ctx := r.Context()
	logger := h.logger.With("request_id", uuid.NewString(), "name", ref.Name, "scale", ref.Scale, "ext", ref.Ext)

	src, err := readSource(entry)
	if err != nil {
		logger.Warn(ctx, err, "Cannot read source, delegating", "path", entry.Path)
		h.recorder.IncServe(metrics.ServeFailed)
		return false
	}

	digest := fingerprint.Sum(src).String()
	if ETagMatches(r.Header.Get("If-None-Match"), digest) {
		setValidators(w.Header(), digest)
		w.WriteHeader(http.StatusNotModified)
		h.recorder.IncServe(metrics.ServeNotModified)
		logger.Debug(ctx, "Not modified")
		return true
	}

	if ref.Ext == assetname.ExtSVG {
		writeBody(w, r, "image/svg+xml", digest, src)
		h.recorder.IncServe(metrics.ServeOriginal)
		return true
	}

	out, err := h.renderCtx(ctx, src, ref.Scale)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug(ctx, "Client went away during render")
			return true
		}
		logger.Warn(ctx, err, "Render failed, delegating", "path", entry.Path)
		h.recorder.IncServe(metrics.ServeFailed)
		return false
	}

	writeBody(w, r, "image/png", digest, out)
	h.recorder.IncServe(metrics.ServeRendered)
	logger.Debug(ctx, "Rendered", "bytes", len(out))
	return true
}

// accepts reports whether ref names a variant this handler is configured
// to deliver.
func (h *AssetHandler) accepts(ref assetname.Ref) bool {
	if ref.Ext == assetname.ExtSVG {
		return h.serveOriginal && ref.Scale == 1
	}
	return h.scales[ref.Scale]
}

func readSource(e catalog.Entry) ([]byte, error) {
	src, err := os.ReadFile(filepath.Clean(e.Path))
	if err != nil {
		return nil, errors.NewReadError(e.Path, err).WithAsset(e.Name, 0)
	}
	return src, nil
}

type renderResult struct {
	data []byte
	err  error
}

// renderCtx renders without optimization and gives up when ctx ends. The
// abandoned render finishes in the background and is discarded.
func (h *AssetHandler) renderCtx(ctx context.Context, src []byte, scale int) ([]byte, error) {
	done := make(chan renderResult, 1)
	go func() {
		data, err := h.render(src, scale, false)
		done <- renderResult{data: data, err: err}
	}()

	select {
	case res := <-done:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func setValidators(hdr http.Header, digest string) {
	hdr.Set("ETag", digest)
	hdr.Set("Cache-Control", "no-cache")
}

func writeBody(w http.ResponseWriter, r *http.Request, contentType, digest string, body []byte) {
	hdr := w.Header()
	setValidators(hdr, digest)
	hdr.Set("Content-Type", contentType)
	hdr.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}

// ETagMatches reports whether an If-None-Match header value matches digest.
// Strong, quoted and weak forms are accepted, as are "*" and comma lists.
func ETagMatches(header, digest string) bool {
	if header == "" || digest == "" {
		return false
	}
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" {
			return true
		}
		tag = strings.TrimPrefix(tag, "W/")
		tag = strings.Trim(tag, `"`)
		if tag == digest {
			return true
		}
	}
	return false
}
