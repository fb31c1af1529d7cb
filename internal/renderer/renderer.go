// Package renderer turns SVG source bytes into PNG bytes.
//
// Rendering is a pure function of (source, scale, optimize): the same
// triple always produces byte-identical output, which is what lets the
// build be reproducible and the dev server validate responses by source
// digest alone. SVG parsing is done by oksvg and rasterization by rasterx.
package renderer

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"time"

	"github.com/conneroisu/svgrender/internal/errors"
	"github.com/conneroisu/svgrender/internal/metrics"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// DefaultMaxPixels caps the canvas area of a single render.
const DefaultMaxPixels = 64 << 20

// DefaultOptimizeLevel is the compression level used when optimize is set.
const DefaultOptimizeLevel = 3

// Func is the render boundary consumed by the publisher and the dev server.
type Func func(src []byte, scale int, optimize bool) ([]byte, error)

// Renderer holds the limits applied to every render. The zero value uses
// the defaults.
type Renderer struct {
	// MaxPixels is the largest canvas area accepted. Zero means DefaultMaxPixels.
	MaxPixels int
	// OptimizeLevel is passed to Optimize when optimize is requested.
	// Zero means DefaultOptimizeLevel; negative values are clamped to 0.
	OptimizeLevel int
}

// Render renders src with the default Renderer.
func Render(src []byte, scale int, optimize bool) ([]byte, error) {
	return Renderer{}.Render(src, scale, optimize)
}

// Render rasterizes src at scale times its natural size and encodes it as
// PNG. When optimize is set the PNG goes through Optimize.
func (r Renderer) Render(src []byte, scale int, optimize bool) ([]byte, error) {
	if scale <= 0 {
		return nil, errors.NewRenderError(errors.CodeInvalidScale,
			fmt.Sprintf("scale must be positive, got %d", scale), nil)
	}

	icon, rs, err := parse(src)
	if err != nil {
		return nil, err
	}

	w, h, err := r.canvasSize(icon, rs, scale)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := draw(icon, img); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, errors.NewRenderError(errors.CodeEncodeFailed, "encoding png", err)
	}

	if !optimize {
		return buf.Bytes(), nil
	}

	level := r.OptimizeLevel
	if level == 0 {
		level = DefaultOptimizeLevel
	}
	return Optimize(buf.Bytes(), level)
}

// parse checks that the document root is an <svg> element and hands it to
// oksvg. Unsupported elements inside the document are ignored.
func parse(src []byte) (*oksvg.SvgIcon, rootSize, error) {
	rs, err := checkRoot(src)
	if err != nil {
		return nil, rootSize{}, err
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(src), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, rootSize{}, errors.NewRenderError(errors.CodeMalformedSVG, "parsing svg", err)
	}
	return icon, rs, nil
}

func checkRoot(src []byte) (rootSize, error) {
	dec := xml.NewDecoder(bytes.NewReader(src))
	dec.Strict = true
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return rootSize{}, errors.NewRenderError(errors.CodeMalformedSVG, "no root element", nil)
		}
		if err != nil {
			return rootSize{}, errors.NewRenderError(errors.CodeMalformedSVG, "parsing svg", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			if start.Name.Local != "svg" {
				return rootSize{}, errors.NewRenderError(errors.CodeMalformedSVG,
					fmt.Sprintf("root element is <%s>, want <svg>", start.Name.Local), nil)
			}
			return rootSizeOf(start), nil
		}
	}
}

// canvasSize scales the root's natural size. Without a viewBox the user
// space is the natural size itself, so the icon's view box is set to it.
func (r Renderer) canvasSize(icon *oksvg.SvgIcon, rs rootSize, scale int) (int, int, error) {
	vw, vh, hasViewBox := rs.naturalSize()
	if !(vw > 0) || !(vh > 0) || math.IsInf(vw, 0) || math.IsInf(vh, 0) {
		return 0, 0, errors.NewRenderError(errors.CodeMalformedSVG,
			fmt.Sprintf("svg has no usable size (width %q, height %q)", rs.width, rs.height), nil)
	}
	if !hasViewBox {
		icon.ViewBox.X, icon.ViewBox.Y = 0, 0
		icon.ViewBox.W, icon.ViewBox.H = vw, vh
	}

	maxPixels := r.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	fw := math.Ceil(vw * float64(scale))
	fh := math.Ceil(vh * float64(scale))
	if fw*fh > float64(maxPixels) {
		return 0, 0, errors.NewRenderError(errors.CodeCanvasTooLarge,
			fmt.Sprintf("canvas %.0fx%.0f exceeds %d pixels", fw, fh, maxPixels), nil)
	}
	return int(fw), int(fh), nil
}

// draw rasterizes icon onto img. oksvg panics on some malformed path data;
// that surfaces as a render error.
func draw(icon *oksvg.SvgIcon, img *image.RGBA) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.NewRenderError(errors.CodeMalformedSVG, "rasterizing svg", fmt.Errorf("%v", rec))
		}
	}()

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	icon.SetTarget(0, 0, float64(w), float64(h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
	return nil
}

// Instrument wraps fn so every call is reported to rec.
func Instrument(fn Func, rec metrics.Recorder) Func {
	if rec == nil {
		return fn
	}
	return func(src []byte, scale int, optimize bool) ([]byte, error) {
		start := time.Now()
		out, err := fn(src, scale, optimize)
		rec.ObserveRender(scale, optimize, time.Since(start), err)
		return out, err
	}
}
