package renderer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sort"

	"github.com/conneroisu/svgrender/internal/errors"
)

const maxPaletteSize = 256

// Optimize losslessly recompresses a PNG. Images with at most 256 distinct
// colors are re-encoded as paletted PNGs; everything else is re-encoded as
// is with the zlib effort selected by level (0 fastest, 3 smallest). The
// decoded pixels never change. If the result is not smaller than the input,
// the input is returned unchanged.
func Optimize(data []byte, level int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewRenderError(errors.CodeEncodeFailed, "decoding png for optimization", err)
	}

	if p, ok := toPaletted(img); ok {
		img = p
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: compressionLevel(level)}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, errors.NewRenderError(errors.CodeEncodeFailed, "encoding optimized png", err)
	}

	if buf.Len() >= len(data) {
		return data, nil
	}
	return buf.Bytes(), nil
}

func compressionLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.BestSpeed
	case level == 1:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// toPaletted converts img to a paletted image when it has few enough
// colors. The palette is sorted so the output does not depend on pixel
// iteration details.
func toPaletted(img image.Image) (*image.Paletted, bool) {
	if p, ok := img.(*image.Paletted); ok {
		return p, true
	}

	b := img.Bounds()
	seen := make(map[color.NRGBA]struct{}, maxPaletteSize+1)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			if len(seen) > maxPaletteSize {
				return nil, false
			}
		}
	}

	colors := make([]color.NRGBA, 0, len(seen))
	for c := range seen {
		colors = append(colors, c)
	}
	sort.Slice(colors, func(i, j int) bool {
		return packNRGBA(colors[i]) < packNRGBA(colors[j])
	})

	palette := make(color.Palette, len(colors))
	index := make(map[color.NRGBA]uint8, len(colors))
	for i, c := range colors {
		palette[i] = c
		index[c] = uint8(i)
	}

	out := image.NewPaletted(b, palette)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetColorIndex(x, y, index[c])
		}
	}
	return out, true
}

// packNRGBA orders translucent colors first, which keeps the tRNS chunk short.
func packNRGBA(c color.NRGBA) uint32 {
	return uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}
