package renderer

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// defaultSize is the user-space size assumed for width and height when the
// root carries neither a viewBox nor a usable length.
const defaultSize = 100

// CSS absolute units in pixels, at 96 per inch.
var unitPixels = map[string]float64{
	"":   1,
	"px": 1,
	"in": 96,
	"cm": 96 / 2.54,
	"mm": 96 / 25.4,
	"pt": 4.0 / 3.0,
	"pc": 16,
	"em": 16,
	"ex": 8,
}

// rootSize holds the sizing attributes of the root <svg> element.
type rootSize struct {
	width, height string
	viewBox       string
}

func rootSizeOf(start xml.StartElement) rootSize {
	var rs rootSize
	for _, attr := range start.Attr {
		if attr.Name.Space != "" && attr.Name.Space != "http://www.w3.org/2000/svg" {
			continue
		}
		switch attr.Name.Local {
		case "width":
			rs.width = attr.Value
		case "height":
			rs.height = attr.Value
		case "viewBox":
			rs.viewBox = attr.Value
		}
	}
	return rs
}

// parseViewBox returns the width and height of a "minx miny w h" list.
func parseViewBox(s string) (float64, float64, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) != 4 {
		return 0, 0, false
	}
	w, errW := strconv.ParseFloat(fields[2], 64)
	h, errH := strconv.ParseFloat(fields[3], 64)
	if errW != nil || errH != nil || !(w > 0) || !(h > 0) {
		return 0, 0, false
	}
	return w, h, true
}

// parseLength converts an SVG length to pixels. Percentages resolve
// against base.
func parseLength(s string, base float64) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil {
			return 0, false
		}
		return v / 100 * base, true
	}

	i := len(s)
	for i > 0 && (s[i-1] >= 'a' && s[i-1] <= 'z' || s[i-1] >= 'A' && s[i-1] <= 'Z') {
		i--
	}
	factor, ok := unitPixels[strings.ToLower(s[i:])]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s[:i]), 64)
	if err != nil {
		return 0, false
	}
	return v * factor, true
}

// naturalSize resolves the rendered size of the root at scale 1. width and
// height win; a single one takes the other from the viewBox aspect ratio;
// the viewBox alone is used when neither is set, and 100x100 when nothing
// is. hasViewBox reports whether the viewBox was usable.
func (rs rootSize) naturalSize() (w, h float64, hasViewBox bool) {
	vw, vh, hasViewBox := parseViewBox(rs.viewBox)
	baseW, baseH := float64(defaultSize), float64(defaultSize)
	if hasViewBox {
		baseW, baseH = vw, vh
	}

	w, okW := parseLength(rs.width, baseW)
	h, okH := parseLength(rs.height, baseH)
	switch {
	case okW && okH:
	case okW:
		h = baseH
		if hasViewBox {
			h = w * vh / vw
		}
	case okH:
		w = baseW
		if hasViewBox {
			w = h * vw / vh
		}
	default:
		w, h = baseW, baseH
	}
	return w, h, hasViewBox
}
