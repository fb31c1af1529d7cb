// Package manifest maps logical asset names to delivery URLs.
//
// A Manifest is derived entirely from a catalog and the configured scales;
// it is never persisted on its own. Every URL it contains is composed with
// Filename, the same rule the publisher and the dev asset handler use, so
// each URL resolves to a deliverable file.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/conneroisu/svgrender/internal/assetname"
	"github.com/conneroisu/svgrender/internal/catalog"
	"gopkg.in/yaml.v3"
)

// SVGKey is the scale key under which original sources are listed.
const SVGKey = "svg"

// Manifest maps a scale key ("1", "2", ... or "svg") to name -> URL.
type Manifest map[string]map[string]string

// ScaleKey returns the manifest key for scale.
func ScaleKey(scale int) string {
	return strconv.Itoa(scale)
}

// Filename composes the published filename of e at scale with extension
// ext. The digest fragment is included only when e carries a digest.
func Filename(e catalog.Entry, scale int, ext string) string {
	return assetname.Compose(e.Name, e.Fragment(), scale, ext)
}

// URL joins prefix and filename. The filename is path-escaped as a single
// segment.
func URL(prefix, filename string) string {
	return prefix + url.PathEscape(filename)
}

// Build derives the manifest for cat. Duplicate scales collapse to a
// single key.
func Build(cat *catalog.Catalog, scales []int, urlPrefix string, includeOriginal bool) Manifest {
	m := make(Manifest, len(scales)+1)
	entries := cat.Entries()

	for _, scale := range scales {
		key := ScaleKey(scale)
		urls := make(map[string]string, len(entries))
		for _, e := range entries {
			urls[e.Name] = URL(urlPrefix, Filename(e, scale, assetname.ExtPNG))
		}
		m[key] = urls
	}

	if includeOriginal {
		urls := make(map[string]string, len(entries))
		for _, e := range entries {
			urls[e.Name] = URL(urlPrefix, Filename(e, 1, assetname.ExtSVG))
		}
		m[SVGKey] = urls
	}
	return m
}

// Keys returns the scale keys in a stable order: numeric keys ascending,
// then "svg".
func (m Manifest) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, errI := strconv.Atoi(keys[i])
		nj, errJ := strconv.Atoi(keys[j])
		switch {
		case errI == nil && errJ == nil:
			return ni < nj
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

// JSON encodes the manifest with sorted keys and two-space indentation.
func (m Manifest) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// YAML encodes the manifest as a YAML document.
func (m Manifest) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]map[string]string(m)); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return buf.Bytes(), nil
}
