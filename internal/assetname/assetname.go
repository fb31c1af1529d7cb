// Package assetname owns the published filename rule and its inverse.
//
// Filenames are composed as {name}{-fragment}{@Nx}.{ext}: the fragment is
// present only for hashed entries and the scale suffix only when N > 1.
// The manifest, the publisher and the dev server all go through Compose,
// so a URL in the manifest always names a file that can be delivered.
package assetname

import (
	"errors"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Extensions served and published.
const (
	ExtPNG = "png"
	ExtSVG = "svg"
)

// MaxScale is the largest scale a request path may carry. Configured
// scales are bounded by it so every published variant parses back.
const MaxScale = 9999

var (
	ErrUnknownExtension = errors.New("assetname: unknown extension")
	ErrBadScale         = errors.New("assetname: malformed scale suffix")
	ErrEmptyName        = errors.New("assetname: empty name")
)

// Ref is a parsed request for one variant of an asset.
type Ref struct {
	Name  string
	Scale int
	Ext   string
}

// Compose builds the filename for name at scale with extension ext.
// fragment is the digest fragment, empty for unhashed entries.
func Compose(name, fragment string, scale int, ext string) string {
	var b strings.Builder
	b.Grow(len(name) + len(fragment) + len(ext) + 8)
	b.WriteString(name)
	if fragment != "" {
		b.WriteByte('-')
		b.WriteString(fragment)
	}
	if scale > 1 {
		b.WriteByte('@')
		b.WriteString(strconv.Itoa(scale))
		b.WriteByte('x')
	}
	b.WriteByte('.')
	b.WriteString(ext)
	return b.String()
}

// Parse reads a trailing path segment. It accepts the composed form
// {name}@{N}x.{ext} and the suffix-last form {name}.{ext}@{N}x. A missing
// suffix means scale 1. Parse does not strip digest fragments: the dev
// server only serves unhashed names.
func Parse(segment string) (Ref, error) {
	rest, scale, hasSuffix, err := cutScaleSuffix(segment)
	if err != nil {
		return Ref{}, err
	}

	if hasSuffix {
		// {name}.{ext}@{N}x
		name, ext, ok := cutExtension(rest)
		if !ok {
			return Ref{}, ErrUnknownExtension
		}
		return newRef(name, scale, ext)
	}

	// {name}@{N}x.{ext} or {name}.{ext}
	stem, ext, ok := cutExtension(segment)
	if !ok {
		return Ref{}, ErrUnknownExtension
	}
	name, scale, hasSuffix, err := cutScaleSuffix(stem)
	if err != nil {
		return Ref{}, err
	}
	if !hasSuffix {
		scale = 1
	}
	return newRef(name, scale, ext)
}

func newRef(name string, scale int, ext string) (Ref, error) {
	if name == "" {
		return Ref{}, ErrEmptyName
	}
	return Ref{Name: name, Scale: scale, Ext: ext}, nil
}

func cutExtension(s string) (string, string, bool) {
	for _, ext := range []string{ExtPNG, ExtSVG} {
		if stem, ok := strings.CutSuffix(s, "."+ext); ok {
			return stem, ext, true
		}
	}
	return "", "", false
}

// cutScaleSuffix splits a trailing @{N}x. hasSuffix is false when s does
// not end in @<digits>x at all; err is set when it does but the digits are
// not a canonical positive integer.
func cutScaleSuffix(s string) (rest string, scale int, hasSuffix bool, err error) {
	digits, ok := scaleDigits(s)
	if !ok {
		return s, 0, false, nil
	}
	rest = s[:len(s)-len(digits)-2]
	if digits[0] == '0' {
		return "", 0, true, ErrBadScale
	}
	scale, err = strconv.Atoi(digits)
	if err != nil || scale < 1 || scale > MaxScale {
		return "", 0, true, ErrBadScale
	}
	return rest, scale, true, nil
}

// scaleDigits returns the digits of a trailing @<digits>x.
func scaleDigits(s string) (string, bool) {
	if !strings.HasSuffix(s, "x") {
		return "", false
	}
	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return "", false
	}
	digits := s[at+1 : len(s)-1]
	if digits == "" {
		return "", false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return "", false
		}
	}
	return digits, true
}

// HasScaleSuffix reports whether name ends in @<digits>x. Such names would
// collide with generated scale variants and are kept out of catalogs.
func HasScaleSuffix(name string) bool {
	_, ok := scaleDigits(name)
	return ok
}

// PrefixPath returns the cleaned, relative, unescaped path part of a URL
// prefix, so "/assets/" and "https://cdn.example.com/assets/" both give
// "assets" and "/my%20assets/" gives "my assets".
func PrefixPath(urlPrefix string) string {
	p := urlPrefix
	if u, err := url.Parse(urlPrefix); err == nil {
		p = u.Path
	} else if unescaped, err := url.PathUnescape(urlPrefix); err == nil {
		p = unescaped
	}
	return strings.Trim(path.Clean("/"+p), "/")
}
