package manifest

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GoSource renders m as a Go source file in package pkg. The file declares
// a Manifest variable and one exported constant per logical name, so Go
// code can write assets.Manifest["2"][assets.Logo].
func GoSource(m Manifest, pkg string) ([]byte, error) {
	if !token.IsIdentifier(pkg) {
		return nil, fmt.Errorf("invalid package name %q", pkg)
	}

	var buf bytes.Buffer
	buf.WriteString("// Code generated by svgrender. DO NOT EDIT.\n\n")
	fmt.Fprintf(&buf, "package %s\n\n", pkg)

	names := m.names()
	if len(names) > 0 {
		buf.WriteString("// Logical asset names.\nconst (\n")
		for i, ident := range Identifiers(names) {
			fmt.Fprintf(&buf, "\t%s = %s\n", ident, strconv.Quote(names[i]))
		}
		buf.WriteString(")\n\n")
	}

	buf.WriteString("// Manifest maps a scale key to logical name to URL.\n")
	buf.WriteString("var Manifest = map[string]map[string]string{\n")
	for _, key := range m.Keys() {
		fmt.Fprintf(&buf, "\t%s: {\n", strconv.Quote(key))
		urls := m[key]
		inner := make([]string, 0, len(urls))
		for name := range urls {
			inner = append(inner, name)
		}
		sort.Strings(inner)
		for _, name := range inner {
			fmt.Fprintf(&buf, "\t\t%s: %s,\n", strconv.Quote(name), strconv.Quote(urls[name]))
		}
		buf.WriteString("\t},\n")
	}
	buf.WriteString("}\n")

	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("formatting generated source: %w", err)
	}
	return out, nil
}

// names returns every logical name across all keys, sorted.
func (m Manifest) names() []string {
	seen := make(map[string]struct{})
	for _, urls := range m {
		for name := range urls {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Identifiers maps logical names to exported Go identifiers, index for
// index. "arrow-left" becomes ArrowLeft; names that do not start with a
// letter get an Asset prefix. Names that fold to the same identifier get a
// numeric suffix.
func Identifiers(names []string) []string {
	caser := cases.Title(language.Und, cases.NoLower)
	used := make(map[string]bool, len(names))
	out := make([]string, len(names))

	for i, name := range names {
		words := strings.FieldsFunc(name, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		var b strings.Builder
		for _, w := range words {
			b.WriteString(caser.String(w))
		}
		base := b.String()
		if !token.IsExported(base) {
			base = "Asset" + base
		}

		ident := base
		for n := 2; used[ident]; n++ {
			ident = base + strconv.Itoa(n)
		}
		used[ident] = true
		out[i] = ident
	}
	return out
}
