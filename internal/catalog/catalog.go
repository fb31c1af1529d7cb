// Package catalog discovers SVG sources and holds them as immutable
// snapshots.
//
// A Catalog maps logical names (file stems) to source files. Catalogs are
// never mutated after construction: a file change produces a new Catalog
// which is published through a Store, so a request that loaded the old
// snapshot finishes against it undisturbed.
package catalog

import (
	"sort"

	"github.com/conneroisu/svgrender/internal/fingerprint"
)

// SourceFile identifies one SVG source.
type SourceFile struct {
	// Name is the logical asset name, the file stem.
	Name string
	// Path is the absolute filesystem path.
	Path string
}

// Entry is a SourceFile with an optional content digest. The digest is only
// present for catalogs built in hashing mode.
type Entry struct {
	SourceFile
	digest fingerprint.Digest
	hashed bool
}

// NewEntry creates an entry without a digest.
func NewEntry(name, path string) Entry {
	return Entry{SourceFile: SourceFile{Name: name, Path: path}}
}

// NewHashedEntry creates an entry carrying digest d.
func NewHashedEntry(name, path string, d fingerprint.Digest) Entry {
	return Entry{SourceFile: SourceFile{Name: name, Path: path}, digest: d, hashed: true}
}

// Digest returns the entry's digest and whether it has one.
func (e Entry) Digest() (fingerprint.Digest, bool) {
	return e.digest, e.hashed
}

// Fragment returns the digest fragment used in filenames, or "" when the
// entry has no digest.
func (e Entry) Fragment() string {
	if !e.hashed {
		return ""
	}
	return e.digest.Fragment()
}

// Catalog is an immutable name -> Entry mapping.
type Catalog struct {
	entries map[string]Entry
	names   []string
	hashed  bool
	skipped []error
}

// New builds a catalog from entries. Later entries replace earlier ones
// with the same name.
func New(entries ...Entry) *Catalog {
	return newCatalog(entries, nil)
}

// Empty returns a catalog with no entries.
func Empty() *Catalog {
	return newCatalog(nil, nil)
}

func newCatalog(entries []Entry, skipped []error) *Catalog {
	c := &Catalog{
		entries: make(map[string]Entry, len(entries)),
		skipped: skipped,
	}
	for _, e := range entries {
		c.entries[e.Name] = e
	}

	c.names = make([]string, 0, len(c.entries))
	c.hashed = len(c.entries) > 0
	for name, e := range c.entries {
		c.names = append(c.names, name)
		if !e.hashed {
			c.hashed = false
		}
	}
	sort.Strings(c.names)
	return c
}

// Lookup returns the entry for name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Names returns the logical names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Entries returns every entry sorted by name.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.entries[name])
	}
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Hashed reports whether every entry carries a digest.
func (c *Catalog) Hashed() bool {
	return c.hashed
}

// Skipped returns the non-fatal errors for files left out of the catalog.
func (c *Catalog) Skipped() []error {
	out := make([]error, len(c.skipped))
	copy(out, c.skipped)
	return out
}
