//go:build property

package manifest

import (
	"path"
	"strconv"
	"testing"

	"github.com/conneroisu/svgrender/internal/assetname"
	"github.com/conneroisu/svgrender/internal/catalog"
	"github.com/conneroisu/svgrender/internal/fingerprint"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genNames() gopter.Gen {
	return gen.SliceOf(gen.RegexMatch(`[a-z][a-z0-9_\-]{0,10}`))
}

func genScales() gopter.Gen {
	return gen.SliceOfN(3, gen.IntRange(1, 6))
}

func unhashed(names []string) *catalog.Catalog {
	entries := make([]catalog.Entry, 0, len(names))
	for _, n := range names {
		entries = append(entries, catalog.NewEntry(n, n+".svg"))
	}
	return catalog.New(entries...)
}

// TestManifestProperties checks that every dev URL names a variant the
// asset handler parses back to the same entry and scale.
func TestManifestProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1717)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("every unhashed URL parses back", prop.ForAll(
		func(names []string, scales []int) bool {
			m := Build(unhashed(names), scales, "/assets/", true)
			for key, urls := range m {
				for name, u := range urls {
					ref, err := assetname.Parse(path.Base(u))
					if err != nil || ref.Name != name {
						return false
					}
					if key == SVGKey {
						if ref.Ext != assetname.ExtSVG || ref.Scale != 1 {
							return false
						}
						continue
					}
					if ref.Ext != assetname.ExtPNG || strconv.Itoa(ref.Scale) != key {
						return false
					}
				}
			}
			return true
		},
		genNames(), genScales(),
	))

	properties.Property("building twice gives the same manifest", prop.ForAll(
		func(names []string, scales []int) bool {
			a, errA := Build(unhashed(names), scales, "/assets/", false).JSON()
			b, errB := Build(unhashed(names), scales, "/assets/", false).JSON()
			return errA == nil && errB == nil && string(a) == string(b)
		},
		genNames(), genScales(),
	))

	properties.Property("changed content changes every URL", prop.ForAll(
		func(before, after string, scales []int) bool {
			if before == after {
				return true
			}
			e1 := catalog.NewHashedEntry("logo", "logo.svg", fingerprint.Sum([]byte(before)))
			e2 := catalog.NewHashedEntry("logo", "logo.svg", fingerprint.Sum([]byte(after)))
			m1 := Build(catalog.New(e1), scales, "/assets/", true)
			m2 := Build(catalog.New(e2), scales, "/assets/", true)
			for key, urls := range m1 {
				if urls["logo"] == m2[key]["logo"] {
					return false
				}
			}
			return true
		},
		gen.AnyString(), gen.AnyString(), genScales(),
	))

	properties.TestingRun(t)
}
