//go:build property

package assetname

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genName() gopter.Gen {
	return gen.RegexMatch(`[a-z][a-z0-9.\-@_]{0,12}`).SuchThat(func(s string) bool {
		return !HasScaleSuffix(s)
	})
}

func genFragment() gopter.Gen {
	return gen.RegexMatch(`[0-9a-f]{8}`)
}

// TestComposeProperties validates that composed filenames never collide.
func TestComposeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 500

	properties := gopter.NewProperties(parameters)

	properties.Property("unhashed filenames are injective", prop.ForAll(
		func(n1, n2 string, s1, s2 int) bool {
			if n1 == n2 && s1 == s2 {
				return true
			}
			return Compose(n1, "", s1, ExtPNG) != Compose(n2, "", s2, ExtPNG)
		},
		genName(), genName(), gen.IntRange(1, 8), gen.IntRange(1, 8),
	))

	properties.Property("hashed filenames are injective", prop.ForAll(
		func(n1, n2, f1, f2 string, s1, s2 int) bool {
			if n1 == n2 && f1 == f2 && s1 == s2 {
				return true
			}
			return Compose(n1, f1, s1, ExtPNG) != Compose(n2, f2, s2, ExtPNG)
		},
		genName(), genName(), genFragment(), genFragment(), gen.IntRange(1, 8), gen.IntRange(1, 8),
	))

	properties.Property("parse inverts compose for unhashed names", prop.ForAll(
		func(name string, scale int) bool {
			ref, err := Parse(Compose(name, "", scale, ExtPNG))
			return err == nil && ref == Ref{Name: name, Scale: scale, Ext: ExtPNG}
		},
		genName(), gen.IntRange(1, 99),
	))

	properties.TestingRun(t)
}
