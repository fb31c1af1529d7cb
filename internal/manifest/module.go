package manifest

import (
	"fmt"
	"strings"
)

// VirtualID is the import specifier application code uses for the manifest.
const VirtualID = "virtual:svgrender-manifest"

// resolvedID marks the id as virtual so no other resolver claims it.
const resolvedID = "\x00" + VirtualID

// ResolveID resolves the virtual module id. It reports false for any
// other id.
func ResolveID(id string) (string, bool) {
	if id != VirtualID {
		return "", false
	}
	return resolvedID, true
}

// Load returns the module source for a resolved id.
func Load(id string, m Manifest) (string, bool, error) {
	if id != resolvedID {
		return "", false, nil
	}
	src, err := ModuleSource(m)
	if err != nil {
		return "", false, err
	}
	return src, true, nil
}

// ModuleSource renders m as an ES module whose default export is the
// manifest object.
func ModuleSource(m Manifest) (string, error) {
	data, err := m.JSON()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(len(data) + 32)
	fmt.Fprintf(&b, "export default %s;\n", strings.TrimRight(string(data), "\n"))
	return b.String(), nil
}
