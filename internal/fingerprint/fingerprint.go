// Package fingerprint derives content digests for source files. Digests
// feed both cache-busting filenames and HTTP ETag validation.
package fingerprint

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// FragmentLen is the number of hex characters of a digest embedded in
// published filenames.
const FragmentLen = 8

// Digest is a lowercase hex BLAKE3-256 digest of a file's bytes.
type Digest string

// String returns the full hex digest.
func (d Digest) String() string {
	return string(d)
}

// Fragment returns the filename fragment, the first FragmentLen hex characters.
func (d Digest) Fragment() string {
	if len(d) <= FragmentLen {
		return string(d)
	}
	return string(d[:FragmentLen])
}

// Sum digests data.
func Sum(data []byte) Digest {
	sum := blake3.Sum256(data)
	return Digest(hex.EncodeToString(sum[:]))
}

// File streams the file at path through the hasher.
func File(path string) (Digest, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), nil
}
