package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/conneroisu/svgrender/internal/assetname"
)

// DirEmitter writes artifacts into a directory. Writes go to a temporary
// file that is renamed into place, so readers never see a partial asset,
// and a file that already holds identical bytes is left untouched.
type DirEmitter struct {
	Dir string

	mkdirOnce sync.Once
	mkdirErr  error
}

// NewDirEmitter creates an emitter for outDir joined with the path part of
// urlPrefix. A prefix of "/assets/" or "https://cdn.example.com/assets/"
// both write into outDir/assets.
func NewDirEmitter(outDir, urlPrefix string) *DirEmitter {
	return &DirEmitter{Dir: filepath.Join(outDir, filepath.FromSlash(assetname.PrefixPath(urlPrefix)))}
}

// Emit writes data as filename inside Dir.
func (d *DirEmitter) Emit(ctx context.Context, filename string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if filename == "" || filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) || filename == ".." {
		return fmt.Errorf("invalid artifact filename %q", filename)
	}

	d.mkdirOnce.Do(func() {
		d.mkdirErr = os.MkdirAll(d.Dir, 0o755)
	})
	if d.mkdirErr != nil {
		return fmt.Errorf("creating output directory: %w", d.mkdirErr)
	}

	target := filepath.Join(d.Dir, filename)
	if sameFile(target, data) {
		return nil
	}

	tmp, err := os.CreateTemp(d.Dir, ".svgrender-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filename, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting mode on %s: %w", filename, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("renaming %s: %w", filename, err)
	}
	return nil
}
