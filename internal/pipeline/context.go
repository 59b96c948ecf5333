package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// BuildContext owns the working directory of one package build. Every
// (entry point, format) pair starts from an empty directory.
type BuildContext struct {
	ID  string
	Dir string

	fs    afero.Fs
	owned bool
}

// NewBuildContext allocates a uniquely named working directory under base
// (os.TempDir() when empty).
func NewBuildContext(fs afero.Fs, base string) (*BuildContext, error) {
	if base == "" {
		base = os.TempDir()
	}
	id := uuid.New().String()
	bc := &BuildContext{
		ID:    id,
		Dir:   filepath.Join(base, "tsbundle-"+id),
		fs:    fs,
		owned: true,
	}
	if err := bc.Reset(); err != nil {
		return nil, err
	}
	return bc, nil
}

// OpenBuildContext uses dir, owned by the caller, as the working directory.
// Its content is deleted.
func OpenBuildContext(fs afero.Fs, dir string) (*BuildContext, error) {
	bc := &BuildContext{ID: filepath.Base(dir), Dir: dir, fs: fs}
	if err := bc.Reset(); err != nil {
		return nil, err
	}
	return bc, nil
}

// OutDir is where the compiler writes.
func (c *BuildContext) OutDir() string {
	return filepath.Join(c.Dir, "out")
}

// BundleDir is where bundles are assembled and minified.
func (c *BuildContext) BundleDir() string {
	return filepath.Join(c.Dir, "bundle")
}

// TSConfig is the path of the generated compiler configuration.
func (c *BuildContext) TSConfig() string {
	return filepath.Join(c.Dir, "tsconfig.json")
}

// Reset deletes and recreates the working directory.
func (c *BuildContext) Reset() error {
	if err := c.fs.RemoveAll(c.Dir); err != nil {
		return fmt.Errorf("failed to reset working directory: %w", err)
	}
	if err := c.fs.MkdirAll(c.OutDir(), 0o755); err != nil {
		return fmt.Errorf("failed to reset working directory: %w", err)
	}
	return nil
}

// Close removes an owned working directory and empties a caller-owned one.
func (c *BuildContext) Close() error {
	if !c.owned {
		return c.Reset()
	}
	if err := c.fs.RemoveAll(c.Dir); err != nil {
		return fmt.Errorf("failed to remove working directory: %w", err)
	}
	return nil
}
