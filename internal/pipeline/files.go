package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

type tsconfig struct {
	Extends         string         `json:"extends,omitempty"`
	Include         []string       `json:"include"`
	Exclude         []string       `json:"exclude"`
	CompilerOptions map[string]any `json:"compilerOptions"`
}

// writeTSConfig writes a compiler configuration scoped to input. It extends
// the package tsconfig.json when there is one.
func writeTSConfig(fs afero.Fs, bc *BuildContext, root, input string) error {
	cfg := tsconfig{
		Include: []string{input},
		Exclude: []string{filepath.Join(root, "node_modules")},
		CompilerOptions: map[string]any{
			"outDir":              bc.OutDir(),
			"declarationDir":      bc.OutDir(),
			"noEmit":              false,
			"emitDeclarationOnly": false,
		},
	}
	base := filepath.Join(root, "tsconfig.json")
	if ok, _ := afero.Exists(fs, base); ok {
		cfg.Extends = base
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, bc.TSConfig(), data, 0o644)
}

// copyTree copies every file under src to dst, keeping relative paths,
// skipping files for which skip returns true. It returns the number of
// files copied.
func copyTree(fs afero.Fs, src, dst string, skip func(rel string) bool) (int, error) {
	n := 0
	err := afero.Walk(fs, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if skip != nil && skip(filepath.ToSlash(rel)) {
			return nil
		}
		if err := copyFile(fs, p, filepath.Join(dst, rel)); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func copyFile(fs afero.Fs, src, dst string) error {
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}

	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

// moveFile renames src to dst, copying when a rename is not possible
// (different devices).
func moveFile(fs afero.Fs, src, dst string) error {
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	if err := fs.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(fs, src, dst); err != nil {
		return err
	}
	return fs.Remove(src)
}

func isDeclaration(rel string) bool {
	return strings.HasSuffix(rel, ".d.ts") || strings.HasSuffix(rel, ".d.ts.map")
}
