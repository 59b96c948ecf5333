// Package rename renames files in a directory tree by suffix.
package rename

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Mapping maps original file paths to their renamed paths.
type Mapping map[string]string

// Renamed returns the new paths in sorted order.
func (m Mapping) Renamed() []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Predicate decides whether a file name matches and returns the name with
// the matched part removed.
type Predicate func(name string) (stem string, ok bool)

// Extension matches files whose extension (as reported by filepath.Ext)
// equals ext, e.g. ".js". The extension is removed from the stem.
func Extension(ext string) Predicate {
	return func(name string) (string, bool) {
		if filepath.Ext(name) != ext {
			return "", false
		}
		return strings.TrimSuffix(name, ext), true
	}
}

// Suffix matches files whose name ends with the literal suffix, e.g.
// ".es2020.cjs.torename". A file named exactly like the suffix does not match.
func Suffix(suffix string) Predicate {
	return func(name string) (string, bool) {
		if !strings.HasSuffix(name, suffix) || len(name) == len(suffix) {
			return "", false
		}
		return strings.TrimSuffix(name, suffix), true
	}
}

// Matching walks root recursively and renames every file accepted by pred to
// stem+newSuffix in the same directory. Directory entries are read before
// any of them is renamed, so a renamed file is never visited twice.
//
// The pass is not atomic: an error leaves the tree partially renamed.
func Matching(fsys afero.Fs, root string, pred Predicate, newSuffix string) (Mapping, error) {
	mapping := make(Mapping)
	if err := renameDir(fsys, root, pred, newSuffix, mapping); err != nil {
		return mapping, err
	}
	return mapping, nil
}

func renameDir(fsys afero.Fs, dir string, pred Predicate, newSuffix string, mapping Mapping) error {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if err := renameDir(fsys, p, pred, newSuffix, mapping); err != nil {
				return err
			}
			continue
		}

		stem, ok := pred(entry.Name())
		if !ok {
			continue
		}

		target := filepath.Join(dir, stem+newSuffix)
		if target == p {
			continue
		}
		if err := fsys.Rename(p, target); err != nil {
			return fmt.Errorf("failed to rename %s: %w", p, err)
		}
		mapping[p] = target
	}

	return nil
}
