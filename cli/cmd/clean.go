package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tsbundle/tsbundle/internal/config"
)

var cleanCmd = &cobra.Command{
	Use:     "clean [project...]",
	Short:   "Delete the output directories",
	PreRunE: requireSettings,
	RunE: func(cmd *cobra.Command, args []string) error {
		pkgs, loadErr := loadProjects(args)
		if pkgs == nil {
			return loadErr
		}

		var removed []string
		for _, pkg := range pkgs {
			dirs, err := cleanPackage(afero.NewOsFs(), pkg)
			removed = append(removed, dirs...)
			if err != nil {
				return errors.Join(err, loadErr)
			}
		}

		GetFormatter().PrintList(removed)
		return loadErr
	},
}

// cleanPackage deletes every output directory of pkg and returns the ones
// that existed, relative to the package root.
func cleanPackage(fsys afero.Fs, pkg *config.PackageConfig) ([]string, error) {
	var removed []string
	for _, out := range pkg.Outputs {
		exists, err := afero.DirExists(fsys, out)
		if err != nil {
			return removed, err
		}
		if !exists {
			continue
		}
		if err := fsys.RemoveAll(out); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", out, err)
		}
		rel, err := filepath.Rel(pkg.Root, out)
		if err != nil {
			rel = out
		}
		removed = append(removed, filepath.ToSlash(rel))
	}
	return removed, nil
}
