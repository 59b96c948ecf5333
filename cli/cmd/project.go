package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/tsbundle/tsbundle/cli/output"
	"github.com/tsbundle/tsbundle/internal/config"
	"github.com/tsbundle/tsbundle/internal/pipeline"
	"github.com/tsbundle/tsbundle/internal/toolchain"
)

// projectRoots merges the --project flags and positional arguments into a
// list of absolute, de-duplicated package roots. The current directory is
// used when none is given.
func projectRoots(flags, args []string) ([]string, error) {
	candidates := append(append([]string(nil), flags...), args...)
	if len(candidates) == 0 {
		candidates = []string{"."}
	}

	seen := make(map[string]bool)
	var roots []string
	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil {
			return nil, fmt.Errorf("invalid project path %q: %w", c, err)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		roots = append(roots, abs)
	}
	return roots, nil
}

// loadPackages loads every root. A package failing to load is reported
// and left out, and its error is part of the returned one, so the caller
// can build the others and still fail. The package list is nil only when
// none could be loaded.
func loadPackages(fsys afero.Fs, roots []string, defaults config.Layer, f *output.Formatter) ([]*config.PackageConfig, error) {
	var (
		pkgs []*config.PackageConfig
		errs []error
	)
	for _, root := range roots {
		pkg, err := config.LoadPackage(fsys, root, defaults)
		if err != nil {
			log.Debug().Err(err).Str("root", root).Msg("Skipping package")
			f.PrintWarning(fmt.Sprintf("skipping %s: %v", root, err))
			errs = append(errs, fmt.Errorf("%s: %w", root, err))
			continue
		}
		pkgs = append(pkgs, pkg)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no buildable package found in %d project path(s): %w", len(roots), errors.Join(errs...))
	}
	return pkgs, errors.Join(errs...)
}

// loadProjects resolves and loads the packages targeted by the command line.
func loadProjects(args []string) ([]*config.PackageConfig, error) {
	roots, err := projectRoots(projects, args)
	if err != nil {
		return nil, err
	}
	return loadPackages(afero.NewOsFs(), roots, config.Defaults(settings.Build.DefaultFormats), GetFormatter())
}

// newCompiler returns the TypeScript compiler configured by s.
func newCompiler(s *config.Settings) toolchain.Compiler {
	return &toolchain.TSC{
		Path:    s.Compiler.Path,
		Timeout: s.Compiler.Timeout,
		Lib:     s.Compiler.Lib,
	}
}

// newMinifier returns the bundle minifier configured by s.
func newMinifier(s *config.Settings) toolchain.Minifier {
	if s.Minifier.Kind == config.MinifierEsbuild {
		return toolchain.Esbuild{}
	}
	return &toolchain.Terser{
		Path:    s.Minifier.Path,
		Timeout: s.Minifier.Timeout,
		Args:    s.Minifier.Args,
	}
}

// newBuilder returns a pipeline builder working on the real file system.
func newBuilder(s *config.Settings) *pipeline.Builder {
	return pipeline.New(afero.NewOsFs(), newCompiler(s), newMinifier(s), pipeline.Options{
		TempDir:             s.Build.TempDir,
		Compact:             s.Build.Compact,
		HoistDefineProperty: s.Build.HoistDefineProperty,
		CommonJSInterop:     s.Build.CommonJSInterop,
	})
}
