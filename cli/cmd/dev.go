package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tsbundle/tsbundle/internal/config"
	"github.com/tsbundle/tsbundle/internal/watch"
)

var devAll bool

var devCmd = &cobra.Command{
	Use:   "dev [project...]",
	Short: "Rebuild packages when their sources change",
	Long: `Build the targeted packages, then watch their directories and rebuild a
package whenever one of its sources, its package.json or its tsconfig.json
changes. Only the test format is built unless --all is given.

Press Ctrl+C to stop.`,
	PreRunE: requireSettings,
	RunE:    runDev,
}

func init() {
	devCmd.Flags().BoolVar(&devAll, "all", false, "build every configured format")
}

func runDev(cmd *cobra.Command, args []string) error {
	roots, err := projectRoots(projects, args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	f := GetFormatter()

	pkgs, err := devBuild(ctx, roots)
	if err != nil && !errors.Is(err, errBuildFailed) {
		return err
	}

	w, err := watch.New(watchOptions(pkgs, settings))
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	f.PrintInfo(fmt.Sprintf("Watching %d package(s), press Ctrl+C to stop", len(pkgs)))

	return w.Run(ctx, func(ctx context.Context, changed []string) {
		affected := affectedRoots(roots, changed)
		if len(affected) == 0 {
			return
		}
		f.PrintInfo(fmt.Sprintf("Change detected: %s", strings.Join(changed, ", ")))
		if _, err := devBuild(ctx, affected); err != nil && !errors.Is(err, errBuildFailed) {
			f.PrintError(err.Error())
		}
	})
}

// devBuild reloads the packages at roots, so manifest edits apply, and
// builds them. Packages failing to load were already reported by
// loadPackages; they are skipped and dev keeps running for the others.
func devBuild(ctx context.Context, roots []string) ([]*config.PackageConfig, error) {
	pkgs, loadErr := loadPackages(afero.NewOsFs(), roots, config.Defaults(settings.Build.DefaultFormats), GetFormatter())
	if pkgs == nil {
		return nil, loadErr
	}
	if !devAll {
		var err error
		pkgs, err = withFormats(pkgs, settings.Build.TestFormat)
		if err != nil {
			return nil, err
		}
	}
	return pkgs, buildAndReport(ctx, pkgs)
}

// watchOptions watches every package root, ignoring build outputs and
// badges.
func watchOptions(pkgs []*config.PackageConfig, s *config.Settings) watch.Options {
	opts := watch.Options{
		Match:    isWatchedSource,
		Debounce: s.Build.DevDebounce,
	}
	for _, pkg := range pkgs {
		opts.Dirs = append(opts.Dirs, pkg.Root)
		opts.Ignore = append(opts.Ignore, pkg.Outputs...)
		opts.Ignore = append(opts.Ignore, filepath.Join(pkg.Root, "bits"))
	}
	return opts
}

var watchedExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".mts": true, ".cts": true,
	".js": true, ".jsx": true, ".json": true,
}

func isWatchedSource(path string) bool {
	return watchedExtensions[strings.ToLower(filepath.Ext(path))]
}

// affectedRoots returns the roots containing one of the changed files. The
// deepest root wins for nested packages.
func affectedRoots(roots, changed []string) []string {
	hit := make(map[string]bool)
	for _, c := range changed {
		best := ""
		for _, r := range roots {
			if (c == r || strings.HasPrefix(c, r+string(filepath.Separator))) && len(r) > len(best) {
				best = r
			}
		}
		if best != "" {
			hit[best] = true
		}
	}

	var out []string
	for _, r := range roots {
		if hit[r] {
			out = append(out, r)
		}
	}
	return out
}
