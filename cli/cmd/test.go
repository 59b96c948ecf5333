package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tsbundle/tsbundle/internal/config"
	"github.com/tsbundle/tsbundle/internal/toolchain"
)

var testCmd = &cobra.Command{
	Use:   "test [project...]",
	Short: "Build the test format and run the package tests",
	Long: `Build only the test format (build.test_format, es2020.mjs by default), then
run "npm run test" in every package whose manifest declares a test script.`,
	PreRunE: requireSettings,
	RunE: func(cmd *cobra.Command, args []string) error {
		pkgs, loadErr := loadProjects(args)
		if pkgs == nil {
			return loadErr
		}
		pkgs, err := withFormats(pkgs, settings.Build.TestFormat)
		if err != nil {
			return err
		}

		if err := buildAndReport(cmd.Context(), pkgs); err != nil {
			return errors.Join(err, loadErr)
		}

		for _, pkg := range pkgs {
			if err := runPackageTests(cmd.Context(), pkg, toolchain.ExecRunner{}); err != nil {
				return errors.Join(err, loadErr)
			}
		}
		return loadErr
	},
}

// runPackageTests runs the package test script, if any, printing its
// output.
func runPackageTests(ctx context.Context, pkg *config.PackageConfig, runner toolchain.Runner) error {
	if _, ok := pkg.Scripts["test"]; !ok {
		log.Debug().Str("root", pkg.Root).Msg("No test script")
		return nil
	}

	f := GetFormatter()
	f.PrintInfo(fmt.Sprintf("Running tests of %s", pkg.Root))

	npm := &toolchain.NPM{
		Root:   pkg.Root,
		Runner: runner,
		Stream: func(res toolchain.Result) {
			if res.Stdout != "" {
				f.PrintInfo(res.Stdout)
			}
		},
	}
	if err := npm.RunScript(ctx, "test"); err != nil {
		return fmt.Errorf("tests of %s failed: %w", pkg.Root, err)
	}
	return nil
}
