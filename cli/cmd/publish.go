package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tsbundle/tsbundle/cli/util"
	"github.com/tsbundle/tsbundle/internal/config"
	"github.com/tsbundle/tsbundle/internal/toolchain"
)

var (
	publishYes       bool
	publishIncrement string
	publishNoGit     bool
)

// Increments offered by the publish prompt.
var increments = []string{"patch", "minor", "major"}

var errPublishAborted = errors.New("publish aborted")

var publishCmd = &cobra.Command{
	Use:   "publish [project...]",
	Short: "Test, version, build and publish packages to npm",
	Long: `Publish runs, for every targeted package:

  1. the test command (test format build and "npm run test")
  2. a confirmation prompt
  3. npm version <increment> --no-git-tag-version
  4. a full build
  5. git add --all, git commit and git push (unless --no-git)
  6. npm publish --access public

Use --yes and --increment to run without prompts.`,
	PreRunE: requireSettings,
	RunE: func(cmd *cobra.Command, args []string) error {
		pkgs, loadErr := loadProjects(args)
		if pkgs == nil {
			return loadErr
		}

		if !publishYes && !util.IsInteractive() {
			return fmt.Errorf("publish needs a terminal for confirmation; use --yes and --increment")
		}

		for _, pkg := range pkgs {
			p := newPublisher(pkg, toolchain.ExecRunner{})
			version, err := p.Publish(cmd.Context(), pkg)
			if errors.Is(err, errPublishAborted) {
				GetFormatter().PrintWarning(fmt.Sprintf("%s was not published", pkg.Root))
				continue
			}
			if err != nil {
				return errors.Join(err, loadErr)
			}
			GetFormatter().PrintSuccess(fmt.Sprintf("Published %s@%s", pkg.Name, version))
		}
		return loadErr
	},
}

func init() {
	publishCmd.Flags().BoolVarP(&publishYes, "yes", "y", false, "do not ask for confirmation")
	publishCmd.Flags().StringVarP(&publishIncrement, "increment", "i", "",
		"version increment passed to npm version (patch, minor, major, or an explicit version)")
	publishCmd.Flags().BoolVar(&publishNoGit, "no-git", false, "do not commit and push the version change")
}

// publisher runs the publish sequence of one package. Its steps are
// injected so the sequence can be tested without npm or git.
type publisher struct {
	NPM       *toolchain.NPM
	Test      func(ctx context.Context, pkg *config.PackageConfig) error
	Build     func(ctx context.Context, pkg *config.PackageConfig) error
	Confirm   func(prompt string) (bool, error)
	Increment func() (string, error)
	Git       bool
}

func newPublisher(pkg *config.PackageConfig, runner toolchain.Runner) *publisher {
	return &publisher{
		NPM: &toolchain.NPM{Root: pkg.Root, Runner: runner},
		Test: func(ctx context.Context, pkg *config.PackageConfig) error {
			pkgs, err := withFormats([]*config.PackageConfig{pkg}, settings.Build.TestFormat)
			if err != nil {
				return err
			}
			if err := buildAndReport(ctx, pkgs); err != nil {
				return err
			}
			return runPackageTests(ctx, pkg, runner)
		},
		Build: func(ctx context.Context, pkg *config.PackageConfig) error {
			return buildAndReport(ctx, []*config.PackageConfig{pkg})
		},
		Confirm: func(prompt string) (bool, error) {
			if publishYes {
				return true, nil
			}
			return util.Confirm(prompt, false)
		},
		Increment: func() (string, error) {
			if publishIncrement != "" {
				return publishIncrement, nil
			}
			return util.Choose("Version increment", increments, increments[0])
		},
		Git: !publishNoGit,
	}
}

// Publish runs the sequence and returns the published version.
func (p *publisher) Publish(ctx context.Context, pkg *config.PackageConfig) (string, error) {
	user, err := p.NPM.WhoAmI(ctx)
	if err != nil {
		return "", err
	}

	if err := p.Test(ctx, pkg); err != nil {
		return "", fmt.Errorf("not publishing %s: %w", pkg.Root, err)
	}

	inc, err := p.Increment()
	if err != nil {
		return "", err
	}

	ok, err := p.Confirm(fmt.Sprintf("Publish %s (%s, %s increment) as %s?", pkg.Name, pkg.Version, inc, user))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errPublishAborted
	}

	version, err := p.NPM.Version(ctx, inc)
	if err != nil {
		return "", fmt.Errorf("npm version failed: %w", err)
	}
	log.Debug().Str("root", pkg.Root).Str("version", version).Msg("Version updated")

	if err := p.Build(ctx, pkg); err != nil {
		return version, err
	}

	if p.Git {
		if err := p.NPM.Commit(ctx, "v"+version); err != nil {
			return version, err
		}
	}

	if err := p.NPM.Publish(ctx); err != nil {
		return version, fmt.Errorf("npm publish failed: %w", err)
	}
	return version, nil
}
