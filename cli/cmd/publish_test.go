package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsbundle/tsbundle/internal/config"
	"github.com/tsbundle/tsbundle/internal/testutil"
	"github.com/tsbundle/tsbundle/internal/toolchain"
)

type publishSteps struct {
	order []string
}

func newTestPublisher(runner *testutil.MockRunner, steps *publishSteps, confirm bool) *publisher {
	return &publisher{
		NPM: &toolchain.NPM{Root: "/a", Runner: runner},
		Test: func(context.Context, *config.PackageConfig) error {
			steps.order = append(steps.order, "test")
			return nil
		},
		Build: func(context.Context, *config.PackageConfig) error {
			steps.order = append(steps.order, "build")
			return nil
		},
		Confirm: func(prompt string) (bool, error) {
			steps.order = append(steps.order, "confirm")
			return confirm, nil
		},
		Increment: func() (string, error) { return "minor", nil },
		Git:       true,
	}
}

func publishRunner() *testutil.MockRunner {
	runner := testutil.NewMockRunner()
	runner.Responses["npm whoami"] = toolchain.Result{Stdout: "alice\n"}
	runner.Responses["npm version"] = toolchain.Result{Stdout: "v1.3.0\n"}
	return runner
}

var demoPackage = &config.PackageConfig{Root: "/a", Name: "demo", Version: "1.2.3"}

func TestPublish(t *testing.T) {
	runner := publishRunner()
	steps := &publishSteps{}

	version, err := newTestPublisher(runner, steps, true).Publish(context.Background(), demoPackage)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", version)
	assert.Equal(t, []string{"test", "confirm", "build"}, steps.order)
	assert.Equal(t, []string{
		"npm whoami",
		"npm version minor --no-git-tag-version",
		"git add --all",
		"git commit -m v1.3.0",
		"git push",
		"npm publish --access public",
	}, runner.Commands())
}

func TestPublishWithoutGit(t *testing.T) {
	runner := publishRunner()
	p := newTestPublisher(runner, &publishSteps{}, true)
	p.Git = false

	_, err := p.Publish(context.Background(), demoPackage)
	require.NoError(t, err)
	assert.NotContains(t, runner.Commands(), "git push")
}

func TestPublishAborted(t *testing.T) {
	runner := publishRunner()
	steps := &publishSteps{}

	_, err := newTestPublisher(runner, steps, false).Publish(context.Background(), demoPackage)
	assert.ErrorIs(t, err, errPublishAborted)
	assert.Equal(t, []string{"test", "confirm"}, steps.order)
	assert.Equal(t, []string{"npm whoami"}, runner.Commands())
}

func TestPublishStopsOnFailedTests(t *testing.T) {
	runner := publishRunner()
	steps := &publishSteps{}
	p := newTestPublisher(runner, steps, true)
	p.Test = func(context.Context, *config.PackageConfig) error { return errBuildFailed }

	_, err := p.Publish(context.Background(), demoPackage)
	assert.ErrorIs(t, err, errBuildFailed)
	assert.Empty(t, steps.order)
	assert.Equal(t, []string{"npm whoami"}, runner.Commands())
}

func TestPublishNotLoggedIn(t *testing.T) {
	runner := testutil.NewMockRunner()
	runner.OnRun = func(_ context.Context, c toolchain.Command) error {
		return errors.New("npm ERR! code ENEEDAUTH")
	}

	_, err := newTestPublisher(runner, &publishSteps{}, true).Publish(context.Background(), demoPackage)
	assert.ErrorContains(t, err, "not logged in")
}
