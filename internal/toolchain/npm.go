package toolchain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NPM runs npm and git commands inside a package root.
type NPM struct {
	Root    string
	Timeout time.Duration
	Runner  Runner
	// Stream, when set, receives the output of RunScript.
	Stream func(Result)
}

func (n *NPM) run(ctx context.Context, bin string, args ...string) (Result, error) {
	return runner(n.Runner).Run(ctx, Command{Bin: bin, Args: args, Dir: n.Root, Timeout: n.Timeout})
}

// RunScript runs `npm run <script>`.
func (n *NPM) RunScript(ctx context.Context, script string) error {
	res, err := n.run(ctx, "npm", "run", script)
	if n.Stream != nil {
		n.Stream(res)
	}
	return err
}

// WhoAmI returns the logged in npm user.
func (n *NPM) WhoAmI(ctx context.Context) (string, error) {
	res, err := n.run(ctx, "npm", "whoami")
	if err != nil {
		return "", fmt.Errorf("not logged in to npm: %w", err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Version runs `npm version <increment>` without creating a git tag and
// returns the new version.
func (n *NPM) Version(ctx context.Context, increment string) (string, error) {
	res, err := n.run(ctx, "npm", "version", increment, "--no-git-tag-version")
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(strings.TrimSpace(res.Stdout), "v"), nil
}

// Publish runs `npm publish --access public`.
func (n *NPM) Publish(ctx context.Context) error {
	_, err := n.run(ctx, "npm", "publish", "--access", "public")
	return err
}

// Commit stages everything, commits with message and pushes.
func (n *NPM) Commit(ctx context.Context, message string) error {
	steps := [][]string{
		{"add", "--all"},
		{"commit", "-m", message},
		{"push"},
	}
	for _, args := range steps {
		if _, err := n.run(ctx, "git", args...); err != nil {
			return fmt.Errorf("git %s: %w", args[0], err)
		}
	}
	return nil
}
