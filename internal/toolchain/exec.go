// Package toolchain runs the external programs a build depends on: the
// TypeScript compiler, the minifier, npm and git.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrTimeout is returned when a subprocess exceeds its timeout.
var ErrTimeout = errors.New("timed out")

// DefaultTimeout applies when a tool is configured without a timeout.
const DefaultTimeout = 5 * time.Minute

// Command describes one subprocess invocation.
type Command struct {
	Bin     string
	Args    []string
	Dir     string
	Timeout time.Duration
	Env     []string
}

// Result holds the captured output of a finished subprocess.
type Result struct {
	Stdout string
	Stderr string
}

// Runner executes commands. The default runner uses os/exec; tests swap it.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Bin, c.Args...) //nolint:gosec // binaries are resolved by LookupBin
	cmd.Dir = c.Dir
	cmd.WaitDelay = 2 * time.Second
	cmd.Env = append(filterEnvVars(os.Environ(), "NODE_OPTIONS"), c.Env...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().
		Str("bin", c.Bin).
		Strs("args", c.Args).
		Str("dir", c.Dir).
		Msg("Running tool")

	runErr := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if runCtx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("%s %w after %s", filepath.Base(c.Bin), ErrTimeout, timeout)
	}

	if runErr != nil {
		msg := res.Stderr
		if strings.TrimSpace(msg) == "" {
			msg = res.Stdout
		}
		if strings.TrimSpace(msg) == "" {
			msg = runErr.Error()
		}
		return res, &ToolError{Tool: filepath.Base(c.Bin), Output: cleanToolError(msg), Err: runErr}
	}

	return res, nil
}

// ToolError is returned when a tool exits unsuccessfully.
type ToolError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Tool, e.Output)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// cleanToolError keeps the lines of tool output that carry a diagnostic.
func cleanToolError(msg string) string {
	msg = ansiPattern.ReplaceAllString(msg, "")

	var relevant []string
	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "error") ||
			strings.Contains(line, "Error") ||
			strings.Contains(line, "ERR!") ||
			strings.Contains(line, "Unexpected") ||
			strings.Contains(line, "Cannot find") {
			relevant = append(relevant, line)
		}
	}

	if len(relevant) > 0 {
		return strings.Join(relevant, "\n")
	}
	return strings.TrimSpace(msg)
}

// filterEnvVars returns a copy of env with the specified variable names removed
func filterEnvVars(env []string, names ...string) []string {
	result := make([]string, 0, len(env))
	for _, e := range env {
		skip := false
		for _, name := range names {
			if strings.HasPrefix(e, name+"=") {
				skip = true
				break
			}
		}
		if !skip {
			result = append(result, e)
		}
	}
	return result
}

// LookupBin resolves a tool binary. An explicitly configured path wins, then
// <root>/node_modules/.bin/<name>, then $PATH.
func LookupBin(root, name, configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured %s binary not found: %w", name, err)
		}
		return configured, nil
	}

	local := filepath.Join(root, "node_modules", ".bin", name)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s is required; install it in the package (npm i -D %s) or add it to PATH", name, packageFor(name))
	}
	return p, nil
}

func packageFor(bin string) string {
	if bin == "tsc" {
		return "typescript"
	}
	return bin
}
