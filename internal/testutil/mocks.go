// Package testutil provides shared test utilities and mocks for unit testing.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/tsbundle/tsbundle/internal/toolchain"
)

// ErrMockCompile is a ready-made compiler failure
var ErrMockCompile = errors.New("error TS2304: Cannot find name 'nope'")

// MockCompiler implements toolchain.Compiler for testing. Instead of running
// tsc it reads the generated tsconfig from Fs and writes one .js file (and
// one .d.ts file when declarations are requested) per entry of Outputs into
// the configured outDir.
type MockCompiler struct {
	mu    sync.Mutex
	Fs    afero.Fs
	calls []toolchain.CompileOptions

	// Outputs maps paths relative to outDir, without extension, to the
	// JavaScript each one should contain.
	Outputs map[string]string

	// Callbacks for custom behavior
	OnCompile func(ctx context.Context, opts toolchain.CompileOptions) error
}

// NewMockCompiler creates a new mock compiler writing into fs
func NewMockCompiler(fs afero.Fs, outputs map[string]string) *MockCompiler {
	return &MockCompiler{Fs: fs, Outputs: outputs}
}

// Compile records the call and emits Outputs
func (m *MockCompiler) Compile(ctx context.Context, opts toolchain.CompileOptions) error {
	m.mu.Lock()
	m.calls = append(m.calls, opts)
	m.mu.Unlock()

	if m.OnCompile != nil {
		if err := m.OnCompile(ctx, opts); err != nil {
			return err
		}
	}

	data, err := afero.ReadFile(m.Fs, opts.TSConfig)
	if err != nil {
		return fmt.Errorf("mock compiler: %w", err)
	}
	var cfg struct {
		CompilerOptions struct {
			OutDir string `json:"outDir"`
		} `json:"compilerOptions"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("mock compiler: %w", err)
	}

	outDir := cfg.CompilerOptions.OutDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(filepath.Dir(opts.TSConfig), outDir)
	}

	for rel, js := range m.Outputs {
		base := filepath.Join(outDir, filepath.FromSlash(rel))
		if err := m.Fs.MkdirAll(filepath.Dir(base), 0o755); err != nil {
			return err
		}
		if err := afero.WriteFile(m.Fs, base+".js", []byte(js), 0o644); err != nil {
			return err
		}
		if opts.Declaration {
			decl := fmt.Sprintf("export declare const %s: unknown;\n", path.Base(rel))
			if err := afero.WriteFile(m.Fs, base+".d.ts", []byte(decl), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

// Calls returns the recorded compiler invocations
func (m *MockCompiler) Calls() []toolchain.CompileOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]toolchain.CompileOptions(nil), m.calls...)
}

// MockMinifier implements toolchain.Minifier for testing. By default it
// drops blank lines and indentation.
type MockMinifier struct {
	mu    sync.Mutex
	files []string

	// Callbacks for custom behavior
	OnMinify func(ctx context.Context, opts toolchain.MinifyOptions) error
}

// NewMockMinifier creates a new mock minifier
func NewMockMinifier() *MockMinifier {
	return &MockMinifier{}
}

// Minify records the call and squeezes the file
func (m *MockMinifier) Minify(ctx context.Context, fs afero.Fs, opts toolchain.MinifyOptions) error {
	m.mu.Lock()
	m.files = append(m.files, opts.File)
	m.mu.Unlock()

	if m.OnMinify != nil {
		if err := m.OnMinify(ctx, opts); err != nil {
			return err
		}
	}

	data, err := afero.ReadFile(fs, opts.File)
	if err != nil {
		return err
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return afero.WriteFile(fs, opts.File, []byte(strings.Join(lines, "\n")), 0o644)
}

// Files returns the minified file paths
func (m *MockMinifier) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.files...)
}

// MockRunner implements toolchain.Runner for testing
type MockRunner struct {
	mu       sync.Mutex
	commands []toolchain.Command

	// Responses maps "bin arg0" (e.g. "npm whoami") to canned output
	Responses map[string]toolchain.Result

	// Callbacks for custom behavior
	OnRun func(ctx context.Context, cmd toolchain.Command) error
}

// NewMockRunner creates a new mock runner
func NewMockRunner() *MockRunner {
	return &MockRunner{Responses: make(map[string]toolchain.Result)}
}

// Run records the command and returns the canned response
func (m *MockRunner) Run(ctx context.Context, cmd toolchain.Command) (toolchain.Result, error) {
	m.mu.Lock()
	m.commands = append(m.commands, cmd)
	m.mu.Unlock()

	key := cmd.Bin
	if len(cmd.Args) > 0 {
		key += " " + cmd.Args[0]
	}
	res := m.Responses[key]

	if m.OnRun != nil {
		if err := m.OnRun(ctx, cmd); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Commands returns the recorded commands rendered as "bin args..."
func (m *MockRunner) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.commands))
	for _, c := range m.commands {
		out = append(out, strings.TrimSpace(c.Bin+" "+strings.Join(c.Args, " ")))
	}
	return out
}

// Tree returns every file under root in fs, relative to root, slash
// separated and sorted
func Tree(fs afero.Fs, root string) ([]string, error) {
	var files []string
	err := afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
