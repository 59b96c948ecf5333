package toolchain

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// CompileOptions are the per-pass compiler inputs.
type CompileOptions struct {
	// Root is the package root; binaries are looked up from it and the
	// compiler runs in it.
	Root        string
	TSConfig    string
	Declaration bool
	Module      string
	Target      string
}

// Compiler compiles one entry point.
type Compiler interface {
	Compile(ctx context.Context, opts CompileOptions) error
}

// TSC runs the TypeScript compiler.
type TSC struct {
	// Path overrides binary lookup.
	Path    string
	Timeout time.Duration
	// Lib lists extra --lib entries; the pass target is always appended.
	Lib    []string
	Runner Runner
}

// Args returns the compiler arguments for opts.
func (t *TSC) Args(opts CompileOptions) []string {
	lib := append(append([]string(nil), t.Lib...), opts.Target)
	return []string{
		"-p", opts.TSConfig,
		"--declaration", strconv.FormatBool(opts.Declaration),
		"--module", opts.Module,
		"--target", opts.Target,
		"--lib", strings.Join(lib, ","),
	}
}

// Compile implements Compiler.
func (t *TSC) Compile(ctx context.Context, opts CompileOptions) error {
	bin, err := LookupBin(opts.Root, "tsc", t.Path)
	if err != nil {
		return err
	}
	_, err = runner(t.Runner).Run(ctx, Command{
		Bin:     bin,
		Args:    t.Args(opts),
		Dir:     opts.Root,
		Timeout: t.Timeout,
	})
	return err
}

func runner(r Runner) Runner {
	if r == nil {
		return ExecRunner{}
	}
	return r
}
