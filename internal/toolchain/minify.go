package toolchain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"

	"github.com/tsbundle/tsbundle/internal/format"
)

// MinifyOptions describe one minification.
type MinifyOptions struct {
	// Root is the package root used for binary lookup.
	Root   string
	File   string
	Format format.Format
}

// Minifier compresses a bundle in place.
type Minifier interface {
	Minify(ctx context.Context, fsys afero.Fs, opts MinifyOptions) error
}

// DefaultTerserArgs are passed to terser before the output arguments.
var DefaultTerserArgs = []string{
	"--compress",
	"--mangle",
	"-d", `process.env.NODE_ENV="PRODUCTION"`,
	"--keep_classnames",
	"--keep_fnames",
	"--toplevel",
	"--module",
}

// Terser minifies with the terser CLI. It works on the real file system.
type Terser struct {
	Path    string
	Timeout time.Duration
	// Args replaces DefaultTerserArgs when set.
	Args   []string
	Runner Runner
}

// CommandArgs returns the terser arguments minifying file in place.
func (t *Terser) CommandArgs(file string) []string {
	args := t.Args
	if len(args) == 0 {
		args = DefaultTerserArgs
	}
	out := append([]string(nil), args...)
	return append(out, "-o", file, "--", file)
}

// Minify implements Minifier.
func (t *Terser) Minify(ctx context.Context, _ afero.Fs, opts MinifyOptions) error {
	bin, err := LookupBin(opts.Root, "terser", t.Path)
	if err != nil {
		return err
	}
	_, err = runner(t.Runner).Run(ctx, Command{
		Bin:     bin,
		Args:    t.CommandArgs(opts.File),
		Dir:     opts.Root,
		Timeout: t.Timeout,
	})
	return err
}

// Esbuild minifies in process with esbuild's transform API.
type Esbuild struct{}

// Minify implements Minifier.
func (Esbuild) Minify(_ context.Context, fsys afero.Fs, opts MinifyOptions) error {
	data, err := afero.ReadFile(fsys, opts.File)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", opts.File, err)
	}

	result := api.Transform(string(data), api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            EsbuildTarget(opts.Format.Target),
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Define: map[string]string{
			"process.env.NODE_ENV": `"PRODUCTION"`,
		},
	})

	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, m := range result.Errors {
			if m.Location != nil {
				msgs = append(msgs, fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text))
			} else {
				msgs = append(msgs, m.Text)
			}
		}
		return &ToolError{Tool: "esbuild", Output: strings.Join(msgs, "\n"), Err: errors.New("transform failed")}
	}

	return afero.WriteFile(fsys, opts.File, result.Code, 0o644)
}

// EsbuildTarget maps a language level such as "es2019" to an esbuild target.
// Unknown or newer levels map to ESNext.
func EsbuildTarget(target string) api.Target {
	switch strings.ToLower(target) {
	case "es5":
		return api.ES5
	case "es6", "es2015":
		return api.ES2015
	case "es2016":
		return api.ES2016
	case "es2017":
		return api.ES2017
	case "es2018":
		return api.ES2018
	case "es2019":
		return api.ES2019
	case "es2020":
		return api.ES2020
	case "es2021":
		return api.ES2021
	case "es2022":
		return api.ES2022
	default:
		return api.ESNext
	}
}
