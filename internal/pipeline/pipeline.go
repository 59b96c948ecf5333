// Package pipeline drives the per-format build of a package: compile each
// entry point once per format, rename and rewrite the emitted modules,
// optionally bundle and minify them, then export the results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/tsbundle/tsbundle/internal/bundle"
	"github.com/tsbundle/tsbundle/internal/config"
	"github.com/tsbundle/tsbundle/internal/format"
	"github.com/tsbundle/tsbundle/internal/rename"
	"github.com/tsbundle/tsbundle/internal/report"
	"github.com/tsbundle/tsbundle/internal/rewrite"
	"github.com/tsbundle/tsbundle/internal/toolchain"
)

// Phase is a state of the per-pair state machine.
type Phase string

const (
	PhaseCleaning    Phase = "cleaning"
	PhasePreparing   Phase = "preparing"
	PhaseCompiling   Phase = "compiling"
	PhaseRenaming    Phase = "renaming"
	PhaseBundling    Phase = "bundling"
	PhaseCompressing Phase = "compressing"
	PhaseExporting   Phase = "exporting"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// StepsPerFormat is the number of progress steps of every pair. Flat
// formats skip bundling and compressing but still account for them.
const StepsPerFormat = 6

// TotalSteps is the number of progress steps BuildPackage reports for pkg.
func TotalSteps(pkg *config.PackageConfig) int {
	return pkg.TotalFormats()*StepsPerFormat + 1
}

// ProgressFunc receives the current step, the total and a label.
type ProgressFunc func(step, total int, label string)

// renameMarker is the provisional suffix of freshly compiled files.
const renameMarker = ".torename"

// Options tune the bundling path.
type Options struct {
	// TempDir is the parent of per-build working directories.
	TempDir string
	// WorkDir, when set, is used as the working directory instead of
	// allocating one under TempDir.
	WorkDir             string
	Compact             bool
	HoistDefineProperty bool
	CommonJSInterop     bool
}

// Builder builds packages. A Builder holds no per-build state, so one value
// may build several packages concurrently as long as WorkDir is empty.
type Builder struct {
	Fs       afero.Fs
	Compiler toolchain.Compiler
	Minifier toolchain.Minifier
	Rewriter rewrite.ReferenceRewriter
	Options  Options
}

// New creates a Builder using the regular-expression rewriter.
func New(fs afero.Fs, compiler toolchain.Compiler, minifier toolchain.Minifier, opts Options) *Builder {
	return &Builder{
		Fs:       fs,
		Compiler: compiler,
		Minifier: minifier,
		Rewriter: rewrite.Pattern{},
		Options:  opts,
	}
}

// Result is the outcome of a package build.
type Result struct {
	Root     string       `json:"root" yaml:"root"`
	Rows     []report.Row `json:"rows" yaml:"rows"`
	Failures []*PairError `json:"-" yaml:"-"`
}

// Failed reports whether any pair failed.
func (r *Result) Failed() bool {
	return len(r.Failures) > 0
}

type stepper struct {
	n        int
	total    int
	progress ProgressFunc
}

func (s *stepper) step(label string) {
	s.n++
	if s.progress != nil {
		s.progress(s.n, s.total, label)
	}
}

// BuildPackage cleans the package outputs, then builds every (entry point,
// format) pair in order. A failing pair does not stop the others; all pair
// failures are returned joined, next to the rows of the pairs that
// succeeded. Failing to clean the outputs aborts the build.
func (b *Builder) BuildPackage(ctx context.Context, pkg *config.PackageConfig, progress ProgressFunc) (*Result, error) {
	st := &stepper{total: TotalSteps(pkg), progress: progress}
	result := &Result{Root: pkg.Root}

	st.step("Cleaning outputs")
	for _, out := range pkg.Outputs {
		if err := b.Fs.RemoveAll(out); err != nil {
			return result, fmt.Errorf("failed to clean %s: %w", out, err)
		}
	}

	bc, err := b.buildContext()
	if err != nil {
		return result, err
	}
	defer func() {
		if err := bc.Close(); err != nil {
			log.Warn().Err(err).Str("dir", bc.Dir).Msg("Failed to remove working directory")
		}
	}()

	log.Debug().Str("root", pkg.Root).Str("work_dir", bc.Dir).Int("pairs", pkg.TotalFormats()).Msg("Building package")

	var errs []error
	for i := range pkg.Files {
		fc := &pkg.Files[i]
		for j, f := range fc.Formats {
			if err := ctx.Err(); err != nil {
				return result, errors.Join(append(errs, err)...)
			}

			end := st.n + StepsPerFormat
			row, err := b.buildPair(ctx, bc, pkg, fc, f, j == 0, st)

			if resetErr := bc.Reset(); resetErr != nil && err == nil {
				err = &PairError{Input: relInput(pkg, fc), Format: f.Raw, Phase: PhaseDone, Err: resetErr}
			}

			if err != nil {
				var perr *PairError
				if !errors.As(err, &perr) {
					perr = &PairError{Input: relInput(pkg, fc), Format: f.Raw, Phase: PhaseFailed, Err: err}
				}
				log.Error().
					Err(perr.Err).
					Str("file", perr.Input).
					Str("format", perr.Format).
					Str("phase", string(perr.Phase)).
					Msg("Build failed")

				result.Failures = append(result.Failures, perr)
				errs = append(errs, perr)

				st.n = end - 1
				st.step(fmt.Sprintf("Failed %s (%s)", perr.Input, perr.Format))
				continue
			}

			result.Rows = append(result.Rows, row)
		}
	}

	return result, errors.Join(errs...)
}

func (b *Builder) buildContext() (*BuildContext, error) {
	if b.Options.WorkDir != "" {
		return OpenBuildContext(b.Fs, b.Options.WorkDir)
	}
	return NewBuildContext(b.Fs, b.Options.TempDir)
}

func relInput(pkg *config.PackageConfig, fc *config.FileConfig) string {
	rel, err := filepath.Rel(pkg.Root, fc.Input)
	if err != nil {
		return fc.Input
	}
	return filepath.ToSlash(rel)
}

// compiled is the output of the renaming phase.
type compiled struct {
	// files are the renamed module files, sorted.
	files []string
	// entry is the renamed compiled entry point.
	entry string
}

func (b *Builder) buildPair(ctx context.Context, bc *BuildContext, pkg *config.PackageConfig, fc *config.FileConfig, f format.Format, first bool, st *stepper) (report.Row, error) {
	input := relInput(pkg, fc)
	fail := func(phase Phase, err error) error {
		return &PairError{Input: input, Format: f.Raw, Phase: phase, Err: err}
	}

	st.step(fmt.Sprintf("Preparing %s (%s)", input, f))
	if err := bc.Reset(); err != nil {
		return report.Row{}, fail(PhasePreparing, err)
	}
	if err := writeTSConfig(b.Fs, bc, pkg.Root, fc.Input); err != nil {
		return report.Row{}, fail(PhasePreparing, err)
	}

	st.step(fmt.Sprintf("Compiling %s (%s)", input, f))
	err := b.Compiler.Compile(ctx, toolchain.CompileOptions{
		Root:        pkg.Root,
		TSConfig:    bc.TSConfig(),
		Declaration: first && fc.GenerateTypeDefinitions,
		Module:      f.CompilerModule(),
		Target:      f.Target,
	})
	if err != nil {
		return report.Row{}, fail(PhaseCompiling, err)
	}

	st.step(fmt.Sprintf("Renaming %s (%s)", input, f))
	suffix := f.Suffix()
	if f.Bundled() {
		suffix = ".js"
	}
	out, err := b.renameOutputs(bc.OutDir(), suffix, strings.TrimSuffix(input, path.Ext(input)))
	if err != nil {
		return report.Row{}, fail(PhaseRenaming, err)
	}

	row := report.Row{
		Input:   input,
		Format:  f.Raw,
		Module:  f.CompilerModule(),
		Target:  f.Target,
		Files:   len(out.files),
		Bundled: f.Bundled(),
	}

	var outputFileName string
	if f.Bundled() {
		outputFileName = fc.OutName + "." + f.Raw
		sizes, err := b.bundlePair(ctx, bc, pkg, fc, f, out, outputFileName, first, st)
		if err != nil {
			return report.Row{}, err
		}
		row.Sizes = sizes
		row.Files += len(fc.Include)
	} else {
		st.n += 2
		st.step(fmt.Sprintf("Exporting %s to %s", input, fc.Output))

		for _, file := range out.files {
			s, err := report.Weigh(b.Fs, file)
			if err != nil {
				return report.Row{}, fail(PhaseExporting, err)
			}
			row.Sizes.Add(s)
		}
		if _, err := copyTree(b.Fs, bc.OutDir(), fc.OutputDir, fc.Excluded); err != nil {
			return report.Row{}, fail(PhaseExporting, err)
		}
		rel, _ := filepath.Rel(bc.OutDir(), out.entry)
		outputFileName = filepath.ToSlash(rel)
	}

	row.Output = filepath.ToSlash(filepath.Join(fc.Output, outputFileName))

	if fc.ExportBits {
		p, err := report.WriteBadge(b.Fs, pkg.Root, filepath.Base(outputFileName), row.Sizes.Gzip)
		if err != nil {
			return report.Row{}, fail(PhaseExporting, err)
		}
		rel, _ := filepath.Rel(pkg.Root, p)
		row.Badge = filepath.ToSlash(rel)
	}

	log.Debug().
		Str("file", input).
		Str("format", f.Raw).
		Str("output", row.Output).
		Int("files", row.Files).
		Int64("size", row.Sizes.Raw).
		Msg("Built")

	return row, nil
}

func (b *Builder) bundlePair(ctx context.Context, bc *BuildContext, pkg *config.PackageConfig, fc *config.FileConfig, f format.Format, out compiled, outputFileName string, first bool, st *stepper) (report.Sizes, error) {
	input := relInput(pkg, fc)
	fail := func(phase Phase, err error) error {
		return &PairError{Input: input, Format: f.Raw, Phase: phase, Err: err}
	}

	st.step(fmt.Sprintf("Bundling %s", outputFileName))
	files := append([]string(nil), out.files...)
	includes := make([]string, 0, len(fc.Include))
	for _, p := range fc.Include {
		includes = append(includes, p)
	}
	sort.Strings(includes)
	files = append(files, includes...)

	bundlePath := filepath.Join(bc.BundleDir(), outputFileName)
	err := bundle.Assemble(b.Fs, bundle.Options{
		Files:               files,
		EntryPoint:          out.entry,
		Output:              bundlePath,
		LibraryName:         fc.LibraryName,
		ExportMap:           fc.ExportMap,
		Includes:            fc.Include,
		CommonJSInterop:     b.Options.CommonJSInterop,
		HoistDefineProperty: b.Options.HoistDefineProperty,
		Compact:             b.Options.Compact,
	})
	if err != nil {
		return report.Sizes{}, fail(PhaseBundling, err)
	}

	st.step(fmt.Sprintf("Compressing %s", outputFileName))
	err = b.Minifier.Minify(ctx, b.Fs, toolchain.MinifyOptions{Root: pkg.Root, File: bundlePath, Format: f})
	if err != nil {
		return report.Sizes{}, fail(PhaseCompressing, err)
	}

	sizes, err := report.Weigh(b.Fs, bundlePath)
	if err != nil {
		return report.Sizes{}, fail(PhaseCompressing, err)
	}

	st.step(fmt.Sprintf("Exporting %s to %s", outputFileName, fc.Output))
	if err := moveFile(b.Fs, bundlePath, filepath.Join(fc.OutputDir, outputFileName)); err != nil {
		return report.Sizes{}, fail(PhaseExporting, err)
	}
	if first && fc.GenerateTypeDefinitions {
		skip := func(rel string) bool { return !isDeclaration(rel) || fc.Excluded(rel) }
		if _, err := copyTree(b.Fs, bc.OutDir(), fc.OutputDir, skip); err != nil {
			return report.Sizes{}, fail(PhaseExporting, err)
		}
	}

	return sizes, nil
}

// renameOutputs gives every compiled .js file under dir the suffix, through
// a provisional marker so that files renamed earlier in the pass are never
// matched again, and rewrites local references between them.
func (b *Builder) renameOutputs(dir, suffix, inputStem string) (compiled, error) {
	marked, err := rename.Matching(b.Fs, dir, rename.Extension(".js"), suffix+renameMarker)
	if err != nil {
		return compiled{}, err
	}
	if len(marked) == 0 {
		return compiled{}, ErrNoOutput
	}

	locals := rewrite.NewLocals()
	for original := range marked {
		locals.Add(original)
	}

	isMarked := func(p string) bool { return strings.HasSuffix(p, renameMarker) }
	if err := rewrite.RewriteTree(b.Fs, dir, b.Rewriter, locals, suffix, isMarked); err != nil {
		return compiled{}, err
	}

	final, err := rename.Matching(b.Fs, dir, rename.Suffix(renameMarker), "")
	if err != nil {
		return compiled{}, err
	}

	out := compiled{files: final.Renamed(), entry: entryFile(dir, marked, final, inputStem)}
	if out.entry == "" {
		return compiled{}, fmt.Errorf("%w: no compiled file for entry point %q", ErrNoOutput, inputStem)
	}

	return out, nil
}

// entryFile picks the renamed compiled entry point. The compiler mirrors
// the source tree below the common root of its inputs, so the entry is the
// compiled file whose path, without extension, is the longest trailing
// part of inputStem, the package-relative input path without extension.
// When none lines up, the shallowest file named after the input is used.
func entryFile(dir string, marked, final rename.Mapping, inputStem string) string {
	name := path.Base(inputStem)

	var best, fallback string
	bestLen, fallbackDepth := -1, -1
	for original, provisional := range marked {
		renamed, ok := final[provisional]
		if !ok {
			continue
		}
		rel, err := filepath.Rel(dir, original)
		if err != nil {
			continue
		}
		rel = strings.TrimSuffix(filepath.ToSlash(rel), ".js")
		if path.Base(rel) != name {
			continue
		}

		if rel == inputStem || strings.HasSuffix(inputStem, "/"+rel) {
			if len(rel) > bestLen || (len(rel) == bestLen && renamed < best) {
				best, bestLen = renamed, len(rel)
			}
			continue
		}

		depth := strings.Count(rel, "/")
		if fallbackDepth < 0 || depth < fallbackDepth || (depth == fallbackDepth && renamed < fallback) {
			fallback, fallbackDepth = renamed, depth
		}
	}

	if best != "" {
		return best
	}
	return fallback
}
