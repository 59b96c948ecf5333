package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tsbundle/tsbundle/cli/output"
	"github.com/tsbundle/tsbundle/cli/util"
	"github.com/tsbundle/tsbundle/internal/config"
	"github.com/tsbundle/tsbundle/internal/format"
	"github.com/tsbundle/tsbundle/internal/pipeline"
	"github.com/tsbundle/tsbundle/internal/report"
)

// errBuildFailed is returned when at least one pair failed. The failures
// themselves are printed in the Failed table.
var errBuildFailed = errors.New("build failed")

var buildFormats []string

var buildCmd = &cobra.Command{
	Use:   "build [project...]",
	Short: "Build packages",
	Long: `Build every entry point of the targeted packages in every configured format.

Output directories are cleaned first. A failing (entry point, format) pair
does not stop the others; the command exits non-zero when any pair failed.

Examples:
  tsbundle build
  tsbundle build ./packages/core ./packages/ui
  tsbundle build --format es2017.min.js -o json`,
	PreRunE: requireSettings,
	RunE:    runBuild,
}

func init() {
	buildCmd.Flags().StringSliceVarP(&buildFormats, "format", "f", nil,
		"build only these formats, ignoring the manifest")
}

func runBuild(cmd *cobra.Command, args []string) error {
	pkgs, loadErr := loadProjects(args)
	if pkgs == nil {
		return loadErr
	}

	if len(buildFormats) > 0 {
		var err error
		pkgs, err = withFormats(pkgs, buildFormats...)
		if err != nil {
			return err
		}
	}

	return errors.Join(buildAndReport(cmd.Context(), pkgs), loadErr)
}

// withFormats restricts every package to formats.
func withFormats(pkgs []*config.PackageConfig, specs ...string) ([]*config.PackageConfig, error) {
	formats := make([]format.Format, 0, len(specs))
	for _, s := range specs {
		f, err := format.Parse(s)
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}

	out := make([]*config.PackageConfig, len(pkgs))
	for i, pkg := range pkgs {
		out[i] = pkg.WithFormats(formats...)
	}
	return out, nil
}

func buildAndReport(ctx context.Context, pkgs []*config.PackageConfig) error {
	f := GetFormatter()

	progress := newProgress(pkgs, !quiet && f.Format == output.FormatTable && util.IsTerminal(os.Stderr))
	results, err := buildAll(ctx, newBuilder(settings), pkgs, settings.Build.Parallel, progress.For)
	progress.Finish()

	printResults(f, results, IsDebug())

	if err != nil {
		var perr *pipeline.PairError
		if errors.As(err, &perr) {
			return errBuildFailed
		}
		return err
	}
	return nil
}

// buildAll builds pkgs with at most parallel packages at a time. Every
// package gets its own working directory, so builds never share state.
// The results are in pkgs order.
func buildAll(ctx context.Context, b *pipeline.Builder, pkgs []*config.PackageConfig, parallel int, progress func(i int) pipeline.ProgressFunc) ([]*pipeline.Result, error) {
	if parallel < 1 {
		parallel = 1
	}

	results := make([]*pipeline.Result, len(pkgs))
	errs := make([]error, len(pkgs))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, pkg := range pkgs {
		i, pkg := i, pkg
		g.Go(func() error {
			var p pipeline.ProgressFunc
			if progress != nil {
				p = progress(i)
			}
			res, err := b.BuildPackage(ctx, pkg, p)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", pkg.Root, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// progressReporter aggregates the progress of concurrent package builds
// into one bar. A nil reporter reports nothing.
type progressReporter struct {
	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	done []int
}

func newProgress(pkgs []*config.PackageConfig, enabled bool) *progressReporter {
	if !enabled {
		return nil
	}
	total := 0
	for _, pkg := range pkgs {
		total += pipeline.TotalSteps(pkg)
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	return &progressReporter{bar: bar, done: make([]int, len(pkgs))}
}

// For returns the progress callback of the i-th package.
func (p *progressReporter) For(i int) pipeline.ProgressFunc {
	if p == nil {
		return nil
	}
	return func(step, _ int, label string) {
		p.mu.Lock()
		defer p.mu.Unlock()

		p.done[i] = step
		sum := 0
		for _, n := range p.done {
			sum += n
		}
		p.bar.Describe(label)
		_ = p.bar.Set(sum)
	}
}

func (p *progressReporter) Finish() {
	if p == nil {
		return
	}
	_ = p.bar.Finish()
}

// failureReport is the structured form of a failed pair.
type failureReport struct {
	File   string `json:"file" yaml:"file"`
	Format string `json:"format" yaml:"format"`
	Phase  string `json:"phase" yaml:"phase"`
	Error  string `json:"error" yaml:"error"`
}

// packageReport is the structured form of a package build.
type packageReport struct {
	Root     string          `json:"root" yaml:"root"`
	Rows     []report.Row    `json:"rows" yaml:"rows"`
	Failures []failureReport `json:"failures,omitempty" yaml:"failures,omitempty"`
}

func newPackageReport(res *pipeline.Result, verbose bool) packageReport {
	r := packageReport{Root: res.Root, Rows: res.Rows}
	if r.Rows == nil {
		r.Rows = []report.Row{}
	}
	for _, f := range res.Failures {
		msg := f.Err.Error()
		if !verbose {
			msg = util.TruncateString(util.FirstLine(msg), 120)
		}
		r.Failures = append(r.Failures, failureReport{
			File:   f.Input,
			Format: f.Format,
			Phase:  string(f.Phase),
			Error:  msg,
		})
	}
	return r
}

// printResults renders one report table per package and a Failed table
// listing every failed pair. Packages that were never built are skipped.
func printResults(f *output.Formatter, results []*pipeline.Result, verbose bool) {
	var reports []packageReport
	for _, res := range results {
		if res != nil {
			reports = append(reports, newPackageReport(res, verbose))
		}
	}

	if f.Format != output.FormatTable {
		_ = f.Print(reports)
		return
	}

	var failed [][]string
	for _, r := range reports {
		if len(r.Rows) > 0 {
			rows := make([][]string, 0, len(r.Rows))
			for _, row := range r.Rows {
				rows = append(rows, row.Cells())
			}
			f.PrintTable(output.TableData{Title: r.Root, Headers: report.Headers, Rows: rows, Footer: totals(r.Rows)})
		}
		for _, fr := range r.Failures {
			failed = append(failed, []string{fr.File, fr.Format, fr.Phase, fr.Error})
		}
	}

	if len(failed) > 0 {
		f.PrintTable(output.TableData{
			Title:   "Failed",
			Headers: []string{"File", "Format", "Phase", "Error"},
			Rows:    failed,
		})
	}
}

// totals sums the raw size of every output and the compressed sizes of the
// bundles, laid out under report.Headers.
func totals(rows []report.Row) []string {
	var raw int64
	var bundles report.Sizes
	for _, row := range rows {
		raw += row.Sizes.Raw
		if row.Bundled {
			bundles.Add(row.Sizes)
		}
	}

	gz, br := report.NotApplicable, report.NotApplicable
	if bundles.Raw > 0 {
		gz, br = report.HumanSize(bundles.Gzip), report.HumanSize(bundles.Brotli)
	}
	return []string{"Total", "", "", fmt.Sprintf("%d output(s)", len(rows)), "", report.HumanSize(raw), gz, br}
}
