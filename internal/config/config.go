// Package config loads and validates package bundling configuration and
// the tool's own settings.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"

	"github.com/tsbundle/tsbundle/internal/format"
)

// FormatsSentinel in a format list expands to the default formats.
const FormatsSentinel = "defaults"

// DefaultFormats are built when nothing else is configured.
var DefaultFormats = []string{"es2019.cjs", "es2022.mjs", "es2017.min.js"}

// DefaultTestFormat is the single format built by the test command.
const DefaultTestFormat = "es2020.mjs"

// DefaultOutput is the output directory used when none is configured.
const DefaultOutput = "./dist/"

// Error is a configuration error. It is always fatal for the package.
type Error struct {
	// Path is the file or directory the error is about.
	Path string
	// Key is the manifest key, when relevant.
	Key string
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Path != "" {
		b.WriteString(": " + e.Path)
	}
	if e.Key != "" {
		b.WriteString(": " + e.Key)
	}
	b.WriteString(": " + e.Err.Error())
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func configErr(path, key, format string, args ...any) error {
	return &Error{Path: path, Key: key, Err: fmt.Errorf(format, args...)}
}

// Layer holds the overridable settings of one configuration level.
// Nil or empty fields do not override lower layers.
type Layer struct {
	Output                  *string
	Formats                 []string
	GenerateTypeDefinitions *bool
	ExportBits              *bool
}

// Defaults returns the tool default layer.
func Defaults(formats []string) Layer {
	out := DefaultOutput
	gen, bits := true, false
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	return Layer{
		Output:                  &out,
		Formats:                 append([]string(nil), formats...),
		GenerateTypeDefinitions: &gen,
		ExportBits:              &bits,
	}
}

// Resolve merges layers in increasing precedence.
func Resolve(layers ...Layer) Layer {
	var r Layer
	for _, l := range layers {
		if l.Output != nil {
			r.Output = l.Output
		}
		if len(l.Formats) > 0 {
			r.Formats = l.Formats
		}
		if l.GenerateTypeDefinitions != nil {
			r.GenerateTypeDefinitions = l.GenerateTypeDefinitions
		}
		if l.ExportBits != nil {
			r.ExportBits = l.ExportBits
		}
	}
	return r
}

// ExpandFormats replaces the "defaults" sentinel with defaults, in place,
// and drops repeated formats keeping the first occurrence.
func ExpandFormats(formats, defaults []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(f string) {
		key := strings.ToLower(strings.TrimSpace(f))
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, f)
	}

	for _, f := range formats {
		if strings.EqualFold(strings.TrimSpace(f), FormatsSentinel) {
			for _, d := range defaults {
				add(d)
			}
			continue
		}
		add(f)
	}
	return out
}

// ValidateOutput resolves output against root and checks it is a strict
// sub-directory of root outside node_modules.
func ValidateOutput(root, output string) (string, error) {
	if strings.TrimSpace(output) == "" {
		return "", configErr(root, "output", "output directory cannot be empty")
	}

	for _, seg := range strings.FieldsFunc(filepath.ToSlash(output), func(r rune) bool { return r == '/' }) {
		if seg == "node_modules" {
			return "", configErr(output, "output", "output directory cannot be inside node_modules")
		}
	}

	abs := output
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, output)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", configErr(output, "output", "output directory must be a sub-directory of the package root %s", root)
	}

	return abs, nil
}

// PackageConfig is a validated package build configuration.
type PackageConfig struct {
	Root    string
	Name    string
	Version string
	Scripts map[string]string
	Files   []FileConfig
	// Outputs are the absolute output directories, de-duplicated.
	Outputs []string
}

// TotalFormats is the number of (entry point, format) pairs.
func (p *PackageConfig) TotalFormats() int {
	n := 0
	for _, f := range p.Files {
		n += len(f.Formats)
	}
	return n
}

// WithFormats returns a copy of p building only formats.
func (p *PackageConfig) WithFormats(formats ...format.Format) *PackageConfig {
	cp := *p
	cp.Files = make([]FileConfig, len(p.Files))
	for i, f := range p.Files {
		f.Formats = append([]format.Format(nil), formats...)
		cp.Files[i] = f
	}
	return &cp
}

// FileConfig is one validated entry point.
type FileConfig struct {
	// Input is the absolute entry point path.
	Input string
	// EntryName is the input file name without its extension.
	EntryName string
	// Output is the output directory relative to the package root.
	Output string
	// OutputDir is the absolute output directory.
	OutputDir               string
	Formats                 []format.Format
	GenerateTypeDefinitions bool
	LibraryName             string
	OutName                 string
	// ExportMap maps exposed names to bundle module keys ("./split").
	ExportMap map[string]string
	// Include maps package names to absolute file paths.
	Include    map[string]string
	ExportBits bool
	Exclude    []string
	excludes   []glob.Glob
}

// Excluded reports whether rel, a slash-separated path relative to the
// output directory, matches one of the exclude patterns.
func (f *FileConfig) Excluded(rel string) bool {
	for _, g := range f.excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// LoadPackage reads <root>/package.json and normalizes it.
func LoadPackage(fsys afero.Fs, root string, defaults Layer) (*PackageConfig, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, configErr(root, "", "invalid package root: %v", err)
	}

	manifestPath := filepath.Join(abs, ManifestFile)
	data, err := afero.ReadFile(fsys, manifestPath)
	if err != nil {
		return nil, &Error{Path: manifestPath, Err: err}
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, &Error{Path: manifestPath, Err: err}
	}

	return Normalize(fsys, abs, m, defaults)
}

// Normalize validates m and resolves every entry against defaults. Either
// the whole package is valid or an *Error is returned.
func Normalize(fsys afero.Fs, root string, m *Manifest, defaults Layer) (*PackageConfig, error) {
	if m.Section == nil {
		return nil, configErr(filepath.Join(root, ManifestFile), SectionKey, "missing bundling section")
	}
	if len(m.Section.Files) == 0 {
		return nil, configErr(filepath.Join(root, ManifestFile), SectionKey+".files", "no entry points configured")
	}

	pkgLayer := Layer{
		Output:                  m.Section.Output,
		Formats:                 m.Section.Formats,
		GenerateTypeDefinitions: m.Section.GenerateTypeDefinitions,
		ExportBits:              m.Section.ExportBits,
	}

	pkg := &PackageConfig{
		Root:    root,
		Name:    m.Name,
		Version: m.Version,
		Scripts: m.Scripts,
	}

	seenOutputs := make(map[string]bool)
	for i, entry := range m.Section.Files {
		fc, err := normalizeFile(fsys, root, entry, pkgLayer, defaults)
		if err != nil {
			var cerr *Error
			if errors.As(err, &cerr) && cerr.Key == "" {
				cerr.Key = fmt.Sprintf("%s.files[%d]", SectionKey, i)
			}
			return nil, err
		}
		pkg.Files = append(pkg.Files, fc)
		if !seenOutputs[fc.OutputDir] {
			seenOutputs[fc.OutputDir] = true
			pkg.Outputs = append(pkg.Outputs, fc.OutputDir)
		}
	}

	return pkg, nil
}

func normalizeFile(fsys afero.Fs, root string, entry FileEntry, pkgLayer, defaults Layer) (FileConfig, error) {
	if entry.Input == "" {
		return FileConfig{}, configErr(root, "", "input is required")
	}

	input := entry.Input
	if !filepath.IsAbs(input) {
		input = filepath.Join(root, input)
	}
	input = filepath.Clean(input)

	if ok, err := afero.Exists(fsys, input); err != nil || !ok {
		return FileConfig{}, configErr(input, "input", "entry point does not exist")
	}

	resolved := Resolve(defaults, pkgLayer, Layer{
		Output:                  entry.Output,
		Formats:                 entry.Formats,
		GenerateTypeDefinitions: entry.GenerateTypeDefinitions,
		ExportBits:              entry.ExportBits,
	})

	outputDir, err := ValidateOutput(root, *resolved.Output)
	if err != nil {
		return FileConfig{}, err
	}
	outputRel, _ := filepath.Rel(root, outputDir)

	fc := FileConfig{
		Input:                   input,
		EntryName:               stem(input),
		Output:                  outputRel,
		OutputDir:               outputDir,
		GenerateTypeDefinitions: *resolved.GenerateTypeDefinitions,
		ExportBits:              *resolved.ExportBits,
		OutName:                 entry.OutName,
		LibraryName:             entry.LibraryName,
		Exclude:                 entry.Exclude,
	}

	for _, spec := range ExpandFormats(resolved.Formats, defaults.Formats) {
		f, err := parseFormat(spec)
		if err != nil {
			return FileConfig{}, configErr(input, "formats", "%v", err)
		}
		fc.Formats = append(fc.Formats, f)
	}
	if len(fc.Formats) == 0 {
		return FileConfig{}, configErr(input, "formats", "no formats configured")
	}

	if fc.OutName == "" {
		fc.OutName = fc.EntryName
	}
	if fc.LibraryName == "" {
		fc.LibraryName = fc.OutName
	}

	if len(entry.ExportMap) > 0 {
		fc.ExportMap = make(map[string]string, len(entry.ExportMap))
		for name, p := range entry.ExportMap {
			key, err := moduleKey(root, filepath.Dir(input), p)
			if err != nil {
				return FileConfig{}, configErr(p, "exportMap."+name, "%v", err)
			}
			fc.ExportMap[name] = key
		}
	}

	if len(entry.Include) > 0 {
		fc.Include = make(map[string]string, len(entry.Include))
		for name, p := range entry.Include {
			abs := p
			if !filepath.IsAbs(abs) {
				abs = filepath.Join(root, p)
			}
			abs = filepath.Clean(abs)
			if ok, err := afero.Exists(fsys, abs); err != nil || !ok {
				return FileConfig{}, configErr(abs, "include."+name, "included file does not exist")
			}
			fc.Include[name] = abs
		}
	}

	for _, pattern := range entry.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return FileConfig{}, configErr(input, "exclude", "invalid pattern %q: %v", pattern, err)
		}
		fc.excludes = append(fc.excludes, g)
	}

	return fc, nil
}

func parseFormat(spec string) (format.Format, error) {
	return format.Parse(spec)
}

var sourceExtensions = []string{".d.ts", ".tsx", ".ts", ".mts", ".cts", ".jsx", ".js", ".mjs", ".cjs"}

// stem returns the file name of p without its source extension.
func stem(p string) string {
	base := filepath.Base(p)
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(base, ext) && len(base) > len(ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// moduleKey turns a root-relative source path into the bundle key of its
// compiled module, relative to the entry point directory.
func moduleKey(root, entryDir, p string) (string, error) {
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, p)
	}
	rel, err := filepath.Rel(entryDir, filepath.Clean(abs))
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(filepath.Join(filepath.Dir(rel), stem(rel)))
	if rel == "." || rel == "" {
		return "", fmt.Errorf("export path is empty")
	}
	if strings.HasPrefix(rel, "../") {
		return rel, nil
	}
	return "./" + rel, nil
}
