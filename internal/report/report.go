// Package report weighs build artifacts and renders report rows and size
// badges.
package report

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/andybalholm/brotli"
	"github.com/spf13/afero"
)

// Sizes are byte counts of an artifact, raw and compressed.
type Sizes struct {
	Raw    int64 `json:"raw" yaml:"raw"`
	Gzip   int64 `json:"gzip" yaml:"gzip"`
	Brotli int64 `json:"brotli" yaml:"brotli"`
}

// Add accumulates o into s.
func (s *Sizes) Add(o Sizes) {
	s.Raw += o.Raw
	s.Gzip += o.Gzip
	s.Brotli += o.Brotli
}

// Weigh reads path from fsys and measures it.
func Weigh(fsys afero.Fs, path string) (Sizes, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Sizes{}, fmt.Errorf("failed to weigh %s: %w", path, err)
	}
	return WeighBytes(data)
}

// WeighBytes measures data.
func WeighBytes(data []byte) (Sizes, error) {
	s := Sizes{Raw: int64(len(data))}

	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return s, err
	}
	if _, err := gz.Write(data); err != nil {
		return s, err
	}
	if err := gz.Close(); err != nil {
		return s, err
	}
	s.Gzip = int64(buf.Len())

	buf.Reset()
	br := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := br.Write(data); err != nil {
		return s, err
	}
	if err := br.Close(); err != nil {
		return s, err
	}
	s.Brotli = int64(buf.Len())

	return s, nil
}

// HumanSize renders a byte count as "<n>b", or "<n>kb" truncated to two
// decimals above 1000 bytes.
func HumanSize(n int64) string {
	if n > 1000 {
		kb := float64(n/10) / 100
		return strconv.FormatFloat(kb, 'f', -1, 64) + "kb"
	}
	return strconv.FormatInt(n, 10) + "b"
}

// Badge returns a small SVG showing size.
func Badge(size string) string {
	return fmt.Sprintf(
		`<svg width="%d" height="22" xmlns="http://www.w3.org/2000/svg">`+
			`<text y="21" font-size="16px" font-family="monospace" fill="green">%s</text>`+
			`</svg>`,
		len(size)*10, size,
	)
}

// WriteBadge writes <root>/bits/<name>.svg showing the compressed size and
// returns its path.
func WriteBadge(fsys afero.Fs, root, name string, compressed int64) (string, error) {
	p := filepath.Join(root, "bits", name+".svg")
	if err := fsys.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("failed to create bits directory: %w", err)
	}
	if err := afero.WriteFile(fsys, p, []byte(Badge(HumanSize(compressed))), 0o644); err != nil {
		return "", fmt.Errorf("failed to write badge: %w", err)
	}
	return p, nil
}

// NotApplicable fills compressed-size cells of flat outputs.
const NotApplicable = "—"

// Headers are the column names matching Row.Cells.
var Headers = []string{"File", "Module", "Target", "Output", "Bundle", "Size", "GZip", "Brotli"}

// Row describes one built (entry point, format) pair.
type Row struct {
	Input   string `json:"input" yaml:"input"`
	Format  string `json:"format" yaml:"format"`
	Module  string `json:"module" yaml:"module"`
	Target  string `json:"target" yaml:"target"`
	Output  string `json:"output" yaml:"output"`
	Files   int    `json:"files" yaml:"files"`
	Bundled bool   `json:"bundled" yaml:"bundled"`
	Sizes   Sizes  `json:"sizes" yaml:"sizes"`
	Badge   string `json:"badge,omitempty" yaml:"badge,omitempty"`
}

// Cells renders the row for a table.
func (r Row) Cells() []string {
	kind := "flat"
	if r.Bundled {
		kind = "bundle"
	}
	plural := ""
	if r.Files != 1 {
		plural = "s"
	}

	gz, br := NotApplicable, NotApplicable
	if r.Bundled {
		gz, br = HumanSize(r.Sizes.Gzip), HumanSize(r.Sizes.Brotli)
	}

	return []string{
		r.Input,
		r.Module,
		r.Target,
		r.Output,
		fmt.Sprintf("%d file%s %s", r.Files, plural, kind),
		HumanSize(r.Sizes.Raw),
		gz,
		br,
	}
}
