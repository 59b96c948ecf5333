// Package output provides output formatting for the tsbundle CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format represents the output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", s)
	}
}

// Formatter formats output in various formats
type Formatter struct {
	Format    Format
	NoHeaders bool
	Quiet     bool
	Writer    io.Writer
	ErrWriter io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(format Format, noHeaders, quiet bool) *Formatter {
	return &Formatter{
		Format:    format,
		NoHeaders: noHeaders,
		Quiet:     quiet,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

// Print outputs data in the configured format
func (f *Formatter) Print(data interface{}) error {
	if f.Quiet {
		return nil
	}

	switch f.Format {
	case FormatYAML:
		return f.printYAML(data)
	default:
		// table mode has no generic rendering, fall back to JSON
		return f.printJSON(data)
	}
}

func (f *Formatter) printJSON(data interface{}) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(data)
}

func (f *Formatter) printYAML(data interface{}) error {
	encoder := yaml.NewEncoder(f.Writer)
	encoder.SetIndent(2)
	defer func() { _ = encoder.Close() }()
	return encoder.Encode(data)
}

// TableData represents tabular data for table output
type TableData struct {
	// Title is printed above the table, in table mode only.
	Title   string
	Headers []string
	Rows    [][]string
	// Footer is an optional summary line, in table mode only.
	Footer []string
}

// PrintTable prints formatted table output. Structured formats receive a
// list of header-keyed maps instead.
func (f *Formatter) PrintTable(data TableData) {
	if f.Quiet {
		return
	}

	if f.Format != FormatTable {
		_ = f.Print(data.records())
		return
	}

	if data.Title != "" {
		_, _ = fmt.Fprintf(f.Writer, "\n%s\n", data.Title)
	}

	table := newTable(f.Writer)
	if !f.NoHeaders && len(data.Headers) > 0 {
		table.SetHeader(data.Headers)
	}
	if len(data.Footer) > 0 {
		table.SetFooter(data.Footer)
		table.SetFooterAlignment(tablewriter.ALIGN_LEFT)
	}
	table.AppendBulk(data.Rows)
	table.Render()
}

// records keys every row cell by its header. Cells beyond the headers are
// dropped.
func (d TableData) records() []map[string]string {
	out := make([]map[string]string, len(d.Rows))
	for i, row := range d.Rows {
		rec := make(map[string]string, len(d.Headers))
		for j, cell := range row {
			if j < len(d.Headers) {
				rec[d.Headers[j]] = cell
			}
		}
		out[i] = rec
	}
	return out
}

// newTable returns a borderless, left-aligned, tab-padded table.
func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	return table
}

// message writes one status line to w, prefixed when prefix is set.
// Quiet mode silences every line except errors.
func (f *Formatter) message(w io.Writer, prefix, text string, always bool) {
	if f.Quiet && !always {
		return
	}
	if prefix != "" {
		_, _ = fmt.Fprintln(w, prefix, text)
		return
	}
	_, _ = fmt.Fprintln(w, text)
}

// PrintSuccess prints a success message
func (f *Formatter) PrintSuccess(message string) {
	f.message(f.Writer, "", message, false)
}

// PrintError prints an error message, even in quiet mode
func (f *Formatter) PrintError(message string) {
	f.message(f.ErrWriter, "Error:", message, true)
}

// PrintWarning prints a warning message
func (f *Formatter) PrintWarning(message string) {
	f.message(f.ErrWriter, "Warning:", message, false)
}

// PrintInfo prints progress information to the error stream, keeping the
// standard output for reports.
func (f *Formatter) PrintInfo(message string) {
	f.message(f.ErrWriter, "", message, false)
}

// PrintKeyValue prints a key-value pair
func (f *Formatter) PrintKeyValue(key, value string) {
	if f.Quiet {
		return
	}

	switch f.Format {
	case FormatJSON:
		_ = f.printJSON(map[string]string{key: value})
	case FormatYAML:
		_ = f.printYAML(map[string]string{key: value})
	default:
		_, _ = fmt.Fprintf(f.Writer, "%s: %s\n", key, value)
	}
}

// PrintList prints a list of items
func (f *Formatter) PrintList(items []string) {
	if f.Quiet {
		return
	}

	switch f.Format {
	case FormatJSON:
		_ = f.printJSON(items)
	case FormatYAML:
		_ = f.printYAML(items)
	default:
		for _, item := range items {
			_, _ = fmt.Fprintln(f.Writer, item)
		}
	}
}
