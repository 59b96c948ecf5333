// Package format parses output format specifiers such as "es2019.cjs" or
// "es2017.min.js".
package format

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is the module kind selected by a specifier's trailing extension.
type Kind string

const (
	// CommonJS is selected by the "cjs" extension.
	CommonJS Kind = "commonjs"
	// ESModule is selected by the "mjs" extension.
	ESModule Kind = "esnext"
	// Bundle is selected by the "js" extension (UMD-like browser script).
	Bundle Kind = "bundle"
)

var targetPattern = regexp.MustCompile(`^es(\d+|next)$`)

// Format is a parsed format specifier.
type Format struct {
	// Raw is the lower-cased specifier as written, e.g. "es2017.min.js".
	Raw    string `json:"format" yaml:"format"`
	Target string `json:"target" yaml:"target"`
	Minify bool   `json:"minify" yaml:"minify"`
	Ext    string `json:"ext" yaml:"ext"`
	Kind   Kind   `json:"kind" yaml:"kind"`
}

// Error reports a malformed format specifier.
type Error struct {
	Spec   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid format %q: %s", e.Spec, e.Reason)
}

// Parse parses a specifier of the form <target>[.min].<ext>.
func Parse(spec string) (Format, error) {
	raw := strings.ToLower(strings.TrimSpace(spec))
	parts := strings.Split(raw, ".")

	if len(parts) < 2 {
		return Format{}, &Error{Spec: spec, Reason: "expected <target>[.min].<ext>"}
	}
	if len(parts) > 3 {
		return Format{}, &Error{Spec: spec, Reason: "too many segments"}
	}

	f := Format{Raw: raw, Target: parts[0], Ext: parts[len(parts)-1]}

	if len(parts) == 3 {
		if parts[1] != "min" {
			return Format{}, &Error{Spec: spec, Reason: fmt.Sprintf("unknown segment %q", parts[1])}
		}
		f.Minify = true
	}

	if !targetPattern.MatchString(f.Target) {
		return Format{}, &Error{Spec: spec, Reason: fmt.Sprintf("unknown target %q", parts[0])}
	}

	switch f.Ext {
	case "cjs":
		f.Kind = CommonJS
	case "mjs":
		f.Kind = ESModule
	case "js":
		f.Kind = Bundle
	default:
		return Format{}, &Error{Spec: spec, Reason: fmt.Sprintf("unknown extension %q (valid: cjs, mjs, js)", f.Ext)}
	}

	if f.Minify && f.Kind != Bundle {
		return Format{}, &Error{Spec: spec, Reason: "min is only valid with the .js extension"}
	}

	return f, nil
}

// MustParse is like Parse but panics on error. Intended for defaults and tests.
func MustParse(spec string) Format {
	f, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return f
}

// String returns the normalized specifier.
func (f Format) String() string {
	return f.Raw
}

// CompilerModule returns the value passed to the compiler's --module flag.
func (f Format) CompilerModule() string {
	if f.Kind == ESModule {
		return "esnext"
	}
	return "commonjs"
}

// Bundled reports whether the format produces a single-file bundle.
func (f Format) Bundled() bool {
	return f.Minify
}

// Suffix is the suffix appended to every flat output file of this format,
// e.g. ".es2019.cjs".
func (f Format) Suffix() string {
	return "." + f.Target + "." + f.Ext
}
