// Package rewrite finds module references in compiled JavaScript and
// rewrites the ones that point at files produced by the current build.
//
// Matching is done with regular expressions over text, not with a parser.
// The ReferenceRewriter interface keeps that heuristic swappable.
package rewrite

import (
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Class is the result of classifying a module specifier.
type Class int

const (
	External Class = iota
	Local
)

func (c Class) String() string {
	if c == Local {
		return "local"
	}
	return "external"
}

// Locals is the set of base names (no directory, no extension) of the
// files emitted by the current build pass.
type Locals map[string]struct{}

// NewLocals builds a Locals set from file paths or names.
func NewLocals(paths ...string) Locals {
	l := make(Locals, len(paths))
	for _, p := range paths {
		l.Add(p)
	}
	return l
}

// Add records the base name of p.
func (l Locals) Add(p string) {
	if b := BaseName(p); b != "" {
		l[b] = struct{}{}
	}
}

// Has reports whether name is a known local base name.
func (l Locals) Has(name string) bool {
	_, ok := l[name]
	return ok
}

// ReferenceRewriter rewrites local module references in a source buffer so
// that they carry suffix in place of their original extension.
type ReferenceRewriter interface {
	Rewrite(source string, locals Locals, suffix string) string
}

// Covers `from "x"`, side-effect `import "x"`, dynamic `import("x")` and
// `require("x")`. Quotes are checked for balance in code.
var referencePattern = regexp.MustCompile(
	`(\bfrom|\bimport\s*\(|\brequire\s*\(|\bimport)(\s*)(["'])([^"'\r\n]*)(["'])`,
)

// Pattern is the regular-expression ReferenceRewriter.
type Pattern struct{}

// Rewrite implements ReferenceRewriter.
func (Pattern) Rewrite(source string, locals Locals, suffix string) string {
	return referencePattern.ReplaceAllStringFunc(source, func(match string) string {
		m := referencePattern.FindStringSubmatch(match)
		if len(m) != 6 || m[3] != m[5] {
			return match
		}
		spec := m[4]
		if Classify(spec, locals) != Local {
			return match
		}
		return m[1] + m[2] + m[3] + WithSuffix(spec, suffix) + m[5]
	})
}

// Reference is a module specifier found in a source buffer.
type Reference struct {
	Keyword string
	Spec    string
}

// References lists every module specifier in source, in order of appearance.
func References(source string) []Reference {
	var refs []Reference
	for _, m := range referencePattern.FindAllStringSubmatch(source, -1) {
		if m[3] != m[5] {
			continue
		}
		kw := strings.TrimRight(m[1], " \t\r\n(")
		refs = append(refs, Reference{Keyword: kw, Spec: m[4]})
	}
	return refs
}

// Classify decides whether spec refers to a file of the current build.
//
// A spec is local when its base name is a known local, or when its
// relative prefix is exactly "./". Specs reaching into node_modules,
// absolute paths and scheme-qualified names ("node:fs") are always
// external. A bare spec (no relative prefix) is local only when it is a
// single path segment naming a known local; scoped and nested bare specs
// such as "@scope/x" or "lodash/fp" stay external.
func Classify(spec string, locals Locals) Class {
	if spec == "" || strings.Contains(spec, ":") || strings.HasPrefix(spec, "/") {
		return External
	}
	for _, seg := range strings.Split(spec, "/") {
		if seg == "node_modules" {
			return External
		}
	}

	prefix, rest := splitPrefix(spec)
	if rest == "" {
		return External
	}

	if prefix == "" {
		if strings.HasPrefix(rest, "@") || strings.Contains(rest, "/") {
			return External
		}
		if locals.Has(BaseName(rest)) {
			return Local
		}
		return External
	}

	if prefix == "./" || locals.Has(BaseName(rest)) {
		return Local
	}
	return External
}

// WithSuffix drops the extension of spec's last segment and appends suffix,
// keeping the relative prefix and directories: "./a/b.js" + ".es2019.cjs"
// gives "./a/b.es2019.cjs".
func WithSuffix(spec, suffix string) string {
	dir, file := path.Split(spec)
	return dir + BaseName(file) + suffix
}

// BaseName returns the last path segment of p with everything from its
// first dot removed. Leading dots are kept so "./" style names never
// collapse to the empty string.
func BaseName(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	if i := strings.Index(p, "."); i > 0 {
		p = p[:i]
	}
	return p
}

// splitPrefix separates the leading run of "./" and "../" segments.
func splitPrefix(spec string) (prefix, rest string) {
	rest = spec
	for {
		switch {
		case strings.HasPrefix(rest, "./"):
			prefix += "./"
			rest = rest[2:]
		case strings.HasPrefix(rest, "../"):
			prefix += "../"
			rest = rest[3:]
		default:
			return prefix, rest
		}
	}
}

// RewriteTree applies rw to every file under root accepted by match (all
// files when match is nil) and writes back the files that changed.
func RewriteTree(fsys afero.Fs, root string, rw ReferenceRewriter, locals Locals, suffix string, match func(string) bool) error {
	return afero.Walk(fsys, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || (match != nil && !match(p)) {
			return nil
		}

		data, err := afero.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}

		out := rw.Rewrite(string(data), locals, suffix)
		if out == string(data) {
			return nil
		}

		log.Debug().Str("file", p).Str("suffix", suffix).Msg("Rewrote module references")

		if err := afero.WriteFile(fsys, p, []byte(out), info.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to write %s: %w", p, err)
		}
		return nil
	})
}
