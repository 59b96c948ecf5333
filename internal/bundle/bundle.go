// Package bundle splices compiled CommonJS modules into a single
// self-executing script using the runtime from package shim.
package bundle

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/tsbundle/tsbundle/internal/shim"
)

// ErrNoFiles is returned when there is nothing to bundle.
var ErrNoFiles = errors.New("no compiled files to bundle")

// Options describes one bundle.
type Options struct {
	// Files are the compiled module files. Their order does not matter.
	Files []string
	// EntryPoint is the compiled entry file; keys of the other files are
	// relative to its directory.
	EntryPoint string
	// Output is the path the bundle is written to.
	Output string
	// LibraryName is the name the bundle is exposed under on the host scope.
	LibraryName string
	// ExportMap maps exposed names to module keys such as "./split".
	ExportMap map[string]string
	// Includes maps package names to files registered under that name.
	Includes map[string]string

	CommonJSInterop     bool
	HoistDefineProperty bool
	Compact             bool
}

// Assemble builds the bundle described by opts and writes it to opts.Output.
func Assemble(fsys afero.Fs, opts Options) error {
	text, err := Build(fsys, opts)
	if err != nil {
		return err
	}

	if err := fsys.MkdirAll(filepath.Dir(opts.Output), 0o755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}
	if err := afero.WriteFile(fsys, opts.Output, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}

	log.Debug().
		Str("output", opts.Output).
		Int("modules", len(opts.Files)).
		Int("bytes", len(text)).
		Msg("Assembled bundle")

	return nil
}

// Build returns the bundle text without writing it.
func Build(fsys afero.Fs, opts Options) (string, error) {
	if len(opts.Files) == 0 {
		return "", ErrNoFiles
	}
	if opts.LibraryName == "" {
		return "", errors.New("bundle needs a library name")
	}

	files := append([]string(nil), opts.Files...)
	sort.Strings(files)

	includeByPath := make(map[string]string, len(opts.Includes))
	for name, p := range opts.Includes {
		includeByPath[filepath.Clean(p)] = name
	}

	entryDir := filepath.Dir(opts.EntryPoint)
	entryKey := ""

	moduleKeys := make([]string, len(files))
	defined := make(map[string]bool, len(files))
	for i, file := range files {
		key, isInclude := includeByPath[filepath.Clean(file)]
		if !isInclude {
			var err error
			if key, err = localKey(entryDir, file); err != nil {
				return "", err
			}
		}
		moduleKeys[i] = key
		defined[key] = true
	}

	var body strings.Builder
	for i, file := range files {
		data, err := afero.ReadFile(fsys, file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}

		key := moduleKeys[i]
		content := string(data)
		if _, isInclude := includeByPath[filepath.Clean(file)]; !isInclude {
			content = ResolveRequires(content, key, defined)
		}
		if filepath.Clean(file) == filepath.Clean(opts.EntryPoint) {
			entryKey = key
		}

		body.WriteString(shim.Define(key, content))
	}

	if entryKey == "" {
		return "", fmt.Errorf("entry point %s is not among the bundled files", opts.EntryPoint)
	}

	text := Cleanup(body.String())

	hoisted := false
	if opts.HoistDefineProperty {
		text, hoisted = HoistDefineProperty(text)
	}

	var keys map[string]int
	if opts.Compact {
		text, keys = Compact(text)
	}
	ref := func(key string) string {
		if n, ok := keys[key]; ok {
			return strconv.Itoa(n)
		}
		return shim.Literal(key)
	}

	var out strings.Builder
	out.WriteString(shim.Open(opts.CommonJSInterop))
	out.WriteString(shim.Prelude())
	if hoisted {
		out.WriteString("var " + definePropertyAlias + " = Object.defineProperty;\n")
	}
	out.WriteString(text)
	out.WriteString(trailer(opts, ref(entryKey), ref))
	out.WriteString(shim.Close(opts.CommonJSInterop))

	return out.String(), nil
}

func trailer(opts Options, entry string, ref func(string) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "var exports = require(%s);\n", entry)

	if len(opts.ExportMap) > 1 {
		names := make([]string, 0, len(opts.ExportMap))
		for name := range opts.ExportMap {
			names = append(names, name)
		}
		sort.Strings(names)

		entries := make([]string, 0, len(names))
		for _, name := range names {
			entries = append(entries, shim.Literal(name)+": "+ref(opts.ExportMap[name]))
		}

		b.WriteString("var lib = {};\n")
		b.WriteString("var exportMap = {" + strings.Join(entries, ", ") + "};\n")
		b.WriteString("for (var name in exportMap) {\n")
		b.WriteString("  var sub = require(exportMap[name]);\n")
		b.WriteString("  Object.assign(lib, sub);\n")
		b.WriteString("  " + shim.ScopeParam + "[name] = def(sub);\n")
		b.WriteString("}\n")
	} else {
		b.WriteString("var lib = exports;\n")
		fmt.Fprintf(&b, "%s[%s] = def(lib);\n", shim.ScopeParam, shim.Literal(opts.LibraryName))
	}

	fmt.Fprintf(&b, "define(%s, function (exports, module) { module.exports = lib; });\n", shim.Literal(opts.LibraryName))

	if opts.CommonJSInterop {
		fmt.Fprintf(&b, "if (%[1]s && %[1]s.exports) %[1]s.exports = lib;\n", shim.ModuleParam)
	}
	return b.String()
}

// localKey returns "./" + the slash-separated path of file relative to dir,
// without its .js extension.
func localKey(dir, file string) (string, error) {
	rel, err := filepath.Rel(dir, file)
	if err != nil {
		return "", fmt.Errorf("failed to compute module key for %s: %w", file, err)
	}
	return normalizeKey(filepath.ToSlash(rel)), nil
}

func normalizeKey(p string) string {
	p = strings.TrimSuffix(path.Clean(p), ".js")
	if strings.HasPrefix(p, "../") || p == ".." {
		return p
	}
	return "./" + p
}

var (
	requirePattern     = regexp.MustCompile(`\brequire\(\s*(["'])(\.\.?/[^"'\r\n]*)(["'])\s*\)`)
	bareRequirePattern = regexp.MustCompile(`\brequire\(\s*(["'])([^"'./@\s][^"'/\r\n]*)(["'])\s*\)`)
)

// ResolveRequires rewrites the require specs inside the module registered
// as key so that they equal the keys of their targets. "../util" required
// from "./sub/a" becomes "./util", and so does "../util.js".
//
// With defined, the set of keys in the bundle, a directory spec resolves
// to its index module when only that one is defined, and a bare spec such
// as "helper" or "helper.js" resolves to the local module of that name:
// "./helper" next to the entry point, else the first defined key with that
// base name. Bare specs naming no local module are left alone.
func ResolveRequires(content, key string, defined map[string]bool) string {
	dir := path.Dir(key)
	content = requirePattern.ReplaceAllStringFunc(content, func(match string) string {
		m := requirePattern.FindStringSubmatch(match)
		if len(m) != 4 || m[1] != m[3] {
			return match
		}
		target := normalizeKey(path.Join(dir, m[2]))
		if defined != nil && !defined[target] {
			if index := normalizeKey(path.Join(dir, m[2], "index")); defined[index] {
				target = index
			}
		}
		return shim.Require(target)
	})

	if len(defined) == 0 {
		return content
	}
	return bareRequirePattern.ReplaceAllStringFunc(content, func(match string) string {
		m := bareRequirePattern.FindStringSubmatch(match)
		if len(m) != 4 || m[1] != m[3] || defined[m[2]] {
			return match
		}
		if target, ok := bareKey(strings.TrimSuffix(m[2], ".js"), defined); ok {
			return shim.Require(target)
		}
		return match
	})
}

func bareKey(name string, defined map[string]bool) (string, bool) {
	for _, k := range []string{"./" + name, "./" + name + "/index"} {
		if defined[k] {
			return k, true
		}
	}

	var found []string
	for k := range defined {
		if (strings.HasPrefix(k, "./") || strings.HasPrefix(k, "../")) && path.Base(k) == name {
			found = append(found, k)
		}
	}
	if len(found) == 0 {
		return "", false
	}
	sort.Strings(found)
	return found[0], true
}

var (
	esModuleFlagLine = regexp.MustCompile(`(?m)^[ \t]*Object\.defineProperty\(exports, "__esModule", \{ value: true \}\);?[ \t]*\r?\n?`)
	voidExportsLine  = regexp.MustCompile(`(?m)^[ \t]*exports\.[\w$]+(?:[ \t]*=[ \t]*exports\.[\w$]+)*[ \t]*=[ \t]*void 0;[ \t]*\r?\n?`)
)

// Cleanup removes the compiler's "__esModule" flag lines and the lines
// initializing named exports to undefined.
func Cleanup(text string) string {
	text = esModuleFlagLine.ReplaceAllString(text, "")
	return voidExportsLine.ReplaceAllString(text, "")
}

const definePropertyAlias = "__defineProperty"

// HoistThreshold is the number of Object.defineProperty calls from which
// HoistDefineProperty rewrites them to a local alias.
const HoistThreshold = 3

// HoistDefineProperty replaces Object.defineProperty( calls with a shorter
// alias when there are at least HoistThreshold of them. The caller declares
// the alias when the second result is true.
func HoistDefineProperty(text string) (string, bool) {
	const call = "Object.defineProperty("
	if strings.Count(text, call) < HoistThreshold {
		return text, false
	}
	return strings.ReplaceAll(text, call, definePropertyAlias+"("), true
}

var keyPattern = regexp.MustCompile(`\b(define|require)\(\s*(["'])(\./[^"'\r\n]*)(["'])`)

// Compact gives every local key (a "./" path) passed to define a sequential
// number in the order the define calls appear, then rewrites the define and
// require calls using those keys. Keys that are never defined and
// non-local keys stay strings. Compacting compacted text changes nothing.
func Compact(text string) (string, map[string]int) {
	keys := make(map[string]int)
	for _, m := range keyPattern.FindAllStringSubmatch(text, -1) {
		if m[1] != "define" || m[2] != m[4] {
			continue
		}
		if _, ok := keys[m[3]]; !ok {
			keys[m[3]] = len(keys)
		}
	}
	if len(keys) == 0 {
		return text, keys
	}

	out := keyPattern.ReplaceAllStringFunc(text, func(match string) string {
		m := keyPattern.FindStringSubmatch(match)
		if len(m) != 5 || m[2] != m[4] {
			return match
		}
		n, ok := keys[m[3]]
		if !ok {
			return match
		}
		return m[1] + "(" + strconv.Itoa(n)
	})
	return out, keys
}
