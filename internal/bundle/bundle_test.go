package bundle

import (
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const indexJS = `"use strict";
Object.defineProperty(exports, "__esModule", { value: true });
exports.greet = void 0;
const helper_1 = require("./helper");
function greet(name) { return helper_1.prefix + name; }
exports.greet = greet;
`

const helperJS = `"use strict";
Object.defineProperty(exports, "__esModule", { value: true });
exports.prefix = exports.other = void 0;
exports.prefix = "hello ";
exports.other = 1;
`

func setup(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tmp/out/index.js", []byte(indexJS), 0644))
	require.NoError(t, afero.WriteFile(fs, "/tmp/out/helper.js", []byte(helperJS), 0644))
	return fs
}

func parses(t *testing.T, code string) {
	t.Helper()
	result := api.Transform(code, api.TransformOptions{Loader: api.LoaderJS})
	for _, msg := range result.Errors {
		t.Errorf("syntax error: %s", msg.Text)
	}
}

func TestAssemble(t *testing.T) {
	fs := setup(t)

	err := Assemble(fs, Options{
		Files:       []string{"/tmp/out/index.js", "/tmp/out/helper.js"},
		EntryPoint:  "/tmp/out/index.js",
		Output:      "/tmp/bundle/index.es2017.min.js",
		LibraryName: "Greeter",
	})
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "/tmp/bundle/index.es2017.min.js")
	require.NoError(t, err)
	out := string(data)

	parses(t, out)
	assert.True(t, strings.HasPrefix(out, "!function (scope) {\n"))
	assert.Contains(t, out, `define("./helper", function (exports, module) {`)
	assert.Contains(t, out, `define("./index", function (exports, module) {`)
	assert.Contains(t, out, `const helper_1 = require("./helper");`)
	assert.Contains(t, out, `var exports = require("./index");`)
	assert.Contains(t, out, `scope["Greeter"] = def(lib);`)
	assert.Contains(t, out, `define("Greeter", function (exports, module) { module.exports = lib; });`)
	assert.NotContains(t, out, `"__esModule"`)
	assert.NotContains(t, out, "void 0;")
	assert.NotContains(t, out, "hostModule")
	assert.Equal(t, 1, strings.Count(out, "function require(key)"), "the runtime is emitted once")
}

func TestAssembleCompactAndInterop(t *testing.T) {
	fs := setup(t)

	out, err := Build(fs, Options{
		Files:           []string{"/tmp/out/index.js", "/tmp/out/helper.js"},
		EntryPoint:      "/tmp/out/index.js",
		LibraryName:     "Greeter",
		Compact:         true,
		CommonJSInterop: true,
	})
	require.NoError(t, err)

	parses(t, out)
	assert.Contains(t, out, "define(0, function (exports, module) {")
	assert.Contains(t, out, "define(1, function (exports, module) {")
	assert.Contains(t, out, "const helper_1 = require(0);")
	assert.Contains(t, out, "var exports = require(1);")
	assert.NotContains(t, out, `"./helper"`)
	assert.Contains(t, out, "if (hostModule && hostModule.exports) hostModule.exports = lib;")
	assert.True(t, strings.HasPrefix(out, "!function (scope, hostModule) {\n"))
}

func TestAssembleExportMapAndIncludes(t *testing.T) {
	fs := setup(t)
	require.NoError(t, afero.WriteFile(fs, "/tmp/out/split.js", []byte(`exports.split = 1;`), 0644))
	require.NoError(t, afero.WriteFile(fs, "/project/vendor/tiny.js", []byte(`exports.tiny = 1;`), 0644))

	out, err := Build(fs, Options{
		Files:       []string{"/tmp/out/index.js", "/tmp/out/helper.js", "/tmp/out/split.js", "/project/vendor/tiny.js"},
		EntryPoint:  "/tmp/out/index.js",
		LibraryName: "Lib",
		ExportMap:   map[string]string{"Greeter": "./index", "Split": "./split"},
		Includes:    map[string]string{"tiny": "/project/vendor/tiny.js"},
		Compact:     true,
	})
	require.NoError(t, err)

	parses(t, out)
	assert.Contains(t, out, `define("tiny", function (exports, module) {`)
	assert.Contains(t, out, `var exportMap = {"Greeter": 1, "Split": 2};`)
	assert.Contains(t, out, "for (var name in exportMap) {")
	assert.Contains(t, out, "scope[name] = def(sub);")
	assert.NotContains(t, out, `scope["Lib"]`)
	assert.Contains(t, out, `define("Lib", function (exports, module) { module.exports = lib; });`)
}

func TestAssembleSingleExportMapEntry(t *testing.T) {
	fs := setup(t)

	out, err := Build(fs, Options{
		Files:       []string{"/tmp/out/index.js", "/tmp/out/helper.js"},
		EntryPoint:  "/tmp/out/index.js",
		LibraryName: "Greeter",
		ExportMap:   map[string]string{"Only": "./index"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, `scope["Greeter"] = def(lib);`)
	assert.NotContains(t, out, "exportMap")
}

func TestAssembleErrors(t *testing.T) {
	fs := setup(t)

	_, err := Build(fs, Options{EntryPoint: "/tmp/out/index.js", LibraryName: "X"})
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = Build(fs, Options{Files: []string{"/tmp/out/helper.js"}, EntryPoint: "/tmp/out/index.js", LibraryName: "X"})
	assert.ErrorContains(t, err, "entry point")

	_, err = Build(fs, Options{Files: []string{"/tmp/out/index.js"}, EntryPoint: "/tmp/out/index.js"})
	assert.Error(t, err)

	_, err = Build(fs, Options{Files: []string{"/tmp/out/missing.js"}, EntryPoint: "/tmp/out/missing.js", LibraryName: "X"})
	assert.Error(t, err)
}

func TestResolveRequires(t *testing.T) {
	tests := []struct {
		key  string
		in   string
		want string
	}{
		{"./index", `require("./helper")`, `require("./helper")`},
		{"./sub/a", `require('../util')`, `require("./util")`},
		{"./sub/a", `require("./b")`, `require("./sub/b")`},
		{"./a", `require("../outside")`, `require("../outside")`},
		{"./a", `require("tslib")`, `require("tslib")`},
		{"./index", `require("./helper.js")`, `require("./helper")`},
		{"./index", `require("helper.js")`, `require("helper.js")`},
	}

	for _, tt := range tests {
		t.Run(tt.key+" "+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRequires(tt.in, tt.key, nil))
		})
	}
}

func TestResolveRequiresWithDefinedKeys(t *testing.T) {
	defined := map[string]bool{
		"./index":      true,
		"./helper":     true,
		"./lib/index":  true,
		"./sub/a":      true,
		"./sub/b":      true,
		"./deep/util":  true,
		"./ui":         true,
		"./ui/index":   true,
		"tiny":         true,
		"../lib/other": true,
	}

	tests := []struct {
		name string
		key  string
		in   string
		want string
	}{
		{"directory resolves to its index", "./index", `require("./lib")`, `require("./lib/index")`},
		{"directory from a nested module", "./sub/a", `require("../lib")`, `require("./lib/index")`},
		{"defined file wins over directory index", "./index", `require("./ui")`, `require("./ui")`},
		{"unknown directory is kept", "./index", `require("./nothing")`, `require("./nothing")`},
		{"bare local next to the entry", "./sub/a", `require("helper.js")`, `require("./helper")`},
		{"bare local without extension", "./index", `require('helper')`, `require("./helper")`},
		{"bare local by base name", "./index", `require("util.js")`, `require("./deep/util")`},
		{"bare local directory", "./index", `require("lib")`, `require("./lib/index")`},
		{"bare local outside the entry directory", "./index", `require("other.js")`, `require("../lib/other")`},
		{"package stays external", "./index", `require("tslib")`, `require("tslib")`},
		{"include name stays", "./index", `require("tiny")`, `require("tiny")`},
		{"scoped package stays", "./index", `require("@scope/helper")`, `require("@scope/helper")`},
		{"nested package path stays", "./index", `require("lodash/fp")`, `require("lodash/fp")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRequires(tt.in, tt.key, defined))
		})
	}
}

func TestAssembleBareLocalAndDirectoryRequires(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tmp/out/index.js", []byte(
		"const helper_1 = require(\"helper.js\");\nconst lib_1 = require(\"./lib\");\nexports.x = helper_1.prefix + lib_1.name;\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/tmp/out/helper.js", []byte(helperJS), 0644))
	require.NoError(t, afero.WriteFile(fs, "/tmp/out/lib/index.js", []byte(`exports.name = "lib";`), 0644))

	out, err := Build(fs, Options{
		Files:       []string{"/tmp/out/index.js", "/tmp/out/helper.js", "/tmp/out/lib/index.js"},
		EntryPoint:  "/tmp/out/index.js",
		LibraryName: "Lib",
		Compact:     true,
	})
	require.NoError(t, err)

	parses(t, out)
	// Keys are numbered in sorted file order: helper, index, lib/index.
	assert.Contains(t, out, "const helper_1 = require(0);")
	assert.Contains(t, out, "const lib_1 = require(2);")
	assert.Contains(t, out, "var exports = require(1);")
	assert.NotContains(t, out, `"helper.js"`)
	assert.NotContains(t, out, `"./lib"`)
}

func TestCleanup(t *testing.T) {
	in := "\"use strict\";\nObject.defineProperty(exports, \"__esModule\", { value: true });\nexports.a = exports.b = void 0;\n  exports.c = void 0;\nexports.a = 1;\n"
	assert.Equal(t, "\"use strict\";\nexports.a = 1;\n", Cleanup(in))
}

func TestHoistDefineProperty(t *testing.T) {
	two := `Object.defineProperty(a, "x", {}); Object.defineProperty(b, "y", {});`
	out, ok := HoistDefineProperty(two)
	assert.False(t, ok)
	assert.Equal(t, two, out)

	three := two + ` Object.defineProperty(c, "z", {});`
	out, ok = HoistDefineProperty(three)
	assert.True(t, ok)
	assert.Equal(t, 3, strings.Count(out, "__defineProperty("))
	assert.NotContains(t, out, "Object.defineProperty(")
}

func TestCompact(t *testing.T) {
	in := `define("./b", function (exports) { require("./a"); require("lib"); require("./missing"); });
define("./a", function (exports) {});
define("pkg", function (exports) {});
var e = require('./b');`

	out, keys := Compact(in)
	assert.Equal(t, map[string]int{"./b": 0, "./a": 1}, keys)
	assert.Contains(t, out, `define(0, function`)
	assert.Contains(t, out, `require(1);`)
	assert.Contains(t, out, `require("lib")`)
	assert.Contains(t, out, `require("./missing")`)
	assert.Contains(t, out, `define("pkg"`)
	assert.Contains(t, out, `var e = require(0);`)

	again, keys2 := Compact(out)
	assert.Equal(t, out, again, "compaction is stable")
	assert.Empty(t, keys2)
}

func TestAssembleHoists(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := `Object.defineProperty(exports, "a", { get: function () { return 1; } });
Object.defineProperty(exports, "b", { get: function () { return 2; } });
Object.defineProperty(exports, "c", { get: function () { return 3; } });
`
	require.NoError(t, afero.WriteFile(fs, "/out/index", []byte(src), 0644))

	out, err := Build(fs, Options{
		Files:               []string{"/out/index"},
		EntryPoint:          "/out/index",
		LibraryName:         "X",
		HoistDefineProperty: true,
	})
	require.NoError(t, err)
	parses(t, out)
	assert.Contains(t, out, "var __defineProperty = Object.defineProperty;\n")
	assert.Equal(t, 3, strings.Count(out, "__defineProperty(exports"))
}
