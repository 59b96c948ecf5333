// Package shim generates the small define/require runtime that lets several
// compiled modules live in one script.
//
// Every module is registered as a factory and evaluated at most once, on its
// first require. Unknown keys fall back to a require already present on the
// host scope, or resolve to an empty object. Nothing in the runtime throws.
package shim

import (
	"encoding/json"
	"strings"
)

// ScopeParam and ModuleParam name the wrapper parameters receiving the host
// global object and the host CommonJS module.
const (
	ScopeParam  = "scope"
	ModuleParam = "hostModule"
)

const defHelper = `var def = function (m) { return m && m.default !== undefined ? m.default : m };
`

const prelude = `var __modules = {};
var __cache = {};
var __previousRequire = scope.require;
function define(key, factory) {
  __modules[key] = factory;
}
function require(key) {
  if (Object.prototype.hasOwnProperty.call(__cache, key)) return __cache[key];
  var factory = __modules[key];
  if (typeof factory === "function") {
    var module = { exports: {} };
    __cache[key] = module.exports;
    delete __modules[key];
    factory.call(module.exports, module.exports, module);
    return (__cache[key] = module.exports);
  }
  if (typeof __previousRequire === "function") return __previousRequire(key);
  return {};
}
if (!scope.define || !scope.require) {
  scope.define = define;
  scope.require = require;
}
`

// Prelude returns the runtime: the def helper, define, require and the
// one-time installation on the host scope.
func Prelude() string {
	return defHelper + prelude
}

// Open starts the wrapper function. With interop the wrapper also receives
// the host module object.
func Open(interop bool) string {
	if interop {
		return "!function (" + ScopeParam + ", " + ModuleParam + ") {\n"
	}
	return "!function (" + ScopeParam + ") {\n"
}

// Close ends the wrapper function and invokes it with the detected host scope.
func Close(interop bool) string {
	var b strings.Builder
	b.WriteString("}(typeof globalThis !== \"undefined\" ? globalThis : typeof self !== \"undefined\" ? self : typeof window !== \"undefined\" ? window : {}")
	if interop {
		b.WriteString(", typeof module !== \"undefined\" ? module : {}")
	}
	b.WriteString(");\n")
	return b.String()
}

// Define wraps content as a module factory registered under key.
func Define(key, content string) string {
	var b strings.Builder
	b.WriteString("define(")
	b.WriteString(Literal(key))
	b.WriteString(", function (exports, module) {\n")
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("});\n")
	return b.String()
}

// Require returns an expression requiring key.
func Require(key string) string {
	return "require(" + Literal(key) + ")"
}

// Literal renders s as a double-quoted JavaScript string literal.
func Literal(s string) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(b.String(), "\n")
}
