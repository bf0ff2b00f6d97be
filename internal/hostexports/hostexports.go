// Package hostexports holds the fixed host:// module registry:
// the set of synthetic module URIs the Fetcher recognizes and
// the export names each one carries. It has no behavior of its own — the
// behavior lives in internal/hostruntime — this package is the single
// source of truth both the Fetcher and the host runtime bind against, so
// the two can never drift out of sync.
package hostexports

import "strings"

// Registry maps each host:// URI to its fixed, ordered export names.
var Registry = map[string][]string{
	"host://fs": {
		"readFile", "readFileBinary", "writeFile", "writeFileBinary",
		"isFile", "exists", "lstat", "mkdir", "readdir", "tmpdir",
	},
	"host://http":        {"fetch"},
	"host://http/server": {"serve", "createResponse", "createJsonResponse"},
	"host://process":     {"spawn"},
	"host://time":        {"setTimeout", "clearTimeout", "setInterval", "clearInterval"},
	"host://watch":       {"watchStart", "watchPoll", "watchStop", "watchFile", "watchDirectory"},
	"host://crypto":      {"randomBytes"},
	"host://console":     {"log", "debug"},
}

// Known reports whether uri names a recognized host:// module.
func Known(uri string) bool {
	_, ok := Registry[uri]
	return ok
}

// Exports returns the fixed export names for a host:// module URI, or nil
// if uri is not a recognized host module.
func Exports(uri string) []string {
	return Registry[uri]
}

// HasExport reports whether name is among uri's fixed exports.
func HasExport(uri, name string) bool {
	for _, n := range Registry[uri] {
		if n == name {
			return true
		}
	}
	return false
}

// IsHostURI reports whether uri uses the host:// scheme, regardless of
// whether it names a recognized module.
func IsHostURI(uri string) bool {
	return strings.HasPrefix(uri, "host://")
}

// GlobalBindingName computes the stable global identifier the emitter's
// preamble and the host runtime agree to bind a host export under:
// e.g. "host://http/server" + "serve" becomes
// "__host_http_server_serve". Both sides import this package so renaming
// one side can never silently desync from the other.
func GlobalBindingName(uri, name string) string {
	trimmed := strings.TrimPrefix(uri, "host://")
	safe := strings.NewReplacer("/", "_", ".", "_", "-", "_").Replace(trimmed)
	return "__host_" + safe + "_" + name
}
