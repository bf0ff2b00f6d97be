// Package fetcher implements the bundler's module-resolution and
// source-retrieval stage: resolving a specifier against a referrer across
// the file://, http(s)://, and host:// schemes, with an on-disk HTTP
// cache, redirect-loop detection, and stale-on-failure fallback.
package fetcher

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/hostexports"
)

// Fetcher is the default core.Fetcher implementation.
type Fetcher struct {
	fs   afero.Fs
	cfg  core.BundlerConfig
	http *httpFetcher
	diag func(line string)
}

// New builds a Fetcher. fs backs file:// reads (afero.NewOsFs() in
// production, afero.NewMemMapFs() in tests). diag receives one line per
// "Fetched: <url>" and cache-fallback warning; pass nil to discard.
func New(cfg core.BundlerConfig, fs afero.Fs, diag func(string)) *Fetcher {
	if diag == nil {
		diag = func(string) {}
	}
	return &Fetcher{
		fs:   fs,
		cfg:  cfg,
		http: newHTTPFetcher(cfg, diag),
		diag: diag,
	}
}

// ResolveURI applies the specifier resolution policy without fetching,
// for callers (the resolver, following a re-export chain) that need an
// absolute URI from a specifier/referrer pair but already have the source
// bytes for other reasons.
func (f *Fetcher) ResolveURI(specifier, referrer string) (string, error) {
	return f.resolve(specifier, referrer)
}

// Fetch implements core.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, specifier, referrer string) (string, []byte, error) {
	uri, err := f.resolve(specifier, referrer)
	if err != nil {
		return "", nil, err
	}

	scheme := schemeOf(uri)
	switch scheme {
	case core.SchemeFile:
		src, err := f.fetchFile(uri)
		return uri, decodeSource(src), err
	case core.SchemeHTTP:
		src, err := f.http.fetch(ctx, uri, f.cfg.Reload)
		return uri, decodeSource(src), err
	case core.SchemeHost:
		if !hostexports.Known(uri) {
			return "", nil, &core.NotFoundError{URI: uri}
		}
		return uri, nil, nil
	default:
		return "", nil, &core.NotFoundError{URI: uri}
	}
}

// decodeSource normalizes fetched source bytes to plain UTF-8: a UTF-8
// or UTF-16 byte-order mark is honored and stripped, anything else is
// passed through untouched.
func decodeSource(src []byte) []byte {
	if src == nil {
		return nil
	}
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, src)
	if err != nil {
		return src
	}
	return out
}

// resolve turns a specifier/referrer pair into an absolute URI: absolute
// URIs pass through, the standard-library tag maps to its bundled path,
// relative specifiers combine with the referrer, and a remote referrer
// may never produce a non-HTTP URI.
func (f *Fetcher) resolve(specifier, referrer string) (string, error) {
	if isAbsoluteURI(specifier) {
		if referrer != "" && schemeOf(referrer) == core.SchemeHTTP && schemeOf(specifier) != core.SchemeHTTP {
			return "", &core.HostEscapeError{Referrer: referrer, Specifier: specifier}
		}
		return specifier, nil
	}

	if specifier == f.cfg.StdLibSpecifier && f.cfg.StdLibSpecifier != "" {
		root := f.cfg.StdLibPath
		if root == "" {
			root = "file:///usr/local/share/funee/std/index.ts"
			return root, nil
		}
		return "file://" + root, nil
	}

	if referrer == "" {
		return "", &core.NotFoundError{URI: specifier}
	}

	if !strings.HasPrefix(specifier, ".") {
		// Bare specifier with a non-stdlib tag: unsupported, no
		// node_modules-style resolution in this bundler.
		return "", &core.NotFoundError{URI: specifier}
	}

	refScheme := schemeOf(referrer)
	resolved, err := resolveRelative(referrer, specifier)
	if err != nil {
		return "", &core.NotFoundError{URI: specifier}
	}

	if refScheme == core.SchemeHTTP && schemeOf(resolved) != core.SchemeHTTP {
		return "", &core.HostEscapeError{Referrer: referrer, Specifier: specifier}
	}
	if schemeOf(resolved) == core.SchemeFile {
		resolved = ensureSourceExtension(resolved)
	}
	return resolved, nil
}

// sourceExtensions are the suffixes a file:// module URI may carry
// explicitly. An extensionless relative import (`./utils`) canonicalizes
// to its .ts form so both spellings name the same module.
var sourceExtensions = []string{".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs"}

func ensureSourceExtension(uri string) string {
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(uri, ext) {
			return uri
		}
	}
	return uri + ".ts"
}

func isAbsoluteURI(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "file://") || strings.HasPrefix(s, "host://")
}

func schemeOf(uri string) core.ModuleScheme {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return core.SchemeHTTP
	case strings.HasPrefix(uri, "host://"):
		return core.SchemeHost
	default:
		return core.SchemeFile
	}
}

// resolveRelative combines specifier with referrer's URI, preserving
// scheme and authority, the way a browser resolves a relative <script src>.
func resolveRelative(referrer, specifier string) (string, error) {
	base, err := url.Parse(referrer)
	if err != nil {
		return "", err
	}
	rel, err := url.Parse(specifier)
	if err != nil {
		return "", err
	}
	resolved := base.ResolveReference(rel)
	resolved.Path = path.Clean(resolved.Path)
	return resolved.String(), nil
}

func (f *Fetcher) fetchFile(uri string) ([]byte, error) {
	p := filePathFromURI(uri)
	exists, err := afero.Exists(f.fs, p)
	if err != nil || !exists {
		return nil, &core.NotFoundError{URI: uri}
	}
	data, err := afero.ReadFile(f.fs, p)
	if err != nil {
		return nil, &core.NotFoundError{URI: uri}
	}
	return data, nil
}

func filePathFromURI(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return strings.TrimPrefix(uri, "file://")
}
