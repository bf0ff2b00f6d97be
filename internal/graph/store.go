package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/hostexports"
	"github.com/funee-dev/funee/internal/jsparse"
)

// uriResolver is the subset of *fetcher.Fetcher the Store needs, kept as
// an interface so graph doesn't import fetcher directly (fetcher already
// depends on core; graph depending on fetcher too is fine layering-wise,
// but the interface keeps graph's tests free of any real I/O).
type uriResolver interface {
	core.Fetcher
	ResolveURI(specifier, referrer string) (string, error)
}

// Store is the module cache for one bundler run: it fetches, parses, and
// memoizes every module visited, and implements resolver.ModuleStore.
type Store struct {
	ctx     context.Context
	fetcher uriResolver
	modules map[string]*core.Module
}

// NewStore builds a Store around a fetcher for the given run context.
func NewStore(ctx context.Context, f uriResolver) *Store {
	return &Store{ctx: ctx, fetcher: f, modules: make(map[string]*core.Module)}
}

// ResolveModuleURI implements the optional interface internal/resolver
// probes for when following a re-export chain requires resolving a
// specifier against a referrer.
func (s *Store) ResolveModuleURI(specifier, referrer string) (string, error) {
	return s.fetcher.ResolveURI(specifier, referrer)
}

// Load implements resolver.ModuleStore: returns the module at uri,
// fetching and parsing it on first access.
func (s *Store) Load(uri string) (*core.Module, error) {
	if err := ensureAbsolute(uri); err != nil {
		return nil, err
	}
	if mod, ok := s.modules[uri]; ok {
		return mod, nil
	}

	scheme := schemeOf(uri)
	mod := core.NewModule(uri, scheme)

	if scheme == core.SchemeHost {
		if !hostexports.Known(uri) {
			return nil, &core.NotFoundError{URI: uri}
		}
		mod.Synthetic = true
		for _, name := range hostexports.Exports(uri) {
			mod.Exports[name] = core.ExportBinding{LocalName: name}
		}
		s.modules[uri] = mod
		return mod, nil
	}

	_, src, err := s.fetcher.Fetch(s.ctx, uri, "")
	if err != nil {
		return nil, err
	}
	mod.Source = string(src)

	pm, err := jsparse.Parse(uri, mod.Source)
	if err != nil {
		return nil, err
	}
	mod.Exports = pm.Exports
	mod.Imports = pm.Imports
	mod.StarReExports = pm.StarReExports
	mod.Declarations = pm.Declarations
	mod.DeclKinds = pm.DeclKinds

	s.modules[uri] = mod
	return mod, nil
}

// LoadRelative fetches and parses the module specifier resolves to
// relative to referrer, a convenience wrapper around the fetcher's
// ResolveURI + Load.
func (s *Store) LoadRelative(specifier, referrer string) (*core.Module, error) {
	uri, err := s.fetcher.ResolveURI(specifier, referrer)
	if err != nil {
		return nil, err
	}
	return s.Load(uri)
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

// ensureAbsolute is a defensive guard in Load. It rejects only the empty
// URI and does not check for a scheme: specifier resolution always
// happens at the point an import or re-export is followed, never inside
// Load itself.
func ensureAbsolute(uri string) error {
	if uri == "" {
		return fmt.Errorf("graph: empty module URI")
	}
	return nil
}
