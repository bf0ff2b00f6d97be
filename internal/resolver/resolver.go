// Package resolver builds each module's export view and follows re-export
// chains to their defining declaration (or a host:// synthetic export),
// resolving aliases to canonical names along the way.
package resolver

import (
	"errors"
	"sort"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/hostexports"
)

// ModuleStore looks up an already-fetched-and-parsed module by URI. The
// graph builder (internal/graph) owns the concrete store; the resolver
// only reads from it, fetching on demand through Load when an import
// crosses into a module not yet visited.
type ModuleStore interface {
	// Load returns the module at uri, fetching and parsing it first if
	// necessary.
	Load(uri string) (*core.Module, error)
}

// Resolver resolves import specifiers and export names to canonical
// declarations.
type Resolver struct {
	store ModuleStore
}

// New builds a Resolver backed by store.
func New(store ModuleStore) *Resolver {
	return &Resolver{store: store}
}

// ResolveExport follows re-export chains starting at module uri's export
// name, returning the canonical (uri, name) of the defining declaration,
// or the host:// synthetic export it terminates at. chain accumulates
// "uri#name" visited so far, for cycle detection.
func (r *Resolver) ResolveExport(uri, name string, chain map[string]bool) (core.CanonicalName, error) {
	key := uri + "#" + name
	if chain[key] {
		ch := make([]string, 0, len(chain))
		for k := range chain {
			ch = append(ch, k)
		}
		sort.Strings(ch)
		return core.CanonicalName{}, &core.ReExportCycleError{Chain: append(ch, key)}
	}
	chain[key] = true

	if hostexports.IsHostURI(uri) {
		if hostexports.HasExport(uri, name) {
			return core.CanonicalName{URI: uri, Name: name}, nil
		}
		return core.CanonicalName{}, &core.MissingExportError{Module: uri, Name: name}
	}

	mod, err := r.store.Load(uri)
	if err != nil {
		return core.CanonicalName{}, err
	}

	if name == "*" {
		return core.CanonicalName{}, &core.MissingExportError{Module: uri, Name: name}
	}

	binding, ok := mod.Exports[name]
	if !ok {
		// Fall back to the star-union namespace: star re-exports union
		// the target's exports (excluding default) into this module's
		// namespace.
		resolved, starErr := r.resolveViaStarUnion(mod, name, chain)
		if starErr != nil {
			return core.CanonicalName{}, starErr
		}
		if resolved != nil {
			return *resolved, nil
		}
		return core.CanonicalName{}, &core.MissingExportError{Module: uri, Name: name}
	}

	if !binding.IsReExport {
		if _, isLocal := mod.Declarations[binding.LocalName]; isLocal {
			return core.CanonicalName{URI: uri, Name: binding.LocalName}, nil
		}
		// `import { a } from "./x"; export { a }` exports an imported
		// binding: follow the import record into its source module.
		if imp, found := findImport(mod, binding.LocalName); found {
			sourceURI, err := r.specifierToURI(uri, imp.SourceSpecifier)
			if err != nil {
				return core.CanonicalName{}, err
			}
			importedName := imp.ImportedName
			if imp.Kind == core.ImportDefault {
				importedName = core.EntryDefaultExport
			}
			return r.ResolveExport(sourceURI, importedName, chain)
		}
		return core.CanonicalName{}, &core.MissingExportError{Module: uri, Name: binding.LocalName}
	}

	// Deferred re-export: follow into the source module.
	sourceURI, err := r.specifierToURI(uri, binding.FromSpecifier)
	if err != nil {
		return core.CanonicalName{}, err
	}

	originalName := binding.OriginalName
	if originalName == "" {
		originalName = name
	}
	if originalName == "*" {
		// `export * as ns from "./x"`: ns refers to the whole namespace,
		// not a single declaration; resolvers that need one member of it
		// should resolve against sourceURI directly.
		return core.CanonicalName{URI: sourceURI, Name: "*"}, nil
	}
	return r.ResolveExport(sourceURI, originalName, chain)
}

// resolveViaStarUnion looks for name among every `export * from` source of
// mod, erroring if more than one provides it without an explicit
// re-export declaration disambiguating the collision.
func (r *Resolver) resolveViaStarUnion(mod *core.Module, name string, chain map[string]bool) (*core.CanonicalName, error) {
	if name == core.EntryDefaultExport {
		return nil, nil // star re-exports exclude the default export
	}

	var found []core.CanonicalName
	var sources []string
	for _, spec := range mod.StarReExports {
		sourceURI, err := r.specifierToURI(mod.URI, spec)
		if err != nil {
			return nil, err
		}
		canon, err := r.ResolveExport(sourceURI, name, cloneChain(chain))
		if err != nil {
			var missing *core.MissingExportError
			if errors.As(err, &missing) {
				continue // this source simply doesn't provide the name
			}
			// Anything else (fetch failure, re-export cycle, parse
			// error) is a genuine fault in the star target, not an
			// absent name: surface it instead of folding it into a
			// MissingExport for the outer module.
			return nil, err
		}
		found = append(found, canon)
		sources = append(sources, sourceURI)
	}

	if len(found) == 0 {
		return nil, nil
	}
	if len(found) > 1 && !allSame(found) {
		return nil, &core.AmbiguousStarExportError{Module: mod.URI, Name: name, Sources: sources}
	}
	return &found[0], nil
}

func allSame(names []core.CanonicalName) bool {
	for _, n := range names[1:] {
		if n != names[0] {
			return false
		}
	}
	return true
}

func cloneChain(chain map[string]bool) map[string]bool {
	out := make(map[string]bool, len(chain))
	for k, v := range chain {
		out[k] = v
	}
	return out
}

func findImport(mod *core.Module, localName string) (core.ImportRecord, bool) {
	for _, imp := range mod.Imports {
		if imp.LocalName == localName {
			return imp, true
		}
	}
	return core.ImportRecord{}, false
}

// specifierToURI resolves an import specifier relative to referrer via the
// store's underlying fetcher resolution rules. Modules are expected to
// have already had their import specifiers normalized to absolute URIs by
// the graph builder at fetch time; ResolveModuleURI exists for the rare
// case (re-export chains) where the resolver needs to do this itself.
func (r *Resolver) specifierToURI(referrer, specifier string) (string, error) {
	if u, ok := r.store.(interface {
		ResolveModuleURI(specifier, referrer string) (string, error)
	}); ok {
		return u.ResolveModuleURI(specifier, referrer)
	}
	return specifier, nil
}
