package graph

import (
	"github.com/funee-dev/funee/internal/ast"
	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/resolver"
)

// jsGlobals is the fixed allow-list of identifiers that resolve to the
// embedded runtime's global scope rather than a declaration, and so never
// produce an UnresolvedReference error.
var jsGlobals = map[string]bool{
	"Promise": true, "Object": true, "Array": true, "JSON": true, "Math": true,
	"Number": true, "String": true, "Boolean": true, "Symbol": true, "Date": true,
	"Error": true, "Map": true, "Set": true, "RegExp": true, "URL": true,
	"URLSearchParams": true, "Request": true, "Response": true, "Headers": true,
	"Uint8Array": true, "ArrayBuffer": true, "AbortController": true,
	"AbortSignal": true, "console": true, "globalThis": true, "undefined": true,
	"null": true, "true": true, "false": true, "NaN": true, "Infinity": true,
}

// Builder performs the worklist traversal from an entry module's default
// export, building the declaration arena the macro engine, tree shaker,
// and emitter all read.
type Builder struct {
	store    *Store
	resolver *resolver.Resolver
	arena    *Arena
}

// NewBuilder constructs a Builder around a module Store.
func NewBuilder(store *Store) *Builder {
	return &Builder{
		store:    store,
		resolver: resolver.New(store),
		arena:    NewArena(),
	}
}

// Build walks the graph starting at entryURI's default export and returns
// the populated Arena.
func (b *Builder) Build(entryURI string) (*Arena, error) {
	seed := core.CanonicalName{URI: entryURI, Name: core.EntryDefaultExport}
	if err := b.Continue([]core.CanonicalName{seed}); err != nil {
		return nil, err
	}
	return b.arena, nil
}

// EntryCanonical resolves entryURI's default export to the canonical name
// of its defining declaration — the root the tree shaker and emitter
// seed from. `export default function main() {}` canonicalizes to
// (entryURI, main), not (entryURI, default).
func (b *Builder) EntryCanonical(entryURI string) (core.CanonicalName, error) {
	return b.resolver.ResolveExport(entryURI, core.EntryDefaultExport, make(map[string]bool))
}

// Continue drives the same worklist traversal Build performs, seeded from
// names already known to the caller instead of an entry module. Used by
// internal/macro after splicing a macro's returned expression back in:
// the returned `references` map may name canonical declarations the arena
// hasn't visited yet, and they need the same visit/enqueue treatment any
// other newly-discovered reference gets.
func (b *Builder) Continue(names []core.CanonicalName) error {
	worklist := append([]core.CanonicalName(nil), names...)
	queued := make(map[core.CanonicalName]bool, len(names))
	for _, n := range names {
		queued[n] = true
	}

	for len(worklist) > 0 {
		name := worklist[0]
		worklist = worklist[1:]

		refs, err := b.visit(name)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if !queued[ref] {
				queued[ref] = true
				worklist = append(worklist, ref)
			}
		}
	}
	return nil
}

// visit resolves name to its canonical declaration, adds it to the arena
// if not already present, and returns the canonical names it references
// (for the caller to enqueue). Returns nil, nil for a name already in the
// arena: nothing new to discover through it.
func (b *Builder) visit(name core.CanonicalName) ([]core.CanonicalName, error) {
	canon := name
	if !isHostURI(name.URI) && !b.isLocalDeclaration(name) {
		// Not a module-local declaration: the name arrived through an
		// import or an entry seed, so chase it through the export tables
		// to its defining module first.
		resolved, err := b.resolver.ResolveExport(name.URI, name.Name, make(map[string]bool))
		if err != nil {
			return nil, err
		}
		canon = resolved
	}
	if b.arena.Has(canon) {
		return nil, nil
	}

	if canon.Name == "*" {
		// A namespace alias from `export * as ns from "./x"`: nothing
		// concrete to add to the arena by itself; callers reach
		// individual members through their own canonical names.
		return nil, nil
	}

	if isHostURI(canon.URI) {
		d := core.NewDeclaration(0, canon, core.KindTypeOnly, nil)
		b.arena.Add(d)
		return nil, nil
	}

	mod, err := b.store.Load(canon.URI)
	if err != nil {
		return nil, err
	}
	frag, ok := mod.Declarations[canon.Name]
	if !ok {
		return nil, &core.MissingExportError{Module: canon.URI, Name: canon.Name}
	}
	kind := mod.DeclKinds[canon.Name]

	d := core.NewDeclaration(0, canon, kind, frag)
	d.MacroMarker = isMacroInitializer(kind, frag)
	b.arena.Add(d)

	refs, err := b.resolveReferences(mod, frag)
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		d.AddReference(ref)
	}
	return refs, nil
}

// Store exposes the Builder's module store, so internal/macro can load the
// home module of a declaration it's re-resolving identifiers against.
func (b *Builder) Store() *Store { return b.store }

// isLocalDeclaration reports whether name directly names a top-level
// declaration in its own module, which needs no export-table resolution.
func (b *Builder) isLocalDeclaration(name core.CanonicalName) bool {
	mod, err := b.store.Load(name.URI)
	if err != nil {
		return false
	}
	_, ok := mod.Declarations[name.Name]
	return ok
}

// resolveReferences resolves every free identifier in frag against mod's
// local declarations, import table, and the JS global allow-list.
func (b *Builder) resolveReferences(mod *core.Module, frag *ast.Fragment) ([]core.CanonicalName, error) {
	var out []core.CanonicalName
	seen := make(map[core.CanonicalName]bool)

	for _, name := range frag.FreeNames() {
		canon, ok, err := b.ResolveLocalName(mod, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if !seen[canon] {
			seen[canon] = true
			out = append(out, canon)
		}
	}
	return out, nil
}

// ResolveLocalName resolves a single free identifier occurring in module
// mod to its canonical declaration, the way resolveReferences does for a
// whole fragment. ok is false for JS globals and namespace-import member
// accesses, which resolve to no single declaration; err is non-nil for a
// genuinely undefined identifier (UnresolvedReferenceError). Exported for
// internal/macro, which needs the same resolution when deciding whether a
// call expression's callee names a macro-marked declaration.
func (b *Builder) ResolveLocalName(mod *core.Module, name string) (core.CanonicalName, bool, error) {
	if jsGlobals[name] {
		return core.CanonicalName{}, false, nil
	}
	if name == macroFactoryName {
		// createMacro itself never resolves to a declaration: the macro
		// engine erases every marked declaration before emission, and the
		// host runtime installs a throwing global as a backstop in case a
		// resolution bug lets one survive.
		return core.CanonicalName{}, false, nil
	}
	if _, ok := mod.Declarations[name]; ok {
		return core.CanonicalName{URI: mod.URI, Name: name}, true, nil
	}

	if imp, ok := findImport(mod, name); ok {
		if imp.Kind == core.ImportNamespace {
			return core.CanonicalName{}, false, nil
		}
		sourceURI, err := b.store.fetcher.ResolveURI(imp.SourceSpecifier, mod.URI)
		if err != nil {
			return core.CanonicalName{}, false, err
		}
		importedName := imp.ImportedName
		if imp.Kind == core.ImportDefault {
			importedName = core.EntryDefaultExport
		}
		canon, err := b.resolver.ResolveExport(sourceURI, importedName, make(map[string]bool))
		if err != nil {
			return core.CanonicalName{}, false, err
		}
		return canon, true, nil
	}

	if globalTimerNames[name] {
		// The timer functions historically lived as bare globals and are
		// also exposed via host://time. Neither site shadows the other,
		// so a bare `setTimeout(...)` with no import resolves to the same
		// canonical name an explicit `import { setTimeout } from
		// "host://time"` would, keeping tree shaking and macro reference
		// merging from treating them as two different identities.
		return core.CanonicalName{URI: "host://time", Name: name}, true, nil
	}

	return core.CanonicalName{}, false, &core.UnresolvedReferenceError{Scope: mod.URI, Name: name}
}

// macroFactoryName is the standard-library symbol whose call syntactically
// marks a declaration as a macro.
const macroFactoryName = "createMacro"

// globalTimerNames resolve to host://time whether or not the module
// imports them.
var globalTimerNames = map[string]bool{
	"setTimeout": true, "clearTimeout": true, "setInterval": true, "clearInterval": true,
}

func findImport(mod *core.Module, localName string) (core.ImportRecord, bool) {
	for _, imp := range mod.Imports {
		if imp.LocalName == localName {
			return imp, true
		}
	}
	return core.ImportRecord{}, false
}

func isHostURI(uri string) bool {
	return len(uri) >= 7 && uri[:7] == "host://"
}

// isMacroInitializer reports whether a declaration's initializer is
// syntactically `createMacro(fn)`. Full resolution of createMacro through
// an aliasing chain back to the standard-library symbol isn't attempted;
// a direct call to an identifier literally named createMacro is treated
// as sufficient, which is the form every realistic macro declaration
// takes.
func isMacroInitializer(kind core.DeclKind, frag *ast.Fragment) bool {
	if frag == nil || (kind != core.KindConst && kind != core.KindLet) {
		return false
	}
	for _, call := range frag.Calls {
		if call.Callee.Name == macroFactoryName {
			return true
		}
	}
	return false
}
