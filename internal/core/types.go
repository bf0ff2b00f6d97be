package core

import (
	"strings"

	"github.com/funee-dev/funee/internal/ast"
)

// DeclKind is the syntactic shape of a declaration. The tree shaker
// treats every kind as an equally atomic unit.
type DeclKind int

const (
	KindFunction DeclKind = iota
	KindConst
	KindLet
	KindClass
	KindTypeOnly
	KindDefaultExpr
)

func (k DeclKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindConst:
		return "const-binding"
	case KindLet:
		return "let-binding"
	case KindClass:
		return "class"
	case KindTypeOnly:
		return "type-only"
	case KindDefaultExpr:
		return "default-export-expression"
	default:
		return "unknown"
	}
}

// CanonicalName is the {uri, name} pair that identifies a declaration
// independent of any aliasing performed along the way. The JSON field
// names are part of the macro calling convention: a Closure's references
// map crosses into the sandbox and back as {uri, name} objects.
type CanonicalName struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// EntryDefaultExport is the well-known export name used to seed the graph
// walk and tree shaker at a module's default export.
const EntryDefaultExport = "default"

// Declaration is the atomic unit of tree shaking.
type Declaration struct {
	ID          int // arena index, stable within one bundler run
	Canonical   CanonicalName
	Kind        DeclKind
	Fragment    *ast.Fragment
	References  map[CanonicalName]struct{}
	MacroMarker bool // initializer is syntactically createMacro(...)
	EmitName    string

	// Aliases maps an identifier spelling to a canonical name the home
	// module's own import table can't derive. Macro expansion populates
	// this: a spliced-in expression's returned `references` map can name
	// a canonical declaration with no corresponding import statement in
	// the enclosing module, since the macro supplied it directly. The
	// emitter consults Aliases before falling back to lexical resolution
	// when rewriting an identifier to its emit_name.
	Aliases map[string]CanonicalName
}

// NewDeclaration allocates a Declaration with an initialized reference set.
func NewDeclaration(id int, name CanonicalName, kind DeclKind, frag *ast.Fragment) *Declaration {
	return &Declaration{
		ID:         id,
		Canonical:  name,
		Kind:       kind,
		Fragment:   frag,
		References: make(map[CanonicalName]struct{}),
		Aliases:    make(map[string]CanonicalName),
	}
}

// AddReference records that d's body depends on the given canonical name.
func (d *Declaration) AddReference(n CanonicalName) {
	d.References[n] = struct{}{}
}

// ResetReferences replaces d's reference set wholesale, used by the macro
// engine after splicing: a declaration's free identifiers change when a
// macro call site is replaced, so its reference set is recomputed from
// scratch rather than patched incrementally.
func (d *Declaration) ResetReferences(names []CanonicalName) {
	d.References = make(map[CanonicalName]struct{}, len(names))
	for _, n := range names {
		d.References[n] = struct{}{}
	}
}

// ReferenceList returns the declaration's references in a stable order,
// sorted by URI then name, for deterministic emission and testing.
func (d *Declaration) ReferenceList() []CanonicalName {
	out := make([]CanonicalName, 0, len(d.References))
	for n := range d.References {
		out = append(out, n)
	}
	sortCanonical(out)
	return out
}

func sortCanonical(names []CanonicalName) {
	for i := 1; i < len(names); i++ {
		for j := i; j > 0; j-- {
			a, b := names[j-1], names[j]
			if a.URI < b.URI || (a.URI == b.URI && a.Name <= b.Name) {
				break
			}
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
}

// ImportKind distinguishes the forms an import record can take.
type ImportKind int

const (
	ImportNamed ImportKind = iota
	ImportDefault
	ImportNamespace
)

// ImportRecord is one entry of a module's ordered import table.
type ImportRecord struct {
	LocalName       string
	SourceSpecifier string
	Kind            ImportKind
	ImportedName    string // empty for ImportDefault/ImportNamespace
	Span            ast.Span
}

// ExportBinding is one entry of a module's export table: either a local
// declaration or a deferred re-export reference. Star re-exports live on
// the module's StarReExports list instead, since they contribute a whole
// namespace rather than one name.
type ExportBinding struct {
	LocalName string // set when the export resolves to a local declaration

	// Re-export reference, materialized lazily by the resolver.
	IsReExport    bool
	FromSpecifier string
	OriginalName  string // for aliased re-exports: export { a as b } from "./x"
}

// ModuleScheme is the scheme of a module's absolute URI.
type ModuleScheme int

const (
	SchemeFile ModuleScheme = iota
	SchemeHTTP
	SchemeHost
)

func (s ModuleScheme) String() string {
	switch s {
	case SchemeFile:
		return "file"
	case SchemeHTTP:
		return "http"
	case SchemeHost:
		return "host"
	default:
		return "unknown"
	}
}

// Module is a single fetched/parsed source unit.
type Module struct {
	URI    string
	Scheme ModuleScheme
	Source string

	Cached    bool // served from the on-disk HTTP cache
	Fetched   bool // fetched over the network this run
	Synthetic bool // a host:// stub, no source text

	Exports map[string]ExportBinding
	Imports []ImportRecord

	// StarReExports lists the source specifiers of every
	// `export * from "..."` in the module, in source order. Kept apart
	// from Exports because a module may have several, and the union they
	// contribute is computed lazily by the resolver.
	StarReExports []string

	// Declarations holds the module's top-level declarations, keyed by
	// their original (not canonical-resolved) name.
	Declarations map[string]*ast.Fragment
	DeclKinds    map[string]DeclKind
}

// NewModule allocates a Module with initialized tables.
func NewModule(uri string, scheme ModuleScheme) *Module {
	return &Module{
		URI:          uri,
		Scheme:       scheme,
		Exports:      make(map[string]ExportBinding),
		Declarations: make(map[string]*ast.Fragment),
		DeclKinds:    make(map[string]DeclKind),
	}
}

// Closure is the data passed to a macro body for one captured argument.
type Closure struct {
	Expression string
	References map[string]CanonicalName
}

// Definition is like a Closure but keyed on a whole declaration rather than
// a call argument.
type Definition struct {
	Declaration string
	References  map[string]CanonicalName
}

// RunResult is what a full bundle run produces: the emitted program plus
// the bookkeeping watch mode needs.
type RunResult struct {
	Program   string
	EmitOrder []string // emit_name values, in emission order
	// References is the union of every surviving declaration's reference
	// set. Watch mode reduces it to the file:// URIs it should observe.
	References map[CanonicalName]struct{}
}

// WatchURIs returns the distinct file:// URIs RunResult.References touches,
// which is what the watch driver subscribes to.
func (r *RunResult) WatchURIs() []string {
	seen := make(map[string]bool)
	var out []string
	for n := range r.References {
		if !strings.HasPrefix(n.URI, "file://") || seen[n.URI] {
			continue
		}
		seen[n.URI] = true
		out = append(out, n.URI)
	}
	return out
}
