// Package emitter assigns every surviving declaration a stable unique
// emit name, rewrites every reference to that name, topologically orders
// the result, and concatenates a single flat program.
package emitter

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/maps"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/graph"
	"github.com/funee-dev/funee/internal/hostexports"
)

// Emitter renders a shaken Arena into the single-source-unit bundle
// format: host preamble, renamed declarations, entry invocation.
type Emitter struct {
	builder *graph.Builder
	arena   *graph.Arena
}

// New builds an Emitter around the same Builder/Arena the macro engine
// and tree shaker operated on.
func New(builder *graph.Builder, arena *graph.Arena) *Emitter {
	return &Emitter{builder: builder, arena: arena}
}

// Emit renders the bundle. root is the canonical name of the entry's
// default export; cfg.Emit suppresses the trailing entry-point
// invocation, matching the --emit CLI flag's contract.
func (e *Emitter) Emit(root core.CanonicalName, cfg core.BundlerConfig) (*core.RunResult, error) {
	survivors := e.programDeclarations()
	for i, d := range survivors {
		d.EmitName = fmt.Sprintf("declaration_%d", i)
	}

	ordered := topoSort(survivors)

	var body strings.Builder
	refsUnion := make(map[core.CanonicalName]struct{})
	hostNeeded := make(map[core.CanonicalName]bool)

	for _, d := range ordered {
		mod, err := e.builder.Store().Load(d.Canonical.URI)
		if err != nil {
			return nil, err
		}
		text, err := e.rewriteFragment(d, mod, hostNeeded)
		if err != nil {
			return nil, err
		}
		text = stripExportSyntax(d, text)
		body.WriteString(text)
		if !strings.HasSuffix(strings.TrimRight(text, " \t\n"), ";") {
			body.WriteString(";")
		}
		body.WriteString("\n\n")
		for ref := range d.References {
			refsUnion[ref] = struct{}{}
		}
	}

	var program strings.Builder
	program.WriteString(hostPreamble(hostNeeded))
	program.WriteString(body.String())

	if !cfg.Emit {
		if entryDecl, ok := e.arena.Get(root); ok && entryDecl.EmitName != "" {
			fmt.Fprintf(&program, "%s();\n", entryDecl.EmitName)
		}
	}

	emitOrder := make([]string, len(ordered))
	for i, d := range ordered {
		emitOrder[i] = d.EmitName
	}

	return &core.RunResult{
		Program:    program.String(),
		EmitOrder:  emitOrder,
		References: refsUnion,
	}, nil
}

// programDeclarations returns every surviving declaration that emits real
// source text — host:// stub entries added to the arena as reference
// placeholders carry no Fragment and are bound by the preamble instead.
func (e *Emitter) programDeclarations() []*core.Declaration {
	var out []*core.Declaration
	for _, d := range e.arena.All() {
		if d.Fragment == nil || hostexports.IsHostURI(d.Canonical.URI) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// stripExportSyntax removes the module-level export wrapping from a
// declaration's rewritten text: the output is one flat program, so
// `export const x` becomes `const x`, and a default-export expression
// becomes a const binding under its emit name. The declared name itself
// has already been rewritten to the emit name by rewriteFragment, since
// the defining occurrence resolves to its own declaration.
func stripExportSyntax(d *core.Declaration, text string) string {
	switch {
	case strings.HasPrefix(text, "export default "):
		rest := strings.TrimPrefix(text, "export default ")
		if d.Kind == core.KindDefaultExpr || d.Canonical.Name == core.EntryDefaultExport {
			// Anonymous default (an expression, or an unnamed
			// function/class): bind it so the entry invocation has a name
			// to call.
			return "const " + d.EmitName + " = " + strings.TrimSuffix(strings.TrimRight(rest, " \t\n"), ";")
		}
		return rest
	case strings.HasPrefix(text, "export "):
		return strings.TrimPrefix(text, "export ")
	default:
		return text
	}
}

// rewriteFragment rewrites every identifier occurrence in d's fragment to
// its resolved target's emit name (or, for a host:// target, the plain
// host export name that hostPreamble binds), leaving JS-global identifiers
// untouched.
func (e *Emitter) rewriteFragment(d *core.Declaration, mod *core.Module, hostNeeded map[core.CanonicalName]bool) (string, error) {
	frag := d.Fragment
	type replacement struct {
		start, end int
		text       string
	}
	var reps []replacement
	base := frag.Span.Start.Offset

	for _, id := range frag.Idents {
		canon, ok, err := e.resolveForEmit(mod, d, id.Name)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}

		var newText string
		if hostexports.IsHostURI(canon.URI) {
			// Rewritten to the plain host export name, not the mangled
			// global binding name: the preamble (hostPreamble) is what
			// maps the plain name to the host runtime's actual handle,
			// so an aliased import (`readFile as rf`) still reads as
			// the canonical export name in the emitted program.
			newText = canon.Name
			hostNeeded[canon] = true
		} else if target, ok := e.arena.Get(canon); ok && target.EmitName != "" {
			newText = target.EmitName
		} else {
			continue
		}
		if newText == id.Name {
			continue
		}
		reps = append(reps, replacement{id.Span.Start.Offset - base, id.Span.End.Offset - base, newText})
	}

	sort.Slice(reps, func(i, j int) bool { return reps[i].start < reps[j].start })

	text := []rune(frag.Text)
	var out strings.Builder
	cursor := 0
	for _, r := range reps {
		if r.start < cursor || r.end > len(text) || r.start > r.end {
			continue // overlapping/out-of-range rewrite: leave the original text for this span
		}
		out.WriteString(string(text[cursor:r.start]))
		out.WriteString(r.text)
		cursor = r.end
	}
	out.WriteString(string(text[cursor:]))
	return out.String(), nil
}

// resolveForEmit mirrors graph.Builder.ResolveLocalName, additionally
// consulting a declaration's macro-introduced Aliases first. A resolution
// error here indicates a name the pipeline already should have rejected
// during graph build or macro expansion; emission leaves it unrewritten
// rather than failing the whole bundle a second time for the same cause.
func (e *Emitter) resolveForEmit(mod *core.Module, d *core.Declaration, name string) (core.CanonicalName, bool, error) {
	if canon, ok := d.Aliases[name]; ok {
		return canon, true, nil
	}
	canon, ok, err := e.builder.ResolveLocalName(mod, name)
	if err != nil {
		return core.CanonicalName{}, false, nil
	}
	return canon, ok, nil
}

// topoSort orders declarations so a referenced declaration is emitted
// before its referrer wherever the reference graph is acyclic, via a
// stable DFS postorder over discovery order. Function declarations are
// legally order-independent in JS (they hoist); genuine reference cycles
// (mutual recursion) are left in discovery order at the point the cycle
// is detected.
func topoSort(decls []*core.Declaration) []*core.Declaration {
	byName := make(map[core.CanonicalName]*core.Declaration, len(decls))
	for _, d := range decls {
		byName[d.Canonical] = d
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[core.CanonicalName]int, len(decls))
	var out []*core.Declaration

	var visit func(d *core.Declaration)
	visit = func(d *core.Declaration) {
		switch state[d.Canonical] {
		case done, visiting:
			return
		}
		state[d.Canonical] = visiting
		for _, ref := range d.ReferenceList() {
			if dep, ok := byName[ref]; ok {
				visit(dep)
			}
		}
		state[d.Canonical] = done
		out = append(out, d)
	}

	for _, d := range decls {
		visit(d)
	}
	return out
}

// hostPreamble emits one binding per referenced host:// export, mapping
// its plain export name to the global the host runtime's backend
// registers before executing this program. Only exports actually
// referenced by a surviving declaration are bound, so a bundle that never
// touches host://watch never requires a watch-capable backend to be wired
// up.
func hostPreamble(needed map[core.CanonicalName]bool) string {
	if len(needed) == 0 {
		return ""
	}
	names := maps.Keys(needed)
	sort.Slice(names, func(i, j int) bool {
		if names[i].URI != names[j].URI {
			return names[i].URI < names[j].URI
		}
		return names[i].Name < names[j].Name
	})

	var out strings.Builder
	for _, n := range names {
		fmt.Fprintf(&out, "const %s = globalThis.%s;\n", n.Name, hostexports.GlobalBindingName(n.URI, n.Name))
	}
	out.WriteString("\n")
	return out.String()
}
