// Package macro implements the fixed-point macro expansion loop:
// detecting call sites whose callee is a macro-marked declaration,
// invoking the macro body in a throwaway JS sandbox, and splicing the
// returned expression back into the declaration graph.
package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/funee-dev/funee/internal/ast"
	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/graph"
	"github.com/funee-dev/funee/internal/jsparse"
	"github.com/funee-dev/funee/internal/jsvm"
)

// Engine drives the expansion loop over a single bundle run's Arena.
type Engine struct {
	arena   *graph.Arena
	builder *graph.Builder
	cfg     core.BundlerConfig
}

// New builds an Engine around the Arena a graph.Builder has already
// populated from the entry's default export.
func New(builder *graph.Builder, arena *graph.Arena, cfg core.BundlerConfig) *Engine {
	if cfg.MaxMacroIterations <= 0 {
		cfg.MaxMacroIterations = 100
	}
	if cfg.MacroTimeout <= 0 {
		cfg.MacroTimeout = 5 * time.Second
	}
	return &Engine{arena: arena, builder: builder, cfg: cfg}
}

// Expand runs the fixed-point loop to completion: every call site whose
// callee names a macro-marked declaration is expanded,
// any declaration the returned expression newly references is enqueued
// into the graph (so the builder's worklist treatment applies to it too),
// and the loop repeats until a full pass finds nothing left to expand.
func (e *Engine) Expand(ctx context.Context) error {
	iterations := 0
	for {
		expandedAny := false
		for _, d := range e.arena.All() {
			if d.MacroMarker || d.Fragment == nil {
				// Call-site detection never descends into macro bodies
				// themselves: macros cannot call the bundler.
				continue
			}
			for {
				call, macroDecl, mod, found, err := e.findMacroCall(d)
				if err != nil {
					return err
				}
				if !found {
					break
				}
				iterations++
				if iterations > e.cfg.MaxMacroIterations {
					return &core.MacroRecursionError{Macro: macroDecl.Canonical.Name, Iterations: e.cfg.MaxMacroIterations}
				}
				if err := e.expandCall(ctx, d, call, macroDecl, mod); err != nil {
					return err
				}
				expandedAny = true
			}
		}
		if !expandedAny {
			return nil
		}
	}
}

// findMacroCall scans d's current fragment for the first call expression
// whose callee resolves to a macro-marked declaration.
func (e *Engine) findMacroCall(d *core.Declaration) (ast.CallRef, *core.Declaration, *core.Module, bool, error) {
	mod, err := e.builder.Store().Load(d.Canonical.URI)
	if err != nil {
		return ast.CallRef{}, nil, nil, false, err
	}
	for _, call := range d.Fragment.Calls {
		canon, ok, err := e.resolveCallee(mod, d, call.Callee.Name)
		if err != nil {
			return ast.CallRef{}, nil, nil, false, err
		}
		if !ok {
			continue
		}
		macroDecl, ok := e.arena.Get(canon)
		if !ok || !macroDecl.MacroMarker {
			continue
		}
		return call, macroDecl, mod, true, nil
	}
	return ast.CallRef{}, nil, nil, false, nil
}

// resolveCallee resolves a call's callee name the same way the graph
// builder resolves any free identifier, additionally consulting the
// declaration's Aliases (set by a previous splice) before falling back to
// lexical resolution in the home module.
func (e *Engine) resolveCallee(mod *core.Module, d *core.Declaration, name string) (core.CanonicalName, bool, error) {
	if canon, ok := d.Aliases[name]; ok {
		return canon, true, nil
	}
	return e.builder.ResolveLocalName(mod, name)
}

// jsClosure is the wire shape of a core.Closure for the sandbox's JSON
// hand-off: a Map can't round-trip through JSON directly, so references
// travels as a plain object and is reconstituted into a Map inside the
// sandbox by the Closure() factory.
type jsClosure struct {
	Expression string                        `json:"expression"`
	References map[string]core.CanonicalName `json:"references"`
}

type jsMacroResult struct {
	Expression string                        `json:"expression"`
	References map[string]core.CanonicalName `json:"references"`
}

// expandCall invokes the macro and splices its returned expression over
// the call site in d's fragment.
func (e *Engine) expandCall(ctx context.Context, d *core.Declaration, call ast.CallRef, macroDecl *core.Declaration, mod *core.Module) error {
	closures, err := e.buildClosures(mod, d, call)
	if err != nil {
		return err
	}
	result, err := e.invoke(ctx, macroDecl, closures)
	if err != nil {
		return err
	}

	newText, err := spliceCall(d.Fragment, call, result.Expression)
	if err != nil {
		return err
	}
	frag, err := jsparse.ParseSnippet(mod.URI, newText)
	if err != nil {
		return err
	}
	d.Fragment = frag

	var newRefs []core.CanonicalName
	for _, name := range frag.FreeNames() {
		if canon, ok := result.References[name]; ok {
			d.Aliases[name] = canon
			newRefs = append(newRefs, canon)
			continue
		}
		if canon, ok := d.Aliases[name]; ok {
			newRefs = append(newRefs, canon)
			continue
		}
		canon, ok, err := e.builder.ResolveLocalName(mod, name)
		if err != nil {
			return err
		}
		if ok {
			newRefs = append(newRefs, canon)
		}
	}
	d.ResetReferences(newRefs)
	return e.builder.Continue(newRefs)
}

// buildClosures constructs one Closure record per call argument.
// A spread argument (`...xs`) is captured as a
// single Closure over its own source text rather than expanded
// element-wise: the bundler has no runtime value for `xs` to expand
// against, only its static text.
func (e *Engine) buildClosures(mod *core.Module, caller *core.Declaration, call ast.CallRef) ([]jsClosure, error) {
	out := make([]jsClosure, 0, len(call.Args))
	for _, arg := range call.Args {
		frag, err := jsparse.ParseSnippet(mod.URI, arg.Text)
		if err != nil {
			return nil, err
		}
		refs := make(map[string]core.CanonicalName)
		for _, name := range frag.FreeNames() {
			if canon, ok := caller.Aliases[name]; ok {
				refs[name] = canon
				continue
			}
			if canon, ok, err := e.builder.ResolveLocalName(mod, name); err == nil && ok {
				refs[name] = canon
			}
		}
		out = append(out, jsClosure{Expression: arg.Text, References: refs})
	}
	return out, nil
}

// sandboxPreamble defines the pure, side-effect-free globals a macro body
// may use: createMacro (so the macro's own `const x = createMacro(fn)`
// declaration evaluates to `fn` without the sandbox needing special
// parsing), and the Closure/Definition factories. No filesystem or
// network is exposed here: the sandbox is a separate evaluator whose
// heap is thrown away after each invocation, never the production
// runtime.
const sandboxPreamble = `
function createMacro(fn) { return fn; }
function Closure(expression, references) {
	return { expression: expression, references: (references instanceof Map) ? references : new Map(Object.entries(references || {})) };
}
function Definition(declaration, references) {
	return { declaration: declaration, references: (references instanceof Map) ? references : new Map(Object.entries(references || {})) };
}
`

// invoke runs macroDecl's body in a fresh sandbox with closures as its
// arguments, under the configured wall-clock guard.
func (e *Engine) invoke(ctx context.Context, macroDecl *core.Declaration, closures []jsClosure) (jsMacroResult, error) {
	rawJSON, err := json.Marshal(closures)
	if err != nil {
		return jsMacroResult{}, fmt.Errorf("marshaling macro closures: %w", err)
	}

	source := e.macroSourceChain(macroDecl)
	var body strings.Builder
	body.WriteString(sandboxPreamble)
	for _, text := range source {
		body.WriteString(text)
		body.WriteString(";\n")
	}
	fmt.Fprintf(&body, `
var __raw = JSON.parse(%s);
var __closures = __raw.map(function(c) { return Closure(c.expression, c.references); });
var __res = (%s).apply(null, __closures);
if (!__res || typeof __res.expression !== 'string') {
	throw new Error('MacroReturnShape: macro did not return {expression, references}');
}
var __refsOut = {};
if (__res.references instanceof Map) {
	__res.references.forEach(function(v, k) { __refsOut[k] = v; });
} else if (__res.references && typeof __res.references === 'object') {
	__refsOut = __res.references;
}
JSON.stringify({ expression: __res.expression, references: __refsOut });
`, quoteJS(string(rawJSON)), macroDecl.Canonical.Name)

	type outcome struct {
		json string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		rt, err := jsvm.New()
		if err != nil {
			done <- outcome{err: err}
			return
		}
		defer rt.Close()
		s, err := rt.EvalString(body.String())
		done <- outcome{json: s, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if strings.Contains(o.err.Error(), "MacroReturnShape") {
				return jsMacroResult{}, &core.MacroReturnShapeError{Macro: macroDecl.Canonical.Name, Reason: o.err.Error()}
			}
			return jsMacroResult{}, o.err
		}
		var result jsMacroResult
		if err := json.Unmarshal([]byte(o.json), &result); err != nil {
			return jsMacroResult{}, &core.MacroReturnShapeError{Macro: macroDecl.Canonical.Name, Reason: err.Error()}
		}
		return result, nil
	case <-time.After(e.cfg.MacroTimeout):
		// The goroutine above is left running: modernc.org/quickjs and
		// v8go expose no interrupt hook through core.JSRuntime, so an
		// evaluation that hangs cannot be preempted mid-Eval. It is
		// abandoned rather than joined; its VM is freed when it
		// eventually returns.
		return jsMacroResult{}, &core.MacroTimeoutError{Macro: macroDecl.Canonical.Name}
	case <-ctx.Done():
		return jsMacroResult{}, ctx.Err()
	}
}

// macroSourceChain returns the source text of macroDecl and every
// non-macro declaration it transitively references, dependencies first,
// so a macro body that calls a local helper function still has that
// helper available in its throwaway sandbox.
func (e *Engine) macroSourceChain(d *core.Declaration) []string {
	seen := make(map[core.CanonicalName]bool)
	var texts []string
	var walk func(*core.Declaration)
	walk = func(cur *core.Declaration) {
		if cur == nil || cur.Fragment == nil || seen[cur.Canonical] {
			return
		}
		seen[cur.Canonical] = true
		for _, ref := range cur.ReferenceList() {
			if cur == d {
				continue // don't chase the macro's own references by ref; walked below
			}
			if rd, ok := e.arena.Get(ref); ok && !rd.MacroMarker {
				walk(rd)
			}
		}
		texts = append(texts, cur.Fragment.Text)
	}
	for _, ref := range d.ReferenceList() {
		if rd, ok := e.arena.Get(ref); ok && !rd.MacroMarker {
			walk(rd)
		}
	}
	if d.Fragment != nil {
		texts = append(texts, d.Fragment.Text)
	}
	return texts
}

// spliceCall replaces call's span within frag's text with replacement,
// using rune offsets relative to frag's own start (spans are recorded as
// absolute offsets into the module's source).
func spliceCall(frag *ast.Fragment, call ast.CallRef, replacement string) (string, error) {
	base := frag.Span.Start.Offset
	relStart := call.Span.Start.Offset - base
	relEnd := call.Span.End.Offset - base
	text := []rune(frag.Text)
	if relStart < 0 || relEnd > len(text) || relStart > relEnd {
		return "", &core.EmitOrderingConflictError{Detail: "macro call site span outside its declaration's fragment"}
	}
	var out strings.Builder
	out.WriteString(string(text[:relStart]))
	out.WriteString(replacement)
	out.WriteString(string(text[relEnd:]))
	return out.String(), nil
}

// quoteJS renders s as a double-quoted JS string literal.
func quoteJS(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
