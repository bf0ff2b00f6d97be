// Package jsparse turns a module's source text into an export/import
// table and a set of declaration-granularity AST fragments. It is not a
// full parser (no type checking, no general expression tree), only what
// the resolver, graph builder, macro engine, and emitter need: statement
// boundaries, identifier references, and call expressions.
package jsparse

import (
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/funee-dev/funee/internal/ast"
	"github.com/funee-dev/funee/internal/core"
)

// ParsedModule is the output of Parse: a module's import/export tables
// plus its per-declaration fragments.
type ParsedModule struct {
	Imports       []core.ImportRecord
	Exports       map[string]core.ExportBinding
	StarReExports []string
	Declarations  map[string]*ast.Fragment
	DeclKinds     map[string]core.DeclKind
}

// Parse strips TypeScript-only syntax with esbuild (the bundler reads a
// typed surface language but does not enforce types), then scans the
// resulting plain JS for declarations.
func Parse(uri, source string) (*ParsedModule, error) {
	stripped, err := stripTypes(uri, source)
	if err != nil {
		return nil, err
	}

	toks := filterComments(Lex(stripped))
	stmts := splitTopLevelStatements(toks)

	pm := &ParsedModule{
		Exports:      make(map[string]core.ExportBinding),
		Declarations: make(map[string]*ast.Fragment),
		DeclKinds:    make(map[string]core.DeclKind),
	}

	r := []rune(stripped)
	for _, st := range stmts {
		if st.start >= st.end {
			continue
		}
		if err := classifyStatement(uri, r, toks[st.start:st.end], pm); err != nil {
			return nil, err
		}
	}
	return pm, nil
}

// stripTypes runs source through esbuild's Transform API purely to strip
// TypeScript type syntax so the hand-rolled scanner only ever sees plain
// JavaScript. The ES2022 target also lowers `using`/`await using` to
// their try/finally equivalent here, since the embedded engine has no
// native support for explicit resource management. verbatimModuleSyntax
// keeps every import not marked `type`, which esbuild's TS loader would
// otherwise drop when the imported name is unused.
func stripTypes(uri, source string) (string, error) {
	loader := api.LoaderJS
	if hasTSExtension(uri) {
		loader = api.LoaderTS
	}
	result := api.Transform(source, api.TransformOptions{
		Loader:      loader,
		Target:      api.ES2022,
		TsconfigRaw: `{"compilerOptions":{"verbatimModuleSyntax":true}}`,
	})
	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		span := ast.Span{URI: uri}
		if msg.Location != nil {
			span.Start = ast.Pos{Line: msg.Location.Line, Col: msg.Location.Column + 1}
		}
		return "", &core.ParseError{
			URI:     uri,
			Span:    span,
			Message: fmt.Sprintf("%s (expected valid syntax)", msg.Text),
		}
	}
	return string(result.Code), nil
}

// ParseSnippet lexes an arbitrary piece of JS source (an argument
// expression, a macro's returned replacement expression) into a single
// Fragment, without going through Parse's statement-splitting. Used by
// internal/macro to compute a Closure's free-identifier set and to splice
// a macro's returned expression back into the graph. The source is
// checked for syntax errors with esbuild but lexed as written, so spliced
// text keeps its exact form; type syntax in it is not stripped.
func ParseSnippet(uri, source string) (*ast.Fragment, error) {
	if _, err := stripTypes(uri, source); err != nil {
		return nil, err
	}
	toks := filterComments(Lex(source))
	r := []rune(source)
	return fragmentOf(uri, r, toks), nil
}

func hasTSExtension(uri string) bool {
	for _, ext := range []string{".ts", ".tsx", ".mts", ".cts"} {
		if len(uri) >= len(ext) && uri[len(uri)-len(ext):] == ext {
			return true
		}
	}
	return false
}

func filterComments(toks []Token) []Token {
	out := toks[:0:0]
	for _, t := range toks {
		if t.Kind == TokLineCmt || t.Kind == TokBlockCmt {
			continue
		}
		out = append(out, t)
	}
	return out
}

type stmtSpan struct{ start, end int }

// scanStatement returns the token index just past the end of the
// statement starting at `start`: either the top-level `;` that terminates
// it, or the top-level `}` that closes its block body (function/class),
// plus an optional trailing `;`.
func scanStatement(toks []Token, start int) int {
	depth := 0
	sawBrace := false
	// The braces of `import { ... }` and `export { ... }` hold a binding
	// list, not a block body: such a statement runs on to its `from` clause.
	bindingList := start < len(toks) && toks[start].Kind == TokIdent &&
		(toks[start].Text == "import" || (toks[start].Text == "export" && start+1 < len(toks) && toks[start+1].Text == "{"))
	i := start
	for i < len(toks) {
		t := toks[i]
		if t.Kind == TokPunct {
			switch t.Text {
			case "{", "(", "[":
				depth++
				if t.Text == "{" && depth == 1 && !bindingList {
					sawBrace = true
				}
			case "}", ")", "]":
				depth--
			}
		}
		i++
		if depth == 0 {
			if t.Kind == TokPunct && t.Text == ";" {
				return i
			}
			if sawBrace && t.Kind == TokPunct && t.Text == "}" {
				if i < len(toks) && toks[i].Kind == TokPunct && toks[i].Text == ";" {
					i++
				}
				return i
			}
		}
	}
	return i
}

func splitTopLevelStatements(toks []Token) []stmtSpan {
	var out []stmtSpan
	i := 0
	for i < len(toks) {
		start := i
		end := scanStatement(toks, start)
		if end <= start {
			end = start + 1
		}
		out = append(out, stmtSpan{start, end})
		i = end
	}
	return out
}

func text(r []rune, s, e Pos) string {
	if e.Offset > len(r) {
		e.Offset = len(r)
	}
	if s.Offset > e.Offset {
		return ""
	}
	return string(r[s.Offset:e.Offset])
}

func spanOf(uri string, s, e Pos) ast.Span {
	return ast.Span{
		URI:   uri,
		Start: ast.Pos{Line: s.Line, Col: s.Col, Offset: s.Offset},
		End:   ast.Pos{Line: e.Line, Col: e.Col, Offset: e.Offset},
	}
}

func fragmentOf(uri string, r []rune, toks []Token) *ast.Fragment {
	if len(toks) == 0 {
		return &ast.Fragment{}
	}
	start := toks[0].Start
	end := toks[len(toks)-1].End
	idents, calls := collectFreeIdents(uri, r, toks)
	return &ast.Fragment{
		Text:   text(r, start, end),
		Span:   spanOf(uri, start, end),
		Idents: idents,
		Calls:  calls,
	}
}

func classifyStatement(uri string, r []rune, toks []Token, pm *ParsedModule) error {
	if len(toks) == 0 {
		return nil
	}
	head := toks[0]
	switch {
	case head.Kind == TokIdent && head.Text == "import":
		return classifyImport(r, toks, pm)
	case head.Kind == TokIdent && head.Text == "export":
		return classifyExport(uri, r, toks, pm)
	case head.Kind == TokIdent && (head.Text == "const" || head.Text == "let" || head.Text == "var"):
		name, kind := declNameAndKind(toks)
		if name == "" {
			return nil
		}
		pm.Declarations[name] = fragmentOf(uri, r, toks)
		pm.DeclKinds[name] = kind
	case head.Kind == TokIdent && head.Text == "function":
		if name := identAt(toks, 1); name != "" {
			pm.Declarations[name] = fragmentOf(uri, r, toks)
			pm.DeclKinds[name] = core.KindFunction
		}
	case head.Kind == TokIdent && head.Text == "async" && len(toks) > 1 && toks[1].Text == "function":
		if name := identAt(toks, 2); name != "" {
			pm.Declarations[name] = fragmentOf(uri, r, toks)
			pm.DeclKinds[name] = core.KindFunction
		}
	case head.Kind == TokIdent && head.Text == "class":
		if name := identAt(toks, 1); name != "" {
			pm.Declarations[name] = fragmentOf(uri, r, toks)
			pm.DeclKinds[name] = core.KindClass
		}
	default:
		// Side-effect statement at module top level. A side-effect-only
		// import pulls in no declarations, and neither does any other
		// bare top-level statement. Nothing to record.
	}
	return nil
}

func identAt(toks []Token, i int) string {
	if i < len(toks) && toks[i].Kind == TokIdent && !keywords[toks[i].Text] {
		return toks[i].Text
	}
	return ""
}

// declNameAndKind handles `const NAME = ...`, `let NAME = ...`,
// `var NAME = ...`. Multi-declarator statements (`const a = 1, b = 2`) are
// a known scanner limitation: only the first declared name is recognized,
// the whole statement becomes that declaration's fragment.
func declNameAndKind(toks []Token) (string, core.DeclKind) {
	if len(toks) < 2 {
		return "", core.KindConst
	}
	kind := core.KindConst
	switch toks[0].Text {
	case "let":
		kind = core.KindLet
	case "var":
		kind = core.KindConst
	}
	name := identAt(toks, 1)
	return name, kind
}
