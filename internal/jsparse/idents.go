package jsparse

import "github.com/funee-dev/funee/internal/ast"

// collectFreeIdents walks a declaration's token span and returns every
// identifier reference that is not a property-access name, not a keyword,
// and not a locally bound name — along with every call expression found,
// as a macro-expansion candidate.
//
// This is an approximation, not a scope analyzer: binding is flat per
// fragment rather than per block, so a body-local name that shadows a
// top-level declaration referenced in the same fragment suppresses that
// reference. Every name that survives must resolve — to a declaration,
// an import, or a JS global — or graph building rejects the module, so
// the binding heuristics err on the side of recognizing local-binding
// forms (params, declarators, nested functions, methods) rather than
// letting them leak out as free names.
func collectFreeIdents(uri string, r []rune, toks []Token) ([]ast.IdentRef, []ast.CallRef) {
	bound := boundNames(toks)

	var idents []ast.IdentRef
	var calls []ast.CallRef

	for i, t := range toks {
		if t.Kind == TokTemplate {
			idents = append(idents, templateHoleIdents(uri, t, bound)...)
			continue
		}
		if t.Kind != TokIdent || keywords[t.Text] || bound[t.Text] {
			continue
		}
		if i > 0 && toks[i-1].Kind == TokPunct && toks[i-1].Text == "." {
			continue // property access, not a free reference
		}
		if isObjectKey(toks, i) {
			continue
		}

		afterFunction := i > 0 && toks[i-1].Kind == TokIdent && toks[i-1].Text == "function"
		if i+1 < len(toks) && toks[i+1].Kind == TokPunct && toks[i+1].Text == "(" {
			if isMethodDefinition(toks, i) && !afterFunction {
				// `name(...) {` introduces a class/object method, not a
				// call; the name is a member, never a free reference.
				continue
			}
		}

		span := spanOf(uri, t.Start, t.End)
		idents = append(idents, ast.IdentRef{Name: t.Text, Span: span})

		if !afterFunction && i+1 < len(toks) && toks[i+1].Kind == TokPunct && toks[i+1].Text == "(" {
			args, end := scanArgs(uri, r, toks, i+1)
			calls = append(calls, ast.CallRef{
				Callee: ast.IdentRef{Name: t.Text, Span: span},
				Args:   args,
				Span:   spanOf(uri, t.Start, end),
			})
		}
	}
	return idents, calls
}

// isMethodDefinition reports whether the identifier at i heads a
// `name(params) { body }` member definition: its argument list's closing
// paren is immediately followed by an opening brace. A genuine call
// expression is never directly followed by a block, so the shape is
// unambiguous once function declarations (`function name() {`) are
// excluded by the caller.
func isMethodDefinition(toks []Token, i int) bool {
	end := matchingClose(toks, i+1)
	return end >= 0 && end+1 < len(toks) &&
		toks[end+1].Kind == TokPunct && toks[end+1].Text == "{"
}

// matchingClose returns the index of the ")" matching the "(" at openIdx.
func matchingClose(toks []Token, openIdx int) int {
	depth := 0
	for i := openIdx; i < len(toks); i++ {
		t := toks[i]
		if t.Kind == TokPunct {
			switch t.Text {
			case "(":
				depth++
			case ")":
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

// templateHoleIdents collects free identifier references from the
// `${...}` holes of one opaque template-literal token. Each hole is
// re-lexed in isolation and its identifier spans shifted back into the
// enclosing module's rune offsets, so the emitter can rename references
// inside template holes the same way it renames any other occurrence.
func templateHoleIdents(uri string, t Token, bound map[string]bool) []ast.IdentRef {
	var out []ast.IdentRef
	r := []rune(t.Text)
	for _, hole := range templateHoles(r) {
		holeToks := filterComments(Lex(string(r[hole.start:hole.end])))
		holeBound := boundNames(holeToks)
		for i, ht := range holeToks {
			if ht.Kind != TokIdent || keywords[ht.Text] || bound[ht.Text] || holeBound[ht.Text] {
				continue
			}
			if i > 0 && holeToks[i-1].Kind == TokPunct && holeToks[i-1].Text == "." {
				continue
			}
			if isObjectKey(holeToks, i) {
				continue
			}
			shift := t.Start.Offset + hole.start
			out = append(out, ast.IdentRef{
				Name: ht.Text,
				Span: ast.Span{
					URI:   uri,
					Start: ast.Pos{Line: t.Start.Line, Col: t.Start.Col, Offset: shift + ht.Start.Offset},
					End:   ast.Pos{Line: t.Start.Line, Col: t.Start.Col, Offset: shift + ht.End.Offset},
				},
			})
		}
	}
	return out
}

type holeSpan struct{ start, end int }

// templateHoles returns the rune ranges of every top-level `${...}` hole
// body within a template literal's text (r[0] == '`').
func templateHoles(r []rune) []holeSpan {
	var holes []holeSpan
	n := len(r)
	i := 1
	for i < n {
		switch {
		case r[i] == '\\':
			i += 2
		case r[i] == '`':
			return holes
		case r[i] == '$' && i+1 < n && r[i+1] == '{':
			start := i + 2
			depth := 1
			j := start
			for j < n && depth > 0 {
				switch r[j] {
				case '{':
					depth++
				case '}':
					depth--
				case '`':
					j = scanTemplate(r, j) - 1
				case '\'', '"':
					j = skipStringAt(r, j) - 1
				}
				j++
			}
			holes = append(holes, holeSpan{start: start, end: j - 1})
			i = j
		default:
			i++
		}
	}
	return holes
}

// isObjectKey reports whether toks[i] sits in an unshorthand object-literal
// key position: preceded by `{` or `,` (at the same depth) and followed by
// `:`. A rough heuristic; shorthand keys (`{ x }`) are deliberately not
// excluded here, since a shorthand key is also a genuine reference to x.
func isObjectKey(toks []Token, i int) bool {
	if i+1 >= len(toks) || toks[i+1].Kind != TokPunct || toks[i+1].Text != ":" {
		return false
	}
	if i == 0 {
		return false
	}
	prev := toks[i-1]
	return prev.Kind == TokPunct && (prev.Text == "{" || prev.Text == ",")
}

// boundNames approximates the set of identifiers introduced as local
// bindings within toks: function/arrow/method parameters, catch clauses,
// nested function names, and const/let/var declarators inside a body.
// Declarators at brace depth zero are the fragment's own declaration and
// stay collectable, so the emitter can rewrite the defining occurrence.
func boundNames(toks []Token) map[string]bool {
	bound := make(map[string]bool)
	depth := 0
	for i, t := range toks {
		if t.Kind == TokPunct {
			switch t.Text {
			case "{":
				depth++
			case "}":
				depth--
			case ")":
				if i+1 >= len(toks) || toks[i+1].Kind != TokPunct {
					continue
				}
				switch toks[i+1].Text {
				case "=>":
					// parenthesized arrow param list: `(a, b) => ...`
					if open := matchingOpen(toks, i); open >= 0 {
						collectParamNames(toks, open, bound)
					}
				case "{":
					// class/object method: `name(a, b) { ... }`.
					// Control-flow parens (`if (x) {`) are excluded: the
					// token before the open paren is a keyword there, an
					// ordinary identifier here.
					open := matchingOpen(toks, i)
					if open > 0 && toks[open-1].Kind == TokIdent && !keywords[toks[open-1].Text] {
						collectParamNames(toks, open, bound)
					}
				}
			}
			continue
		}
		if t.Kind != TokIdent {
			continue
		}
		switch t.Text {
		case "function":
			if depth > 0 {
				if name := identAt(toks, i+1); name != "" {
					bound[name] = true
				}
			}
			collectParamNames(toks, i+1, bound)
		case "catch":
			collectParamNames(toks, i+1, bound)
		case "const", "let", "var", "using":
			if depth > 0 {
				bindDeclarators(toks, i+1, bound)
			}
		default:
			// bare-identifier arrow: `x => ...`
			if !keywords[t.Text] && i+1 < len(toks) && toks[i+1].Kind == TokPunct && toks[i+1].Text == "=>" {
				bound[t.Text] = true
			}
		}
	}
	return bound
}

// bindDeclarators records the names introduced by one const/let/var
// statement, including destructuring patterns, stopping at the
// initializer (or at the `of`/`in` of a for-loop head).
func bindDeclarators(toks []Token, start int, bound map[string]bool) {
	for j := start; j < len(toks); j++ {
		t := toks[j]
		if t.Kind == TokPunct && (t.Text == "=" || t.Text == ";" || t.Text == ")") {
			return
		}
		if t.Kind == TokIdent {
			if t.Text == "of" || t.Text == "in" {
				return
			}
			if !keywords[t.Text] {
				bound[t.Text] = true
			}
		}
	}
}

// collectParamNames records identifiers inside a parameter list (optionally
// preceded by a function name) as bound. Only names at the list's own
// depth are taken, so default-value expressions referencing outer names
// are left alone.
func collectParamNames(toks []Token, start int, bound map[string]bool) {
	i := start
	if i < len(toks) && toks[i].Kind == TokIdent {
		i++ // skip function name
	}
	if i >= len(toks) || toks[i].Kind != TokPunct || toks[i].Text != "(" {
		return
	}
	depth := 0
	for ; i < len(toks); i++ {
		t := toks[i]
		if t.Kind == TokPunct {
			switch t.Text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
				if depth == 0 && t.Text == ")" {
					return
				}
			}
		}
		if depth == 1 && t.Kind == TokIdent && !keywords[t.Text] {
			bound[t.Text] = true
		}
	}
}

// matchingOpen returns the index of the "(" matching the ")" at closeIdx.
func matchingOpen(toks []Token, closeIdx int) int {
	depth := 0
	for i := closeIdx; i >= 0; i-- {
		t := toks[i]
		if t.Kind == TokPunct {
			switch t.Text {
			case ")":
				depth++
			case "(":
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

// scanArgs splits a call's parenthesized argument list (toks[openIdx] ==
// "(") into top-level comma-separated ArgSpans.
func scanArgs(uri string, r []rune, toks []Token, openIdx int) ([]ast.ArgSpan, Pos) {
	var args []ast.ArgSpan
	depth := 0
	argStart := openIdx + 1
	i := openIdx
	for ; i < len(toks); i++ {
		t := toks[i]
		if t.Kind == TokPunct {
			switch t.Text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
				if depth == 0 {
					if i > argStart {
						args = append(args, argSpanFrom(uri, r, toks, argStart, i))
					}
					return args, t.End
				}
			case ",":
				if depth == 1 {
					args = append(args, argSpanFrom(uri, r, toks, argStart, i))
					argStart = i + 1
				}
			}
		}
	}
	end := Pos{}
	if len(toks) > 0 {
		end = toks[len(toks)-1].End
	}
	return args, end
}

func argSpanFrom(uri string, r []rune, toks []Token, start, end int) ast.ArgSpan {
	if start >= end {
		return ast.ArgSpan{}
	}
	spread := toks[start].Kind == TokPunct && toks[start].Text == "..."
	s := toks[start].Start
	e := toks[end-1].End
	return ast.ArgSpan{
		Text:   text(r, s, e),
		Span:   spanOf(uri, s, e),
		Spread: spread,
	}
}
