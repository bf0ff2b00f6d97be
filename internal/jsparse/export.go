package jsparse

import "github.com/funee-dev/funee/internal/core"

// classifyExport recognizes the full set of export forms:
//
//	export { a, b as c }
//	export { a, b as c } from "./x"
//	export * from "./x"
//	export * as ns from "./x"
//	export const|let|var NAME = ...
//	export function NAME(...) {...}
//	export class NAME {...}
//	export default <expr>
//	export default function NAME?(...) {...}
//	export default class NAME?(...) {...}
func classifyExport(uri string, r []rune, toks []Token, pm *ParsedModule) error {
	if len(toks) < 2 {
		return nil
	}
	second := toks[1]

	switch {
	case second.Kind == TokPunct && second.Text == "{":
		return classifyExportNamed(toks, pm)
	case second.Kind == TokPunct && second.Text == "*":
		return classifyExportStar(toks, pm)
	case second.Kind == TokIdent && second.Text == "default":
		return classifyExportDefault(uri, r, toks, pm)
	case second.Kind == TokIdent && (second.Text == "const" || second.Text == "let" || second.Text == "var"):
		name, kind := declNameAndKind(toks[1:])
		if name == "" {
			return nil
		}
		pm.Declarations[name] = fragmentOf(uri, r, toks)
		pm.DeclKinds[name] = kind
		pm.Exports[name] = core.ExportBinding{LocalName: name}
	case second.Kind == TokIdent && second.Text == "function":
		if name := identAt(toks, 2); name != "" {
			pm.Declarations[name] = fragmentOf(uri, r, toks)
			pm.DeclKinds[name] = core.KindFunction
			pm.Exports[name] = core.ExportBinding{LocalName: name}
		}
	case second.Kind == TokIdent && second.Text == "async" && len(toks) > 2 && toks[2].Text == "function":
		if name := identAt(toks, 3); name != "" {
			pm.Declarations[name] = fragmentOf(uri, r, toks)
			pm.DeclKinds[name] = core.KindFunction
			pm.Exports[name] = core.ExportBinding{LocalName: name}
		}
	case second.Kind == TokIdent && second.Text == "class":
		if name := identAt(toks, 2); name != "" {
			pm.Declarations[name] = fragmentOf(uri, r, toks)
			pm.DeclKinds[name] = core.KindClass
			pm.Exports[name] = core.ExportBinding{LocalName: name}
		}
	}
	return nil
}

// classifyExportNamed handles `export { a, b as c }` (local aliasing) and
// `export { a, b as c } from "./x"` (deferred re-export).
func classifyExportNamed(toks []Token, pm *ParsedModule) error {
	i := 2 // past "export" "{"
	type entry struct{ local, exported string }
	var entries []entry
	for i < len(toks) && !(toks[i].Kind == TokPunct && toks[i].Text == "}") {
		if toks[i].Kind != TokIdent {
			i++
			continue
		}
		local := toks[i].Text
		exported := local
		i++
		if i < len(toks) && toks[i].Text == "as" {
			i++
			if i < len(toks) && toks[i].Kind == TokIdent {
				exported = toks[i].Text
				i++
			}
		}
		entries = append(entries, entry{local, exported})
		if i < len(toks) && toks[i].Kind == TokPunct && toks[i].Text == "," {
			i++
		}
	}
	if i < len(toks) {
		i++ // past }
	}

	fromSpec := ""
	if i < len(toks) && toks[i].Kind == TokIdent && toks[i].Text == "from" {
		i++
		if i < len(toks) && toks[i].Kind == TokString {
			fromSpec = unquote(toks[i].Text)
		}
	}

	for _, e := range entries {
		if fromSpec != "" {
			pm.Exports[e.exported] = core.ExportBinding{
				IsReExport:    true,
				FromSpecifier: fromSpec,
				OriginalName:  e.local,
			}
		} else {
			pm.Exports[e.exported] = core.ExportBinding{LocalName: e.local}
		}
	}
	return nil
}

// classifyExportStar handles `export * from "./x"` and `export * as ns from
// "./x"`. The resolver (internal/resolver) performs the actual union of the
// source module's export table; here we only record the deferred binding.
func classifyExportStar(toks []Token, pm *ParsedModule) error {
	i := 2 // past "export" "*"
	alias := ""
	if i < len(toks) && toks[i].Text == "as" {
		i++
		if i < len(toks) && toks[i].Kind == TokIdent {
			alias = toks[i].Text
			i++
		}
	}
	if i < len(toks) && toks[i].Text == "from" {
		i++
	}
	fromSpec := ""
	if i < len(toks) && toks[i].Kind == TokString {
		fromSpec = unquote(toks[i].Text)
	}
	if fromSpec == "" {
		return nil
	}
	if alias != "" {
		// export * as ns from "./x": a single namespace export, not a
		// union. Recorded as a non-star re-export keyed by its alias so
		// the resolver treats it as an ordinary deferred reference rather
		// than folding it into the wildcard union.
		pm.Exports[alias] = core.ExportBinding{
			IsReExport:    true,
			FromSpecifier: fromSpec,
			OriginalName:  "*",
		}
		return nil
	}
	pm.StarReExports = append(pm.StarReExports, fromSpec)
	return nil
}

func classifyExportDefault(uri string, r []rune, toks []Token, pm *ParsedModule) error {
	rest := toks[2:] // past "export" "default"
	if len(rest) == 0 {
		return nil
	}
	name := core.EntryDefaultExport
	switch {
	case rest[0].Kind == TokIdent && rest[0].Text == "function":
		if n := identAt(rest, 1); n != "" {
			name = n
		}
		pm.Declarations[name] = fragmentOf(uri, r, toks)
		pm.DeclKinds[name] = core.KindFunction
	case rest[0].Kind == TokIdent && rest[0].Text == "class":
		if n := identAt(rest, 1); n != "" {
			name = n
		}
		pm.Declarations[name] = fragmentOf(uri, r, toks)
		pm.DeclKinds[name] = core.KindClass
	default:
		pm.Declarations[core.EntryDefaultExport] = fragmentOf(uri, r, toks)
		pm.DeclKinds[core.EntryDefaultExport] = core.KindDefaultExpr
		name = core.EntryDefaultExport
	}
	pm.Exports[core.EntryDefaultExport] = core.ExportBinding{LocalName: name}
	return nil
}
