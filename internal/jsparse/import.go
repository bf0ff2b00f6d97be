package jsparse

import "github.com/funee-dev/funee/internal/core"

// classifyImport recognizes the full set of import forms:
//
//	import "./x"
//	import Default from "./x"
//	import * as ns from "./x"
//	import { a, b as c } from "./x"
//	import Default, { a, b as c } from "./x"
//	import Default, * as ns from "./x"
func classifyImport(r []rune, toks []Token, pm *ParsedModule) error {
	i := 1 // past "import"
	if i >= len(toks) {
		return nil
	}

	// Side-effect only: import "./x";
	if toks[i].Kind == TokString {
		return nil
	}

	spec := ""
	var records []core.ImportRecord

	// Default binding.
	if toks[i].Kind == TokIdent && toks[i].Text != "from" {
		records = append(records, core.ImportRecord{
			LocalName: toks[i].Text,
			Kind:      core.ImportDefault,
			Span:      spanOf("", toks[i].Start, toks[i].End),
		})
		i++
		if i < len(toks) && toks[i].Kind == TokPunct && toks[i].Text == "," {
			i++
		}
	}

	if i < len(toks) && toks[i].Kind == TokPunct && toks[i].Text == "*" {
		i++ // past *
		if i < len(toks) && toks[i].Text == "as" {
			i++
		}
		if i < len(toks) && toks[i].Kind == TokIdent {
			records = append(records, core.ImportRecord{
				LocalName: toks[i].Text,
				Kind:      core.ImportNamespace,
				Span:      spanOf("", toks[i].Start, toks[i].End),
			})
			i++
		}
	} else if i < len(toks) && toks[i].Kind == TokPunct && toks[i].Text == "{" {
		i++
		for i < len(toks) && !(toks[i].Kind == TokPunct && toks[i].Text == "}") {
			if toks[i].Kind != TokIdent {
				i++
				continue
			}
			imported := toks[i].Text
			local := imported
			span := spanOf("", toks[i].Start, toks[i].End)
			i++
			if i < len(toks) && toks[i].Text == "as" {
				i++
				if i < len(toks) && toks[i].Kind == TokIdent {
					local = toks[i].Text
					span = spanOf("", toks[i].Start, toks[i].End)
					i++
				}
			}
			records = append(records, core.ImportRecord{
				LocalName:    local,
				Kind:         core.ImportNamed,
				ImportedName: imported,
				Span:         span,
			})
			if i < len(toks) && toks[i].Kind == TokPunct && toks[i].Text == "," {
				i++
			}
		}
		if i < len(toks) {
			i++ // past }
		}
	}

	for i < len(toks) && !(toks[i].Kind == TokIdent && toks[i].Text == "from") {
		i++
	}
	if i < len(toks) {
		i++ // past "from"
	}
	if i < len(toks) && toks[i].Kind == TokString {
		spec = unquote(toks[i].Text)
	}

	for idx := range records {
		records[idx].SourceSpecifier = spec
	}
	pm.Imports = append(pm.Imports, records...)
	return nil
}

// unquote strips the surrounding quote characters from a TokString's text.
func unquote(s string) string {
	if len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}
