package jsparse

import (
	"strings"
	"testing"

	"github.com/funee-dev/funee/internal/core"
)

func TestParseNamedAndAliasedImports(t *testing.T) {
	pm, err := Parse("file:///a.ts", `import { used, helper as h } from "./utils";`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pm.Imports) != 2 {
		t.Fatalf("imports = %+v, want 2 records", pm.Imports)
	}
	first := pm.Imports[0]
	if first.LocalName != "used" || first.ImportedName != "used" || first.Kind != core.ImportNamed {
		t.Errorf("first import = %+v", first)
	}
	second := pm.Imports[1]
	if second.LocalName != "h" || second.ImportedName != "helper" {
		t.Errorf("aliased import = %+v", second)
	}
	if first.SourceSpecifier != "./utils" {
		t.Errorf("specifier = %q", first.SourceSpecifier)
	}
}

func TestParseDefaultAndNamespaceImports(t *testing.T) {
	pm, err := Parse("file:///a.ts", "import Def, * as ns from \"./m\";")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pm.Imports) != 2 {
		t.Fatalf("imports = %+v", pm.Imports)
	}
	if pm.Imports[0].Kind != core.ImportDefault || pm.Imports[0].LocalName != "Def" {
		t.Errorf("default import = %+v", pm.Imports[0])
	}
	if pm.Imports[1].Kind != core.ImportNamespace || pm.Imports[1].LocalName != "ns" {
		t.Errorf("namespace import = %+v", pm.Imports[1])
	}
}

func TestParseSideEffectImportRecordsNothing(t *testing.T) {
	pm, err := Parse("file:///a.ts", `import "./side-effect";`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pm.Imports) != 0 {
		t.Errorf("side-effect import produced records: %+v", pm.Imports)
	}
}

func TestParseExportForms(t *testing.T) {
	src := `
export const a = 1;
export function f() { return a; }
export class C {}
const hidden = 2;
export { hidden as visible };
export { re as exported } from "./other";
export * from "./star";
`
	pm, err := Parse("file:///m.ts", src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if b := pm.Exports["a"]; b.LocalName != "a" {
		t.Errorf("export a = %+v", b)
	}
	if b := pm.Exports["visible"]; b.LocalName != "hidden" {
		t.Errorf("aliased local export = %+v", b)
	}
	b := pm.Exports["exported"]
	if !b.IsReExport || b.FromSpecifier != "./other" || b.OriginalName != "re" {
		t.Errorf("re-export = %+v", b)
	}
	if len(pm.StarReExports) != 1 || pm.StarReExports[0] != "./star" {
		t.Errorf("star re-exports = %v", pm.StarReExports)
	}
	if _, ok := pm.Declarations["hidden"]; !ok {
		t.Error("unexported const not recorded as declaration")
	}
	if pm.DeclKinds["f"] != core.KindFunction {
		t.Errorf("kind of f = %v", pm.DeclKinds["f"])
	}
	if pm.DeclKinds["C"] != core.KindClass {
		t.Errorf("kind of C = %v", pm.DeclKinds["C"])
	}
}

func TestParseMultipleStarReExports(t *testing.T) {
	pm, err := Parse("file:///m.ts", "export * from \"./a\";\nexport * from \"./b\";\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pm.StarReExports) != 2 {
		t.Fatalf("star re-exports = %v, want both sources kept", pm.StarReExports)
	}
}

func TestParseExportDefaultFunction(t *testing.T) {
	pm, err := Parse("file:///m.ts", "export default function main() { return 1; }")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b := pm.Exports[core.EntryDefaultExport]; b.LocalName != "main" {
		t.Errorf("default export binding = %+v", b)
	}
	if _, ok := pm.Declarations["main"]; !ok {
		t.Error("named default function not recorded under its own name")
	}
}

func TestParseExportDefaultExpression(t *testing.T) {
	pm, err := Parse("file:///m.ts", "export default () => { run(); };")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	frag, ok := pm.Declarations[core.EntryDefaultExport]
	if !ok {
		t.Fatal("default expression not recorded")
	}
	if pm.DeclKinds[core.EntryDefaultExport] != core.KindDefaultExpr {
		t.Errorf("kind = %v", pm.DeclKinds[core.EntryDefaultExport])
	}
	names := frag.FreeNames()
	foundRun := false
	for _, n := range names {
		if n == "run" {
			foundRun = true
		}
	}
	if !foundRun {
		t.Errorf("free names %v missing reference to run", names)
	}
}

func TestParseStripsTypeScriptSyntax(t *testing.T) {
	pm, err := Parse("file:///m.ts", `
interface Shape { area(): number; }
export const x: number = 1;
export function f(s: string): string { return s; }
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := pm.Declarations["x"]; !ok {
		t.Error("typed const not recorded")
	}
	frag := pm.Declarations["f"]
	if strings.Contains(frag.Text, ": string") {
		t.Errorf("type annotation survived stripping: %q", frag.Text)
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse("file:///bad.ts", "const = = ;")
	if err == nil {
		t.Fatal("expected a parse error")
	}
	pe, ok := err.(*core.ParseError)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if pe.URI != "file:///bad.ts" {
		t.Errorf("error URI = %q", pe.URI)
	}
	msg := strings.ToLower(pe.Error())
	if !strings.Contains(msg, "parse") && !strings.Contains(msg, "expected") && !strings.Contains(msg, "error") {
		t.Errorf("message %q carries no parse/expected/error hint", pe.Error())
	}
}

func TestParseCollectsCallSites(t *testing.T) {
	pm, err := Parse("file:///m.ts", "export default function go() { return addOne(5); }")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	frag := pm.Declarations["go"]
	var call bool
	for _, c := range frag.Calls {
		if c.Callee.Name == "addOne" {
			call = true
			if len(c.Args) != 1 || strings.TrimSpace(c.Args[0].Text) != "5" {
				t.Errorf("call args = %+v", c.Args)
			}
		}
	}
	if !call {
		t.Errorf("addOne call not collected: %+v", frag.Calls)
	}
}

func TestParseSnippetFreeIdents(t *testing.T) {
	frag, err := ParseSnippet("file:///m.ts", "a + b(c)")
	if err != nil {
		t.Fatalf("ParseSnippet: %v", err)
	}
	names := frag.FreeNames()
	if len(names) != 3 {
		t.Fatalf("free names = %v", names)
	}
}

func TestParseTemplateHoleReferences(t *testing.T) {
	pm, err := Parse("file:///m.ts", "const label = `value: ${count}`;\nconst count = 1;")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	frag := pm.Declarations["label"]
	found := false
	for _, n := range frag.FreeNames() {
		if n == "count" {
			found = true
		}
	}
	if !found {
		t.Errorf("template hole reference to count not collected: %v", frag.FreeNames())
	}
}

func TestScanStatementSplitsFunctionBodies(t *testing.T) {
	src := "function a() { if (x) { y(); } }\nfunction b() {}"
	toks := filterComments(Lex(src))
	stmts := splitTopLevelStatements(toks)
	if len(stmts) != 2 {
		t.Fatalf("statements = %d, want 2", len(stmts))
	}
}
