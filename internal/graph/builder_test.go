package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/fetcher"
)

// buildFrom lays files out on an in-memory filesystem and walks the graph
// from entry's default export.
func buildFrom(t *testing.T, files map[string]string, entry string) (*Builder, *Arena, error) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, src := range files {
		if err := afero.WriteFile(fs, path, []byte(src), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	cfg := core.DefaultConfig()
	cfg.CacheDir = t.TempDir()
	f := fetcher.New(cfg, fs, nil)
	store := NewStore(context.Background(), f)
	b := NewBuilder(store)
	arena, err := b.Build(entry)
	return b, arena, err
}

func TestBuildWalksOnlyReferencedDeclarations(t *testing.T) {
	_, arena, err := buildFrom(t, map[string]string{
		"/src/utils.ts": `
export function used() { return "used"; }
export function unused() { return "unused function - should NOT appear"; }
`,
		"/src/entry.ts": `
import { used } from "./utils";
export default function main() { return used(); }
`,
	}, "file:///src/entry.ts")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !arena.Has(core.CanonicalName{URI: "file:///src/utils.ts", Name: "used"}) {
		t.Error("used not visited")
	}
	if arena.Has(core.CanonicalName{URI: "file:///src/utils.ts", Name: "unused"}) {
		t.Error("unused was visited despite never being referenced")
	}
}

func TestBuildFollowsBarrelReExports(t *testing.T) {
	_, arena, err := buildFrom(t, map[string]string{
		"/src/impl.ts":   `export function helper() { return "helper called"; }`,
		"/src/barrel.ts": `export { helper } from "./impl";`,
		"/src/entry.ts": `
import { helper } from "./barrel";
export default function main() { return helper(); }
`,
	}, "file:///src/entry.ts")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Canonical identity is the defining module, not the barrel.
	if !arena.Has(core.CanonicalName{URI: "file:///src/impl.ts", Name: "helper"}) {
		t.Error("helper's canonical home should be impl.ts")
	}

	main, ok := arena.Get(core.CanonicalName{URI: "file:///src/entry.ts", Name: "main"})
	if !ok {
		t.Fatal("entry declaration missing")
	}
	found := false
	for ref := range main.References {
		if ref.URI == "file:///src/impl.ts" && ref.Name == "helper" {
			found = true
		}
	}
	if !found {
		t.Errorf("main's references = %v, want impl.ts helper", main.ReferenceList())
	}
}

func TestBuildMissingImportNamesTheSymbol(t *testing.T) {
	_, _, err := buildFrom(t, map[string]string{
		"/src/x.ts": `export const present = 1;`,
		"/src/entry.ts": `
import { doesNotExist } from "./x";
export default function main() { return doesNotExist; }
`,
	}, "file:///src/entry.ts")
	if err == nil {
		t.Fatal("expected MissingExport")
	}
	if !strings.Contains(err.Error(), "doesNotExist") {
		t.Errorf("error %q does not name the missing symbol", err.Error())
	}
}

func TestBuildUnresolvedReference(t *testing.T) {
	_, _, err := buildFrom(t, map[string]string{
		"/src/entry.ts": `export default function main() { return neverDefined; }`,
	}, "file:///src/entry.ts")
	if err == nil {
		t.Fatal("expected UnresolvedReference")
	}
	var target *core.UnresolvedReferenceError
	if !errors.As(err, &target) {
		t.Fatalf("error type = %T: %v", err, err)
	}
	if target.Name != "neverDefined" {
		t.Errorf("unresolved name = %q", target.Name)
	}
}

func TestBuildJSGlobalsAreNotReferences(t *testing.T) {
	_, arena, err := buildFrom(t, map[string]string{
		"/src/entry.ts": `export default function main() { return JSON.stringify(Math.max(1, 2)); }`,
	}, "file:///src/entry.ts")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	main, _ := arena.Get(core.CanonicalName{URI: "file:///src/entry.ts", Name: "main"})
	for ref := range main.References {
		if ref.Name == "JSON" || ref.Name == "Math" {
			t.Errorf("JS global %q recorded as reference", ref.Name)
		}
	}
}

func TestBuildHostImportSynthesized(t *testing.T) {
	_, arena, err := buildFrom(t, map[string]string{
		"/src/entry.ts": `
import { readFile } from "host://fs";
export default function main() { return readFile("/etc/hosts"); }
`,
	}, "file:///src/entry.ts")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, ok := arena.Get(core.CanonicalName{URI: "host://fs", Name: "readFile"})
	if !ok {
		t.Fatal("host export not in arena")
	}
	if d.Fragment != nil {
		t.Error("host stub should carry no source fragment")
	}
}

func TestBuildBareTimerResolvesToHostTime(t *testing.T) {
	_, arena, err := buildFrom(t, map[string]string{
		"/src/entry.ts": `export default function main() { setTimeout(() => {}, 10); }`,
	}, "file:///src/entry.ts")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	main, _ := arena.Get(core.CanonicalName{URI: "file:///src/entry.ts", Name: "main"})
	found := false
	for ref := range main.References {
		if ref.URI == "host://time" && ref.Name == "setTimeout" {
			found = true
		}
	}
	if !found {
		t.Errorf("bare setTimeout did not resolve to host://time: %v", main.ReferenceList())
	}
}

func TestBuildMarksMacroDeclarations(t *testing.T) {
	_, arena, err := buildFrom(t, map[string]string{
		"/src/entry.ts": `
const addOne = createMacro((arg) => ({ expression: "(" + arg.expression + ") + 1", references: new Map() }));
export default function main() { return addOne(5); }
`,
	}, "file:///src/entry.ts")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, ok := arena.Get(core.CanonicalName{URI: "file:///src/entry.ts", Name: "addOne"})
	if !ok {
		t.Fatal("macro declaration not visited")
	}
	if !d.MacroMarker {
		t.Error("createMacro initializer not marked as macro")
	}
}

func TestEntryCanonicalResolvesNamedDefault(t *testing.T) {
	b, _, err := buildFrom(t, map[string]string{
		"/src/entry.ts": `export default function main() { return 1; }`,
	}, "file:///src/entry.ts")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	root, err := b.EntryCanonical("file:///src/entry.ts")
	if err != nil {
		t.Fatalf("EntryCanonical: %v", err)
	}
	want := core.CanonicalName{URI: "file:///src/entry.ts", Name: "main"}
	if root != want {
		t.Errorf("root = %+v, want %+v", root, want)
	}
}

func TestBuildMutualRecursionCycles(t *testing.T) {
	_, arena, err := buildFrom(t, map[string]string{
		"/src/entry.ts": `
function even(n) { return n === 0 ? true : odd(n - 1); }
function odd(n) { return n === 0 ? false : even(n - 1); }
export default function main() { return even(4); }
`,
	}, "file:///src/entry.ts")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	even, ok := arena.Get(core.CanonicalName{URI: "file:///src/entry.ts", Name: "even"})
	if !ok {
		t.Fatal("even not visited")
	}
	odd, ok := arena.Get(core.CanonicalName{URI: "file:///src/entry.ts", Name: "odd"})
	if !ok {
		t.Fatal("odd not visited")
	}
	if _, cyc := even.References[odd.Canonical]; !cyc {
		t.Error("even should reference odd")
	}
	if _, cyc := odd.References[even.Canonical]; !cyc {
		t.Error("odd should reference even")
	}
}
