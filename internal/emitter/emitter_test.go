package emitter

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/fetcher"
	"github.com/funee-dev/funee/internal/graph"
	"github.com/funee-dev/funee/internal/shaker"
)

// emitFrom runs build → shake → emit over an in-memory module tree.
func emitFrom(t *testing.T, files map[string]string, entry string, cfg core.BundlerConfig) *core.RunResult {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, src := range files {
		if err := afero.WriteFile(fs, path, []byte(src), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	cfg.CacheDir = t.TempDir()
	f := fetcher.New(cfg, fs, nil)
	store := graph.NewStore(context.Background(), f)
	builder := graph.NewBuilder(store)

	arena, err := builder.Build(entry)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	root, err := builder.EntryCanonical(entry)
	if err != nil {
		t.Fatalf("EntryCanonical: %v", err)
	}
	shaker.Shake(arena, root)

	result, err := New(builder, arena).Emit(root, cfg)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	return result
}

func TestEmitRenamesAndInvokesEntry(t *testing.T) {
	result := emitFrom(t, map[string]string{
		"/src/entry.ts": `export default function main() { return 1; }`,
	}, "file:///src/entry.ts", core.DefaultConfig())

	prog := result.Program
	if strings.Contains(prog, "export default") {
		t.Errorf("module syntax survived emission:\n%s", prog)
	}
	if !strings.Contains(prog, "function declaration_0()") {
		t.Errorf("entry not renamed:\n%s", prog)
	}
	if !strings.Contains(prog, "declaration_0();") {
		t.Errorf("entry invocation missing:\n%s", prog)
	}
}

func TestEmitFlagSuppressesInvocationOnly(t *testing.T) {
	files := map[string]string{
		"/src/entry.ts": `export default function main() { return 1; }`,
	}
	normal := emitFrom(t, files, "file:///src/entry.ts", core.DefaultConfig())

	cfg := core.DefaultConfig()
	cfg.Emit = true
	emitOnly := emitFrom(t, files, "file:///src/entry.ts", cfg)

	if !strings.HasPrefix(normal.Program, emitOnly.Program) {
		t.Errorf("--emit output is not a prefix of the normal output:\n--emit:\n%s\nnormal:\n%s", emitOnly.Program, normal.Program)
	}
	tail := strings.TrimPrefix(normal.Program, emitOnly.Program)
	if strings.TrimSpace(tail) != "declaration_0();" {
		t.Errorf("tail = %q, want only the entry invocation", tail)
	}
}

func TestEmitTreeShakesUnusedStrings(t *testing.T) {
	result := emitFrom(t, map[string]string{
		"/src/utils.ts": `
export function used() { return "used value"; }
export function unused() { return "unused function - should NOT appear"; }
export function alsoUnused() { return "also unused - should NOT appear"; }
`,
		"/src/entry.ts": `
import { used } from "./utils";
export default function main() { return used(); }
`,
	}, "file:///src/entry.ts", core.DefaultConfig())

	prog := result.Program
	if !strings.Contains(prog, "used value") {
		t.Errorf("used declaration body missing:\n%s", prog)
	}
	for _, banned := range []string{"unused function - should NOT appear", "also unused - should NOT appear"} {
		if strings.Contains(prog, banned) {
			t.Errorf("bundle contains %q", banned)
		}
	}
	if strings.Contains(prog, "import ") {
		t.Errorf("import statement survived:\n%s", prog)
	}
}

func TestEmitCrossModuleReferenceRewrite(t *testing.T) {
	result := emitFrom(t, map[string]string{
		"/src/impl.ts":   `export function helper() { return "helper called"; }`,
		"/src/barrel.ts": `export { helper as aliased } from "./impl";`,
		"/src/entry.ts": `
import { aliased } from "./barrel";
export default function main() { return aliased(); }
`,
	}, "file:///src/entry.ts", core.DefaultConfig())

	prog := result.Program
	if strings.Contains(prog, "aliased") {
		t.Errorf("aliased import name survived renaming:\n%s", prog)
	}
	if !strings.Contains(prog, "helper called") {
		t.Errorf("helper body missing:\n%s", prog)
	}
	if len(result.EmitOrder) != 2 {
		t.Errorf("emit order = %v", result.EmitOrder)
	}
}

func TestEmitTopologicalOrder(t *testing.T) {
	result := emitFrom(t, map[string]string{
		"/src/dep.ts": `export const base = 41;`,
		"/src/entry.ts": `
import { base } from "./dep";
const derived = base + 1;
export default function main() { return derived; }
`,
	}, "file:///src/entry.ts", core.DefaultConfig())

	prog := result.Program
	baseIdx := strings.Index(prog, "= 41")
	derivedIdx := strings.Index(prog, "+ 1")
	if baseIdx < 0 || derivedIdx < 0 {
		t.Fatalf("expected const bodies in program:\n%s", prog)
	}
	if baseIdx > derivedIdx {
		t.Errorf("const dependency emitted after its dependent:\n%s", prog)
	}
}

func TestEmitHostPreambleBindsOnlyReferencedExports(t *testing.T) {
	result := emitFrom(t, map[string]string{
		"/src/entry.ts": `
import { readFile } from "host://fs";
export default function main() { return readFile("/x"); }
`,
	}, "file:///src/entry.ts", core.DefaultConfig())

	prog := result.Program
	if !strings.Contains(prog, "const readFile = globalThis.__host_fs_readFile;") {
		t.Errorf("host preamble binding missing:\n%s", prog)
	}
	if strings.Contains(prog, "__host_fs_writeFile") {
		t.Errorf("unreferenced host export bound:\n%s", prog)
	}
}

func TestEmitDefaultExpressionBecomesConst(t *testing.T) {
	result := emitFrom(t, map[string]string{
		"/src/entry.ts": `export default () => { return 7; };`,
	}, "file:///src/entry.ts", core.DefaultConfig())

	prog := result.Program
	if !strings.Contains(prog, "const declaration_0 = ") {
		t.Errorf("anonymous default not bound to its emit name:\n%s", prog)
	}
	if !strings.Contains(prog, "declaration_0();") {
		t.Errorf("entry invocation missing:\n%s", prog)
	}
}

func TestEmitDeterministicAcrossRuns(t *testing.T) {
	files := map[string]string{
		"/src/a.ts": `export const a = 1;`,
		"/src/b.ts": `export const b = 2;`,
		"/src/entry.ts": `
import { a } from "./a";
import { b } from "./b";
export default function main() { return a + b; }
`,
	}
	first := emitFrom(t, files, "file:///src/entry.ts", core.DefaultConfig())
	second := emitFrom(t, files, "file:///src/entry.ts", core.DefaultConfig())
	if first.Program != second.Program {
		t.Errorf("two runs over identical input differ:\n%s\n----\n%s", first.Program, second.Program)
	}
}

func TestEmitGlobalTimerBinding(t *testing.T) {
	result := emitFrom(t, map[string]string{
		"/src/entry.ts": `export default function main() { setTimeout(() => {}, 1); }`,
	}, "file:///src/entry.ts", core.DefaultConfig())

	if !strings.Contains(result.Program, "const setTimeout = globalThis.__host_time_setTimeout;") {
		t.Errorf("bare timer not bound through the host preamble:\n%s", result.Program)
	}
}
