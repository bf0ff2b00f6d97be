package funee

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/funee-dev/funee/internal/hostruntime"
)

func writeTree(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, src := range files {
		if err := afero.WriteFile(fs, path, []byte(src), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	return fs
}

func testConfig(t *testing.T) BundlerConfig {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CacheDir = t.TempDir()
	return cfg
}

func TestBundleTreeShakesUnusedExports(t *testing.T) {
	fs := writeTree(t, map[string]string{
		"/src/utils.ts": `
export function used() { return "used result"; }
export function unused() { return "unused function - should NOT appear"; }
export function alsoUnused() { return "also unused - should NOT appear"; }
`,
		"/src/entry.ts": `
import { used } from "./utils";
export default function main() { return used(); }
`,
	})

	result, err := Bundle(context.Background(), "file:///src/entry.ts", testConfig(t), fs, nil)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if !strings.Contains(result.Program, "used result") {
		t.Errorf("used body missing:\n%s", result.Program)
	}
	for _, banned := range []string{"unused function - should NOT appear", "also unused - should NOT appear"} {
		if strings.Contains(result.Program, banned) {
			t.Errorf("bundle contains %q", banned)
		}
	}
}

func TestBundleBarrelChainRuns(t *testing.T) {
	fs := writeTree(t, map[string]string{
		"/src/impl.ts":   `export function helper() { console.log("helper called"); }`,
		"/src/barrel.ts": `export { helper } from "./impl";`,
		"/src/entry.ts": `
import { helper } from "./barrel";
export default function main() { helper(); }
`,
	})

	backend := hostruntime.New(fs)
	defer backend.Shutdown()
	_, outcome, err := Run(context.Background(), "file:///src/entry.ts", testConfig(t), fs, nil, backend)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	found := false
	for _, l := range outcome.Logs {
		if strings.Contains(l.Message, "helper called") {
			found = true
		}
	}
	if !found {
		t.Errorf("logs = %+v, want helper called", outcome.Logs)
	}
}

func TestBundleMacroExpansion(t *testing.T) {
	fs := writeTree(t, map[string]string{
		"/src/entry.ts": `
const addOne = createMacro((arg) => ({ expression: "(" + arg.expression + ") + 1", references: new Map() }));
export default function main() { console.log(addOne(5)); }
`,
	})

	cfg := testConfig(t)
	cfg.Emit = true
	result, err := Bundle(context.Background(), "file:///src/entry.ts", cfg, fs, nil)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if !strings.Contains(result.Program, "5) + 1") {
		t.Errorf("expanded expression missing:\n%s", result.Program)
	}
	if strings.Contains(result.Program, "createMacro") {
		t.Errorf("createMacro survived:\n%s", result.Program)
	}
	if strings.Contains(result.Program, "addOne") {
		t.Errorf("macro declaration survived:\n%s", result.Program)
	}

	// Running the non---emit form prints the computed value.
	cfg.Emit = false
	backend := hostruntime.New(fs)
	defer backend.Shutdown()
	_, outcome, err := Run(context.Background(), "file:///src/entry.ts", cfg, fs, nil, backend)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	found := false
	for _, l := range outcome.Logs {
		if strings.TrimSpace(l.Message) == "6" {
			found = true
		}
	}
	if !found {
		t.Errorf("logs = %+v, want 6", outcome.Logs)
	}
}

func TestBundleSelfReplicatingMacroFails(t *testing.T) {
	fs := writeTree(t, map[string]string{
		"/src/entry.ts": `
const loop = createMacro((arg) => ({ expression: "loop(" + arg.expression + ")", references: new Map() }));
export default function main() { return loop(1); }
`,
	})

	cfg := testConfig(t)
	cfg.MaxMacroIterations = 5
	_, err := Bundle(context.Background(), "file:///src/entry.ts", cfg, fs, nil)
	if err == nil {
		t.Fatal("expected macro recursion failure")
	}
	if !strings.Contains(err.Error(), "Macro expansion exceeded max iterations") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestBundleMissingExportNamesSymbol(t *testing.T) {
	fs := writeTree(t, map[string]string{
		"/src/x.ts": `export const present = 1;`,
		"/src/entry.ts": `
import { doesNotExist } from "./x";
export default function main() { return doesNotExist; }
`,
	})

	_, err := Bundle(context.Background(), "file:///src/entry.ts", testConfig(t), fs, nil)
	if err == nil {
		t.Fatal("expected MissingExport")
	}
	if !strings.Contains(err.Error(), "doesNotExist") {
		t.Errorf("error %q does not name the missing symbol", err.Error())
	}
}

func TestBundleRemoteModuleFetchAndCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `export function helper() { return "remote helper"; }`)
	}))
	defer srv.Close()

	url := srv.URL + "/utils.ts"
	entry := fmt.Sprintf(`
import { helper } from %q;
export default function main() { return helper(); }
`, url)
	fs := writeTree(t, map[string]string{"/src/entry.ts": entry})

	cacheDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.CacheDir = cacheDir

	var lines []string
	first, err := Bundle(context.Background(), "file:///src/entry.ts", cfg, fs, func(l string) { lines = append(lines, l) })
	if err != nil {
		t.Fatalf("first Bundle: %v", err)
	}
	fetched := false
	for _, l := range lines {
		if strings.Contains(l, "Fetched: "+url) {
			fetched = true
		}
	}
	if !fetched {
		t.Errorf("first run diagnostics = %v, want Fetched line", lines)
	}

	var lines2 []string
	second, err := Bundle(context.Background(), "file:///src/entry.ts", cfg, fs, func(l string) { lines2 = append(lines2, l) })
	if err != nil {
		t.Fatalf("second Bundle: %v", err)
	}
	for _, l := range lines2 {
		if strings.Contains(l, "Fetched:") {
			t.Errorf("second run re-fetched: %v", lines2)
		}
	}
	if first.Program != second.Program {
		t.Error("outputs differ across runs with a warm cache")
	}
}

func TestBundleReloadPicksUpServerChange(t *testing.T) {
	content := `export function helper() { return "v1"; }`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, content)
	}))
	defer srv.Close()

	url := srv.URL + "/utils.ts"
	entry := fmt.Sprintf(`
import { helper } from %q;
export default function main() { return helper(); }
`, url)
	fs := writeTree(t, map[string]string{"/src/entry.ts": entry})

	cfg := DefaultConfig()
	cfg.CacheDir = t.TempDir()
	if _, err := Bundle(context.Background(), "file:///src/entry.ts", cfg, fs, nil); err != nil {
		t.Fatalf("warm-up Bundle: %v", err)
	}

	content = `export function helper() { return "v2"; }`
	cfg.Reload = true
	var lines []string
	result, err := Bundle(context.Background(), "file:///src/entry.ts", cfg, fs, func(l string) { lines = append(lines, l) })
	if err != nil {
		t.Fatalf("reload Bundle: %v", err)
	}
	if !strings.Contains(result.Program, "v2") {
		t.Errorf("reload did not pick up new content:\n%s", result.Program)
	}
	fetched := false
	for _, l := range lines {
		if strings.Contains(l, "Fetched: "+url) {
			fetched = true
		}
	}
	if !fetched {
		t.Errorf("reload run logged no fresh Fetched line: %v", lines)
	}
}

func TestBundleDeterministic(t *testing.T) {
	fs := writeTree(t, map[string]string{
		"/src/a.ts": `export const a = 1;`,
		"/src/b.ts": `export const b = 2;`,
		"/src/entry.ts": `
import { a } from "./a";
import { b } from "./b";
export default function main() { return a + b; }
`,
	})

	cfg := testConfig(t)
	first, err := Bundle(context.Background(), "file:///src/entry.ts", cfg, fs, nil)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	second, err := Bundle(context.Background(), "file:///src/entry.ts", cfg, fs, nil)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if first.Program != second.Program {
		t.Errorf("byte-identical output violated:\n%s\n----\n%s", first.Program, second.Program)
	}
}

func TestBundleRecordsWatchReferences(t *testing.T) {
	fs := writeTree(t, map[string]string{
		"/src/utils.ts": `export function used() { return 1; }`,
		"/src/entry.ts": `
import { used } from "./utils";
export default function main() { return used(); }
`,
	})

	result, err := Bundle(context.Background(), "file:///src/entry.ts", testConfig(t), fs, nil)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	uris := result.WatchURIs()
	found := false
	for _, u := range uris {
		if u == "file:///src/utils.ts" {
			found = true
		}
	}
	if !found {
		t.Errorf("watch URIs = %v, want utils.ts", uris)
	}
}
