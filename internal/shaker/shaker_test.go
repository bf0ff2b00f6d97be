package shaker

import (
	"testing"

	"github.com/funee-dev/funee/internal/ast"
	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/graph"
)

func decl(arena *graph.Arena, uri, name string, refs ...core.CanonicalName) *core.Declaration {
	d := core.NewDeclaration(0, core.CanonicalName{URI: uri, Name: name}, core.KindFunction, &ast.Fragment{Text: name})
	for _, r := range refs {
		d.AddReference(r)
	}
	arena.Add(d)
	return d
}

func TestShakeDropsUnreachable(t *testing.T) {
	arena := graph.NewArena()
	used := core.CanonicalName{URI: "file:///u.ts", Name: "used"}
	root := core.CanonicalName{URI: "file:///e.ts", Name: "main"}

	decl(arena, "file:///e.ts", "main", used)
	decl(arena, "file:///u.ts", "used")
	decl(arena, "file:///u.ts", "unused")

	surviving := Shake(arena, root)
	if len(surviving) != 2 {
		t.Fatalf("survivors = %d, want 2", len(surviving))
	}
	if arena.Has(core.CanonicalName{URI: "file:///u.ts", Name: "unused"}) {
		t.Error("unreachable declaration survived")
	}
	if !arena.Has(used) {
		t.Error("reachable declaration removed")
	}
}

func TestShakeKeepsCyclesWithoutDuplication(t *testing.T) {
	arena := graph.NewArena()
	even := core.CanonicalName{URI: "file:///e.ts", Name: "even"}
	odd := core.CanonicalName{URI: "file:///e.ts", Name: "odd"}
	root := core.CanonicalName{URI: "file:///e.ts", Name: "main"}

	decl(arena, "file:///e.ts", "main", even)
	decl(arena, "file:///e.ts", "even", odd)
	decl(arena, "file:///e.ts", "odd", even)

	surviving := Shake(arena, root)
	if len(surviving) != 3 {
		t.Fatalf("survivors = %d, want 3", len(surviving))
	}
	counts := make(map[core.CanonicalName]int)
	for _, d := range surviving {
		counts[d.Canonical]++
	}
	for name, n := range counts {
		if n != 1 {
			t.Errorf("%v emitted %d times", name, n)
		}
	}
}

func TestShakeRemovesAdjacentUnreachable(t *testing.T) {
	// An expanded macro and the helper only it referenced sit next to
	// each other in discovery order; both must go.
	arena := graph.NewArena()
	root := core.CanonicalName{URI: "file:///e.ts", Name: "main"}
	helper := core.CanonicalName{URI: "file:///e.ts", Name: "helper"}

	decl(arena, "file:///e.ts", "main")
	decl(arena, "file:///e.ts", "macro", helper)
	decl(arena, "file:///e.ts", "helper")

	surviving := Shake(arena, root)
	if len(surviving) != 1 || surviving[0].Canonical != root {
		t.Fatalf("survivors = %v, want only the root", surviving)
	}
	for _, name := range []string{"macro", "helper"} {
		if arena.Has(core.CanonicalName{URI: "file:///e.ts", Name: name}) {
			t.Errorf("unreachable %s still in the arena", name)
		}
	}
	if got := len(arena.All()); got != 1 {
		t.Errorf("arena retains %d declarations, want 1", got)
	}
}

func TestShakeMissingRootDropsEverything(t *testing.T) {
	arena := graph.NewArena()
	decl(arena, "file:///e.ts", "orphan")

	surviving := Shake(arena, core.CanonicalName{URI: "file:///e.ts", Name: "main"})
	if len(surviving) != 0 {
		t.Errorf("survivors = %d, want none", len(surviving))
	}
}

func TestShakePreservesDiscoveryOrder(t *testing.T) {
	arena := graph.NewArena()
	b := core.CanonicalName{URI: "file:///m.ts", Name: "b"}
	c := core.CanonicalName{URI: "file:///m.ts", Name: "c"}
	root := core.CanonicalName{URI: "file:///m.ts", Name: "a"}

	decl(arena, "file:///m.ts", "a", b, c)
	decl(arena, "file:///m.ts", "b")
	decl(arena, "file:///m.ts", "c")

	surviving := Shake(arena, root)
	want := []string{"a", "b", "c"}
	for i, d := range surviving {
		if d.Canonical.Name != want[i] {
			t.Errorf("survivor %d = %s, want %s", i, d.Canonical.Name, want[i])
		}
	}
}
