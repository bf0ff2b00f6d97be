// Package shaker computes reachability over the declaration graph rooted
// at the entry's default export. Declarations not reached by any chain of
// references from the root are discarded.
package shaker

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/graph"
)

// Shake computes the reachable set from root over arena's reference edges
// and removes everything else, returning the surviving declarations in
// the arena's original discovery order (the stable order the emitter's
// renaming pass relies on). root is the canonical name of the entry's
// default export, already resolved through any export aliasing.
func Shake(arena *graph.Arena, root core.CanonicalName) []*core.Declaration {
	all := arena.All()
	reachable := bitset.New(uint(len(all)))

	var worklist []core.CanonicalName
	if d, ok := arena.Get(root); ok {
		worklist = append(worklist, d.Canonical)
	}

	visited := make(map[core.CanonicalName]bool)
	for len(worklist) > 0 {
		name := worklist[0]
		worklist = worklist[1:]
		if visited[name] {
			continue
		}
		visited[name] = true

		d, ok := arena.Get(name)
		if !ok {
			continue
		}
		reachable.Set(uint(d.ID))
		for _, ref := range d.ReferenceList() {
			if !visited[ref] {
				worklist = append(worklist, ref)
			}
		}
	}

	// Partition before mutating: Remove compacts the arena's backing
	// slice in place, and all aliases it, so removals must not interleave
	// with iteration.
	var surviving []*core.Declaration
	var dead []core.CanonicalName
	for _, d := range all {
		if reachable.Test(uint(d.ID)) {
			surviving = append(surviving, d)
		} else {
			dead = append(dead, d.Canonical)
		}
	}
	for _, name := range dead {
		arena.Remove(name)
	}

	return surviving
}
