package graph

import "github.com/funee-dev/funee/internal/core"

// Arena is the declaration-graph builder's output: every visited
// declaration, addressable by its canonical name or its stable arena ID.
// The macro engine rewrites declarations in place and the tree shaker
// removes unreachable ones before the emitter reads it.
type Arena struct {
	decls []*core.Declaration
	index map[core.CanonicalName]*core.Declaration
}

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{index: make(map[core.CanonicalName]*core.Declaration)}
}

// Add registers d, assigning it the next stable arena ID.
func (a *Arena) Add(d *core.Declaration) {
	d.ID = len(a.decls)
	a.decls = append(a.decls, d)
	a.index[d.Canonical] = d
}

// Get looks up a declaration by canonical name.
func (a *Arena) Get(name core.CanonicalName) (*core.Declaration, bool) {
	d, ok := a.index[name]
	return d, ok
}

// Has reports whether name has already been added to the arena.
func (a *Arena) Has(name core.CanonicalName) bool {
	_, ok := a.index[name]
	return ok
}

// All returns every declaration in discovery order.
func (a *Arena) All() []*core.Declaration {
	return a.decls
}

// Remove deletes a declaration from the arena, used by the tree shaker
// to drop unreachable declarations.
func (a *Arena) Remove(name core.CanonicalName) {
	d, ok := a.index[name]
	if !ok {
		return
	}
	delete(a.index, name)
	for i, cur := range a.decls {
		if cur == d {
			a.decls = append(a.decls[:i], a.decls[i+1:]...)
			break
		}
	}
}
