// Package ast holds the lightweight source-fragment representation the
// bundler operates on. The core does no type-checking and only needs
// declaration-granularity structure, so a declaration's "AST" is its
// verbatim source text plus the spans of the free identifiers and call
// expressions inside it, rather than a full parse tree.
package ast

// Pos is a position in a module's source text.
type Pos struct {
	Line   int // 1-based
	Col    int // 1-based, in runes
	Offset int // 0-based rune offset
}

// Span locates a range of source text within a module.
type Span struct {
	URI   string
	Start Pos
	End   Pos
}

// String renders a span as "uri:line:col", the prefix every diagnostic
// carries.
func (s Span) String() string {
	if s.URI == "" {
		return "?"
	}
	return s.URI + ":" + itoa(s.Start.Line) + ":" + itoa(s.Start.Col)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// IdentRef is a single occurrence of a free identifier inside a fragment.
type IdentRef struct {
	Name string
	Span Span
}

// ArgSpan is one argument of a call expression, captured as the verbatim
// source text between its commas (or before/after for single args).
type ArgSpan struct {
	Text   string
	Span   Span
	Spread bool // true if the argument was written as `...expr`
}

// CallRef is a call expression found inside a fragment, a candidate for
// macro expansion once its callee resolves to a macro-marked declaration.
type CallRef struct {
	Callee IdentRef
	Args   []ArgSpan
	Span   Span // the whole `callee(args...)` expression, for splicing
}

// Fragment is the "AST" of one declaration: its full source text plus the
// free identifiers and call expressions found inside it.
type Fragment struct {
	Text   string
	Span   Span
	Idents []IdentRef
	Calls  []CallRef
}

// FreeNames returns the deduplicated set of identifier names referenced by
// the fragment, in first-occurrence order.
func (f *Fragment) FreeNames() []string {
	seen := make(map[string]bool, len(f.Idents))
	var out []string
	for _, id := range f.Idents {
		if seen[id.Name] {
			continue
		}
		seen[id.Name] = true
		out = append(out, id.Name)
	}
	return out
}
