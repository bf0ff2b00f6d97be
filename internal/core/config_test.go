package core

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxMacroIterations != 100 {
		t.Errorf("MaxMacroIterations = %d", cfg.MaxMacroIterations)
	}
	if cfg.MacroTimeout != 5*time.Second {
		t.Errorf("MacroTimeout = %v", cfg.MacroTimeout)
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.FetchTimeout)
	}
	if cfg.MaxRedirects != 10 {
		t.Errorf("MaxRedirects = %d", cfg.MaxRedirects)
	}
	if cfg.WatchDebounce != 100*time.Millisecond {
		t.Errorf("WatchDebounce = %v", cfg.WatchDebounce)
	}
}

func TestReferenceListIsSorted(t *testing.T) {
	d := NewDeclaration(0, CanonicalName{URI: "file:///m.ts", Name: "x"}, KindConst, nil)
	d.AddReference(CanonicalName{URI: "file:///b.ts", Name: "z"})
	d.AddReference(CanonicalName{URI: "file:///a.ts", Name: "y"})
	d.AddReference(CanonicalName{URI: "file:///a.ts", Name: "a"})

	got := d.ReferenceList()
	want := []CanonicalName{
		{URI: "file:///a.ts", Name: "a"},
		{URI: "file:///a.ts", Name: "y"},
		{URI: "file:///b.ts", Name: "z"},
	}
	if len(got) != len(want) {
		t.Fatalf("ReferenceList = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ReferenceList[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWatchURIsDeduplicates(t *testing.T) {
	r := &RunResult{References: map[CanonicalName]struct{}{
		{URI: "file:///a.ts", Name: "x"}: {},
		{URI: "file:///a.ts", Name: "y"}: {},
		{URI: "file:///b.ts", Name: "z"}: {},
	}}
	got := r.WatchURIs()
	if len(got) != 2 {
		t.Errorf("WatchURIs = %v, want two distinct URIs", got)
	}
}
