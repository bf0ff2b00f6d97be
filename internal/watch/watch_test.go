package watch

import (
	"context"
	"testing"
	"time"
)

func TestPathsByFileDerivesMinimalWatchSet(t *testing.T) {
	scenarios := []Scenario{
		{Name: "a", Files: []string{"file:///src/entry.ts", "file:///src/utils.ts"}},
		{Name: "b", Files: []string{"file:///src/utils.ts", "http://example.com/remote.ts"}},
	}
	got := pathsByFile(scenarios)

	if len(got) != 2 {
		t.Fatalf("watch set = %v, want 2 local paths", got)
	}
	if names := got["/src/utils.ts"]; len(names) != 2 {
		t.Errorf("shared path should trigger both scenarios, got %v", names)
	}
	if names := got["/src/entry.ts"]; len(names) != 1 || names[0] != "a" {
		t.Errorf("entry path scenarios = %v", names)
	}
	for p := range got {
		if p == "http://example.com/remote.ts" {
			t.Error("remote URI entered the filesystem watch set")
		}
	}
}

func TestRunWithNoLocalReferencesDegradesToOneShot(t *testing.T) {
	runs := 0
	d := New(nil, 10*time.Millisecond)
	scenarios := []Scenario{{
		Name:  "remote-only",
		Files: []string{"http://example.com/only.ts"},
		Run: func(ctx context.Context) error {
			runs++
			return nil
		},
	}}

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), scenarios) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not degrade to a single run")
	}
	if runs != 1 {
		t.Errorf("scenario ran %d times, want 1", runs)
	}
}

func TestNewDefaultsDebounceWindow(t *testing.T) {
	d := New(nil, 0)
	if d.debounce != 100*time.Millisecond {
		t.Errorf("default debounce = %v", d.debounce)
	}
	if d.log == nil {
		t.Error("nil logger not defaulted")
	}
}
