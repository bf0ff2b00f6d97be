// Package funee is a thin facade over internal/core: the public types
// downstream code sees, and the Bundle entry point that drives the
// pipeline stages — fetch, parse, resolve, graph build, macro expansion,
// tree shake, emit — over a shared module store and declaration arena.
package funee

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/emitter"
	"github.com/funee-dev/funee/internal/fetcher"
	"github.com/funee-dev/funee/internal/graph"
	"github.com/funee-dev/funee/internal/macro"
	"github.com/funee-dev/funee/internal/shaker"
)

// Type aliases re-exporting internal/core's public surface, so callers
// write funee.BundlerConfig instead of reaching into internal/core.
type (
	BundlerConfig = core.BundlerConfig
	RunResult     = core.RunResult
	RunOutcome    = core.RunOutcome
	LogEntry      = core.LogEntry
	BundleBackend = core.BundleBackend
	CanonicalName = core.CanonicalName
	Closure       = core.Closure
	Definition    = core.Definition
)

// DefaultConfig re-exports core.DefaultConfig.
func DefaultConfig() BundlerConfig { return core.DefaultConfig() }

// Bundle runs the full compile-time pipeline for entrySpecifier (a URI,
// or a local path resolved against the current working directory) and
// returns the emitted program plus the bookkeeping watch mode needs.
// diag receives one line per fetch/cache diagnostic; pass nil to discard.
func Bundle(ctx context.Context, entrySpecifier string, cfg BundlerConfig, fs afero.Fs, diag func(string)) (*RunResult, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f := fetcher.New(cfg, fs, diag)

	entryURI, err := f.ResolveURI(entryToSpecifier(entrySpecifier), "")
	if err != nil {
		return nil, fmt.Errorf("resolving entry %q: %w", entrySpecifier, err)
	}

	store := graph.NewStore(ctx, f)
	builder := graph.NewBuilder(store)

	arena, err := builder.Build(entryURI)
	if err != nil {
		return nil, fmt.Errorf("building declaration graph: %w", err)
	}

	eng := macro.New(builder, arena, cfg)
	if err := eng.Expand(ctx); err != nil {
		return nil, fmt.Errorf("expanding macros: %w", err)
	}

	root, err := builder.EntryCanonical(entryURI)
	if err != nil {
		return nil, fmt.Errorf("resolving entry default export: %w", err)
	}
	shaker.Shake(arena, root)

	em := emitter.New(builder, arena)
	result, err := em.Emit(root, cfg)
	if err != nil {
		return nil, fmt.Errorf("emitting bundle: %w", err)
	}
	return result, nil
}

// entryToSpecifier turns a CLI-supplied entry argument into something the
// fetcher's resolution policy accepts: absolute URIs pass through, bare
// local paths become absolute file:// URIs.
func entryToSpecifier(entry string) string {
	for _, prefix := range []string{"http://", "https://", "file://", "host://"} {
		if strings.HasPrefix(entry, prefix) {
			return entry
		}
	}
	abs, err := filepath.Abs(entry)
	if err != nil {
		return entry
	}
	return "file://" + filepath.ToSlash(abs)
}

// Run bundles entrySpecifier and, unless cfg.Emit is set, executes the
// result against backend. Passing cfg.Emit effectively makes Run
// equivalent to Bundle: backend.Run on a program that only defines
// declarations and never invokes the entry point is a no-op worth
// skipping, so Run returns the bundle's RunResult without ever touching
// backend in that case.
func Run(ctx context.Context, entrySpecifier string, cfg BundlerConfig, fs afero.Fs, diag func(string), backend BundleBackend) (*RunResult, *RunOutcome, error) {
	result, err := Bundle(ctx, entrySpecifier, cfg, fs, diag)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Emit || backend == nil {
		return result, nil, nil
	}
	outcome, err := backend.Run(ctx, result.Program)
	return result, outcome, err
}
