package core

import "context"

// Fetcher resolves a specifier against a referrer URI and returns the
// absolute URI plus source bytes. Implemented by internal/fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, specifier, referrer string) (uri string, src []byte, err error)
}

// BundleBackend is the interface the embedded JS runtime that executes a
// finished bundle must satisfy; implementations live behind build tags
// (QuickJS default, V8 with -tags v8). The bundler core never depends on
// a concrete backend, only on this interface.
type BundleBackend interface {
	// Run executes program (the emitter's output) to completion, invoking
	// the entry's default export unless the program was emitted with
	// --emit semantics already baked in by the caller.
	Run(ctx context.Context, program string) (*RunOutcome, error)
	Shutdown()
}

// RunOutcome captures what happened when a bundle was executed.
type RunOutcome struct {
	Logs     []LogEntry
	ExitCode int
	Err      error
}

// LogEntry is a single console.log/console.debug line captured while
// running a bundle.
type LogEntry struct {
	Level   string
	Message string
}
