// Package hostruntime provides the default, reference implementation of
// the embedded JS runtime the bundler core treats as an external
// collaborator: it executes an emitter-produced bundle to completion and
// backs the host:// capability registry for real. Any other runtime
// honoring the same export tables is equally valid; this one exists so
// `funee bundle <entry>` (without --emit) has something to run against.
package hostruntime

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/jsvm"
)

// Backend is the default core.BundleBackend: one fresh JSRuntime per Run
// call, with every host:// export bound as a Go-backed global under its
// mangled name (hostexports.GlobalBindingName), matching what the
// emitter's preamble expects to find.
type Backend struct {
	fs     afero.Fs
	client httpClient
}

// New builds a Backend. fs backs host://fs; pass afero.NewOsFs() in
// production and afero.NewMemMapFs() in tests.
func New(fs afero.Fs) *Backend {
	return &Backend{fs: fs, client: newHTTPClient()}
}

// Run implements core.BundleBackend.
func (b *Backend) Run(ctx context.Context, program string) (*core.RunOutcome, error) {
	rt, err := jsvm.New()
	if err != nil {
		return nil, fmt.Errorf("creating runtime: %w", err)
	}
	defer rt.Close()

	runID, state := core.NewRunState()
	defer core.ClearRunState(runID)

	el := newLoop()
	state.SetExt("loop", el)

	if err := b.registerAll(rt, state, el); err != nil {
		return nil, fmt.Errorf("registering host bindings: %w", err)
	}

	outcome := &core.RunOutcome{}
	if err := rt.Eval(program); err != nil {
		outcome.Err = err
		outcome.ExitCode = 1
	}

	b.pump(rt, el)

	outcome.Logs = state.Logs
	return outcome, outcome.Err
}

// Shutdown implements core.BundleBackend. The default backend has no
// resources outliving a single Run call: each run gets a fresh JSRuntime
// that is closed before Run returns.
func (b *Backend) Shutdown() {}

// registerAll binds every host:// export's Go implementation under its
// mangled global name, per module.
func (b *Backend) registerAll(rt core.JSRuntime, state *core.RunState, el *loop) error {
	registrars := []func(core.JSRuntime, *core.RunState, *loop) error{
		b.registerGlobals,
		b.registerFS,
		b.registerHTTP,
		b.registerHTTPServer,
		b.registerProcess,
		b.registerTime,
		b.registerWatch,
		b.registerCrypto,
		b.registerConsole,
	}
	for _, reg := range registrars {
		if err := reg(rt, state, el); err != nil {
			return err
		}
	}
	return nil
}

// pump drains the cooperative micro-loop: run microtasks, then fire any
// host://time callbacks whose deadline has passed, looping until nothing
// remains pending or a generous wall-clock ceiling trips. A single
// bundler process has no supervisor to kill a runaway bundle, so the
// ceiling is a backstop.
func (b *Backend) pump(rt core.JSRuntime, el *loop) {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		rt.RunMicrotasks()
		fired := el.fireDue(rt)
		if fired == 0 && !el.hasPending() {
			return
		}
		if fired == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}
