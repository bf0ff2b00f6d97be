package core

// JSRuntime abstracts the embedded JavaScript engine (QuickJS by default,
// V8 behind the v8 build tag) behind the common interface the macro
// sandbox and the default host-runtime backends share.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// EvalBool evaluates JavaScript and returns the result as a Go bool.
	EvalBool(js string) (bool, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// Go types are marshaled to/from JS automatically; on error return the
	// JS wrapper throws instead of returning an array.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a global variable on the JS context.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the microtask queue (Promise callbacks, etc.).
	RunMicrotasks()

	// Close releases the engine's resources. A JSRuntime is single-use:
	// the macro sandbox creates one fresh per invocation and closes it
	// immediately after, so macros can never observe another macro's
	// leftover state.
	Close()
}
