package hostruntime

import (
	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/hostexports"
)

// registerConsole binds host://console's two exports and the ambient
// console global to the same Go-backed capture, appending each call to
// the RunState's log buffer. Bundles reach console either way — the
// bare global and the host module are one capability.
func (b *Backend) registerConsole(rt core.JSRuntime, state *core.RunState, el *loop) error {
	if err := rt.RegisterFunc("__console_capture", func(level, message string) {
		state.AddLog(level, message)
	}); err != nil {
		return err
	}

	logName := hostexports.GlobalBindingName("host://console", "log")
	debugName := hostexports.GlobalBindingName("host://console", "debug")

	js := `
globalThis.` + logName + ` = function() {
	var parts = [];
	for (var i = 0; i < arguments.length; i++) {
		var a = arguments[i];
		parts.push(typeof a === 'object' && a !== null ? JSON.stringify(a) : String(a));
	}
	__console_capture('log', parts.join(' '));
};
globalThis.` + debugName + ` = function() {
	var parts = [];
	for (var i = 0; i < arguments.length; i++) {
		var a = arguments[i];
		parts.push(typeof a === 'object' && a !== null ? JSON.stringify(a) : String(a));
	}
	__console_capture('debug', parts.join(' '));
};
globalThis.console = {
	log: globalThis.` + logName + `,
	debug: globalThis.` + debugName + `,
	error: globalThis.` + logName + `,
	warn: globalThis.` + logName + `,
};
`
	return rt.Eval(js)
}
