package hostruntime

import (
	"time"

	"github.com/funee-dev/funee/internal/core"
)

var processStart = time.Now()

// nowMicros returns elapsed process time in whole microseconds; the JS
// shim divides down to the fractional milliseconds performance.now()
// reports. Integer across the boundary because the engine's function
// marshaling has no float return type.
func nowMicros() int {
	return int(time.Since(processStart).Microseconds())
}

// atobBtoaJS is a pure-JS atob/btoa polyfill: QuickJS (and the v8go
// backend) carry neither, and emitted bundles that touch host://crypto's
// randomBytes need both to move bytes across the JS/Go boundary as
// base64 text.
const atobBtoaJS = `
(function() {
	const _e = 'ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/';
	const _d = new Uint8Array(128);
	for (let i = 0; i < _e.length; i++) _d[_e.charCodeAt(i)] = i;
	const _v = new Uint8Array(128);
	for (let i = 0; i < _e.length; i++) _v[_e.charCodeAt(i)] = 1;
	_v[61] = 1;

	globalThis.btoa = function(data) {
		const s = String(data);
		const len = s.length;
		if (len === 0) return '';
		const bytes = new Uint8Array(len);
		for (let i = 0; i < len; i++) {
			const ch = s.charCodeAt(i);
			if (ch > 255) throw new Error("btoa: string contains characters outside of the Latin1 range");
			bytes[i] = ch;
		}
		const out = [];
		for (let i = 0; i < len; i += 3) {
			const a = bytes[i];
			const b = i + 1 < len ? bytes[i + 1] : 0;
			const c = i + 2 < len ? bytes[i + 2] : 0;
			out.push(
				_e[a >> 2],
				_e[((a & 3) << 4) | (b >> 4)],
				i + 1 < len ? _e[((b & 15) << 2) | (c >> 6)] : '=',
				i + 2 < len ? _e[c & 63] : '='
			);
		}
		return out.join('');
	};

	globalThis.atob = function(data) {
		let b64 = String(data);
		b64 = b64.replace(/[\t\n\f\r ]/g, '');
		if (b64.length === 0) return '';
		if (b64.length % 4 === 0 && b64[b64.length - 1] === '=') {
			b64 = b64.slice(0, b64[b64.length - 2] === '=' ? -2 : -1);
		}
		if (b64.length % 4 === 1) throw new Error("atob: invalid base64 string");
		while (b64.length % 4 !== 0) b64 += '=';
		let pad = 0;
		if (b64[b64.length - 1] === '=') pad++;
		if (b64[b64.length - 2] === '=') pad++;
		const outLen = (b64.length / 4) * 3 - pad;
		const bytes = new Uint8Array(outLen);
		let j = 0;
		for (let i = 0; i < b64.length; i += 4) {
			const a = _d[b64.charCodeAt(i)];
			const b = _d[b64.charCodeAt(i + 1)];
			const c = _d[b64.charCodeAt(i + 2)];
			const d = _d[b64.charCodeAt(i + 3)];
			bytes[j++] = (a << 2) | (b >> 4);
			if (j < outLen) bytes[j++] = ((b & 15) << 4) | (c >> 2);
			if (j < outLen) bytes[j++] = ((c & 3) << 6) | d;
		}
		let result = '';
		const CHUNK = 4096;
		for (let i = 0; i < outLen; i += CHUNK) {
			const end = Math.min(i + CHUNK, outLen);
			result += String.fromCharCode.apply(null, bytes.subarray(i, end));
		}
		return result;
	};
})();
`

// registerGlobals installs the ambient JS-global polyfills every host
// binding (and emitted bundle) can assume are present, ahead of any
// module-specific registrar.
func (b *Backend) registerGlobals(rt core.JSRuntime, state *core.RunState, el *loop) error {
	if err := rt.RegisterFunc("__performanceNow", nowMicros); err != nil {
		return err
	}
	if err := rt.Eval(`globalThis.performance = { now: function() { return __performanceNow() / 1000; } };`); err != nil {
		return err
	}
	// Backstop: createMacro must never survive bundling. If a resolution
	// bug lets a call through to runtime, fail loudly at the call site.
	if err := rt.Eval(`globalThis.createMacro = function() {
	throw new Error("CreateMacroUnexpanded: createMacro was never expanded by the bundler");
};`); err != nil {
		return err
	}
	return rt.Eval(atobBtoaJS)
}
