package hostruntime

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/hostexports"
)

// registerCrypto binds host://crypto's single export. No example repo in
// the pack carries a third-party CSPRNG wrapper; crypto/rand is the
// standard library's own cryptographically-secure source (not a
// convenience shim around something weaker), so reaching past it for a
// dependency would add risk, not remove it. Recorded in DESIGN.md.
func (b *Backend) registerCrypto(rt core.JSRuntime, state *core.RunState, el *loop) error {
	if err := rt.RegisterFunc("__crypto_random_bytes", func(n int) (string, error) {
		if n < 0 {
			return "", fmt.Errorf("randomBytes: negative length %d", n)
		}
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(buf), nil
	}); err != nil {
		return err
	}

	name := hostexports.GlobalBindingName("host://crypto", "randomBytes")
	js := `
globalThis.` + name + ` = function(n) {
	var b64 = __crypto_random_bytes(n);
	var bin = atob(b64);
	var out = new Uint8Array(bin.length);
	for (var i = 0; i < bin.length; i++) { out[i] = bin.charCodeAt(i); }
	return out;
};
`
	return rt.Eval(js)
}
