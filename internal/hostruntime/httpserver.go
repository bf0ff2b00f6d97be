package hostruntime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/hostexports"
)

// serverRegistry tracks the running net/http.Server instances a bundle
// has started via host://http/server's serve export, keyed by the id
// start assigns to each one (separate from the handler id the JS-side
// shim assigns). A single embedded runtime is not
// thread-safe against concurrent calls, so every request handled by a
// served HTTP server serializes through rtMu before evaluating JS.
type serverRegistry struct {
	mu      sync.Mutex
	servers map[int]*http.Server
	rtMu    *sync.Mutex
	nextID  int
}

type serverRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	BodyB64 string            `json:"bodyB64"`
}

type serverResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	BodyB64 string            `json:"bodyB64"`
}

// registerHTTPServer binds host://http/server's three exports: serve
// starts a net/http.Server that calls back into a JS handler function
// for every request (synchronously, since the embedded runtime is
// single-threaded); createResponse/createJsonResponse are pure-JS
// convenience constructors needing no Go binding of their own.
func (b *Backend) registerHTTPServer(rt core.JSRuntime, state *core.RunState, el *loop) error {
	var rtMu sync.Mutex
	reg := &serverRegistry{servers: make(map[int]*http.Server), rtMu: &rtMu}
	state.SetExt("httpServers", reg)

	if err := rt.RegisterFunc("__httpserver_start", func(addr string, handlerID int) (int, error) {
		return reg.start(rt, addr, handlerID)
	}); err != nil {
		return err
	}

	name := hostexports.GlobalBindingName("host://http/server", "serve")
	createResp := hostexports.GlobalBindingName("host://http/server", "createResponse")
	createJSON := hostexports.GlobalBindingName("host://http/server", "createJsonResponse")

	js := `
globalThis.__httpServerHandlers = globalThis.__httpServerHandlers || {};
globalThis.__httpServerNextID = globalThis.__httpServerNextID || 1;
globalThis.` + name + ` = function(addr, handler) {
	var id = globalThis.__httpServerNextID++;
	globalThis.__httpServerHandlers[id] = handler;
	return __httpserver_start(addr, id);
};
globalThis.__httpServerDispatch = function(handlerID, reqJSON) {
	var handler = globalThis.__httpServerHandlers[handlerID];
	var req = JSON.parse(reqJSON);
	req.text = function() { return atob(req.bodyB64 || ''); };
	req.json = function() { return JSON.parse(atob(req.bodyB64 || '')); };
	var res = handler(req) || {};
	return JSON.stringify({
		status: res.status || 200,
		headers: res.headers || {},
		bodyB64: res.body !== undefined ? btoa(String(res.body)) : '',
	});
};
globalThis.` + createResp + ` = function(body, opts) {
	opts = opts || {};
	return { status: opts.status || 200, headers: opts.headers || {}, body: body };
};
globalThis.` + createJSON + ` = function(obj, opts) {
	opts = opts || {};
	var headers = Object.assign({ 'content-type': 'application/json' }, opts.headers || {});
	return { status: opts.status || 200, headers: headers, body: JSON.stringify(obj) };
};
`
	return rt.Eval(js)
}

func (reg *serverRegistry) start(rt core.JSRuntime, addr string, handlerID int) (int, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if isWebSocketUpgrade(r) {
			reg.serveWebSocketFallback(w, r)
			return
		}
		reg.dispatch(rt, handlerID, w, r)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, err
	}

	reg.mu.Lock()
	reg.nextID++
	id := reg.nextID
	reg.servers[id] = srv
	reg.mu.Unlock()

	go srv.Serve(ln)
	return id, nil
}

func (reg *serverRegistry) dispatch(rt core.JSRuntime, handlerID int, w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	reqPayload, _ := json.Marshal(serverRequest{
		Method:  r.Method,
		URL:     r.URL.String(),
		Headers: headers,
		BodyB64: base64.StdEncoding.EncodeToString(body),
	})

	reg.rtMu.Lock()
	out, err := rt.EvalString(fmt.Sprintf("globalThis.__httpServerDispatch(%d, %s)", handlerID, jsonString(string(reqPayload))))
	reg.rtMu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var resp serverResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		http.Error(w, "malformed handler response", http.StatusInternalServerError)
		return
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	if resp.Status == 0 {
		resp.Status = 200
	}
	w.WriteHeader(resp.Status)
	if resp.BodyB64 != "" {
		if data, err := base64.StdEncoding.DecodeString(resp.BodyB64); err == nil {
			w.Write(data)
		}
	}
}

// isWebSocketUpgrade reports whether r asks for a protocol upgrade to
// WebSocket, the same header pair RFC 6455 defines and every WebSocket
// client sets.
func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

// serveWebSocketFallback accepts the upgrade so a connecting client sees
// a clean close rather than a hung connection; host://http/server's
// export table has no WebSocket-specific export, so there is no JS-side
// handler to hand the connection to yet.
func (reg *serverRegistry) serveWebSocketFallback(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	c.Close(websocket.StatusNormalClosure, "no websocket handler registered")
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
