package hostruntime

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/http2"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/hostexports"
)

// httpClient is host://http.fetch's runtime network client: a bundle's
// own outbound requests, distinct from the compile-time Fetcher that
// retrieves module source. Shares the same brotli/HTTP2 transport stack
// so the two surfaces behave identically against a given server.
type httpClient struct {
	client *http.Client
}

func newHTTPClient() httpClient {
	t := &http.Transport{}
	_ = http2.ConfigureTransport(t)
	return httpClient{client: &http.Client{Transport: t, Timeout: 30 * time.Second}}
}

type httpFetchResult struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	BodyB64 string            `json:"bodyB64"`
}

func (c httpClient) do(method, url, bodyB64 string, headers map[string]string) (httpFetchResult, error) {
	var body io.Reader
	if bodyB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(bodyB64)
		if err != nil {
			return httpFetchResult{}, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return httpFetchResult{}, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return httpFetchResult{}, err
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "br" {
		r = brotli.NewReader(resp.Body)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return httpFetchResult{}, err
	}

	hdrs := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		hdrs[k] = resp.Header.Get(k)
	}
	return httpFetchResult{
		Status:  resp.StatusCode,
		Headers: hdrs,
		BodyB64: base64.StdEncoding.EncodeToString(data),
	}, nil
}

// registerHTTP binds host://http's single export, fetch. The request
// crosses into Go as (method, url, bodyB64, headersJSON) strings and the
// response comes back as one JSON document, since the engine's function
// marshaling only covers primitives.
func (b *Backend) registerHTTP(rt core.JSRuntime, state *core.RunState, el *loop) error {
	if err := rt.RegisterFunc("__http_fetch", func(method, url, bodyB64, headersJSON string) (string, error) {
		headers := map[string]string{}
		if headersJSON != "" {
			if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
				return "", err
			}
		}
		result, err := b.client.do(method, url, bodyB64, headers)
		if err != nil {
			return "", err
		}
		out, err := json.Marshal(result)
		return string(out), err
	}); err != nil {
		return err
	}

	name := hostexports.GlobalBindingName("host://http", "fetch")
	js := `
globalThis.` + name + ` = function(url, opts) {
	opts = opts || {};
	var method = opts.method || 'GET';
	var headers = JSON.stringify(opts.headers || {});
	var bodyB64 = '';
	if (opts.body) {
		bodyB64 = btoa(String(opts.body));
	}
	var result = JSON.parse(__http_fetch(method, url, bodyB64, headers));
	return {
		status: result.status,
		headers: result.headers,
		text: function() { return atob(result.bodyB64); },
		json: function() { return JSON.parse(atob(result.bodyB64)); },
	};
};
`
	return rt.Eval(js)
}
