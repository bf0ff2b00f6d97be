package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	neturl "net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/http2"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/fetcher/cachedb"
)

// httpFetcher implements the http(s):// scheme behavior: conditional GET,
// redirect following with a loop cap, stale-on-failure cache fallback,
// and brotli decompression.
type httpFetcher struct {
	client       *http.Client
	cache        *diskCache
	ledger       *cachedb.DB // nil if the CLI ledger is disabled
	pool         *fetchPool
	maxRedirects int
	diag         func(string)
	seen         map[string]bool // URLs already logged "Fetched:" this run
}

// Transport is the http.RoundTripper used for all http(s):// fetches.
// Package-level so tests can swap it out.
var Transport http.RoundTripper = defaultTransport()

func defaultTransport() http.RoundTripper {
	t := &http.Transport{}
	_ = http2.ConfigureTransport(t)
	return t
}

func newHTTPFetcher(cfg core.BundlerConfig, diag func(string)) *httpFetcher {
	dir := cfg.CacheDir
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".funee", "cache")
		} else {
			dir = ".funee-cache"
		}
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	hf := &httpFetcher{
		client: &http.Client{
			Transport: Transport,
			Timeout:   timeout,
			// Redirects are followed by hand so the hop cap yields
			// RedirectLoop rather than the client's own generic error.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cache:        newDiskCache(dir),
		pool:         newFetchPool(0),
		maxRedirects: maxRedirects,
		diag:         diag,
		seen:         make(map[string]bool),
	}
	if ledger, err := cachedb.Open(filepath.Join(dir, "ledger.sqlite3")); err == nil {
		hf.ledger = ledger
	}
	return hf
}

// fetch retrieves rawURL, following redirects, honoring reload, and
// falling back to a stale cache entry on failure. A warm cache entry is
// served without any network round-trip; only --reload re-validates it
// (with a conditional GET when the entry carries validators).
func (f *httpFetcher) fetch(ctx context.Context, rawURL string, reload bool) ([]byte, error) {
	f.pool.acquire()
	defer f.pool.release()

	cachedBody, meta, hasCache := f.cache.Load(rawURL)
	if hasCache && !reload {
		return cachedBody, nil
	}

	url := rawURL
	for redirects := 0; ; redirects++ {
		if redirects > f.maxRedirects {
			return nil, &core.RedirectLoopError{URL: rawURL}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, &core.NetworkError{URL: url, Err: err}
		}
		if hasCache && meta != nil {
			if meta.ETag != "" {
				req.Header.Set("If-None-Match", meta.ETag)
			}
			if meta.LastModified != "" {
				req.Header.Set("If-Modified-Since", meta.LastModified)
			}
		}

		resp, err := f.client.Do(req)
		if err != nil {
			if hasCache {
				f.diag("warning: network error fetching " + url + ", using cached copy")
				return cachedBody, nil
			}
			return nil, &core.NetworkError{URL: url, Err: err}
		}

		switch {
		case resp.StatusCode >= 300 && resp.StatusCode < 400 && resp.StatusCode != http.StatusNotModified:
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" {
				return nil, &core.HTTPError{URL: url, Status: resp.StatusCode}
			}
			url = loc
			continue

		case resp.StatusCode == http.StatusNotModified:
			resp.Body.Close()
			if !f.seen[rawURL] {
				f.seen[rawURL] = true
				f.diag("Fetched: " + rawURL)
			}
			return cachedBody, nil

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			body, err := readBody(resp)
			resp.Body.Close()
			if err != nil {
				return nil, &core.NetworkError{URL: url, Err: err}
			}
			_ = f.cache.Store(rawURL, body, cacheMeta{
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			})
			if f.ledger != nil {
				bodyPath, _ := f.cache.paths(rawURL)
				_ = f.ledger.Upsert(cachedb.Entry{
					URL:       rawURL,
					Host:      hostOf(rawURL),
					BodyPath:  bodyPath,
					FetchedAt: time.Now(),
					Bytes:     int64(len(body)),
				})
			}
			if !f.seen[rawURL] {
				f.seen[rawURL] = true
				f.diag("Fetched: " + rawURL)
			}
			return body, nil

		default:
			resp.Body.Close()
			if hasCache {
				f.diag("warning: http error fetching " + url + ", using cached copy")
				return cachedBody, nil
			}
			return nil, &core.HTTPError{URL: url, Status: resp.StatusCode}
		}
	}
}

func hostOf(rawURL string) string {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "br" {
		r = brotli.NewReader(resp.Body)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
