package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// cacheMeta is the sibling ".meta.json" file beside each cached body,
// holding the conditional-request validators for it.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	StoredAt     time.Time `json:"stored_at"`
}

// diskCache is the on-disk HTTP cache: sha256(url) body file under a
// per-host directory, sibling .meta.json. The full URL including any
// query string is the cache key, so two URLs differing only in query
// land in distinct entries.
type diskCache struct {
	root string
}

func newDiskCache(root string) *diskCache {
	return &diskCache{root: root}
}

func (c *diskCache) paths(rawURL string) (bodyPath, metaPath string) {
	u, err := url.Parse(rawURL)
	host := "unknown-host"
	if err == nil && u.Host != "" {
		host = u.Host
	}
	sum := sha256.Sum256([]byte(rawURL))
	key := hex.EncodeToString(sum[:])
	dir := filepath.Join(c.root, host)
	return filepath.Join(dir, key), filepath.Join(dir, key+".meta.json")
}

// Load returns the cached body and metadata, if present.
func (c *diskCache) Load(rawURL string) (body []byte, meta *cacheMeta, ok bool) {
	bodyPath, metaPath := c.paths(rawURL)
	b, err := os.ReadFile(bodyPath)
	if err != nil {
		return nil, nil, false
	}
	m := &cacheMeta{}
	if mb, err := os.ReadFile(metaPath); err == nil {
		_ = json.Unmarshal(mb, m)
	}
	return b, m, true
}

// Store writes body and meta atomically (write-temp-then-rename), so
// concurrent bundler invocations sharing a cache directory never observe a
// partially written entry.
func (c *diskCache) Store(rawURL string, body []byte, meta cacheMeta) error {
	bodyPath, metaPath := c.paths(rawURL)
	if err := os.MkdirAll(filepath.Dir(bodyPath), 0o755); err != nil {
		return err
	}
	meta.URL = rawURL
	meta.StoredAt = time.Now()

	if err := writeAtomic(bodyPath, body); err != nil {
		return err
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return writeAtomic(metaPath, metaBytes)
}

// writeAtomic writes data to a uniquely named temp file and renames it
// into place, so two bundler processes storing the same URL can never
// interleave partial writes into one entry.
func writeAtomic(finalPath string, data []byte) error {
	tmp := finalPath + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, finalPath)
}
