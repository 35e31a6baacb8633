package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DiskCache persists entries across runs. Recorded LLM responses and
// embedding vectors live here, which is what lets replay mode work
// without network access.
type DiskCache struct {
	dir string
	ttl time.Duration
}

// NewDiskCache stores entries as JSON envelopes under dir. The directory
// is created lazily on first write.
func NewDiskCache(dir string, ttl time.Duration) *DiskCache {
	return &DiskCache{dir: dir, ttl: ttl}
}

// envelope is the on-disk record. Expiry is computed at read time from
// WrittenAt plus the TTL recorded at write time; a zero TTL never expires.
type envelope struct {
	WrittenAt  time.Time `json:"written_at"`
	TTLSeconds int64     `json:"ttl_seconds"`
	Data       []byte    `json:"data"`
}

// Get returns the entry for key. Expired or unreadable entries are
// removed and reported as misses.
func (c *DiskCache) Get(key string) ([]byte, bool) {
	path := c.path(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		_ = os.Remove(path)
		return nil, false
	}
	if env.TTLSeconds > 0 && time.Since(env.WrittenAt) > time.Duration(env.TTLSeconds)*time.Second {
		_ = os.Remove(path)
		return nil, false
	}
	return env.Data, true
}

// Set writes the entry through a temp file and renames it into place, so
// a concurrent reader never sees a partial entry. A zero ttl means the
// cache default.
func (c *DiskCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	raw, err := json.Marshal(envelope{
		WrittenAt:  time.Now().UTC(),
		TTLSeconds: int64(ttl / time.Second),
		Data:       value,
	})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	path := c.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *DiskCache) Delete(key string) error {
	err := os.Remove(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Clear removes the whole cache directory.
func (c *DiskCache) Clear() error {
	return os.RemoveAll(c.dir)
}

// path maps a cache key onto a file name. Keys are hex digests with a
// short prefix, safe as file names on every platform once sanitized.
func (c *DiskCache) path(key string) string {
	return filepath.Join(c.dir, sanitize(key)+".cache")
}

func sanitize(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		ch := key[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '.':
			out = append(out, ch)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
