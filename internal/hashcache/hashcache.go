// Package hashcache persists per-file content digests so repeated backups of
// an unmodified tree upload nothing.
package hashcache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/coldvault/agent/internal/logging"
)

// HashCache maps a normalized absolute path to the MD5 hex digest of its
// content as last observed. It is a hint, not a source of truth: on any
// doubt it answers "changed".
type HashCache struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
	logger  logging.Logger
}

// New constructs a HashCache. Call Initialize before Load/Save/HasChanged.
func New(logger logging.Logger) *HashCache {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &HashCache{
		entries: make(map[string]string),
		logger:  logger,
	}
}

// Initialize establishes the on-disk location of the cache file.
func (c *HashCache) Initialize(cachePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = cachePath
}

// Load reads the cache file as a flat string->string JSON map. A missing
// file or a parse failure both leave the cache empty and return false;
// neither is treated as an error.
func (c *HashCache) Load() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		return false
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		c.entries = make(map[string]string)
		c.logger.Warn("hash cache file is not valid JSON, starting empty", logging.F("path", c.path))
		return false
	}

	c.entries = m
	return true
}

// Save serializes the current map as pretty-printed JSON, preferring a
// write-then-rename on the happy path.
func (c *HashCache) Save() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *HashCache) saveLocked() bool {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		c.logger.Error("failed to marshal hash cache", logging.F("error", err.Error()))
		return false
	}

	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			c.logger.Error("failed to create hash cache directory", logging.F("error", err.Error()))
			return false
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		c.logger.Error("failed to write hash cache", logging.F("error", err.Error()))
		return false
	}
	if err := os.Rename(tmp, c.path); err != nil {
		c.logger.Error("failed to finalize hash cache", logging.F("error", err.Error()))
		return false
	}
	return true
}

// HasChanged computes the MD5 of path's bytes and compares it against the
// stored digest. An unknown path, a differing digest, or any I/O/hash error
// all report changed=true (fail-open toward upload); only an exact match
// reports false. The cache is updated and persisted whenever the digest is
// new or differs from the stored one; an exact match leaves it untouched.
func (c *HashCache) HasChanged(path string) bool {
	key := normalize(path)

	digest, err := hashFile(path)
	if err != nil {
		c.logger.Warn("failed to hash file, treating as changed", logging.F("path", path), logging.F("error", err.Error()))
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.entries[key]
	if !ok {
		c.entries[key] = digest
		c.saveLocked()
		return true
	}
	if prev == digest {
		return false
	}
	c.entries[key] = digest
	c.saveLocked()
	return true
}

// UpdateHash records digest for path in memory only; the caller decides when
// to persist via Save.
func (c *HashCache) UpdateHash(path, digest string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[normalize(path)] = digest
}

// Size returns the number of entries currently cached.
func (c *HashCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear empties the in-memory map without touching the on-disk file.
func (c *HashCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string)
}

// Get returns the stored digest for path, if any, for testing/introspection.
func (c *HashCache) Get(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[normalize(path)]
	return v, ok
}

func normalize(path string) string {
	return filepath.ToSlash(path)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DefaultCachePath returns the hash cache's default location, the OS temp
// directory unless overridden, per §6/§9's open question on cache durability.
func DefaultCachePath(overrideDir string) string {
	if overrideDir != "" {
		return filepath.Join(overrideDir, "internxt-backup-hash-cache.json")
	}
	return filepath.Join(os.TempDir(), "internxt-backup-hash-cache.json")
}
