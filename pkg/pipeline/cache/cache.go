// Package cache is a disk-backed, TTL-expiring key-value store
// (spec.md §4.2). It keeps the teacher's mutex-guarded-map shape from
// pkg/runbook/cache.go, but restructures it for disk persistence: the
// in-memory map becomes an index over on-disk entries rather than the
// entries themselves, so the cache survives process restarts.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	dirMode  = 0o700
	fileMode = 0o600
)

// indexEntry mirrors on-disk state for O(1) Get/stats without a
// directory walk.
type indexEntry struct {
	path      string
	metaPath  string
	expiresAt time.Time
	size      int64
}

// Stats reports cache-wide counters (spec.md §4.2).
type Stats struct {
	Entries int
	Bytes   int64
	Hits    int64
	Misses  int64
}

// meta is the sibling JSON file stored next to each entry's .bin blob.
type meta struct {
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	ContentHash string    `json:"content_hash"`
}

// Cache is safe for concurrent use. kind partitions the on-disk layout
// (e.g. "schema", "page") so unrelated cache users never collide.
type Cache struct {
	mu    sync.RWMutex
	index map[string]*indexEntry
	dir   string
	kind  string
	log   *slog.Logger

	hits   int64
	misses int64
}

// New creates a Cache rooted at <baseDir>/<kind>, creating the directory
// with owner-only permissions if it does not exist.
func New(baseDir, kind string, log *slog.Logger) (*Cache, error) {
	if log == nil {
		log = slog.Default()
	}
	dir := filepath.Join(baseDir, kind)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("cache: create dir %s: %w", dir, err)
	}
	return &Cache{
		index: make(map[string]*indexEntry),
		dir:   dir,
		kind:  kind,
		log:   log,
	}, nil
}

// entryPaths derives the <dir>/<hash[:2]>/<hash>.bin and .meta paths for
// key from a collision-resistant hash, so arbitrary keys are safe on disk.
func (c *Cache) entryPaths(key string) (binPath, metaPath, shard string) {
	sum := sha256.Sum256([]byte(key))
	hash := hex.EncodeToString(sum[:])
	shard = hash[:2]
	dir := filepath.Join(c.dir, shard)
	return filepath.Join(dir, hash+".bin"), filepath.Join(dir, hash+".meta"), shard
}

// Get returns the cached value for key, or (nil, false) on a miss —
// absent, expired, or unreadable/corrupt (logged, never returned as an
// error).
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.index[key]
	c.mu.RUnlock()

	if !ok {
		c.recordMiss()
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.index, key)
		c.mu.Unlock()
		_ = os.Remove(entry.path)
		_ = os.Remove(entry.metaPath)
		c.recordMiss()
		return nil, false
	}

	data, err := os.ReadFile(entry.path)
	if err != nil {
		c.log.Warn("cache: unreadable entry treated as miss", "key_hash", filepath.Base(entry.path), "error", err)
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	return data, true
}

// Set writes value for key with the given ttl. The write is atomic: it
// writes to a sibling temp file, then renames over the final path, so no
// reader ever observes a partially written entry.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	binPath, metaPath, shard := c.entryPaths(key)
	dir := filepath.Join(c.dir, shard)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("cache: create shard dir: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(ttl)

	sum := sha256.Sum256(value)
	m := meta{CreatedAt: now, ExpiresAt: expiresAt, ContentHash: hex.EncodeToString(sum[:])}
	metaBytes, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("cache: marshal meta: %w", err)
	}

	if err := atomicWrite(binPath, value); err != nil {
		return fmt.Errorf("cache: write entry: %w", err)
	}
	if err := atomicWrite(metaPath, metaBytes); err != nil {
		return fmt.Errorf("cache: write meta: %w", err)
	}

	c.mu.Lock()
	c.index[key] = &indexEntry{path: binPath, metaPath: metaPath, expiresAt: expiresAt, size: int64(len(value))}
	c.mu.Unlock()
	return nil
}

// atomicWrite writes data to a temp file beside path, then renames over
// path — atomic on POSIX filesystems.
func atomicWrite(path string, data []byte) error {
	tmp := fmt.Sprintf("%s.tmp-%d", path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, fileMode); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Delete removes key from the cache, if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	entry, ok := c.index[key]
	if ok {
		delete(c.index, key)
	}
	c.mu.Unlock()
	if ok {
		_ = os.Remove(entry.path)
		_ = os.Remove(entry.metaPath)
	}
}

// Clear removes every entry from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	entries := c.index
	c.index = make(map[string]*indexEntry)
	c.mu.Unlock()
	for _, entry := range entries {
		_ = os.Remove(entry.path)
		_ = os.Remove(entry.metaPath)
	}
}

// CleanupExpired sweeps the index in O(n) over entries, removing any
// past their expiry.
func (c *Cache) CleanupExpired() int {
	now := time.Now()
	var expired []*indexEntry

	c.mu.Lock()
	for key, entry := range c.index {
		if now.After(entry.expiresAt) {
			expired = append(expired, entry)
			delete(c.index, key)
		}
	}
	c.mu.Unlock()

	for _, entry := range expired {
		_ = os.Remove(entry.path)
		_ = os.Remove(entry.metaPath)
	}
	return len(expired)
}

// Stats reports entry count, total bytes, and cumulative hit/miss
// counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var bytes int64
	for _, entry := range c.index {
		bytes += entry.size
	}
	return Stats{
		Entries: len(c.index),
		Bytes:   bytes,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}
