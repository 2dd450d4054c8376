// Package artifactcache is a durable store for downloaded model artifacts.
// Blobs are keyed by artifact identifier and survive process restarts. The
// store is size-bounded with least-recently-used eviction and degrades to a
// pass-through (no caching, no errors) when the backing database cannot be
// opened. Caching is a performance optimization, never a correctness
// dependency: every operation is best-effort and failures are logged, not
// returned.
package artifactcache

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"detectd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxSizeBytes  = int64(500) << 20 // 500 MiB
	defaultEvictTarget   = 0.75
	defaultCheckInterval = 8 // puts between full size recounts
)

// Config holds cache tunables.
type Config struct {
	// Path of the sqlite database file. The parent directory is created
	// if missing.
	Path string
	// MaxSizeBytes bounds the sum of stored blob sizes.
	MaxSizeBytes int64
	// EvictTarget is the fraction of MaxSizeBytes eviction shrinks to.
	EvictTarget float64
	// CheckInterval is the number of puts between size recounts from the
	// database; the in-memory counter is used in between.
	CheckInterval int
	Logger        zerolog.Logger
}

// Cache is the persistent artifact store. Safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	db        *sql.DB
	degraded  bool
	maxSize   int64
	target    float64
	checkInt  int
	putsSince int
	curSize   int64
	log       zerolog.Logger
}

// Open opens or creates the store. It never fails: if the database cannot
// be opened the returned cache is degraded and every operation becomes a
// no-op, so callers never special-case storage availability.
func Open(cfg Config) *Cache {
	c := &Cache{
		maxSize:  cfg.MaxSizeBytes,
		target:   cfg.EvictTarget,
		checkInt: cfg.CheckInterval,
		log:      cfg.Logger,
	}
	if c.maxSize <= 0 {
		c.maxSize = defaultMaxSizeBytes
	}
	if c.target <= 0 || c.target >= 1 {
		c.target = defaultEvictTarget
	}
	if c.checkInt <= 0 {
		c.checkInt = defaultCheckInterval
	}
	if cfg.Path == "" {
		c.degraded = true
		return c
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		c.log.Warn().Err(err).Str("path", cfg.Path).Msg("cache dir unavailable, running degraded")
		c.degraded = true
		return c
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		c.log.Warn().Err(err).Msg("cache store unavailable, running degraded")
		c.degraded = true
		return c
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := migrate(db); err != nil {
		c.log.Warn().Err(err).Msg("cache migration failed, running degraded")
		_ = db.Close()
		c.degraded = true
		return c
	}
	c.db = db
	c.curSize = c.sizeFromDB(context.Background())
	return c
}

func migrate(db *sql.DB) error {
	// Writes must not block callers on fsync; a lost entry on crash is an
	// acceptable trade for a pure accelerator.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=OFF;`); err != nil {
		return err
	}
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS artifacts (
  key TEXT PRIMARY KEY,
  blob BLOB NOT NULL,
  size_bytes INTEGER NOT NULL,
  cached_at INTEGER NOT NULL,
  last_access INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_last_access ON artifacts(last_access);
`)
	return err
}

// Degraded reports whether the persistent store is unavailable.
func (c *Cache) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Has reports whether key is present without refreshing recency.
func (c *Cache) Has(ctx context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded {
		return false
	}
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM artifacts WHERE key=?`, key).Scan(&n); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("cache has failed")
		return false
	}
	return n > 0
}

// Get returns the blob for key, or nil on a miss. A hit refreshes the
// entry's last-access time.
func (c *Cache) Get(ctx context.Context, key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded {
		return nil
	}
	var blob []byte
	err := c.db.QueryRowContext(ctx, `SELECT blob FROM artifacts WHERE key=?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("cache get failed")
		return nil
	}
	if _, err := c.db.ExecContext(ctx, `UPDATE artifacts SET last_access=? WHERE key=?`, time.Now().UnixNano(), key); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("cache recency refresh failed")
	}
	return blob
}

// Put stores blob under key, best effort. Oversized inserts that can never
// fit are dropped. Eviction runs before the insert whenever the projected
// size exceeds the maximum.
func (c *Cache) Put(ctx context.Context, key string, blob []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded {
		return
	}
	size := int64(len(blob))
	if size > c.maxSize {
		c.log.Warn().Str("key", key).Int64("size", size).Msg("artifact exceeds cache capacity, not cached")
		return
	}
	c.putsSince++
	if c.putsSince >= c.checkInt {
		c.curSize = c.sizeFromDB(ctx)
		c.putsSince = 0
	}
	// Overwrites release the old entry's bytes first so accounting and
	// eviction see only the incoming blob.
	var prev int64
	if err := c.db.QueryRowContext(ctx, `SELECT size_bytes FROM artifacts WHERE key=?`, key).Scan(&prev); err == nil {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM artifacts WHERE key=?`, key); err == nil {
			c.curSize -= prev
		}
	}
	if c.curSize+size > c.maxSize {
		c.evictLocked(ctx, size)
	}
	now := time.Now().UnixNano()
	_, err := c.db.ExecContext(ctx, `
INSERT INTO artifacts(key, blob, size_bytes, cached_at, last_access) VALUES(?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET blob=excluded.blob, size_bytes=excluded.size_bytes, last_access=excluded.last_access
`, key, blob, size, now, now)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache put failed")
		return
	}
	c.curSize += size
}

// evictLocked removes oldest-by-last-access entries until the projected
// usage (existing plus incoming) falls to target*maxSize. Never evicts
// more than necessary. Caller holds c.mu.
func (c *Cache) evictLocked(ctx context.Context, incoming int64) {
	budget := int64(float64(c.maxSize)*c.target) - incoming
	if budget < 0 {
		budget = 0
	}
	rows, err := c.db.QueryContext(ctx, `SELECT key, size_bytes FROM artifacts ORDER BY last_access ASC`)
	if err != nil {
		c.log.Debug().Err(err).Msg("cache eviction scan failed")
		return
	}
	type victim struct {
		key  string
		size int64
	}
	var victims []victim
	remaining := c.curSize
	for rows.Next() {
		if remaining <= budget {
			break
		}
		var v victim
		if err := rows.Scan(&v.key, &v.size); err != nil {
			break
		}
		victims = append(victims, v)
		remaining -= v.size
	}
	_ = rows.Close()
	for _, v := range victims {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM artifacts WHERE key=?`, v.key); err != nil {
			c.log.Debug().Err(err).Str("key", v.key).Msg("cache evict failed")
			continue
		}
		c.curSize -= v.size
		c.log.Debug().Str("key", v.key).Int64("size", v.size).Msg("evicted artifact")
	}
}

// Remove deletes key if present. Never fails.
func (c *Cache) Remove(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded {
		return
	}
	var size int64
	if err := c.db.QueryRowContext(ctx, `SELECT size_bytes FROM artifacts WHERE key=?`, key).Scan(&size); err != nil {
		return
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM artifacts WHERE key=?`, key); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("cache remove failed")
		return
	}
	c.curSize -= size
	if c.curSize < 0 {
		c.curSize = 0
	}
}

// Clear drops every entry.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded {
		return
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM artifacts`); err != nil {
		c.log.Debug().Err(err).Msg("cache clear failed")
		return
	}
	c.curSize = 0
}

// Stats returns a snapshot of the store contents.
func (c *Cache) Stats(ctx context.Context) types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := types.CacheStats{MaxSizeBytes: c.maxSize, Degraded: c.degraded}
	if c.degraded {
		return st
	}
	rows, err := c.db.QueryContext(ctx, `SELECT key, size_bytes, last_access FROM artifacts ORDER BY last_access DESC`)
	if err != nil {
		c.log.Debug().Err(err).Msg("cache stats failed")
		return st
	}
	defer rows.Close()
	for rows.Next() {
		var e types.CacheEntryInfo
		var lastAccess int64
		if err := rows.Scan(&e.Key, &e.SizeBytes, &lastAccess); err != nil {
			break
		}
		e.LastAccessUnix = lastAccess / int64(time.Second)
		st.TotalSizeBytes += e.SizeBytes
		st.EntryCount++
		st.Entries = append(st.Entries, e)
	}
	return st
}

// Close releases the database handle.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.degraded = true
	return err
}

func (c *Cache) sizeFromDB(ctx context.Context) int64 {
	var total sql.NullInt64
	if err := c.db.QueryRowContext(ctx, `SELECT SUM(size_bytes) FROM artifacts`).Scan(&total); err != nil {
		return c.curSize
	}
	return total.Int64
}
