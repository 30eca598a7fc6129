// Package cache implements the content-addressed segment cache described in
// the processing orchestrator's design: generated video segments are stored
// once, keyed by a hash of the scene prompt and segment number, so that
// retried or re-run storyboards can reuse a previously generated clip
// instead of paying for another text-to-video call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/storage"
)

const (
	manifestPath = "manifest.json"

	// DefaultHashLength is the default number of hex characters kept from
	// the SHA-256 digest when forming a cache key.
	DefaultHashLength = 32

	// DefaultTTL is how long a cached segment remains valid before the
	// cleanup sweep purges it.
	DefaultTTL = 7 * 24 * time.Hour

	// MinCleanupInterval is 24 hours. Nothing checks it: Cleanup runs on
	// every call, and the default cache-cleanup schedule runs it once a day.
	MinCleanupInterval = 24 * time.Hour
)

// Stats summarizes the current state of the cache.
type Stats struct {
	EntryCount int64     `json:"entry_count"`
	TotalBytes int64     `json:"total_bytes"`
	Oldest     time.Time `json:"oldest,omitempty"`
	Newest     time.Time `json:"newest,omitempty"`
}

// SegmentCache is a content-addressed store for generated video segments.
// Manifest persistence is a single JSON document rewritten after each
// mutating operation; a missing or corrupt manifest is treated as empty.
type SegmentCache struct {
	sandbox  *storage.Sandbox
	hashLen  int
	ttl      time.Duration
	logger   *slog.Logger
	mu       sync.Mutex
}

// New creates a SegmentCache rooted at baseDir. hashLen <= 0 falls back to
// DefaultHashLength; ttl <= 0 falls back to DefaultTTL.
func New(baseDir string, hashLen int, ttl time.Duration, logger *slog.Logger) (*SegmentCache, error) {
	sandbox, err := storage.NewSandbox(baseDir)
	if err != nil {
		return nil, fmt.Errorf("creating segment cache sandbox: %w", err)
	}
	if hashLen <= 0 {
		hashLen = DefaultHashLength
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SegmentCache{sandbox: sandbox, hashLen: hashLen, ttl: ttl, logger: logger}, nil
}

// Key computes the cache key for a scene prompt and segment number.
func (c *SegmentCache) Key(scenePrompt string, segmentNumber int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\x00%d", scenePrompt, segmentNumber))
	hexSum := hex.EncodeToString(sum[:])
	if c.hashLen < len(hexSum) {
		return hexSum[:c.hashLen]
	}
	return hexSum
}

// shardedPath returns the relative storage path for a cache key, sharding
// on the first two hex characters to bound directory fan-out.
func shardedPath(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join("segments", shard, key+".mp4")
}

// Lookup returns the absolute path to a cached segment if a valid,
// non-expired manifest entry exists and the underlying file is still
// present. Any inconsistency (stale entry, missing file) is treated as a
// cache miss and the entry is pruned.
func (c *SegmentCache) Lookup(ctx context.Context, scenePrompt string, segmentNumber int) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.Key(scenePrompt, segmentNumber)
	manifest, err := c.loadManifest()
	if err != nil {
		return "", false, err
	}

	entry, ok := manifest.Entries[key]
	if !ok {
		return "", false, nil
	}

	now := models.Now()
	if entry.IsExpired(now) {
		delete(manifest.Entries, key)
		_ = c.saveManifest(manifest)
		return "", false, nil
	}

	exists, err := c.sandbox.Exists(shardedPath(key))
	if err != nil {
		return "", false, fmt.Errorf("checking cached segment: %w", err)
	}
	if !exists {
		delete(manifest.Entries, key)
		_ = c.saveManifest(manifest)
		c.logger.Warn("segment cache entry missing file, pruned", "key", key)
		return "", false, nil
	}

	absPath, err := c.sandbox.ResolvePath(shardedPath(key))
	if err != nil {
		return "", false, err
	}
	return absPath, true, nil
}

// Store copies sourcePath into the cache and records a manifest entry
// expiring DefaultTTL (or the configured ttl) from now.
func (c *SegmentCache) Store(ctx context.Context, scenePrompt string, segmentNumber int, sourcePath string, duration float64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.Key(scenePrompt, segmentNumber)
	relPath := shardedPath(key)

	if err := c.sandbox.AtomicPublish(sourcePath, relPath); err != nil {
		return "", fmt.Errorf("storing segment in cache: %w", err)
	}

	manifest, err := c.loadManifest()
	if err != nil {
		return "", err
	}

	now := models.Now()
	manifest.Entries[key] = models.CacheEntry{
		Hash:            key,
		FilePath:        relPath,
		CreatedAt:       now,
		ExpiresAt:       now.Add(c.ttl),
		ScenePrompt:     scenePrompt,
		SegmentNumber:   segmentNumber,
		DurationSeconds: duration,
	}
	if err := c.saveManifest(manifest); err != nil {
		return "", err
	}

	absPath, err := c.sandbox.ResolvePath(relPath)
	if err != nil {
		return "", err
	}
	return absPath, nil
}

// CopyTo is a convenience wrapper used by the orchestrator: it looks up the
// cache entry and, if present, publishes a copy to targetPath (outside the
// cache sandbox). Returns false on a cache miss.
func (c *SegmentCache) CopyTo(ctx context.Context, scenePrompt string, segmentNumber int, targetPath string) (bool, error) {
	cachedPath, hit, err := c.Lookup(ctx, scenePrompt, segmentNumber)
	if err != nil || !hit {
		return false, err
	}
	data, err := readAll(cachedPath)
	if err != nil {
		return false, fmt.Errorf("reading cached segment: %w", err)
	}
	if err := writeAll(targetPath, data); err != nil {
		return false, fmt.Errorf("copying cached segment to target: %w", err)
	}
	return true, nil
}

// Cleanup purges expired entries and records LastCleanup in the manifest.
// It runs on every call; neither Cleanup nor the maintenance sweep that
// calls it checks MinCleanupInterval or the time since LastCleanup.
func (c *SegmentCache) Cleanup(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	manifest, err := c.loadManifest()
	if err != nil {
		return 0, err
	}

	now := models.Now()
	purged := 0
	for key, entry := range manifest.Entries {
		if !entry.IsExpired(now) {
			continue
		}
		if err := c.sandbox.Remove(shardedPath(key)); err != nil {
			c.logger.Warn("failed removing expired cache file", "key", key, "error", err)
		}
		delete(manifest.Entries, key)
		purged++
	}
	manifest.LastCleanup = now

	if err := c.saveManifest(manifest); err != nil {
		return purged, err
	}
	return purged, nil
}

// LastCleanup returns the timestamp of the most recent cleanup sweep, or the
// zero value if cleanup has never run.
func (c *SegmentCache) LastCleanup(ctx context.Context) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	manifest, err := c.loadManifest()
	if err != nil {
		return time.Time{}, err
	}
	return manifest.LastCleanup, nil
}

// Stats reports entry count, total bytes, and the oldest/newest entry
// timestamps currently in the manifest.
func (c *SegmentCache) Stats(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	manifest, err := c.loadManifest()
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for key, entry := range manifest.Entries {
		size, err := c.sandbox.Size(shardedPath(key))
		if err != nil {
			continue
		}
		stats.EntryCount++
		stats.TotalBytes += size
		if stats.Oldest.IsZero() || entry.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = entry.CreatedAt
		}
		if entry.CreatedAt.After(stats.Newest) {
			stats.Newest = entry.CreatedAt
		}
	}
	return stats, nil
}

// loadManifest reads and parses the manifest file. A missing or corrupt
// manifest is treated as empty (self-heal) rather than an error.
func (c *SegmentCache) loadManifest() (*models.CacheManifest, error) {
	exists, err := c.sandbox.Exists(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("checking manifest: %w", err)
	}
	if !exists {
		return models.NewCacheManifest(), nil
	}

	data, err := c.sandbox.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	manifest := models.NewCacheManifest()
	if err := json.Unmarshal(data, manifest); err != nil {
		c.logger.Warn("segment cache manifest corrupt, resetting", "error", err)
		return models.NewCacheManifest(), nil
	}
	if manifest.Entries == nil {
		manifest.Entries = make(map[string]models.CacheEntry)
	}
	return manifest, nil
}

// saveManifest atomically rewrites the manifest file.
func (c *SegmentCache) saveManifest(manifest *models.CacheManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := c.sandbox.AtomicWrite(manifestPath, data); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// readAll reads a file from outside the cache sandbox (a temp processing path).
func readAll(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// writeAll writes a file to outside the cache sandbox, creating parent dirs.
func writeAll(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
