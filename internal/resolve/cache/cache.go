package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/citelinker/resolver/internal/core/domain"
	"github.com/citelinker/resolver/internal/infra/storage"
	"github.com/citelinker/resolver/internal/metrics"
)

// Cache stores fetched documents on disk, content-addressed by SHA-256,
// with one metadata entry per item and TTL expiry.
type Cache struct {
	dir     string
	ttl     time.Duration
	repo    storage.CacheRepository
	fetcher *Fetcher
	now     func() time.Time
}

// New creates a content cache rooted at dir.
func New(dir string, ttl time.Duration, repo storage.CacheRepository, fetcher *Fetcher) *Cache {
	return &Cache{dir: dir, ttl: ttl, repo: repo, fetcher: fetcher, now: time.Now}
}

// FetchAndCache downloads the URL and stores it, replacing any previous
// entry for the item. The file write is temp-then-rename so a crash never
// leaves a partial file behind a valid record.
func (c *Cache) FetchAndCache(ctx context.Context, itemID, url string) (*domain.CacheEntry, error) {
	res, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(res.Body)
	hash := hex.EncodeToString(sum[:])

	path, err := c.write(res.ContentType, hash, res.Body)
	if err != nil {
		return nil, err
	}

	now := c.now()
	entry := &domain.CacheEntry{
		ItemID:      itemID,
		ContentHash: hash,
		ContentType: res.ContentType,
		SizeBytes:   int64(len(res.Body)),
		RawPath:     path,
		StatusCode:  res.StatusCode,
		FetchedAt:   now,
		LastAccess:  now,
		ExpiresAt:   now.Add(c.ttl),
	}

	// Re-fetch replaces the old file unless both share the same hash.
	if prev, err := c.repo.Get(ctx, itemID); err == nil && prev != nil {
		if prev.RawPath != path {
			c.removeFiles(prev)
		}
		metrics.CacheBytes.Sub(float64(prev.SizeBytes))
	}

	if err := c.repo.Upsert(ctx, entry); err != nil {
		return nil, err
	}
	metrics.CacheBytes.Add(float64(entry.SizeBytes))
	return entry, nil
}

// GetCachedContent returns the stored content and metadata if present and
// unexpired. An expired entry is invalidated on the spot and reported as
// a miss.
func (c *Cache) GetCachedContent(ctx context.Context, itemID string) ([]byte, *domain.CacheEntry, error) {
	entry, err := c.repo.Get(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if entry == nil {
		metrics.CacheMisses.Inc()
		return nil, nil, nil
	}
	if entry.Expired(c.now()) {
		metrics.CacheMisses.Inc()
		if err := c.Invalidate(ctx, itemID); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	}

	content, err := os.ReadFile(entry.RawPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("failed to read cached content: %w", err)
		}
		// Files are shared by content hash, so invalidating another item
		// with the same body takes this entry's file with it. Drop the
		// orphaned record and report a miss.
		metrics.CacheMisses.Inc()
		if err := c.Invalidate(ctx, itemID); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	}

	if err := c.repo.Touch(ctx, itemID, c.now()); err != nil {
		slog.Warn("Failed to bump cache last-access", "item", itemID, "error", err)
	}
	metrics.CacheHits.Inc()
	return content, entry, nil
}

// Invalidate deletes the files and the record. Missing files are fine.
func (c *Cache) Invalidate(ctx context.Context, itemID string) error {
	entry, err := c.repo.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	c.removeFiles(entry)
	metrics.CacheBytes.Sub(float64(entry.SizeBytes))
	return c.repo.Delete(ctx, itemID)
}

// SweepExpired removes every entry past its expiry. Returns the number of
// entries removed and bytes freed.
func (c *Cache) SweepExpired(ctx context.Context) (int, int64, error) {
	expired, err := c.repo.ListExpired(ctx, c.now())
	if err != nil {
		return 0, 0, err
	}

	var freed int64
	count := 0
	for _, entry := range expired {
		c.removeFiles(entry)
		if err := c.repo.Delete(ctx, entry.ItemID); err != nil {
			slog.Warn("Failed to delete expired cache entry", "item", entry.ItemID, "error", err)
			continue
		}
		freed += entry.SizeBytes
		count++
	}
	metrics.CacheBytes.Sub(float64(freed))
	return count, freed, nil
}

// write stores content under a content-type subdirectory, keyed by hash
// so identical bodies share one file.
func (c *Cache) write(contentType, hash string, body []byte) (string, error) {
	subdir := subdirFor(contentType)
	dir := filepath.Join(c.dir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}

	path := filepath.Join(dir, hash+extFor(contentType))
	if _, err := os.Stat(path); err == nil {
		return path, nil // already stored, dedup by hash
	}

	tmp, err := os.CreateTemp(dir, "."+hash+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to rename cache file: %w", err)
	}
	return path, nil
}

func (c *Cache) removeFiles(entry *domain.CacheEntry) {
	for _, path := range []string{entry.RawPath, entry.ProcessedPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove cache file", "path", path, "error", err)
		}
	}
}

func subdirFor(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return "pdf"
	case strings.Contains(ct, "html"):
		return "html"
	case strings.Contains(ct, "json") || strings.Contains(ct, "xml"):
		return "data"
	}
	return "other"
}

func extFor(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return ".pdf"
	case strings.Contains(ct, "html"):
		return ".html"
	case strings.Contains(ct, "json"):
		return ".json"
	case strings.Contains(ct, "xml"):
		return ".xml"
	}
	return ".bin"
}
