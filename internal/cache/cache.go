package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sonroyaalmerol/reelfeed/internal/config"
	"github.com/sonroyaalmerol/reelfeed/internal/repository"
	"github.com/sonroyaalmerol/reelfeed/internal/utils"
)

// errEmptyPayload marks a download whose body was empty; the caller keeps
// streaming from the remote URL instead.
var errEmptyPayload = errors.New("empty media payload")

// MediaCache keeps prefetched media payloads on disk so the engine can open
// a local file for items sitting in the preload window. Bookkeeping lives in
// the repository's file_cache table; eviction is oldest-access first.
type MediaCache struct {
	cfg    *config.Config
	repo   *repository.Repo
	client *http.Client
	mu     sync.Mutex
}

func NewMediaCache(cfg *config.Config, repo *repository.Repo) *MediaCache {
	return &MediaCache{
		cfg:  cfg,
		repo: repo,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *MediaCache) HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (c *MediaCache) PathFor(hash string) string {
	return filepath.Join(c.cfg.CacheDir, hash)
}

// Lookup returns the local path for an item's media if it is already cached.
func (c *MediaCache) Lookup(ctx context.Context, itemID string) (string, bool) {
	hash := c.HashKey(itemID)
	p := c.PathFor(hash)
	if _, err := os.Stat(p); err == nil {
		_ = c.repo.CacheTouch(ctx, hash, 0, false)
		return p, true
	}
	_ = c.repo.CacheRemove(ctx, hash)
	return "", false
}

// Prefetch downloads the resolved media for an item and commits it to the
// cache. Returns the local path; an empty body is an error, never a cached
// zero-byte file. Already-cached items are returned as-is.
func (c *MediaCache) Prefetch(ctx context.Context, itemID, url string) (string, error) {
	if p, ok := c.Lookup(ctx, itemID); ok {
		return p, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("prefetch get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", fmt.Errorf("prefetch status %d", resp.StatusCode)
	}

	return c.writeStream(ctx, itemID, resp.Body)
}

func (c *MediaCache) writeStream(ctx context.Context, key string, src io.Reader) (string, error) {
	hash := c.HashKey(key)
	final := c.PathFor(hash)

	tmp := filepath.Join(c.cfg.CacheDir, "tmp", hash)
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, src); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := c.commit(ctx, tmp, final, hash); err != nil {
		return "", err
	}
	return final, nil
}

func (c *MediaCache) commit(ctx context.Context, tmp, finalPath, hash string) error {
	info, err := os.Stat(tmp)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		_ = os.Remove(tmp)
		return errEmptyPayload
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		return err
	}
	_ = c.repo.CacheTouch(ctx, hash, info.Size(), true)
	return c.evictIfNeeded(ctx)
}

func (c *MediaCache) evictIfNeeded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	total, err := c.repo.CacheTotalBytes(ctx)
	if err != nil {
		return err
	}
	for total > c.cfg.CacheLimitBytes {
		oldest, err := c.repo.CacheOldest(ctx)
		if err != nil {
			return err
		}
		_ = os.Remove(c.PathFor(oldest))
		_ = c.repo.CacheRemove(ctx, oldest)
		total, err = c.repo.CacheTotalBytes(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}
