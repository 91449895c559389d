package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/sonroyaalmerol/reelfeed/internal/repository"
)

// Resolved media URLs stay valid for hours on the big CDNs; reuse them so
// re-preparing a recently seen item skips the resolver entirely.
const defaultResolutionTTL = 5 * time.Hour

// Cached wraps a Resolver with a sqlite-backed TTL cache keyed by item id.
type Cached struct {
	inner Resolver
	repo  *repository.Repo
	ttl   time.Duration
}

func NewCached(inner Resolver, repo *repository.Repo) *Cached {
	return &Cached{inner: inner, repo: repo, ttl: defaultResolutionTTL}
}

func (c *Cached) Resolve(ctx context.Context, itemID, mediaRef string) (string, error) {
	if url, ok, err := c.repo.GetResolvedURL(ctx, itemID, c.ttl); err != nil {
		slog.Warn("resolved-url cache read failed", "item", itemID, "err", err)
	} else if ok {
		return url, nil
	}

	url, err := c.inner.Resolve(ctx, itemID, mediaRef)
	if err != nil {
		return "", err
	}
	if err := c.repo.PutResolvedURL(ctx, itemID, url); err != nil {
		slog.Warn("resolved-url cache write failed", "item", itemID, "err", err)
	}
	return url, nil
}

// Invalidate drops a cached resolution, e.g. after the engine rejects the
// URL it produced.
func (c *Cached) Invalidate(ctx context.Context, itemID string) {
	if err := c.repo.DeleteResolvedURL(ctx, itemID); err != nil {
		slog.Warn("resolved-url cache delete failed", "item", itemID, "err", err)
	}
}
