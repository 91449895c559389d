package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sonroyaalmerol/reelfeed/internal/engine"
)

// prepareItem runs one preparation attempt: resolve the media location,
// construct and validate an engine, register it, attach observers. Every
// failure degrades to "no session" with the guard cleared so a later
// attempt can retry; a timeout is the cancellation mechanism for its step.
func (c *Controller) prepareItem(ctx context.Context, item MediaItem) error {
	if c.registry.GetSession(item.ID) != nil {
		return nil
	}
	if !c.registry.TryBeginPrepare(item.ID, c.cfg.PrepareDebounce) {
		slog.Debug("preparation debounced", "item", item.ID)
		return nil
	}

	rctx, cancel := context.WithTimeout(ctx, c.cfg.ResolveTimeout)
	url, err := c.resolver.Resolve(rctx, item.ID, item.MediaRef)
	cancel()
	if err != nil {
		c.registry.ClearPrepareGuard(item.ID)
		slog.Warn("resolve failed", "item", item.ID, "err", err)
		return fmt.Errorf("resolve %s: %w", item.ID, err)
	}

	if c.prefetch != nil {
		if local, err := c.prefetch(ctx, item.ID, url); err == nil {
			url = local
		} else {
			slog.Debug("prefetch skipped", "item", item.ID, "err", err)
		}
	}

	ectx, cancel := context.WithTimeout(ctx, c.cfg.ResolveTimeout)
	eng, err := c.newEngine(ectx, url)
	cancel()
	if err != nil {
		c.registry.ClearPrepareGuard(item.ID)
		slog.Warn("engine construction failed", "item", item.ID, "err", err)
		return fmt.Errorf("engine for %s: %w", item.ID, err)
	}

	sess := &Session{Item: item, Engine: eng}
	if !c.registry.SetSession(sess) {
		// Another preparation won the race; this engine never escapes.
		eng.Close()
		return nil
	}

	eng.Observe(engine.Observers{
		Ready: func() {
			c.registry.SetReady(item.ID, true)
		},
		Ended: func() {
			c.handleEnded(item.ID)
		},
		Failed: func(err error) {
			slog.Warn("session failed hard", "item", item.ID, "err", err)
			c.registry.RemoveSession(item.ID)
		},
	})
	return nil
}

// handleEnded implements loop semantics: every item loops indefinitely
// while visible.
func (c *Controller) handleEnded(itemID string) {
	s := c.registry.GetSession(itemID)
	if s == nil {
		return
	}
	s.Engine.SeekToStart()
	if c.IsActive() {
		s.Engine.Play()
	}
}

// GetOrPreparePlayableSession is the presentation layer's acquisition path.
// force rebuilds the session even if one exists (recovery after a visually
// broken session). It retries preparation with exponential backoff and
// returns nil once the retry budget is exhausted; the caller shows a
// fallback state and may try again on next visibility.
func (c *Controller) GetOrPreparePlayableSession(ctx context.Context, item MediaItem, force bool) *Session {
	if s := c.registry.GetSession(item.ID); s != nil {
		if !force && s.HasActiveItem() {
			return s
		}
		// Structurally invalid or forced: rebuild from scratch.
		c.registry.RemoveSession(item.ID)
	}

	backoff := c.cfg.RetryBackoff
	for attempt := 0; attempt <= c.cfg.PrepareRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		_ = c.prepareItem(ctx, item)
		if s := c.registry.GetSession(item.ID); s != nil && s.HasActiveItem() {
			return s
		}
	}

	slog.Warn("session acquisition exhausted retries",
		"item", item.ID,
		"attempts", c.cfg.PrepareRetries+1)
	return nil
}
