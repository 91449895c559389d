package feed

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/sonroyaalmerol/reelfeed/internal/config"
	"github.com/sonroyaalmerol/reelfeed/internal/engine"
	"github.com/sonroyaalmerol/reelfeed/internal/resolver"
)

const neighborPrepareLimit = 3

// Controller owns the ordered item list, the current index and the window
// sizes, and drives the high-level algorithm: on index change prepare the
// current item first, then neighbors by distance, then evict everything
// outside the window; on scroll progress cross-fade volumes.
type Controller struct {
	cfg       *config.Config
	registry  *Registry
	resolver  resolver.Resolver
	newEngine engine.Factory
	source    Source
	prefetch  PrefetchFunc

	mu      sync.Mutex
	items   []MediaItem
	current int
	active  bool

	loading atomic.Bool
}

func NewController(cfg *config.Config, reg *Registry, res resolver.Resolver, factory engine.Factory, source Source) *Controller {
	c := &Controller{
		cfg:       cfg,
		registry:  reg,
		resolver:  res,
		newEngine: factory,
		source:    source,
	}
	reg.OnReady(c.onSessionReady)
	return c
}

// SetPrefetch installs the optional media prefetcher used during
// preparation.
func (c *Controller) SetPrefetch(fn PrefetchFunc) { c.prefetch = fn }

// AppendItems appends a page to the ordered list, skipping identifiers
// already present. The list is append-only while displayed.
func (c *Controller) AppendItems(items []MediaItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	known := make(map[string]struct{}, len(c.items))
	for _, it := range c.items {
		known[it.ID] = struct{}{}
	}
	for _, it := range items {
		if _, dup := known[it.ID]; dup {
			continue
		}
		known[it.ID] = struct{}{}
		c.items = append(c.items, it)
	}
}

func (c *Controller) Items() []MediaItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MediaItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Controller) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SessionHandle returns the registered session for an item, if any.
func (c *Controller) SessionHandle(itemID string) *Session {
	return c.registry.GetSession(itemID)
}

// Registry exposes the session store for observation by the presentation
// layer.
func (c *Controller) Registry() *Registry { return c.registry }

// HandleIndexChanged runs one full index-change pass: validate, update the
// index, trigger pagination near the list's end, start the current item as
// fast as possible, prepare neighbors by ascending distance, then evict
// out-of-window sessions. The current item is audible before any neighbor
// preparation begins; cleanup runs only after the neighbor pass completes
// so it cannot evict a session this pass is about to register.
func (c *Controller) HandleIndexChanged(ctx context.Context, newIndex int) error {
	c.mu.Lock()
	if newIndex < 0 || newIndex >= len(c.items) {
		count := len(c.items)
		c.mu.Unlock()
		slog.Warn("rejected index change", "index", newIndex, "items", count)
		return ErrIndexOutOfRange
	}
	c.current = newIndex
	item := c.items[newIndex]
	count := len(c.items)
	c.mu.Unlock()

	if count-newIndex <= c.cfg.LoadMoreThreshold {
		go c.loadMore(context.WithoutCancel(ctx))
	}

	// Priority step: the current item must not wait for its neighbors.
	if c.registry.GetSession(item.ID) == nil {
		_ = c.prepareItem(ctx, item)
	}
	c.registry.UpdatePlaybackStates(c.IsActive(), item.ID)

	c.prepareWindow(ctx, newIndex)
	c.CleanupPass()
	return nil
}

// prepareWindow prepares sessions for every index within the preload range,
// nearest first.
func (c *Controller) prepareWindow(ctx context.Context, center int) {
	radius := c.cfg.WindowRadius()

	type target struct {
		idx  int
		item MediaItem
	}

	c.mu.Lock()
	lo := max(0, center-radius)
	hi := min(len(c.items)-1, center+radius)
	targets := make([]target, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		if i == center {
			continue
		}
		targets = append(targets, target{idx: i, item: c.items[i]})
	}
	c.mu.Unlock()

	sort.SliceStable(targets, func(a, b int) bool {
		da, db := abs(targets[a].idx-center), abs(targets[b].idx-center)
		if da != db {
			return da < db
		}
		return targets[a].idx > targets[b].idx // ahead of the scroll before behind it
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(neighborPrepareLimit)
	for _, t := range targets {
		item := t.item
		g.Go(func() error {
			if c.registry.GetSession(item.ID) == nil {
				_ = c.prepareItem(gctx, item) // failures already logged; window pass is best-effort
			}
			return nil
		})
	}
	_ = g.Wait()
}

// CleanupPass removes every registered session whose item now falls outside
// the preload window. The current item is never removed. Idempotent.
func (c *Controller) CleanupPass() {
	radius := c.cfg.WindowRadius()

	c.mu.Lock()
	cur := c.current
	keep := make(map[string]struct{})
	lo := max(0, cur-radius)
	hi := min(len(c.items)-1, cur+radius)
	var currentID string
	if cur >= 0 && cur < len(c.items) {
		currentID = c.items[cur].ID
	}
	for i := lo; i <= hi; i++ {
		keep[c.items[i].ID] = struct{}{}
	}
	c.mu.Unlock()

	for id := range c.registry.AllSessions() {
		if _, ok := keep[id]; ok {
			continue
		}
		if id == currentID {
			continue
		}
		slog.Debug("evicting out-of-window session", "item", id)
		c.registry.RemoveSession(id)
	}
}

// HandleScrollProgress cross-fades between the current item and the
// neighbor the gesture is moving toward. p is roughly [-1, 1]; positive
// means scrolling to the next item. The current item's volume is 1-|p|,
// the relevant neighbor's |p|; everything else is silenced, paused and
// rewound. Ignored while the feed is inactive.
func (c *Controller) HandleScrollProgress(p float64) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	cur := c.current
	var curID, nextID, prevID string
	if cur >= 0 && cur < len(c.items) {
		curID = c.items[cur].ID
	}
	if cur+1 < len(c.items) {
		nextID = c.items[cur+1].ID
	}
	if cur-1 >= 0 {
		prevID = c.items[cur-1].ID
	}
	c.mu.Unlock()

	mag := math.Abs(p)
	if mag > 1 {
		mag = 1
	}

	for id, s := range c.registry.AllSessions() {
		var target float64
		switch {
		case id == curID:
			target = 1 - mag
		case p > 0 && id == nextID:
			target = mag
		case p < 0 && id == prevID:
			target = mag
		}

		if target <= 0 {
			// Rewind regardless of play state; a session paused mid-media
			// by an activation cycle must not keep its position.
			s.Engine.SetVolume(0)
			s.Engine.Pause()
			s.Engine.SeekToStart()
			continue
		}

		s.Engine.SetVolume(target)
		if c.registry.IsReady(id) && !s.Engine.IsPlaying() {
			s.Engine.Play()
		}
	}
}

// SetActive toggles the whole feed. Deactivation silences every session;
// reactivation resumes only the current item, never the whole window.
func (c *Controller) SetActive(active bool) {
	c.mu.Lock()
	c.active = active
	var currentID string
	if c.current >= 0 && c.current < len(c.items) {
		currentID = c.items[c.current].ID
	}
	c.mu.Unlock()

	c.registry.UpdatePlaybackStates(active, currentID)
}

// onSessionReady reacts to readiness transitions committed by the registry:
// if the now-ready session is the current item of an active feed, start it.
func (c *Controller) onSessionReady(itemID string) {
	c.mu.Lock()
	isCurrent := c.active &&
		c.current >= 0 && c.current < len(c.items) &&
		c.items[c.current].ID == itemID
	c.mu.Unlock()

	if !isCurrent {
		return
	}
	if s := c.registry.GetSession(itemID); s != nil {
		s.Engine.SetVolume(1)
		if !s.Engine.IsPlaying() {
			s.Engine.Play()
		}
	}
}

// loadMore asks the pagination collaborator for the next page. Overlapping
// requests collapse into one.
func (c *Controller) loadMore(ctx context.Context) {
	if c.source == nil {
		return
	}
	if !c.loading.CompareAndSwap(false, true) {
		return
	}
	defer c.loading.Store(false)

	c.mu.Lock()
	known := len(c.items)
	c.mu.Unlock()

	items, err := c.source.NextPage(ctx, known, c.cfg.PageSize)
	if err != nil {
		slog.Warn("load more failed", "known", known, "err", err)
		return
	}
	if len(items) > 0 {
		c.AppendItems(items)
		slog.Debug("appended feed page", "added", len(items), "total", known+len(items))
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
