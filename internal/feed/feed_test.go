package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sonroyaalmerol/reelfeed/internal/config"
	"github.com/sonroyaalmerol/reelfeed/internal/engine"
)

func testConfig() *config.Config {
	return &config.Config{
		ActiveRadius:      1,
		PreloadRadius:     1,
		LoadMoreThreshold: 2,
		PageSize:          5,
		ResolveTimeout:    50 * time.Millisecond,
		PrepareDebounce:   100 * time.Millisecond,
		PrepareRetries:    3,
		RetryBackoff:      time.Millisecond,
	}
}

func testItems(n int) []MediaItem {
	out := make([]MediaItem, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, MediaItem{
			ID:       fmt.Sprintf("item-%02d", i),
			MediaRef: fmt.Sprintf("ref-%02d", i),
		})
	}
	return out
}

type fakeEngine struct {
	mu      sync.Mutex
	playing bool
	ready   bool
	bound   bool
	closed  bool
	volume  float64
	seeks   int
	obs     engine.Observers
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{bound: true, volume: 1}
}

func (e *fakeEngine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.playing = true
	}
}

func (e *fakeEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
}

func (e *fakeEngine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *fakeEngine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
}

func (e *fakeEngine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *fakeEngine) SeekToStart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seeks++
}

func (e *fakeEngine) Duration() time.Duration { return 15 * time.Second }

func (e *fakeEngine) HasActiveItem() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bound && !e.closed
}

func (e *fakeEngine) Observe(obs engine.Observers) {
	e.mu.Lock()
	e.obs = obs
	replay := e.ready
	e.mu.Unlock()
	if replay && obs.Ready != nil {
		obs.Ready()
	}
}

func (e *fakeEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.playing = false
}

func (e *fakeEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *fakeEngine) seekCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seeks
}

func (e *fakeEngine) unbind() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bound = false
}

// becomeReady simulates the underlying media engine reporting it can play
// without stalling.
func (e *fakeEngine) becomeReady() {
	e.mu.Lock()
	e.ready = true
	obs := e.obs
	e.mu.Unlock()
	if obs.Ready != nil {
		obs.Ready()
	}
}

// finish simulates end-of-media.
func (e *fakeEngine) finish() {
	e.mu.Lock()
	e.playing = false
	obs := e.obs
	e.mu.Unlock()
	if obs.Ended != nil {
		obs.Ended()
	}
}

// crashingEngine models the real engine's teardown contract: callbacks
// originate from a decode goroutine and Close waits for that goroutine to
// exit before returning.
type crashingEngine struct {
	*fakeEngine
	run chan struct{} // closed when the decode goroutine exits
}

func newCrashingEngine() *crashingEngine {
	return &crashingEngine{fakeEngine: newFakeEngine(), run: make(chan struct{})}
}

func (e *crashingEngine) Close() {
	<-e.run
	e.fakeEngine.Close()
}

// crash simulates a mid-stream decode failure. It returns once the Failed
// observer has run to completion.
func (e *crashingEngine) crash(err error) {
	handled := make(chan struct{})
	go func() {
		defer close(e.run)
		e.mu.Lock()
		e.playing = false
		obs := e.obs
		e.mu.Unlock()
		go func() {
			defer close(handled)
			if obs.Failed != nil {
				obs.Failed(err)
			}
		}()
	}()
	<-handled
}

type fakeResolver struct {
	mu       sync.Mutex
	calls    int
	failWith error
	delay    time.Duration
}

func (r *fakeResolver) Resolve(ctx context.Context, itemID, mediaRef string) (string, error) {
	r.mu.Lock()
	r.calls++
	fail := r.failWith
	delay := r.delay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fail != nil {
		return "", fail
	}
	return "media://" + itemID, nil
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeFactory struct {
	mu      sync.Mutex
	engines map[string]*fakeEngine // keyed by item id
	made    int
	failAll bool
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{engines: make(map[string]*fakeEngine)}
}

func (f *fakeFactory) new(ctx context.Context, url string) (engine.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("structural failure")
	}
	e := newFakeEngine()
	f.engines[strings.TrimPrefix(url, "media://")] = e
	f.made++
	return e, nil
}

func (f *fakeFactory) engineFor(itemID string) *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[itemID]
}

func (f *fakeFactory) madeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.made
}

type fakeSource struct {
	mu    sync.Mutex
	items []MediaItem
	calls int
	err   error
}

func (s *fakeSource) NextPage(ctx context.Context, knownCount, limit int) ([]MediaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if knownCount >= len(s.items) {
		return nil, nil
	}
	end := knownCount + limit
	if end > len(s.items) {
		end = len(s.items)
	}
	page := make([]MediaItem, end-knownCount)
	copy(page, s.items[knownCount:end])
	return page, nil
}

// newTestController wires a controller over fakes and returns the pieces
// tests poke at.
func newTestController(items []MediaItem) (*Controller, *Registry, *fakeResolver, *fakeFactory) {
	cfg := testConfig()
	reg := NewRegistry()
	res := &fakeResolver{}
	fac := newFakeFactory()
	c := NewController(cfg, reg, res, fac.new, nil)
	c.AppendItems(items)
	return c, reg, res, fac
}

// readyAll flips every constructed engine to ready.
func readyAll(fac *fakeFactory) {
	fac.mu.Lock()
	engines := make([]*fakeEngine, 0, len(fac.engines))
	for _, e := range fac.engines {
		engines = append(engines, e)
	}
	fac.mu.Unlock()
	for _, e := range engines {
		e.becomeReady()
	}
}
