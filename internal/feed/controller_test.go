package feed

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexChangeRejectsInvalidIndex(t *testing.T) {
	c, _, _, _ := newTestController(testItems(3))
	ctx := context.Background()

	assert.ErrorIs(t, c.HandleIndexChanged(ctx, -1), ErrIndexOutOfRange)
	assert.ErrorIs(t, c.HandleIndexChanged(ctx, 3), ErrIndexOutOfRange)
	assert.Equal(t, 0, c.CurrentIndex())
}

func TestWindowContainment(t *testing.T) {
	c, reg, _, _ := newTestController(testItems(10))
	ctx := context.Background()

	require.NoError(t, c.HandleIndexChanged(ctx, 5))

	want := map[string]struct{}{}
	for i := 3; i <= 7; i++ {
		want[fmt.Sprintf("item-%02d", i)] = struct{}{}
	}
	got := map[string]struct{}{}
	for id := range reg.AllSessions() {
		got[id] = struct{}{}
	}
	assert.Equal(t, want, got)
}

func TestWindowSlidesAndEvicts(t *testing.T) {
	c, reg, _, fac := newTestController(testItems(10))
	ctx := context.Background()

	require.NoError(t, c.HandleIndexChanged(ctx, 5))
	evictee := fac.engineFor("item-03")
	require.NotNil(t, evictee)

	require.NoError(t, c.HandleIndexChanged(ctx, 6))

	got := map[string]struct{}{}
	for id := range reg.AllSessions() {
		got[id] = struct{}{}
	}
	want := map[string]struct{}{}
	for i := 4; i <= 8; i++ {
		want[fmt.Sprintf("item-%02d", i)] = struct{}{}
	}
	assert.Equal(t, want, got)
	assert.True(t, evictee.isClosed(), "evicted session's engine must be closed")
}

func TestWindowClipsAtListEdges(t *testing.T) {
	c, reg, _, _ := newTestController(testItems(5))
	ctx := context.Background()

	require.NoError(t, c.HandleIndexChanged(ctx, 0))

	got := map[string]struct{}{}
	for id := range reg.AllSessions() {
		got[id] = struct{}{}
	}
	want := map[string]struct{}{
		"item-00": {}, "item-01": {}, "item-02": {},
	}
	assert.Equal(t, want, got)
}

func TestReadinessPrecedesPlayback(t *testing.T) {
	c, _, _, fac := newTestController(testItems(5))
	ctx := context.Background()
	c.SetActive(true)

	require.NoError(t, c.HandleIndexChanged(ctx, 2))

	cur := fac.engineFor("item-02")
	require.NotNil(t, cur)
	assert.False(t, cur.IsPlaying(), "must not play before the engine reports readiness")

	cur.becomeReady()
	assert.True(t, cur.IsPlaying(), "readiness of the active current item starts playback")
	assert.Equal(t, 1.0, cur.Volume())
}

func TestSingleLiveSessionAtRest(t *testing.T) {
	c, reg, _, fac := newTestController(testItems(10))
	ctx := context.Background()
	c.SetActive(true)

	require.NoError(t, c.HandleIndexChanged(ctx, 5))
	readyAll(fac)
	c.HandleScrollProgress(0)

	live := 0
	for id, s := range reg.AllSessions() {
		if s.Engine.Volume() > 0 && s.Engine.IsPlaying() {
			live++
			assert.Equal(t, "item-05", id)
		}
	}
	assert.Equal(t, 1, live)
}

func TestCrossFadeConservation(t *testing.T) {
	c, reg, _, fac := newTestController(testItems(10))
	ctx := context.Background()
	c.SetActive(true)
	require.NoError(t, c.HandleIndexChanged(ctx, 5))
	readyAll(fac)

	for _, p := range []float64{0.3, -0.4, 0.95, 0} {
		c.HandleScrollProgress(p)

		cur := fac.engineFor("item-05")
		var neighbor *fakeEngine
		switch {
		case p > 0:
			neighbor = fac.engineFor("item-06")
		case p < 0:
			neighbor = fac.engineFor("item-04")
		}

		sum := cur.Volume()
		if neighbor != nil {
			sum += neighbor.Volume()
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "p=%v", p)

		for id, s := range reg.AllSessions() {
			if id == "item-05" {
				continue
			}
			if neighbor != nil && s.Engine == neighbor {
				continue
			}
			assert.Equal(t, 0.0, s.Engine.Volume(), "p=%v id=%s", p, id)
			assert.False(t, s.Engine.IsPlaying(), "p=%v id=%s", p, id)
		}
	}
}

func TestCrossFadeStartsReadyNeighborAndRewindsOthers(t *testing.T) {
	c, _, _, fac := newTestController(testItems(10))
	ctx := context.Background()
	c.SetActive(true)
	require.NoError(t, c.HandleIndexChanged(ctx, 5))
	readyAll(fac)

	// swipe toward next: both current and next advance
	c.HandleScrollProgress(0.5)
	next := fac.engineFor("item-06")
	assert.True(t, next.IsPlaying())
	assert.InDelta(t, 0.5, next.Volume(), 1e-9)

	// swipe back the other way: next must be silenced, paused and rewound
	c.HandleScrollProgress(-0.5)
	assert.False(t, next.IsPlaying())
	assert.Equal(t, 0.0, next.Volume())
	assert.Equal(t, 1, next.seekCount())

	prev := fac.engineFor("item-04")
	assert.True(t, prev.IsPlaying())
}

func TestScrollRewindsSessionPausedMidMedia(t *testing.T) {
	c, _, _, fac := newTestController(testItems(10))
	ctx := context.Background()
	c.SetActive(true)
	require.NoError(t, c.HandleIndexChanged(ctx, 5))
	readyAll(fac)

	// next plays partway, then an activation cycle pauses it in place
	c.HandleScrollProgress(0.5)
	next := fac.engineFor("item-06")
	require.True(t, next.IsPlaying())
	c.SetActive(false)
	c.SetActive(true)
	require.False(t, next.IsPlaying())
	seeksBefore := next.seekCount()

	// scrolling away must rewind it even though it is already paused
	c.HandleScrollProgress(-0.5)
	assert.Equal(t, seeksBefore+1, next.seekCount())
	assert.Equal(t, 0.0, next.Volume())
}

func TestScrollIgnoredWhileInactive(t *testing.T) {
	c, _, _, fac := newTestController(testItems(10))
	ctx := context.Background()
	c.SetActive(true)
	require.NoError(t, c.HandleIndexChanged(ctx, 5))
	readyAll(fac)
	c.SetActive(false)

	c.HandleScrollProgress(0.8)

	next := fac.engineFor("item-06")
	assert.False(t, next.IsPlaying())
	assert.Equal(t, 0.0, next.Volume())
}

func TestActivationToggle(t *testing.T) {
	c, reg, _, fac := newTestController(testItems(10))
	ctx := context.Background()
	c.SetActive(true)
	require.NoError(t, c.HandleIndexChanged(ctx, 5))
	readyAll(fac)
	c.HandleScrollProgress(0)

	c.SetActive(false)
	for _, s := range reg.AllSessions() {
		assert.False(t, s.Engine.IsPlaying())
		assert.Equal(t, 0.0, s.Engine.Volume())
	}

	// reactivation resumes only the current item
	c.SetActive(true)
	playing := 0
	for id, s := range reg.AllSessions() {
		if s.Engine.IsPlaying() {
			playing++
			assert.Equal(t, "item-05", id)
		}
	}
	assert.Equal(t, 1, playing)
}

func TestCleanupIsIdempotent(t *testing.T) {
	c, reg, _, _ := newTestController(testItems(10))
	ctx := context.Background()
	require.NoError(t, c.HandleIndexChanged(ctx, 5))

	before := reg.Len()
	c.CleanupPass()
	assert.Equal(t, before, reg.Len())
	c.CleanupPass()
	assert.Equal(t, before, reg.Len())
}

func TestCleanupNeverRemovesCurrent(t *testing.T) {
	c, reg, _, _ := newTestController(testItems(10))
	ctx := context.Background()
	require.NoError(t, c.HandleIndexChanged(ctx, 5))

	c.CleanupPass()
	assert.NotNil(t, reg.GetSession("item-05"))
}

func TestLoadMoreAppendsWithoutDuplicates(t *testing.T) {
	items := testItems(10)
	src := &fakeSource{items: items}
	cfg := testConfig()
	reg := NewRegistry()
	res := &fakeResolver{}
	fac := newFakeFactory()
	c := NewController(cfg, reg, res, fac.new, src)
	c.AppendItems(items[:5])

	c.loadMore(context.Background())
	assert.Equal(t, 10, c.ItemCount())

	// a second pull past the end adds nothing
	c.loadMore(context.Background())
	assert.Equal(t, 10, c.ItemCount())

	got := c.Items()
	seen := map[string]struct{}{}
	for _, it := range got {
		_, dup := seen[it.ID]
		assert.False(t, dup, "duplicate %s", it.ID)
		seen[it.ID] = struct{}{}
	}
}

func TestEndedSessionLoopsWhileActive(t *testing.T) {
	c, _, _, fac := newTestController(testItems(5))
	ctx := context.Background()
	c.SetActive(true)
	require.NoError(t, c.HandleIndexChanged(ctx, 2))

	cur := fac.engineFor("item-02")
	cur.becomeReady()
	require.True(t, cur.IsPlaying())

	cur.finish()
	assert.Equal(t, 1, cur.seekCount(), "end of media seeks back to start")
	assert.True(t, cur.IsPlaying(), "active feed resumes the looped item")

	c.SetActive(false)
	cur.finish()
	assert.False(t, cur.IsPlaying(), "inactive feed does not resume")
}
