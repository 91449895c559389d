// Package feed implements the windowed playback-session manager behind a
// vertically-scrolling media feed: a bounded set of prepared sessions kept
// warm around the current scroll position, with one live session at a time
// and audio cross-fading between neighbors during a swipe.
package feed

import (
	"context"
	"errors"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrNoSession       = errors.New("no session available")
)

// MediaItem is one unit of media in the feed. Items are immutable once
// appended and the list itself is append-only while displayed.
type MediaItem struct {
	ID       string
	MediaRef string
	Title    string
}

// Source is the pagination collaborator: it returns the next page of items
// after the ones already known.
type Source interface {
	NextPage(ctx context.Context, knownCount, limit int) ([]MediaItem, error)
}

// PrefetchFunc optionally pulls resolved media to local storage ahead of
// playback and returns the location the engine should open instead.
type PrefetchFunc func(ctx context.Context, itemID, url string) (string, error)
