package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/sonroyaalmerol/reelfeed/internal/feed"
	"github.com/sonroyaalmerol/reelfeed/internal/spotify"
)

// SpotifySource turns a spotify playlist into feed pages. Tracks without a
// preview clip are skipped since the feed cannot play them. The playlist is
// fetched once and served page by page.
type SpotifySource struct {
	client      *spotify.Client
	playlistRef string

	mu     sync.Mutex
	loaded bool
	items  []feed.MediaItem
}

func NewSpotifySource(client *spotify.Client, playlistRef string) *SpotifySource {
	return &SpotifySource{client: client, playlistRef: playlistRef}
}

func (s *SpotifySource) NextPage(ctx context.Context, knownCount, limit int) ([]feed.MediaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		typ, id, err := spotify.ParseID(s.playlistRef)
		if err != nil {
			return nil, err
		}
		if typ != "playlist" {
			return nil, fmt.Errorf("spotify ref %q is a %s, want playlist", s.playlistRef, typ)
		}
		tracks, _, err := s.client.GetPlaylist(ctx, id, 0)
		if err != nil {
			return nil, fmt.Errorf("load playlist: %w", err)
		}
		for _, t := range tracks {
			if t.PreviewURL == "" {
				continue
			}
			s.items = append(s.items, feed.MediaItem{
				ID:       "spotify:" + t.ID,
				MediaRef: t.ID,
				Title:    t.Artist + " - " + t.Name,
			})
		}
		s.loaded = true
	}

	if knownCount >= len(s.items) {
		return nil, nil
	}
	end := knownCount + limit
	if end > len(s.items) {
		end = len(s.items)
	}
	page := make([]feed.MediaItem, end-knownCount)
	copy(page, s.items[knownCount:end])
	return page, nil
}
