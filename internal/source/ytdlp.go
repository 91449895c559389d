package source

import (
	"context"
	"fmt"
	"sync"

	ytdlp "github.com/lrstanley/go-ytdlp"

	"github.com/sonroyaalmerol/reelfeed/internal/feed"
)

// YtdlpSource turns any yt-dlp-supported playlist URL into feed pages via a
// flat (metadata-only) extraction.
type YtdlpSource struct {
	playlistURL string

	mu     sync.Mutex
	loaded bool
	items  []feed.MediaItem
}

func NewYtdlpSource(playlistURL string) *YtdlpSource {
	return &YtdlpSource{playlistURL: playlistURL}
}

func (s *YtdlpSource) NextPage(ctx context.Context, knownCount, limit int) ([]feed.MediaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		cmd := ytdlp.New().
			FlatPlaylist().
			DumpJSON()

		res, err := cmd.Run(ctx, s.playlistURL)
		if err != nil {
			return nil, fmt.Errorf("yt-dlp playlist: %w", err)
		}
		infos, err := res.GetExtractedInfo()
		if err != nil {
			return nil, fmt.Errorf("parse yt-dlp json: %w", err)
		}
		for _, info := range infos {
			if info == nil {
				continue
			}
			entries := info.Entries
			if len(entries) == 0 {
				entries = infos // single video URL
			}
			for _, e := range entries {
				if e == nil || e.ID == "" {
					continue
				}
				title := ""
				if e.Title != nil {
					title = *e.Title
				}
				s.items = append(s.items, feed.MediaItem{
					ID:       e.ID,
					MediaRef: e.ID,
					Title:    title,
				})
			}
			break
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
