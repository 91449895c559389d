// Package source provides pagination collaborators that feed the
// controller's append-only item list.
package source

import (
	"context"

	"github.com/sonroyaalmerol/reelfeed/internal/feed"
	"github.com/sonroyaalmerol/reelfeed/internal/repository"
)

// CatalogSource pages feed items out of the sqlite catalog in feed order.
type CatalogSource struct {
	repo *repository.Repo
}

func NewCatalogSource(repo *repository.Repo) *CatalogSource {
	return &CatalogSource{repo: repo}
}

func (s *CatalogSource) NextPage(ctx context.Context, knownCount, limit int) ([]feed.MediaItem, error) {
	rows, err := s.repo.ListItemsPage(ctx, knownCount, limit)
	if err != nil {
		return nil, err
	}
	out := make([]feed.MediaItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, feed.MediaItem{
			ID:       r.ItemID,
			MediaRef: r.MediaRef,
			Title:    r.Title,
		})
	}
	return out, nil
}
