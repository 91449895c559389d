package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sonroyaalmerol/reelfeed/internal/cache"
	"github.com/sonroyaalmerol/reelfeed/internal/config"
	"github.com/sonroyaalmerol/reelfeed/internal/engine"
	"github.com/sonroyaalmerol/reelfeed/internal/feed"
	"github.com/sonroyaalmerol/reelfeed/internal/repository"
	"github.com/sonroyaalmerol/reelfeed/internal/resolver"
	"github.com/sonroyaalmerol/reelfeed/internal/source"
	"github.com/sonroyaalmerol/reelfeed/internal/spotify"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	db, err := repository.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	repo := repository.NewRepo(db)
	mediaCache := cache.NewMediaCache(cfg, repo)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var res resolver.Resolver = resolver.NewYtdlpResolver()
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		spClient, err := spotify.NewClientCredentials(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		if err != nil {
			log.Fatal(err)
		}
		res = &resolver.Switch{
			Spotify: resolver.NewSpotifyResolver(spClient),
			Default: res,
		}
	}
	res = resolver.NewCached(res, repo)

	factory := func(ctx context.Context, url string) (engine.Engine, error) {
		return engine.NewAVEngine(ctx, url, nil)
	}

	// Optional: import a playlist into the catalog before starting.
	if len(os.Args) > 1 {
		if err := importPlaylist(ctx, cfg, repo, os.Args[1]); err != nil {
			log.Fatal(err)
		}
	}

	reg := feed.NewRegistry()
	catalog := source.NewCatalogSource(repo)
	ctrl := feed.NewController(cfg, reg, res, factory, catalog)
	if cfg.PrefetchMedia {
		ctrl.SetPrefetch(mediaCache.Prefetch)
	}

	page, err := catalog.NextPage(ctx, 0, cfg.PageSize)
	if err != nil {
		log.Fatal(err)
	}
	ctrl.AppendItems(page)
	if ctrl.ItemCount() == 0 {
		log.Fatal("catalog is empty; pass a playlist URL to import one")
	}

	ctrl.SetActive(true)
	if err := ctrl.HandleIndexChanged(ctx, 0); err != nil {
		log.Fatal(err)
	}
	slog.Info("feed started", "items", ctrl.ItemCount())

	// Headless demo: advance the feed like a steady scroll.
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			ctrl.SetActive(false)
			return
		case <-ticker.C:
			next := ctrl.CurrentIndex() + 1
			if next >= ctrl.ItemCount() {
				slog.Info("reached end of feed")
				ctrl.SetActive(false)
				return
			}
			if err := ctrl.HandleIndexChanged(ctx, next); err != nil {
				slog.Warn("index change rejected", "index", next, "err", err)
			}
		}
	}
}

func importPlaylist(ctx context.Context, cfg *config.Config, repo *repository.Repo, ref string) error {
	var src feed.Source
	if strings.Contains(ref, "spotify") {
		spClient, err := spotify.NewClientCredentials(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		if err != nil {
			return err
		}
		src = source.NewSpotifySource(spClient, ref)
	} else {
		src = source.NewYtdlpSource(ref)
	}

	total := 0
	for {
		page, err := src.NextPage(ctx, total, cfg.PageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		rows := make([]repository.FeedItem, 0, len(page))
		for _, it := range page {
			rows = append(rows, repository.FeedItem{
				ItemID:   it.ID,
				MediaRef: it.MediaRef,
				Title:    it.Title,
			})
		}
		if err := repo.AppendItems(ctx, rows); err != nil {
			return err
		}
		total += len(page)
	}
	slog.Info("imported playlist", "ref", ref, "items", total)
	return nil
}
