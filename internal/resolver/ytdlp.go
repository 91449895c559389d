package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

var installOnce sync.Once

// YtdlpResolver resolves web video references (watch URLs or bare video
// ids) to direct media URLs via yt-dlp.
type YtdlpResolver struct{}

func NewYtdlpResolver() *YtdlpResolver { return &YtdlpResolver{} }

func (r *YtdlpResolver) Resolve(ctx context.Context, itemID, mediaRef string) (string, error) {
	installOnce.Do(func() {
		// cmd.Run surfaces availability issues if install fails
		ytdlp.MustInstall(ctx, nil)
	})

	target := mediaRef
	if !strings.HasPrefix(target, "http") {
		target = "https://www.youtube.com/watch?v=" + target
	}

	cmd := ytdlp.New().
		Format("bv*[height<=1080]+ba/b[height<=1080]/b").
		NoCheckCertificates().
		DumpJSON()

	res, err := cmd.Run(ctx, target)
	if err != nil {
		return "", fmt.Errorf("yt-dlp run: %w", err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return "", fmt.Errorf("parse yt-dlp json: %w", err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return "", fmt.Errorf("parse yt-dlp json: no info returned")
	}
	ext := infos[0]

	// Preferred order: requested_formats, top-level url, then formats[].
	for _, f := range ext.RequestedFormats {
		if f != nil && strings.HasPrefix(f.URL, "http") {
			return f.URL, nil
		}
	}
	if ext.URL != nil && strings.HasPrefix(*ext.URL, "http") {
		return *ext.URL, nil
	}
	for _, f := range ext.Formats {
		if f != nil && strings.HasPrefix(f.URL, "http") {
			return f.URL, nil
		}
	}
	return "", ErrNoPlayableURL
}
