package resolver

import (
	"context"
	"fmt"

	sp "github.com/zmb3/spotify/v2"

	"github.com/sonroyaalmerol/reelfeed/internal/spotify"
)

// SpotifyResolver resolves spotify track references to their preview clip
// URLs via the Web API.
type SpotifyResolver struct {
	client *spotify.Client
}

func NewSpotifyResolver(client *spotify.Client) *SpotifyResolver {
	return &SpotifyResolver{client: client}
}

func (r *SpotifyResolver) Resolve(ctx context.Context, itemID, mediaRef string) (string, error) {
	id := sp.ID(mediaRef)
	if typ, parsed, err := spotify.ParseID(mediaRef); err == nil {
		if typ != "track" {
			return "", fmt.Errorf("spotify ref %q is a %s, want track", mediaRef, typ)
		}
		id = parsed
	}

	track, err := r.client.GetTrack(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get track: %w", err)
	}
	if track.PreviewURL == "" {
		return "", ErrNoPlayableURL
	}
	return track.PreviewURL, nil
}
