package resolver

import (
	"context"
	"strings"
)

// Switch routes spotify-prefixed items to the spotify resolver and
// everything else to the default.
type Switch struct {
	Spotify Resolver
	Default Resolver
}

func (s *Switch) Resolve(ctx context.Context, itemID, mediaRef string) (string, error) {
	if s.Spotify != nil && strings.HasPrefix(itemID, "spotify:") {
		return s.Spotify.Resolve(ctx, itemID, mediaRef)
	}
	return s.Default.Resolve(ctx, itemID, mediaRef)
}
