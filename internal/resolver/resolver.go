// Package resolver turns feed item references into playable media URLs.
package resolver

import (
	"context"
	"errors"
)

var ErrNoPlayableURL = errors.New("no usable media URL")

// Resolver resolves one item's opaque media reference to a URL the engine
// can open. Implementations may be slow and may fail; callers own the
// timeout.
type Resolver interface {
	Resolve(ctx context.Context, itemID, mediaRef string) (string, error)
}
