package feed

import "github.com/sonroyaalmerol/reelfeed/internal/engine"

// Session binds one prepared engine instance to one feed item. Sessions are
// created only by the registry's prepare path and destroyed only by its
// remove path; the registry is the sole owner of the engine until removal.
type Session struct {
	Item   MediaItem
	Engine engine.Engine
}

// HasActiveItem reports whether the session's engine is still structurally
// bound to its media. A false result means the session is half-constructed
// or torn down and must be rebuilt before use.
func (s *Session) HasActiveItem() bool {
	return s != nil && s.Engine != nil && s.Engine.HasActiveItem()
}
