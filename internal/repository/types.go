package repository

import "database/sql"

type Repo struct {
	db *sql.DB
}

// FeedItem is one catalog row: a stable identifier plus the opaque media
// reference the resolver understands. Position is assigned on append and
// never changes afterwards.
type FeedItem struct {
	Position int64
	ItemID   string
	MediaRef string
	Title    string
}

type ResolvedURL struct {
	ItemID     string
	URL        string
	ResolvedAt int64 // unix seconds
}
