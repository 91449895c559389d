package config

import "time"

type Config struct {
	DataDir             string
	CacheDir            string
	CacheLimitBytes     int64
	SpotifyClientID     string
	SpotifyClientSecret string

	ActiveRadius      int
	PreloadRadius     int
	LoadMoreThreshold int
	PageSize          int

	ResolveTimeout  time.Duration
	PrepareDebounce time.Duration
	PrepareRetries  int
	RetryBackoff    time.Duration // first retry delay; doubles per attempt

	PrefetchMedia bool
}

// WindowRadius is the full radius within which sessions are kept warm.
func (c *Config) WindowRadius() int {
	return c.ActiveRadius + c.PreloadRadius
}
