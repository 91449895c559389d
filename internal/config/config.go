package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func mustAtoi(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func mustAtoi64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func LoadConfig() (*Config, error) {
	dataDir := getenv("DATA_DIR", "./data")
	cacheDir := filepath.Join(dataDir, "cache")

	// CACHE_LIMIT supports a plain byte count; extend to parse 2GB etc. if needed.
	cacheLimit := getenv("CACHE_LIMIT", "2147483648") // default 2GB

	cfg := &Config{
		DataDir:             dataDir,
		CacheDir:            cacheDir,
		CacheLimitBytes:     mustAtoi64(cacheLimit),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),

		ActiveRadius:      mustAtoi(getenv("ACTIVE_RADIUS", "1"), 1),
		PreloadRadius:     mustAtoi(getenv("PRELOAD_RADIUS", "2"), 2),
		LoadMoreThreshold: mustAtoi(getenv("LOAD_MORE_THRESHOLD", "3"), 3),
		PageSize:          mustAtoi(getenv("PAGE_SIZE", "20"), 20),

		ResolveTimeout:  envDuration("RESOLVE_TIMEOUT", 2*time.Second),
		PrepareDebounce: envDuration("PREPARE_DEBOUNCE", 3*time.Second),
		PrepareRetries:  mustAtoi(getenv("PREPARE_RETRIES", "3"), 3),
		RetryBackoff:    envDuration("RETRY_BACKOFF", 250*time.Millisecond),

		PrefetchMedia: getenv("PREFETCH_MEDIA", "false") == "true",
	}

	if cfg.ActiveRadius < 0 || cfg.PreloadRadius < 0 {
		return nil, ErrConfig("window radii must be non-negative")
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)
	_ = os.MkdirAll(cfg.CacheDir, 0o755)
	_ = os.MkdirAll(filepath.Join(cfg.CacheDir, "tmp"), 0o755)
	return cfg, nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
