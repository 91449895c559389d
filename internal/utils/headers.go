package utils

import (
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
)

func RandomUserAgent() string {
	// Target Chrome major versions roughly within last ~6 months
	const minMajor = 132
	const maxMajor = 138

	major := rand.IntN(maxMajor-minMajor+1) + minMajor
	return fmt.Sprintf(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		major,
	)
}

// BuildFFmpegHeaders builds a CRLF-joined header string for the AVFormat
// "headers" option from a header map, filling in sane defaults. CDN-fronted
// media URLs frequently 403 without a believable browser profile.
func BuildFFmpegHeaders(base map[string]string) string {
	h := maps.Clone(base)
	if h == nil {
		h = map[string]string{}
	}
	if _, ok := h["User-Agent"]; !ok {
		h["User-Agent"] = RandomUserAgent()
	}
	if _, ok := h["Accept"]; !ok {
		h["Accept"] = "*/*"
	}
	if _, ok := h["Accept-Language"]; !ok {
		h["Accept-Language"] = "en-US,en;q=0.9"
	}
	if _, ok := h["Connection"]; !ok {
		h["Connection"] = "keep-alive"
	}

	keys := slices.Sorted(maps.Keys(h))
	keys = slices.CompactFunc(keys, func(a, b string) bool { return strings.EqualFold(a, b) })

	var b strings.Builder
	for _, k := range keys {
		// FFmpeg wants CRLF separators; no trailing extra CRLF needed
		fmt.Fprintf(&b, "%s: %s\r\n", k, strings.TrimSpace(h[k]))
	}
	return b.String()
}
