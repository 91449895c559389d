// Package engine abstracts one playback instance bound to one media
// location. The feed layer drives engines exclusively through the Engine
// interface; the concrete implementation here decodes with FFmpeg via
// go-astiav.
package engine

import (
	"context"
	"errors"
	"time"
)

var ErrNoAudioTrack = errors.New("no audio track found")

// Observers carries the callbacks an engine owner may attach. All callbacks
// are invoked from the engine's own goroutine, after the engine's state has
// already changed.
type Observers struct {
	// Ready fires once, when the engine can begin playback without stalling.
	Ready func()
	// Ended fires each time the media reaches its end. The engine pauses
	// itself first; the owner decides whether to rewind and resume.
	Ended func()
	// Failed fires on a hard playback failure after which the engine is no
	// longer usable.
	Failed func(error)
}

// FrameSink receives volume-scaled interleaved s16 PCM as it is decoded.
// A nil sink discards output.
type FrameSink func(pcm []byte)

// Engine is one prepared playback instance. Play/Pause/SetVolume/SeekToStart
// are synchronous and safe to call from any goroutine once the engine is
// constructed.
type Engine interface {
	Play()
	Pause()
	IsPlaying() bool
	SetVolume(v float64)
	Volume() float64
	SeekToStart()
	Duration() time.Duration
	// HasActiveItem reports whether the engine is still structurally bound
	// to its media. False means the engine is half-constructed or torn down
	// and must be replaced.
	HasActiveItem() bool
	Observe(Observers)
	Close()
}

// Factory opens a media location and loads the minimum structure needed to
// know the media is playable (track presence, duration). ctx bounds the
// probe; a late-completing probe after ctx expiry must clean up after
// itself.
type Factory func(ctx context.Context, url string) (Engine, error)
