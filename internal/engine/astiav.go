package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/sonroyaalmerol/reelfeed/internal/utils"
)

// AVEngine decodes the audio track of one media location to s16le stereo
// 48k PCM. Video rendering belongs to the presentation layer; the engine's
// job is structural validation, timing and the audible signal.
type AVEngine struct {
	url string

	fc          *astiav.FormatContext
	audioStream *astiav.Stream
	decCtx      *astiav.CodecContext
	swr         *astiav.SoftwareResampleContext
	srcFrame    *astiav.Frame
	dstFrame    *astiav.Frame

	duration time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	mu      sync.Mutex
	playing bool
	closed  bool
	seekReq bool
	ready   bool
	volume  float64
	obs     Observers

	sink FrameSink

	targetRate   int
	targetLayout astiav.ChannelLayout
	targetFormat astiav.SampleFormat
}

// NewAVEngine opens url, validates track presence and duration, and starts
// the decode loop paused. The probe is bounded by ctx; on expiry the
// half-open handle is abandoned to a cleanup goroutine and an error is
// returned.
func NewAVEngine(ctx context.Context, url string, sink FrameSink) (*AVEngine, error) {
	type probeResult struct {
		fc  *astiav.FormatContext
		st  *astiav.Stream
		cod *astiav.Codec
		err error
	}

	resCh := make(chan probeResult, 1)
	go func() {
		fc := astiav.AllocFormatContext()
		if fc == nil {
			resCh <- probeResult{err: errors.New("alloc format context")}
			return
		}

		dict := astiav.NewDictionary()
		defer dict.Free()
		_ = dict.Set("reconnect", "1", 0)
		_ = dict.Set("reconnect_streamed", "1", 0)
		_ = dict.Set("reconnect_delay_max", "5", 0)
		_ = dict.Set("headers", utils.BuildFFmpegHeaders(nil), 0)

		if err := fc.OpenInput(url, nil, dict); err != nil {
			fc.Free()
			resCh <- probeResult{err: fmt.Errorf("open input: %w", err)}
			return
		}
		if err := fc.FindStreamInfo(nil); err != nil {
			fc.CloseInput()
			fc.Free()
			resCh <- probeResult{err: fmt.Errorf("find stream info: %w", err)}
			return
		}
		st, cod, err := fc.FindBestStream(astiav.MediaTypeAudio, -1, -1)
		if err != nil || st == nil || cod == nil {
			fc.CloseInput()
			fc.Free()
			if err != nil {
				resCh <- probeResult{err: fmt.Errorf("find best audio stream: %w", err)}
				return
			}
			resCh <- probeResult{err: ErrNoAudioTrack}
			return
		}
		resCh <- probeResult{fc: fc, st: st, cod: cod}
	}()

	var res probeResult
	select {
	case res = <-resCh:
	case <-ctx.Done():
		// Late probe results are released where they land.
		go func() {
			if r := <-resCh; r.fc != nil {
				r.fc.CloseInput()
				r.fc.Free()
			}
		}()
		return nil, fmt.Errorf("probe: %w", ctx.Err())
	}
	if res.err != nil {
		return nil, res.err
	}

	fc, st, cod := res.fc, res.st, res.cod

	decCtx := astiav.AllocCodecContext(cod)
	if decCtx == nil {
		fc.CloseInput()
		fc.Free()
		return nil, errors.New("alloc codec context")
	}
	if err := decCtx.FromCodecParameters(st.CodecParameters()); err != nil {
		decCtx.Free()
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("codec from params: %w", err)
	}
	decCtx.SetTimeBase(st.TimeBase())
	if err := decCtx.Open(cod, nil); err != nil {
		decCtx.Free()
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("open decoder: %w", err)
	}

	swr := astiav.AllocSoftwareResampleContext()
	srcFrame := astiav.AllocFrame()
	dstFrame := astiav.AllocFrame()
	if swr == nil || srcFrame == nil || dstFrame == nil {
		if srcFrame != nil {
			srcFrame.Free()
		}
		if dstFrame != nil {
			dstFrame.Free()
		}
		if swr != nil {
			swr.Free()
		}
		decCtx.Free()
		fc.CloseInput()
		fc.Free()
		return nil, errors.New("alloc resample state")
	}

	// fc.Duration() is in AV_TIME_BASE (microseconds).
	dur := time.Duration(fc.Duration()) * time.Microsecond
	if dur <= 0 {
		srcFrame.Free()
		dstFrame.Free()
		swr.Free()
		decCtx.Free()
		fc.CloseInput()
		fc.Free()
		return nil, errors.New("media has no duration")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e := &AVEngine{
		url:          url,
		fc:           fc,
		audioStream:  st,
		decCtx:       decCtx,
		swr:          swr,
		srcFrame:     srcFrame,
		dstFrame:     dstFrame,
		duration:     dur,
		cancel:       cancel,
		done:         make(chan struct{}),
		volume:       1,
		sink:         sink,
		targetRate:   48000,
		targetLayout: astiav.ChannelLayoutStereo,
		targetFormat: astiav.SampleFormatS16,
	}

	go e.run(runCtx)
	return e, nil
}

func (e *AVEngine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.playing = true
}

func (e *AVEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
}

func (e *AVEngine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *AVEngine) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.mu.Lock()
	e.volume = v
	e.mu.Unlock()
}

func (e *AVEngine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *AVEngine) SeekToStart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.seekReq = true
}

func (e *AVEngine) Duration() time.Duration { return e.duration }

func (e *AVEngine) HasActiveItem() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && e.fc != nil && e.audioStream != nil
}

// Observe attaches callbacks. If readiness was reached before the observer
// was attached, Ready is replayed immediately so the transition is never
// lost to attach ordering.
func (e *AVEngine) Observe(obs Observers) {
	e.mu.Lock()
	e.obs = obs
	replayReady := e.ready
	e.mu.Unlock()

	if replayReady && obs.Ready != nil {
		obs.Ready()
	}
}

func (e *AVEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.playing = false
	e.mu.Unlock()

	e.cancel()
	<-e.done

	if e.srcFrame != nil {
		e.srcFrame.Free()
	}
	if e.dstFrame != nil {
		e.dstFrame.Free()
	}
	if e.swr != nil {
		e.swr.Free()
	}
	if e.decCtx != nil {
		e.decCtx.Free()
	}
	if e.fc != nil {
		e.fc.CloseInput()
		e.fc.Free()
	}
	e.fc = nil
	e.audioStream = nil
}

func (e *AVEngine) observers() Observers {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.obs
}

// run owns all astiav calls after construction. Pausing idles the loop;
// seeking is requested via seekReq and applied here so no two goroutines
// touch the format context.
func (e *AVEngine) run(ctx context.Context) {
	defer close(e.done)

	packet := astiav.AllocPacket()
	defer packet.Free()

	var wall0 time.Time
	var media0 time.Duration
	anchored := false
	readySent := false
	tb := e.audioStream.TimeBase()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e.mu.Lock()
		playing := e.playing
		seek := e.seekReq
		e.seekReq = false
		e.mu.Unlock()

		if seek {
			if err := e.fc.SeekFrame(e.audioStream.Index(), 0, astiav.NewSeekFlags()); err != nil {
				slog.Warn("seek to start failed", "url", e.url, "err", err)
			}
			_ = e.fc.Flush()
			anchored = false
		}

		// Priming pass runs even while paused so readiness can be reported
		// before the first Play.
		if !playing && readySent {
			select {
			case <-ctx.Done():
				return
			case <-time.After(20 * time.Millisecond):
			}
			anchored = false
			continue
		}

		packet.Unref()
		if err := e.fc.ReadFrame(packet); err != nil {
			if astErr, ok := err.(astiav.Error); ok && astErr.Is(io.EOF) {
				e.drainDecoder(ctx, playing)
				e.mu.Lock()
				e.playing = false
				e.mu.Unlock()
				if ended := e.observers().Ended; ended != nil {
					ended()
				}
				// Idle until a seek request or close arrives.
				e.awaitSeekOrClose(ctx)
				anchored = false
				continue
			}
			if astErr, ok := err.(astiav.Error); ok && astErr.Is(astiav.ErrorAgain) {
				continue
			}
			e.fail(fmt.Errorf("read frame: %w", err))
			return
		}

		if packet.StreamIndex() != e.audioStream.Index() {
			continue
		}

		if err := e.decCtx.SendPacket(packet); err != nil {
			if astErr, ok := err.(astiav.Error); !ok || !astErr.Is(astiav.ErrorAgain) {
				e.fail(fmt.Errorf("send packet: %w", err))
				return
			}
		}

		for {
			e.srcFrame.Unref()
			if err := e.decCtx.ReceiveFrame(e.srcFrame); err != nil {
				if astErr, ok := err.(astiav.Error); ok && (astErr.Is(astiav.ErrorAgain) || astErr.Is(io.EOF)) {
					break
				}
				e.fail(fmt.Errorf("receive frame: %w", err))
				return
			}

			if !readySent {
				readySent = true
				e.mu.Lock()
				e.ready = true
				e.mu.Unlock()
				if ready := e.observers().Ready; ready != nil {
					ready()
				}
			}

			if !playing {
				// Primed enough; hold the decoded frame position.
				break
			}

			pts := time.Duration(float64(e.srcFrame.Pts()) * tb.Float64() * float64(time.Second))
			if !anchored {
				anchored = true
				wall0 = time.Now()
				media0 = pts
			}
			if d := time.Until(wall0.Add(pts - media0)); d > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(d):
				}
			}

			if err := e.deliver(e.srcFrame); err != nil {
				e.fail(err)
				return
			}
		}
	}
}

func (e *AVEngine) drainDecoder(ctx context.Context, playing bool) {
	_ = e.decCtx.SendPacket(nil)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		e.srcFrame.Unref()
		if err := e.decCtx.ReceiveFrame(e.srcFrame); err != nil {
			return
		}
		if !playing {
			continue
		}
		if err := e.deliver(e.srcFrame); err != nil {
			return
		}
	}
}

func (e *AVEngine) awaitSeekOrClose(ctx context.Context) {
	for {
		e.mu.Lock()
		seek := e.seekReq
		e.mu.Unlock()
		if seek {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (e *AVEngine) deliver(src *astiav.Frame) error {
	e.dstFrame.Unref()
	e.dstFrame.SetNbSamples(src.NbSamples())
	e.dstFrame.SetChannelLayout(e.targetLayout)
	e.dstFrame.SetSampleRate(e.targetRate)
	e.dstFrame.SetSampleFormat(e.targetFormat)
	if err := e.dstFrame.AllocBuffer(0); err != nil {
		return fmt.Errorf("dst alloc buffer: %w", err)
	}
	if err := e.swr.ConvertFrame(src, e.dstFrame); err != nil {
		return fmt.Errorf("swr convert: %w", err)
	}

	sink := e.sink
	if sink == nil {
		return nil
	}

	b, err := e.dstFrame.Data().Bytes(0)
	if err != nil {
		return fmt.Errorf("dst bytes: %w", err)
	}
	out := make([]byte, len(b))
	copy(out, b)
	scalePCM16(out, e.Volume())
	sink(out)
	return nil
}

func (e *AVEngine) fail(err error) {
	slog.Error("engine failure", "url", e.url, "err", err)
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
	if failed := e.observers().Failed; failed != nil {
		// The observer may Close this engine, and Close waits for the run
		// goroutine to return. The callback must not run on that goroutine.
		go failed(err)
	}
}

// scalePCM16 applies a linear gain to interleaved s16le samples in place.
func scalePCM16(b []byte, gain float64) {
	if gain == 1 || len(b)%2 != 0 {
		return
	}
	for i := 0; i < len(b); i += 2 {
		v := int16(uint16(b[i]) | uint16(b[i+1])<<8)
		s := float64(v) * gain
		if s > 32767 {
			s = 32767
		}
		if s < -32768 {
			s = -32768
		}
		sv := int16(s)
		b[i] = byte(uint16(sv))
		b[i+1] = byte(uint16(sv) >> 8)
	}
}
