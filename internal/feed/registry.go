package feed

import (
	"sync"
	"time"
)

// Registry is the serialized store of live sessions and their readiness
// flags. Every mutation goes through one mutex so concurrent preparation
// and cleanup tasks never observe a half-registered session, and
// check-then-act sequences ("if no session exists, build one") are atomic.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	ready       map[string]bool
	lastPrepare map[string]time.Time

	onReady func(itemID string)
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		ready:       make(map[string]bool),
		lastPrepare: make(map[string]time.Time),
	}
}

// OnReady installs the readiness observer. It is invoked after the registry
// state has changed, never before, and outside the registry lock.
func (r *Registry) OnReady(fn func(itemID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReady = fn
}

// SetSession registers a newly constructed session. It refuses to overwrite:
// a false return means another session for the same item won the race and
// the caller must tear its engine down itself.
func (r *Registry) SetSession(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.Item.ID]; exists {
		return false
	}
	r.sessions[s.Item.ID] = s
	return true
}

func (r *Registry) GetSession(itemID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[itemID]
}

// SetReady records a readiness transition. Readiness for an item without a
// session is dropped: a cleanup pass removed the session while the engine's
// ready callback was in flight.
func (r *Registry) SetReady(itemID string, ready bool) {
	r.mu.Lock()
	if _, exists := r.sessions[itemID]; !exists {
		r.mu.Unlock()
		return
	}
	r.ready[itemID] = ready
	notify := r.onReady
	r.mu.Unlock()

	if ready && notify != nil {
		notify(itemID)
	}
}

func (r *Registry) IsReady(itemID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready[itemID]
}

// RemoveSession deletes the session, its readiness entry and its prepare
// guard, so a removed item can be re-prepared immediately. Idempotent.
// The engine is paused and closed after the maps are updated, outside the
// lock, so an engine callback blocked on the registry cannot deadlock the
// teardown.
func (r *Registry) RemoveSession(itemID string) {
	r.mu.Lock()
	s := r.sessions[itemID]
	delete(r.sessions, itemID)
	delete(r.ready, itemID)
	delete(r.lastPrepare, itemID)
	r.mu.Unlock()

	if s != nil && s.Engine != nil {
		s.Engine.Pause()
		s.Engine.Close()
	}
}

// UpdatePlaybackStates mutes and pauses every session except the current
// item while the feed is active, which is unmuted and resumed (once ready).
// This is the only sanctioned way to globally silence the feed.
func (r *Registry) UpdatePlaybackStates(active bool, currentItemID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if active && id == currentItemID {
			s.Engine.SetVolume(1)
			if r.ready[id] && !s.Engine.IsPlaying() {
				s.Engine.Play()
			}
			continue
		}
		s.Engine.SetVolume(0)
		s.Engine.Pause()
	}
}

// AllSessions returns a snapshot copy for iteration by the controller.
func (r *Registry) AllSessions() map[string]*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*Session, len(r.sessions))
	for id, s := range r.sessions {
		out[id] = s
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// TryBeginPrepare records a preparation attempt unless one was recorded
// within the debounce interval, in which case another in-flight attempt is
// presumed running and false is returned.
func (r *Registry) TryBeginPrepare(itemID string, debounce time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.lastPrepare[itemID]; ok && time.Since(last) < debounce {
		return false
	}
	r.lastPrepare[itemID] = time.Now()
	return true
}

// ClearPrepareGuard lets a later attempt retry immediately after a failed
// preparation.
func (r *Registry) ClearPrepareGuard(itemID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lastPrepare, itemID)
}
