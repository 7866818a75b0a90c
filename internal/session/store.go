// Package session holds the signed-in user's session and profile for API clients.
//
// A Store is created once at startup and torn down with Close. Every session change
// bumps a generation counter; asynchronous work started for one generation may only
// write back while that generation is still current.
package session

import (
	"sync"
	"time"

	"github.com/clicloop/internal/models"
)

// Session is an access token issued by the external identity provider
type Session struct {
	AccessToken string
	UserID      string
	Email       string
	Name        string
	ExpiresAt   time.Time
}

// Expired reports whether the token is past its expiry. A zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Event is delivered to subscribers after every session change.
// Session is nil when the user signed out.
type Event struct {
	Session    *Session
	Generation uint64
}

// Listener receives session events. It runs synchronously on the goroutine that
// changed the session and must not call back into SetSession or Clear.
type Listener func(Event)

// Snapshot is a consistent view of the store
type Snapshot struct {
	Session    *Session
	Profile    *models.Profile
	Loading    bool
	Generation uint64
}

// Store is the process-wide session state
type Store struct {
	mu         sync.Mutex
	generation uint64
	session    *Session
	profile    *models.Profile
	loading    bool
	closed     bool

	nextID    uint64
	listeners map[uint64]Listener
}

// NewStore creates an empty, signed-out store
func NewStore() *Store {
	return &Store{listeners: make(map[uint64]Listener)}
}

// Subscribe registers fn for session events and returns its unsubscribe function.
// Unsubscribing twice is a no-op. Subscribing to a closed store registers nothing.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// SetSession replaces the current session. The profile is dropped and marked as
// loading until a resolver applies the new one.
func (s *Store) SetSession(sess *Session) {
	if sess == nil {
		s.Clear()
		return
	}
	s.change(sess)
}

// Clear signs the user out
func (s *Store) Clear() {
	s.change(nil)
}

func (s *Store) change(sess *Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.generation++
	s.session = sess
	s.profile = nil
	s.loading = sess != nil

	ev := Event{Session: sess, Generation: s.generation}
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// ApplyProfile stores the profile resolved for generation. It returns false and
// changes nothing when the session has changed since, or the store is closed.
// A nil profile ends loading without one.
func (s *Store) ApplyProfile(generation uint64, p *models.Profile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || generation != s.generation {
		return false
	}
	s.profile = p
	s.loading = false
	return true
}

// UpdateProfile replaces the profile of the current session, e.g. after the user
// edits it. It is ignored while signed out.
func (s *Store) UpdateProfile(p *models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.session == nil {
		return
	}
	s.profile = p
}

// Token returns the current access token, or "" when signed out
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return ""
	}
	return s.session.AccessToken
}

// Generation returns the current generation
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Session:    s.session,
		Profile:    s.profile,
		Loading:    s.loading,
		Generation: s.generation,
	}
}

// Close drops all listeners and invalidates in-flight work. Later changes are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	s.loading = false
	s.listeners = make(map[uint64]Listener)
}
