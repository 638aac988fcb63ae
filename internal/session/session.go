package session

import (
	"sort"
	"sync"
)

// Session is the live credential for the current process: the access
// token plus the identity fields the UI shows. At most one session is
// live at a time; it is never written to disk.
type Session struct {
	Token      string
	Email      string
	Name       string
	PictureURL string
}

// Listener receives the new session on every change. A nil session
// means "signed out".
type Listener func(*Session)

// Store holds the live session and broadcasts changes. Save and Clear
// notify every subscriber synchronously before returning, so dependent
// state is current by the time the call completes.
type Store struct {
	mu      sync.Mutex
	current *Session
	subs    map[int]Listener
	nextID  int
}

func NewStore() *Store {
	return &Store{subs: make(map[int]Listener)}
}

// Get returns a copy of the live session, or nil when signed out.
func (s *Store) Get() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

// Save replaces the live session and notifies subscribers.
func (s *Store) Save(sess Session) {
	s.mu.Lock()
	s.current = &sess
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, fn := range listeners {
		copied := sess
		fn(&copied)
	}
}

// Clear drops the live session and notifies subscribers.
func (s *Store) Clear() {
	s.mu.Lock()
	s.current = nil
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(nil)
	}
}

// Subscribe registers a change listener and returns its unsubscribe func.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// listenersLocked snapshots subscribers in registration order so a
// broadcast is deterministic and runs outside the lock.
func (s *Store) listenersLocked() []Listener {
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.subs[id])
	}
	return listeners
}
