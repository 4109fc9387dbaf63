package session

import "sync"

// Store keeps sessions in process memory, one per user. All engine work for
// a user happens under that user's lock, so concurrent updates from the
// same person are applied one at a time while different users proceed in
// parallel.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*entry
}

type entry struct {
	lock    sync.Mutex
	session *Session
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*entry)}
}

func (s *Store) entryFor(userID int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[userID]
	if !ok {
		e = &entry{session: &Session{}}
		s.sessions[userID] = e
	}
	return e
}

// WithLock runs fn with exclusive access to the user's session. fn may
// mutate the session freely; mutations are visible to the next caller.
func (s *Store) WithLock(userID int64, fn func(*Session) error) error {
	e := s.entryFor(userID)
	e.lock.Lock()
	defer e.lock.Unlock()
	return fn(e.session)
}

// Peek returns a snapshot copy of the user's session without holding its
// lock. Intended for read-only surfaces such as stats.
func (s *Store) Peek(userID int64) Session {
	e := s.entryFor(userID)
	e.lock.Lock()
	defer e.lock.Unlock()
	return *e.session
}

// Reset discards the user's session entirely.
func (s *Store) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Count returns the number of tracked sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Waiting returns how many tracked sessions currently await input.
func (s *Store) Waiting() int {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	n := 0
	for _, e := range entries {
		e.lock.Lock()
		if !e.session.Idle() {
			n++
		}
		e.lock.Unlock()
	}
	return n
}
