package conversation

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xxxsen/ragchat/internal/model"
)

// Store keeps sessions in memory, evicting the least recently used one past
// capacity and any session idle for longer than ttl.
type Store struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *Session]
	locks    map[string]*askLock
	maxTurns int
}

// askLock outlives eviction of the session it guards. It is dropped once no
// caller holds or waits on it.
type askLock struct {
	mu   sync.Mutex
	refs int
}

func NewStore(capacity int, ttl time.Duration, maxTurns int) *Store {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Store{
		sessions: expirable.NewLRU[string, *Session](capacity, nil, ttl),
		locks:    make(map[string]*askLock),
		maxTurns: maxTurns,
	}
}

// Session returns the session for id, creating it when absent. Each access
// restarts the idle timer.
func (s *Store) Session(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions.Get(id)
	if !ok {
		sess = newSession(id, s.maxTurns)
	}
	s.sessions.Add(id, sess)
	return sess
}

// Lock serialises callers on session id until the returned func is called.
// The lock is independent of the session entry, so evicting or ending the
// session meanwhile does not let a second caller in.
func (s *Store) Lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &askLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func (s *Store) Lookup(id string) (*Session, bool) {
	return s.sessions.Peek(id)
}

// Append records a turn on the live session for sessionID, recreating it
// when it was evicted.
func (s *Store) Append(sessionID, question, answer string) model.Turn {
	return s.Session(sessionID).Append(question, answer)
}

func (s *Store) Turns(sessionID string, limit int) []model.Turn {
	sess, ok := s.sessions.Peek(sessionID)
	if !ok {
		return nil
	}
	return sess.Turns(limit)
}

func (s *Store) Delete(sessionID string) {
	s.sessions.Remove(sessionID)
}

func (s *Store) Len() int {
	return s.sessions.Len()
}
