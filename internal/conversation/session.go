package conversation

import (
	"sync"
	"time"

	"github.com/xxxsen/ragchat/internal/model"
)

// Session is the turn log of one conversation. The log is append only and
// holds at most maxTurns turns; older ones fall off the front.
type Session struct {
	id       string
	maxTurns int

	mu      sync.RWMutex
	turns   []model.Turn
	nextSeq int64
}

func newSession(id string, maxTurns int) *Session {
	return &Session{id: id, maxTurns: maxTurns}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Append(question, answer string) model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	turn := model.Turn{Seq: s.nextSeq, Question: question, Answer: answer, Time: time.Now()}
	s.turns = append(s.turns, turn)
	if s.maxTurns > 0 && len(s.turns) > s.maxTurns {
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
	return turn
}

// Turns returns the newest limit turns, oldest first. limit <= 0 returns all.
func (s *Session) Turns(limit int) []model.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(s.turns) {
		start = len(s.turns) - limit
	}
	out := make([]model.Turn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}
