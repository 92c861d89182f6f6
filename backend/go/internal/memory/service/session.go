package service

import (
	"hash/fnv"
	"sync"
)

// SessionState is the lifecycle state of one session.
type SessionState string

const (
	StateIdle         SessionState = "IDLE"
	StateAccumulating SessionState = "ACCUMULATING"
	StateSummarizing  SessionState = "SUMMARIZING"
	StateClosed       SessionState = "CLOSED"
)

const sessionStripes = 64

// session is the registry entry. epoch identifies one lifecycle: a session
// that is closed and later written to again gets a fresh epoch, so results of
// background jobs started before the close are discarded.
type session struct {
	userID       string
	epoch        uint64
	closed       bool
	accumulating bool
	summarizing  int
}

func (s session) state() SessionState {
	switch {
	case s.closed:
		return StateClosed
	case s.summarizing > 0:
		return StateSummarizing
	case s.accumulating:
		return StateAccumulating
	default:
		return StateIdle
	}
}

// stripes serializes CloseSession against background result writes.
type stripes [sessionStripes]sync.RWMutex

func (s *stripes) of(sessionID string) *sync.RWMutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &s[h.Sum32()%sessionStripes]
}

// touch registers activity for the session and returns its current epoch.
func (s *MemoryService) touch(sessionID, userID string) uint64 {
	next := s.sessions.Update(sessionID, func(cur session, ok bool) (session, bool) {
		if !ok || cur.closed {
			return session{userID: userID, epoch: s.epochs.Add(1), accumulating: true}, true
		}
		cur.accumulating = true
		if userID != "" {
			cur.userID = userID
		}
		return cur, true
	})
	return next.epoch
}

func (s *MemoryService) beginSummary(sessionID string, epoch uint64) {
	s.sessions.Update(sessionID, func(cur session, ok bool) (session, bool) {
		if !ok || cur.epoch != epoch {
			return cur, ok
		}
		cur.summarizing++
		cur.accumulating = false
		return cur, true
	})
}

// endSummary undoes beginSummary. restore puts the session back into
// ACCUMULATING when the job never ran.
func (s *MemoryService) endSummary(sessionID string, epoch uint64, restore bool) {
	s.sessions.Update(sessionID, func(cur session, ok bool) (session, bool) {
		if !ok || cur.epoch != epoch {
			return cur, ok
		}
		if cur.summarizing > 0 {
			cur.summarizing--
		}
		if restore {
			cur.accumulating = true
		}
		return cur, true
	})
}

// live reports whether the lifecycle identified by epoch is still open.
func (s *MemoryService) live(sessionID string, epoch uint64) bool {
	cur, ok := s.sessions.Get(sessionID)
	return ok && !cur.closed && cur.epoch == epoch
}

// SessionState reports the session's lifecycle state. Sessions without live
// state, never seen or expired, report CLOSED.
func (s *MemoryService) SessionState(sessionID string) SessionState {
	cur, ok := s.sessions.Get(sessionID)
	if !ok {
		return StateClosed
	}
	return cur.state()
}

func (s *MemoryService) activeSessions() int {
	n := 0
	s.sessions.Range(func(_ string, cur session) bool {
		if !cur.closed {
			n++
		}
		return true
	})
	return n
}
