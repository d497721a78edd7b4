package app

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// SendFunc delivers one message to a live connection. Implementations must
// be safe for use from multiple goroutines.
type SendFunc func(msg any) error

// Member identifies what a registered connection is attached to.
type Member struct {
	Token  string
	QuizID int64
	UserID int64
}

type presenceEntry struct {
	Member
	send SendFunc
}

// Presence is the process-wide registry of live connections, keyed by
// connection id and grouped into per-quiz rooms. It only mirrors state for
// broadcast; the durable session store stays authoritative, so losing this
// registry loses nothing a client cannot recover by rejoining.
type Presence struct {
	log   *logrus.Logger
	mu    sync.RWMutex
	conns map[string]presenceEntry
	rooms map[int64]map[string]struct{}
}

func NewPresence(log *logrus.Logger) *Presence {
	return &Presence{
		log:   log,
		conns: make(map[string]presenceEntry),
		rooms: make(map[int64]map[string]struct{}),
	}
}

// Join registers a connection under the quiz room. Re-joining with the same
// connection id replaces the previous registration.
func (p *Presence) Join(connID string, member Member, send SendFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.conns[connID]; ok {
		p.evictLocked(connID, prev.QuizID)
	}
	p.conns[connID] = presenceEntry{Member: member, send: send}
	room, ok := p.rooms[member.QuizID]
	if !ok {
		room = make(map[string]struct{})
		p.rooms[member.QuizID] = room
	}
	room[connID] = struct{}{}
}

// Leave removes a connection and reports what it was attached to. Removing
// an unknown connection is a no-op.
func (p *Presence) Leave(connID string) (Member, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.conns[connID]
	if !ok {
		return Member{}, false
	}
	p.evictLocked(connID, entry.QuizID)
	return entry.Member, true
}

// Lookup returns the registration for a connection, if any.
func (p *Presence) Lookup(connID string) (Member, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.conns[connID]
	return entry.Member, ok
}

// Broadcast fans msg out to every connection in the quiz room, optionally
// skipping one connection. Delivery order across recipients is not
// guaranteed; failed sends are logged and the registry left untouched, the
// read loop of the dead connection will clean itself up.
func (p *Presence) Broadcast(quizID int64, msg any, exceptConnID string) {
	p.mu.RLock()
	targets := make([]presenceEntry, 0, len(p.rooms[quizID]))
	ids := make([]string, 0, len(p.rooms[quizID]))
	for connID := range p.rooms[quizID] {
		if connID == exceptConnID {
			continue
		}
		targets = append(targets, p.conns[connID])
		ids = append(ids, connID)
	}
	p.mu.RUnlock()

	for i, entry := range targets {
		if err := entry.send(msg); err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{
				"conn": ids[i],
				"quiz": quizID,
			}).Warn("broadcast delivery failed")
		}
	}
}

// RoomSize reports how many connections are registered under a quiz.
func (p *Presence) RoomSize(quizID int64) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rooms[quizID])
}

// Clear drops every registration; called on shutdown.
func (p *Presence) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns = make(map[string]presenceEntry)
	p.rooms = make(map[int64]map[string]struct{})
}

func (p *Presence) evictLocked(connID string, quizID int64) {
	delete(p.conns, connID)
	if room, ok := p.rooms[quizID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(p.rooms, quizID)
		}
	}
}
