package progress

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Correlator maintains the bijection between live extraction sessions and
// queue entries. Events arriving for unknown sessions resolve to nothing,
// which is how stale deliveries after a terminal event become no-ops.
type Correlator struct {
	mu        sync.Mutex
	byRequest map[string]string // sessionID -> entryID
	byEntry   map[string]string // entryID -> sessionID
}

// NewCorrelator returns an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{
		byRequest: make(map[string]string),
		byEntry:   make(map[string]string),
	}
}

// Bind associates a session with an entry. Any prior binding for either side
// is replaced; the dangling halves are cleaned up.
func (c *Correlator) Bind(sessionID, entryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.byEntry[entryID]; ok {
		delete(c.byRequest, old)
	}
	if old, ok := c.byRequest[sessionID]; ok {
		delete(c.byEntry, old)
	}
	c.byRequest[sessionID] = entryID
	c.byEntry[entryID] = sessionID
	log.WithField("session", sessionID).Debugf("Bound to entry %s", entryID)
}

// Resolve returns the entry a session maps to, if any.
func (c *Correlator) Resolve(sessionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entryID, ok := c.byRequest[sessionID]
	return entryID, ok
}

// SessionFor returns the live session for an entry, if any.
func (c *Correlator) SessionFor(entryID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessionID, ok := c.byEntry[entryID]
	return sessionID, ok
}

// Drop removes the binding for a session. Dropping an unknown session is a
// no-op. Terminal events are dropped before their queue transition is
// applied, so a redelivered terminal event no longer resolves.
func (c *Correlator) Drop(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entryID, ok := c.byRequest[sessionID]; ok {
		delete(c.byEntry, entryID)
	}
	delete(c.byRequest, sessionID)
}

// DropEntry removes the binding for an entry, returning the session it was
// bound to.
func (c *Correlator) DropEntry(entryID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessionID, ok := c.byEntry[entryID]
	if ok {
		delete(c.byRequest, sessionID)
		delete(c.byEntry, entryID)
	}
	return sessionID, ok
}
