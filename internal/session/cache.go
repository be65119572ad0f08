// Package session holds anonymized texts and their records so a later request
// can reverse the substitution.
//
// The cache lives for the lifetime of the process. Entries are replaced
// wholesale on Put and never expire unless a Sweeper is configured.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/dativo-io/veil/internal/span"
)

// ErrSessionNotFound is returned when a session id is unknown or was evicted.
var ErrSessionNotFound = errors.New("session not found")

// Session pairs transformed text with the records needed to reverse it.
type Session struct {
	ID        string
	Text      string
	Records   []span.Record
	CreatedAt time.Time
}

// Cache is a concurrency-safe session store guarded by a single lock.
// Readers always observe a complete session: Put swaps the whole entry.
type Cache struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// Put stores a session, overwriting any existing entry with the same id.
// The records slice is copied; later changes by the caller are not visible.
func (c *Cache) Put(id, text string, records []span.Record) {
	s := Session{
		ID:        id,
		Text:      text,
		Records:   cloneRecords(records),
		CreatedAt: c.now(),
	}
	c.mu.Lock()
	c.sessions[id] = s
	c.mu.Unlock()
}

// Get returns a copy of the session stored under id.
func (c *Cache) Get(id string) (Session, error) {
	c.mu.RLock()
	s, ok := c.sessions[id]
	c.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	s.Records = cloneRecords(s.Records)
	return s, nil
}

// Len returns the number of stored sessions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Sweep evicts sessions created more than maxAge ago and returns how many were
// removed. A non-positive maxAge is a no-op.
func (c *Cache) Sweep(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := c.now().Add(-maxAge)
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, s := range c.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(c.sessions, id)
			removed++
		}
	}
	return removed
}

func cloneRecords(records []span.Record) []span.Record {
	out := make([]span.Record, len(records))
	copy(out, records)
	return out
}
