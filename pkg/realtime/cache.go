package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/starshield/voicebridge/internal/log"
)

// SessionTTL bounds how long a prefetched credential may sit unused.
// Ephemeral sessions expire quickly on the API side; keeping our window
// shorter guarantees a consumed entry is never already stale.
const SessionTTL = 55 * time.Second

// CreateFunc acquires a fresh ephemeral session.
type CreateFunc func(ctx context.Context) (*Session, error)

type cacheEntry struct {
	session   *Session
	createdAt time.Time
	expiresAt time.Time
}

// SessionCache holds prefetched realtime sessions keyed by call id so the
// media-stream handler can skip the session-issuance round trip. Entries
// are one-shot: Consume removes them, and expired entries are swept lazily
// on every Prefetch/Consume.
type SessionCache struct {
	create CreateFunc
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*cacheEntry
	pending map[string]struct{}
}

// NewSessionCache creates a cache that acquires sessions via create.
func NewSessionCache(create CreateFunc) *SessionCache {
	return &SessionCache{
		create:  create,
		ttl:     SessionTTL,
		now:     time.Now,
		entries: make(map[string]*cacheEntry),
		pending: make(map[string]struct{}),
	}
}

// Prefetch acquires a session for the call ahead of the media stream.
// It is a no-op when the call id is empty or an entry is already present
// or being fetched. Failures are logged and swallowed: prefetching is an
// optimization, never a correctness requirement.
func (c *SessionCache) Prefetch(ctx context.Context, callID string) {
	key := strings.TrimSpace(callID)
	if key == "" {
		return
	}

	c.mu.Lock()
	c.sweepLocked()
	if _, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return
	}
	if _, ok := c.pending[key]; ok {
		c.mu.Unlock()
		return
	}
	c.pending[key] = struct{}{}
	c.mu.Unlock()

	session, err := c.create(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, key)
	if err != nil {
		log.Warn("failed to prefetch realtime session", "call_sid", key, "error", err)
		return
	}

	now := c.now()
	c.entries[key] = &cacheEntry{
		session:   session,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
	log.Info("prefetched realtime session", "call_sid", key)
}

// Consume removes and returns the session for the call, or nil when
// nothing unexpired is cached. A second Consume for the same id misses.
func (c *SessionCache) Consume(callID string) *Session {
	key := strings.TrimSpace(callID)
	if key == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	delete(c.entries, key)
	return entry.session
}

// Clear drops any cached entry for the call without returning it.
func (c *SessionCache) Clear(callID string) {
	key := strings.TrimSpace(callID)
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// sweepLocked evicts expired entries. Callers hold c.mu.
func (c *SessionCache) sweepLocked() {
	cutoff := c.now()
	for key, entry := range c.entries {
		if entry == nil || !entry.expiresAt.After(cutoff) {
			delete(c.entries, key)
		}
	}
}
