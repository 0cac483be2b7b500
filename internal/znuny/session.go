package znuny

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// SessionCache owns the single cached backend session credential.
//
// A configured override value is returned unconditionally, bypassing both
// the cache and the backend. Otherwise a cached id is served while younger
// than the TTL and refreshed via Login past it. A failed refresh leaves the
// previous entry in place; it is not retried and not served while expired.
//
// Concurrent cache misses may each trigger an independent login. Backend
// sessions are idempotent to create, so the race costs a request, not
// correctness; the mutex only guards the cached value itself.
type SessionCache struct {
	client   *Client
	ttl      time.Duration
	override string
	logger   log.Logger

	mu         sync.Mutex
	id         string
	obtainedAt time.Time
}

// NewSessionCache creates a session cache. An empty override disables the
// bypass.
func NewSessionCache(client *Client, ttl time.Duration, override string, logger log.Logger) *SessionCache {
	if logger == nil {
		logger = log.Nop()
	}
	return &SessionCache{
		client:   client,
		ttl:      ttl,
		override: override,
		logger:   logger,
	}
}

// Get returns a valid session id, authenticating against the backend when
// the cache is cold or expired.
func (c *SessionCache) Get(ctx context.Context) (string, error) {
	if c.override != "" {
		return c.override, nil
	}

	c.mu.Lock()
	if c.id != "" && time.Since(c.obtainedAt) < c.ttl {
		id := c.id
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	c.logger.Info(ctx, "creating new backend session")
	id, err := c.client.Login(ctx)
	if err != nil {
		// keep whatever was cached: a still-valid entry stays usable
		// for the next call, an expired one stays expired
		return "", err
	}

	c.mu.Lock()
	c.id = id
	c.obtainedAt = time.Now()
	c.mu.Unlock()
	return id, nil
}

// Invalidate drops the cached session so the next Get re-authenticates.
func (c *SessionCache) Invalidate() {
	c.mu.Lock()
	c.id = ""
	c.obtainedAt = time.Time{}
	c.mu.Unlock()
}
