// Package creds fetches and caches host-side credentials that get
// injected into tool environments. The sandbox never sees the values;
// they exist only in the gateway process and in short-lived 0600 env
// files consumed at container launch.
package creds

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/drawbridge-sh/drawbridge/internal/logging"
	"github.com/drawbridge-sh/drawbridge/internal/system"
)

// DefaultTTL is how long a fetched token is reused before refetching.
const DefaultTTL = 10 * time.Minute

// Cache lazily fetches the GitHub CLI token and reuses it for a TTL.
// Failed or empty fetches are cached too, so a host without gh set up
// is not probed on every request.
type Cache struct {
	mu        sync.Mutex
	value     string
	fetchedAt time.Time
	ttl       time.Duration
	exec      system.CommandExecutor
}

// NewCache returns a token cache. A zero ttl means DefaultTTL.
func NewCache(exec system.CommandExecutor, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, exec: exec}
}

// Get returns the gh auth token, fetching it if the cached value has
// expired. An empty string means no token is available; callers skip
// injection in that case.
func (c *Cache) Get(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		return c.value
	}

	result := c.exec.Run(ctx, system.Request{Name: "gh", Args: []string{"auth", "token"}})
	token := ""
	if result.Success() {
		token = strings.TrimSpace(result.Stdout)
	} else {
		logging.Debug("gh token fetch failed", "exit_code", result.ExitCode)
	}

	c.value = token
	c.fetchedAt = time.Now()
	return token
}

// Invalidate drops the cached value so the next Get refetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = ""
	c.fetchedAt = time.Time{}
}
