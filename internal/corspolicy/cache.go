package corspolicy

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// activeOriginLister is the subset of Repository the Policy Cache needs. A narrower interface than Repository keeps
// the cache testable with a minimal fake and decouples it from the CRUD surface the HTTP handlers use.
type activeOriginLister interface {
	ListActive(ctx context.Context) ([]string, error)
}

// Cache is the Policy Cache: the union of a configured static set (env-list ∪ hardcoded defaults) and the active
// origins read from the database, the latter refreshed at most once per TTL. Reads take a shared read lock; they are
// not lock-free. Refreshes are single-flight, so concurrent callers during a refresh observe the previous value
// rather than each issuing their own query.
type Cache struct {
	repo   activeOriginLister
	ttl    time.Duration
	static []string
	log    zerolog.Logger

	mu          sync.RWMutex
	dbOrigins   map[string]struct{}
	lastRefresh time.Time
	refreshing  bool
	refreshDone chan struct{}
}

// defaultOrigins mirrors the original deployment's hardcoded fallback set so a fresh install with no configured
// origins still accepts its own local frontend.
var defaultOrigins = []string{"http://localhost", "http://localhost:3000", "http://frontend:3000"}

// NewCache builds a Policy Cache. envOrigins is the operator-configured extra allow-list; it is merged with
// defaultOrigins to form the static portion that never expires.
func NewCache(repo activeOriginLister, ttl time.Duration, envOrigins []string, logger zerolog.Logger) *Cache {
	static := make([]string, 0, len(envOrigins)+len(defaultOrigins))
	static = append(static, envOrigins...)
	static = append(static, defaultOrigins...)
	return &Cache{
		repo:   repo,
		ttl:    ttl,
		static: static,
		log:    logger.With().Str("component", "policy_cache").Logger(),
	}
}

// GetAllOrigins returns the union of static origins and the cached database origins, refreshing the database portion
// synchronously when it has never been loaded or is older than the TTL. A caller that arrives while another caller's
// refresh is in flight reads the previous value at once, or waits for the first load if nothing is loaded yet. A
// background Run loop keeps the cache warm so most reads find it fresh (see Run).
func (c *Cache) GetAllOrigins(ctx context.Context) []string {
	c.mu.RLock()
	loaded := c.dbOrigins != nil
	stale := time.Since(c.lastRefresh) > c.ttl
	c.mu.RUnlock()

	if !loaded || stale {
		c.refresh(ctx)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	all := make([]string, 0, len(c.static)+len(c.dbOrigins))
	all = append(all, c.static...)
	for o := range c.dbOrigins {
		all = append(all, o)
	}
	return all
}

// IsAllowed reports whether origin is currently in the effective allow-set.
func (c *Cache) IsAllowed(ctx context.Context, origin string) bool {
	for _, o := range c.GetAllOrigins(ctx) {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Invalidate forces the next GetAllOrigins call to refresh the database portion, regardless of TTL.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.lastRefresh = time.Time{}
	c.mu.Unlock()
}

// Refresh synchronously refreshes the database portion of the cache.
func (c *Cache) Refresh(ctx context.Context) error {
	return c.refreshLocked(ctx)
}

// refresh performs a single-flight refresh: the first caller does the work, and concurrent callers issue no query of
// their own. They return at once to read the previous value, or, when nothing has been loaded yet, wait for the
// in-flight load to finish.
func (c *Cache) refresh(ctx context.Context) {
	c.mu.Lock()
	if c.refreshing {
		done := c.refreshDone
		warm := c.dbOrigins != nil
		c.mu.Unlock()
		if !warm {
			<-done
		}
		return
	}
	c.refreshing = true
	c.refreshDone = make(chan struct{})
	c.mu.Unlock()

	if err := c.refreshLocked(ctx); err != nil {
		c.log.Warn().Err(err).Msg("failed to refresh origin policy cache, retaining previous value")
	}

	c.mu.Lock()
	c.refreshing = false
	close(c.refreshDone)
	c.mu.Unlock()
}

func (c *Cache) refreshLocked(ctx context.Context) error {
	origins, err := c.repo.ListActive(ctx)
	if err != nil {
		return err
	}

	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		set[o] = struct{}{}
	}

	c.mu.Lock()
	c.dbOrigins = set
	c.lastRefresh = time.Now()
	c.mu.Unlock()
	return nil
}

// Run periodically refreshes the cache every TTL until ctx is cancelled, so steady-state reads never pay the refresh
// latency inline. It is safe to omit; GetAllOrigins refreshes lazily on its own.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}
