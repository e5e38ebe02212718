package event

import (
	"context"
	"errors"
	"sync"
	"time"
)

const defaultConfigCacheTTL = 60 * time.Second

var errMissingLoader = errors.New("event: config loader is required")

// ConfigLoader fetches the singleton event configuration from the store.
type ConfigLoader func(ctx context.Context) (EventConfig, error)

// ConfigCacheOptions configures a ConfigCache.
type ConfigCacheOptions struct {
	Loader ConfigLoader
	TTL    time.Duration
	Clock  func() time.Time
}

// ConfigCache memoizes the event configuration for a bounded interval so
// request handlers do not hit the store on every phase computation. Admin
// writes must call Invalidate afterwards.
type ConfigCache struct {
	loader ConfigLoader
	ttl    time.Duration
	clock  func() time.Time

	mu        sync.Mutex
	value     EventConfig
	fetchedAt time.Time
	valid     bool
}

// NewConfigCache constructs a ConfigCache with sane defaults.
func NewConfigCache(opts ConfigCacheOptions) (*ConfigCache, error) {
	if opts.Loader == nil {
		return nil, errMissingLoader
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultConfigCacheTTL
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ConfigCache{loader: opts.Loader, ttl: ttl, clock: clock}, nil
}

// Get returns the cached configuration, refreshing it from the store when the
// entry is missing or older than the TTL.
func (c *ConfigCache) Get(ctx context.Context) (EventConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if c.valid && now.Sub(c.fetchedAt) <= c.ttl {
		return c.value, nil
	}

	value, err := c.loader(ctx)
	if err != nil {
		if c.valid {
			// Serve the stale entry rather than failing the request.
			return c.value, nil
		}
		return EventConfig{}, err
	}

	c.value = value
	c.fetchedAt = now
	c.valid = true
	return value, nil
}

// Invalidate drops the cached entry so the next Get refetches.
func (c *ConfigCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}
