package toolregistry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"triad/internal/agent/ports"
	jsonx "triad/internal/shared/json"
)

const (
	defaultCacheMaxSize = 256
	defaultCacheTTL     = 2 * time.Minute
)

// CacheConfig configures the tool result cache.
type CacheConfig struct {
	Disabled bool
	MaxSize  int
	TTL      time.Duration
}

// DefaultCacheConfig returns the cache defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{MaxSize: defaultCacheMaxSize, TTL: defaultCacheTTL}
}

// readOnlyTool is implemented by tools whose results depend only on their
// arguments and the workspace contents.
type readOnlyTool interface {
	ReadOnly() bool
}

type cacheEntry struct {
	content  string
	storedAt time.Time
}

// resultCache is shared by every wrapped tool of one registry. Invoking
// any tool that is not read-only purges it, because the workspace may have
// changed underneath the cached reads.
type resultCache struct {
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	now     func() time.Time
	hits    atomic.Int64
	misses  atomic.Int64
}

func newResultCache(cfg CacheConfig) *resultCache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultCacheMaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	entries, _ := lru.New[string, cacheEntry](cfg.MaxSize)
	return &resultCache{entries: entries, ttl: cfg.TTL, now: time.Now}
}

func (c *resultCache) wrap(tool ports.Tool) ports.Tool {
	ro, ok := tool.(readOnlyTool)
	return &cachedTool{Tool: tool, cache: c, readOnly: ok && ro.ReadOnly()}
}

func (c *resultCache) stats() (int64, int64) {
	return c.hits.Load(), c.misses.Load()
}

type cachedTool struct {
	ports.Tool
	cache    *resultCache
	readOnly bool
}

func (t *cachedTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	if !t.readOnly {
		t.cache.entries.Purge()
		return t.Tool.Invoke(ctx, args)
	}

	key := cacheKey(t.Name(), args)
	if entry, ok := t.cache.entries.Get(key); ok {
		if t.cache.now().Sub(entry.storedAt) < t.cache.ttl {
			t.cache.hits.Add(1)
			return entry.content, nil
		}
		t.cache.entries.Remove(key)
	}
	t.cache.misses.Add(1)

	content, err := t.Tool.Invoke(ctx, args)
	if err != nil {
		return content, err
	}
	t.cache.entries.Add(key, cacheEntry{content: content, storedAt: t.cache.now()})
	return content, nil
}

// cacheKey relies on the encoder sorting map keys at every level.
func cacheKey(name string, args map[string]any) string {
	if len(args) == 0 {
		return name + ":{}"
	}
	data, err := jsonx.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%s:%v", name, args)
	}
	return name + ":" + string(data)
}
