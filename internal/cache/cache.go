package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/codec"
	"github.com/eko/gocache/lib/v4/store"
	go_store "github.com/eko/gocache/store/go_cache/v4"
	redis_store "github.com/eko/gocache/store/redis/v4"
	"github.com/jon4hz/arrscore/internal/config"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// ErrDisabled is returned by reads from a disabled cache.
var ErrDisabled = errors.New("cache disabled")

// Backend is the store shared by all prefixed caches of a process.
type Backend struct {
	cache *cache.Cache[[]byte]
	kind  config.CacheType
	ttl   time.Duration

	// tagMu serializes writes, the memory store keeps tag key sets in plain maps.
	tagMu *sync.Mutex
}

// New creates the cache backend described by cfg. It returns nil when caching is disabled;
// caches built on a nil backend never hit and silently drop writes.
func New(cfg *config.CacheConfig) *Backend {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	b := &Backend{kind: cfg.Type, ttl: cfg.TTL, tagMu: &sync.Mutex{}}
	switch cfg.Type {
	case config.CacheTypeRedis:
		b.cache = newRedisCache[[]byte](cfg)
	default:
		b.kind = config.CacheTypeMemory
		b.cache = newMemoryCache[[]byte]()
	}
	log.Debug("API response cache enabled", "type", b.kind, "ttl", b.ttl)
	return b
}

func newMemoryCache[T any]() *cache.Cache[T] {
	// items expire through the ttl passed on every set
	gocacheClient := gocache.New(gocache.NoExpiration, 10*time.Minute)
	gocacheStore := go_store.NewGoCache(gocacheClient)
	return cache.New[T](gocacheStore)
}

func newRedisCache[T any](cfg *config.CacheConfig) *cache.Cache[T] {
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	redisStore := redis_store.NewRedis(redisClient)
	return cache.New[T](redisStore)
}

// PrefixedCache wraps the backend, adds a prefix to all keys and tags every
// entry with it so the prefix can be cleared on its own.
type PrefixedCache[T any] struct {
	cache  *cache.Cache[[]byte]
	kind   config.CacheType
	prefix string
	ttl    time.Duration
	tagMu  *sync.Mutex
}

// NewPrefixedCache creates a new prefixed cache on b. A nil backend yields a nil cache.
func NewPrefixedCache[T any](b *Backend, prefix string) *PrefixedCache[T] {
	if b == nil {
		return nil
	}
	return &PrefixedCache[T]{
		cache:  b.cache,
		kind:   b.kind,
		prefix: prefix,
		ttl:    b.ttl,
		tagMu:  b.tagMu,
	}
}

func (p *PrefixedCache[T]) key(key any) string {
	return p.prefix + fmt.Sprintf("%v", key)
}

// Get retrieves a value from the cache with the prefixed key.
func (p *PrefixedCache[T]) Get(ctx context.Context, key any) (T, error) {
	if p == nil {
		return *new(T), ErrDisabled
	}
	data, err := p.cache.Get(ctx, p.key(key))
	if err != nil {
		return *new(T), err
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return *new(T), err
	}
	return result, nil
}

// Set stores a value in the cache with the prefixed key.
func (p *PrefixedCache[T]) Set(ctx context.Context, key any, object T, options ...store.Option) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(object)
	if err != nil {
		return err
	}
	opts := []store.Option{store.WithTags([]string{p.prefix})}
	if p.ttl > 0 {
		opts = append(opts, store.WithExpiration(p.ttl))
	}
	p.tagMu.Lock()
	defer p.tagMu.Unlock()
	return p.cache.Set(ctx, p.key(key), data, append(opts, options...)...)
}

// Delete removes a value from the cache with the prefixed key.
func (p *PrefixedCache[T]) Delete(ctx context.Context, key any) error {
	if p == nil {
		return nil
	}
	return p.cache.Delete(ctx, p.key(key))
}

// Clear removes every value stored under this prefix.
func (p *PrefixedCache[T]) Clear(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.tagMu.Lock()
	defer p.tagMu.Unlock()
	return p.cache.Invalidate(ctx, store.WithInvalidateTags([]string{p.prefix}))
}

// GetOrLoad returns the cached value of key, calling load and caching its result on a miss.
// Cache failures are logged and never returned; only load errors are.
func (p *PrefixedCache[T]) GetOrLoad(ctx context.Context, key any, load func(context.Context) (T, error)) (T, error) {
	if p != nil {
		cached, err := p.Get(ctx, key)
		if err == nil {
			return cached, nil
		}
		log.Debug("cache miss, fetching from API", "key", p.key(key), "error", err)
	}

	value, err := load(ctx)
	if err != nil {
		return *new(T), err
	}
	if err := p.Set(ctx, key, value); err != nil {
		log.Warn("failed to cache value", "key", p.key(key), "error", err)
	}
	return value, nil
}

// GetType returns the cache type.
func (p *PrefixedCache[T]) GetType() string {
	if p == nil {
		return "disabled"
	}
	return string(p.kind)
}

// GetStats returns the cache statistics.
func (p *PrefixedCache[T]) GetStats() *codec.Stats {
	if p == nil {
		return &codec.Stats{}
	}
	return p.cache.GetCodec().GetStats()
}
