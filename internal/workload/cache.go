package workload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore is the subset of *redis.Client the generator drives.
type CacheStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

const (
	cacheKeyspace = 1000
	cacheListCap  = 100
	cacheTTL      = 10 * time.Minute
)

// Cache generates GET/LRANGE/HGETALL/SMEMBERS reads and SET/LPUSH/HSET/SADD writes.
// A key miss is a successful read.
type Cache struct {
	store CacheStore
	rng   *source
}

// NewCache returns a cache generator seeded with seed.
func NewCache(store CacheStore, seed uint64) *Cache {
	return &Cache{store: store, rng: newSource(seed)}
}

func (g *Cache) Backend() string { return "redis" }

func (g *Cache) key(kind string) string {
	return fmt.Sprintf("perf:%s:%d", kind, g.rng.intN(cacheKeyspace))
}

func (g *Cache) Read(ctx context.Context) error {
	switch g.rng.intN(4) {
	case 0:
		err := g.store.Get(ctx, g.key("str")).Err()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	case 1:
		return g.store.LRange(ctx, g.key("list"), 0, int64(g.rng.intRange(5, 20))).Err()
	case 2:
		return g.store.HGetAll(ctx, g.key("hash")).Err()
	default:
		return g.store.SMembers(ctx, g.key("set")).Err()
	}
}

func (g *Cache) Write(ctx context.Context) error {
	switch g.rng.intN(4) {
	case 0:
		return g.store.Set(ctx, g.key("str"), g.rng.text(g.rng.intRange(16, 512)), cacheTTL).Err()
	case 1:
		key := g.key("list")
		if err := g.store.LPush(ctx, key, g.rng.text(32)).Err(); err != nil {
			return err
		}
		return g.store.LTrim(ctx, key, 0, cacheListCap-1).Err()
	case 2:
		return g.store.HSet(ctx, g.key("hash"),
			"field", g.rng.pick(conceptLabels),
			"value", g.rng.text(24),
			"updated", time.Now().Unix()).Err()
	default:
		return g.store.SAdd(ctx, g.key("set"), g.rng.text(12)).Err()
	}
}
