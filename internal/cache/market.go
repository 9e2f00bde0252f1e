package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// staleGraceFactor keeps entries in Redis well past their logical TTL
// so an expired value can still be served stale when a refresh fails.
const staleGraceFactor = 6

// Entry is one cached market value. Expiry is judged against
// FetchedAt+TTL, not Redis expiry; Redis only garbage-collects.
type Entry struct {
	Provider  string        `json:"provider"`
	QueryKey  string        `json:"query_key"`
	Digest    string        `json:"digest"`
	AsOf      time.Time     `json:"as_of"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
}

func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.FetchedAt) >= e.TTL
}

// MarketCache is the shared market-data cache, injected everywhere it
// is used so tests can swap in miniredis and production can point at a
// real cluster.
type MarketCache struct {
	rdb    *redis.Client
	tracer trace.Tracer
}

func NewMarketCache(rdb *redis.Client, tracer trace.Tracer) *MarketCache {
	return &MarketCache{rdb: rdb, tracer: tracer}
}

// NewRedisClient connects and pings. Callers own the client lifecycle.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	log.Println("Connected to Redis")
	return client, nil
}

func key(provider, queryKey string) string {
	return "market:" + provider + ":" + queryKey
}

// Get returns the cached entry or nil on a miss. Decode failures are
// treated as misses: a corrupt entry is dropped, not served.
func (c *MarketCache) Get(ctx context.Context, provider, queryKey string) (*Entry, error) {
	_, span := c.tracer.Start(ctx, "market-cache.get")
	defer span.End()

	raw, err := c.rdb.Get(ctx, key(provider, queryKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		log.Printf("market cache: dropping corrupt entry %s: %v", key(provider, queryKey), err)
		c.rdb.Del(ctx, key(provider, queryKey))
		return nil, nil
	}
	return &e, nil
}

func (c *MarketCache) Put(ctx context.Context, e *Entry) error {
	_, span := c.tracer.Start(ctx, "market-cache.put")
	defer span.End()

	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(e.Provider, e.QueryKey), raw, e.TTL*staleGraceFactor).Err()
}

// Invalidate removes all entries for one provider, or every entry when
// provider is empty. Returns the number of evicted keys.
func (c *MarketCache) Invalidate(ctx context.Context, provider string) (int, error) {
	_, span := c.tracer.Start(ctx, "market-cache.invalidate")
	defer span.End()

	pattern := "market:*"
	if provider != "" {
		pattern = "market:" + provider + ":*"
	}

	keys, err := c.scanKeys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// CountByProvider reports how many entries each provider currently
// holds.
func (c *MarketCache) CountByProvider(ctx context.Context) (map[string]int, error) {
	_, span := c.tracer.Start(ctx, "market-cache.count-by-provider")
	defer span.End()

	keys, err := c.scanKeys(ctx, "market:*")
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, k := range keys {
		// market:<provider>:<querykey>
		parts := strings.SplitN(k, ":", 3)
		if len(parts) == 3 {
			counts[parts[1]]++
		}
	}
	return counts, nil
}

func (c *MarketCache) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
