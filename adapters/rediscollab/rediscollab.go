// Package rediscollab provides Redis-backed collaborators for the
// built-in handlers: cache eviction over the console's read cache and
// daily analytics counters stored as per-day hashes.
package rediscollab

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Cache evicts keys from a Redis-backed read cache.
type Cache struct {
	client redis.UniversalClient
}

// NewCache creates a Redis cache evictor.
func NewCache(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

// Evict removes exact keys.
func (c *Cache) Evict(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	return nil
}

// EvictPrefix removes every key under prefix using cursor-based SCAN so
// large keyspaces never block the server.
func (c *Cache) EvictPrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			return fmt.Errorf("cache scan %q: %w", prefix, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache evict prefix %q: %w", prefix, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Counters stores daily analytics counters as one Redis hash per day,
// keyed "backbone:counters:<day>", with HINCRBY per counter.
type Counters struct {
	client redis.UniversalClient
}

// NewCounters creates a Redis counter sink.
func NewCounters(client redis.UniversalClient) *Counters {
	return &Counters{client: client}
}

// Incr adds delta to the counter inside the day bucket.
func (c *Counters) Incr(ctx context.Context, day, counter string, delta int64) error {
	if err := c.client.HIncrBy(ctx, dayKey(day), counter, delta).Err(); err != nil {
		return fmt.Errorf("incr counter %s/%s: %w", day, counter, err)
	}
	return nil
}

// Day returns every counter recorded for a day.
func (c *Counters) Day(ctx context.Context, day string) (map[string]int64, error) {
	raw, err := c.client.HGetAll(ctx, dayKey(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("read counters %s: %w", day, err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

func dayKey(day string) string {
	return "backbone:counters:" + day
}
