// Package cards looks up card data from an external card database behind
// an explicitly constructed redis cache. The cache owns all of its TTL and
// capacity bookkeeping: entries expire via redis TTLs, and a recency index
// (sorted set scored by an injectable clock) evicts the oldest entries once
// the configured capacity is exceeded.
package cards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Info is the card data the rest of the system needs.
type Info struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Cost     int    `json:"cost"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Source retrieves card data from the external card database.
type Source interface {
	FetchCard(ctx context.Context, cardID string) (Info, error)
}

var ErrCardNotFound = errors.New("card not found")

// Cache is a read-through cache in front of a Source.
type Cache struct {
	client   *redis.Client
	source   Source
	prefix   string
	ttl      time.Duration
	capacity int64
	now      func() time.Time
}

// NewCache builds a cache. capacity <= 0 disables the recency-based
// eviction; now is injectable so tests control recency scoring.
func NewCache(client *redis.Client, source Source, prefix string, ttl time.Duration, capacity int64, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		client:   client,
		source:   source,
		prefix:   prefix,
		ttl:      ttl,
		capacity: capacity,
		now:      now,
	}
}

func (c *Cache) key(cardID string) string {
	return c.prefix + "card:" + cardID
}

func (c *Cache) recencyKey() string {
	return c.prefix + "recency"
}

// Get returns the card, from redis when cached, from the source otherwise.
func (c *Cache) Get(ctx context.Context, cardID string) (Info, error) {
	raw, err := c.client.Get(ctx, c.key(cardID)).Result()
	if err == nil {
		var info Info
		if jsonErr := json.Unmarshal([]byte(raw), &info); jsonErr == nil {
			c.touch(ctx, cardID)
			return info, nil
		}
		// Unreadable cache entry: fall through to the source.
	} else if err != redis.Nil {
		return Info{}, fmt.Errorf("read card cache: %w", err)
	}

	info, err := c.source.FetchCard(ctx, cardID)
	if err != nil {
		return Info{}, err
	}
	if err := c.put(ctx, info); err != nil {
		return Info{}, err
	}
	return info, nil
}

func (c *Cache) put(ctx context.Context, info Info) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
	}
	if err := c.client.Set(ctx, c.key(info.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("write card cache: %w", err)
	}
	c.touch(ctx, info.ID)
	return c.trim(ctx)
}

func (c *Cache) touch(ctx context.Context, cardID string) {
	score := float64(c.now().UnixNano())
	c.client.ZAdd(ctx, c.recencyKey(), redis.Z{Score: score, Member: cardID})
}

// trim evicts least-recently-used entries beyond capacity.
func (c *Cache) trim(ctx context.Context) error {
	if c.capacity <= 0 {
		return nil
	}
	size, err := c.client.ZCard(ctx, c.recencyKey()).Result()
	if err != nil {
		return fmt.Errorf("read cache size: %w", err)
	}
	excess := size - c.capacity
	if excess <= 0 {
		return nil
	}
	oldest, err := c.client.ZRange(ctx, c.recencyKey(), 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("read oldest cache entries: %w", err)
	}
	for _, cardID := range oldest {
		if err := c.client.Del(ctx, c.key(cardID)).Err(); err != nil {
			return fmt.Errorf("evict card %s: %w", cardID, err)
		}
	}
	if err := c.client.ZRem(ctx, c.recencyKey(), toMembers(oldest)...).Err(); err != nil {
		return fmt.Errorf("trim recency index: %w", err)
	}
	return nil
}

func toMembers(ids []string) []interface{} {
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	return members
}
