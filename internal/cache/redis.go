package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "aqi_current:"

// RedisTier shares current readings between processes through Redis.
type RedisTier struct {
	redis *redis.Client
}

// NewRedisTier creates a shared tier over redisClient.
func NewRedisTier(redisClient *redis.Client) *RedisTier {
	return &RedisTier{redis: redisClient}
}

// Get returns the entry for key; a missing key is not an error.
func (t *RedisTier) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := t.redis.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to get current reading from Redis: %w", err)
	}

	var e Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return Entry{}, false, fmt.Errorf("failed to unmarshal cached reading: %w", err)
	}
	return e, true, nil
}

// Set stores e until its expiry.
func (t *RedisTier) Set(ctx context.Context, key string, e Entry) error {
	ttl := time.Until(e.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal cached reading: %w", err)
	}
	if err := t.redis.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set current reading in Redis: %w", err)
	}
	return nil
}
