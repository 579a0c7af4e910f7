package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mining-reward-system/models"

	"github.com/redis/go-redis/v9"
)

const (
	leaderboardCachePrefix = "mining:leaderboard:"
	leaderboardCacheTTL    = 24 * time.Hour
)

// RedisSnapshotCache keeps the last good leaderboard per period in Redis so
// restarted or sibling instances can serve it before their first refresh.
type RedisSnapshotCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisSnapshotCache(client redis.UniversalClient) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, ttl: leaderboardCacheTTL}
}

func (c *RedisSnapshotCache) Save(ctx context.Context, snapshot LeaderboardSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode leaderboard snapshot: %w", err)
	}
	return c.client.Set(ctx, leaderboardCachePrefix+string(snapshot.Period), data, c.ttl).Err()
}

// Load returns nil without error when nothing is cached.
func (c *RedisSnapshotCache) Load(ctx context.Context, period models.LeaderboardPeriod) (*LeaderboardSnapshot, error) {
	data, err := c.client.Get(ctx, leaderboardCachePrefix+string(period)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshot LeaderboardSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode leaderboard snapshot: %w", err)
	}
	return &snapshot, nil
}
