package migration

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStatsPrefix namespaces migration stats keys in Redis.
const DefaultStatsPrefix = "zerogen:migration:"

// RedisStatsConfig holds Redis-specific configuration for the stats store.
type RedisStatsConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Prefix namespaces all stats keys
	Prefix string
}

// DefaultRedisStatsConfig returns a default stats store configuration.
func DefaultRedisStatsConfig() RedisStatsConfig {
	return RedisStatsConfig{
		Addr:   "localhost:6379",
		Prefix: DefaultStatsPrefix,
	}
}

// RedisStats is a StatsStore shared between processes through Redis.
type RedisStats struct {
	client *redis.Client
	prefix string
}

// NewRedisStats connects to Redis and verifies the connection.
func NewRedisStats(config RedisStatsConfig) (*RedisStats, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedisStatsWithClient(client, config.Prefix), nil
}

// NewRedisStatsWithClient wraps an existing client.
func NewRedisStatsWithClient(client *redis.Client, prefix string) *RedisStats {
	if prefix == "" {
		prefix = DefaultStatsPrefix
	}
	return &RedisStats{client: client, prefix: prefix}
}

func (r *RedisStats) RecordRun(ctx context.Context, path string, elapsed time.Duration, success bool) error {
	if path == "" {
		return errors.New("stats: path is required")
	}

	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, r.key(path, "runs"))
	pipe.IncrBy(ctx, r.key(path, "total_ms"), elapsed.Milliseconds())
	if !success {
		pipe.Incr(ctx, r.key(path, "errors"))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStats) PathStats(ctx context.Context, path string) (PathStats, error) {
	var stats PathStats
	var err error

	if stats.Runs, err = r.counter(ctx, path, "runs"); err != nil {
		return PathStats{}, err
	}
	if stats.Errors, err = r.counter(ctx, path, "errors"); err != nil {
		return PathStats{}, err
	}
	if stats.TotalMillis, err = r.counter(ctx, path, "total_ms"); err != nil {
		return PathStats{}, err
	}
	return stats, nil
}

// Reset removes all stats keys under the prefix.
func (r *RedisStats) Reset(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close closes the Redis connection.
func (r *RedisStats) Close() error {
	return r.client.Close()
}

func (r *RedisStats) key(path, field string) string {
	return r.prefix + path + ":" + field
}

func (r *RedisStats) counter(ctx context.Context, path, field string) (int64, error) {
	n, err := r.client.Get(ctx, r.key(path, field)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
