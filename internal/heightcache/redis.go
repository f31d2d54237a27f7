package heightcache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig points a Redis cache at one hash key.
type RedisConfig struct {
	Addr    string
	Key     string
	Timeout time.Duration
}

// Redis stores the mapping in a single hash so several hosts can share it.
type Redis struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

func redisKey(prefix, chain string) string {
	if prefix == "" {
		prefix = "defifetch"
	}
	return prefix + ":" + chain + ":height_timestamp"
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{client: client, key: cfg.Key, timeout: timeout}, nil
}

func (r *Redis) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func (r *Redis) Contains(height uint64) (bool, error) {
	ctx, cancel := r.ctx()
	defer cancel()
	return r.client.HExists(ctx, r.key, strconv.FormatUint(height, 10)).Result()
}

func (r *Redis) Get(height uint64) (uint64, bool, error) {
	ctx, cancel := r.ctx()
	defer cancel()
	val, err := r.client.HGet(ctx, r.key, strconv.FormatUint(height, 10)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	ts, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt timestamp for height %d: %w", height, err)
	}
	return ts, true, nil
}

func (r *Redis) Set(height, timestamp uint64) error {
	ctx, cancel := r.ctx()
	defer cancel()
	return r.client.HSet(ctx, r.key, strconv.FormatUint(height, 10), strconv.FormatUint(timestamp, 10)).Err()
}

func (r *Redis) Save() error {
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
