package shrink

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configures a Redis-backed Tracker.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// redisTracker implements Tracker with two Redis keys.
type redisTracker struct {
	client *redis.Client
	prefix string
}

// NewRedisTracker connects to Redis and returns a Tracker using keys under opts.Prefix.
func NewRedisTracker(ctx context.Context, opts RedisOptions) (Tracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return newRedisTracker(client, opts.Prefix), nil
}

func newRedisTracker(client *redis.Client, prefix string) *redisTracker {
	if prefix == "" {
		prefix = "shrink"
	}
	return &redisTracker{client: client, prefix: prefix}
}

func (t *redisTracker) resumeKey() string  { return t.prefix + ":resume_id" }
func (t *redisTracker) stoppedKey() string { return t.prefix + ":stopped" }

func (t *redisTracker) Advance(ctx context.Context, id uint64) error {
	return t.client.Set(ctx, t.resumeKey(), strconv.FormatUint(id, 10), 0).Err()
}

func (t *redisTracker) Reset(ctx context.Context) error {
	_, err := t.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, t.resumeKey(), "0", 0)
		p.Del(ctx, t.stoppedKey())
		return nil
	})
	return err
}

func (t *redisTracker) Stop(ctx context.Context) error {
	return t.client.Set(ctx, t.stoppedKey(), "1", 0).Err()
}

func (t *redisTracker) Resume(ctx context.Context) error {
	return t.client.Del(ctx, t.stoppedKey()).Err()
}

func (t *redisTracker) Current(ctx context.Context) (uint64, error) {
	v, err := t.client.Get(ctx, t.resumeKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid resume id %q: %w", v, err)
	}
	return id, nil
}

func (t *redisTracker) State(ctx context.Context) (Cursor, error) {
	id, err := t.Current(ctx)
	if err != nil {
		return Cursor{}, err
	}
	n, err := t.client.Exists(ctx, t.stoppedKey()).Result()
	if err != nil {
		return Cursor{}, err
	}
	return Cursor{ResumeID: id, Stopped: n > 0}, nil
}

// Close releases the Redis connection.
func (t *redisTracker) Close() error {
	return t.client.Close()
}
