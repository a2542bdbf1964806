package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultDialTimeout bounds the initial connection only, not individual calls.
const DefaultDialTimeout = 5 * time.Second

// RedisStore implements Store on top of a single Redis connection pool.
// If the URL is empty or invalid, every operation returns ErrUnavailable.
type RedisStore struct {
	client *redis.Client
	cause  error
}

// NewRedisStore creates a Redis-backed store. It does not dial; call Connect
// to verify the server is reachable.
func NewRedisStore(url string, dialTimeout time.Duration) *RedisStore {
	if url == "" {
		return &RedisStore{cause: errors.New("redis url not configured")}
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return &RedisStore{cause: fmt.Errorf("parse redis url: %w", err)}
	}
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	opt.DialTimeout = dialTimeout
	return &RedisStore{client: redis.NewClient(opt)}
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	if client == nil {
		return &RedisStore{cause: errors.New("redis client is nil")}
	}
	return &RedisStore{client: client}
}

// Connect pings the server. On failure the store is closed and stays
// unavailable for the rest of its life.
func (r *RedisStore) Connect(ctx context.Context) error {
	if err := r.ensure(); err != nil {
		return err
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		_ = r.client.Close()
		r.client = nil
		r.cause = err
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisStore) ensure() error {
	if r == nil {
		return ErrUnavailable
	}
	if r.client == nil {
		if r.cause != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, r.cause)
		}
		return ErrUnavailable
	}
	return nil
}

func (r *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	if err := r.ensure(); err != nil {
		return 0, err
	}
	return r.client.Incr(ctx, key).Result()
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, mode WriteMode) (bool, error) {
	if err := r.ensure(); err != nil {
		return false, err
	}
	if ttl < 0 {
		ttl = NoExpiry
	}
	switch mode {
	case WriteIfAbsent:
		return r.client.SetNX(ctx, key, value, ttl).Result()
	case WriteIfPresent:
		return r.client.SetXX(ctx, key, value, ttl).Result()
	default:
		if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
			return false, err
		}
		return true, nil
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := r.ensure(); err != nil {
		return nil, err
	}
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (r *RedisStore) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	if err := r.ensure(); err != nil {
		return nil, 0, err
	}
	return r.client.Scan(ctx, cursor, match, count).Result()
}

func (r *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if err := r.ensure(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return r.client.Del(ctx, keys...).Result()
}

var delIfEqual = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *RedisStore) DelIfEqual(ctx context.Context, key string, value []byte) (bool, error) {
	if err := r.ensure(); err != nil {
		return false, err
	}
	n, err := delIfEqual.Run(ctx, r.client, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.ensure(); err != nil {
		return err
	}
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
