// internal/cache/redis.go
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces room snapshots in a shared Redis.
const DefaultKeyPrefix = "marble:snapshot:"

// Options configures the Redis connection.
type Options struct {
	Addr string
	DB   int
}

// ConnectRedis dials Redis and pings it once.
func ConnectRedis(ctx context.Context, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: opts.Addr,
		DB:   opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// RedisSnapshots stores the latest snapshot of each room as a string key. A zero TTL
// keeps it until the room is destroyed.
type RedisSnapshots struct {
	Rdb    *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewRedisSnapshots(rdb *redis.Client, ttl time.Duration) *RedisSnapshots {
	return &RedisSnapshots{Rdb: rdb, Prefix: DefaultKeyPrefix, TTL: ttl}
}

func (r *RedisSnapshots) key(code string) string { return r.Prefix + code }

// Save overwrites the snapshot for code and refreshes its TTL.
func (r *RedisSnapshots) Save(ctx context.Context, code string, snapshot []byte) error {
	if err := r.Rdb.Set(ctx, r.key(code), snapshot, r.TTL).Err(); err != nil {
		return fmt.Errorf("failed to SET snapshot for room %s: %w", code, err)
	}
	return nil
}

// Load returns the snapshot for code. A missing key is not an error.
func (r *RedisSnapshots) Load(ctx context.Context, code string) ([]byte, bool, error) {
	b, err := r.Rdb.Get(ctx, r.key(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to GET snapshot for room %s: %w", code, err)
	}
	return b, true, nil
}

func (r *RedisSnapshots) Delete(ctx context.Context, code string) error {
	if err := r.Rdb.Del(ctx, r.key(code)).Err(); err != nil {
		return fmt.Errorf("failed to DEL snapshot for room %s: %w", code, err)
	}
	return nil
}
