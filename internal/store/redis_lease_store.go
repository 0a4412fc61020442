package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only when it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLeaseStore implements LeaseStore for Redis
type RedisLeaseStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisLeaseStore creates a new Redis lease store
func NewRedisLeaseStore(host string, port int, password string, db, poolSize int, logger *zap.Logger) (*RedisLeaseStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLeaseStore{
		client: client,
		prefix: "dmserv:lease:",
		logger: logger,
	}, nil
}

// Acquire sets the lease key if absent
func (s *RedisLeaseStore) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes the lease key if it still holds token
func (s *RedisLeaseStore) Release(ctx context.Context, key, token string) error {
	deleted, err := releaseScript.Run(ctx, s.client, []string{s.prefix + key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	if deleted == 0 {
		s.logger.Warn("Lease expired before release", zap.String("key", key))
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisLeaseStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisLeaseStore) Close() error {
	return s.client.Close()
}
