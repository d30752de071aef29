// Package redis provides a Redis-backed migration lock so that only one
// migration runner at a time applies changes against a shared database.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL   = 5 * time.Minute
	defaultRetry = 250 * time.Millisecond
	lockValue    = "locked"
	keyPrefix    = "mig:lock:"
)

// Options holds configuration for the Redis lock client.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // lock expiry; guards against crashed holders
	Retry    time.Duration // polling interval while waiting for the lock
}

// Lock implements the migration runner's Locker using Redis SETNX.
type Lock struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// New creates a Redis lock client and verifies connectivity. The returned
// cleanup function closes the underlying client.
func New(opts Options) (*Lock, func(), error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	retry := opts.Retry
	if retry <= 0 {
		retry = defaultRetry
	}

	cleanup := func() {
		if err := rdb.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
	}
	return &Lock{client: rdb, ttl: ttl, retry: retry}, cleanup, nil
}

// Acquire blocks until the lock for key is obtained or ctx is done. The
// returned release function deletes the lock key.
func (l *Lock) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := keyPrefix + key
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, lockKey, lockValue, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis SetNX error for lock key %q: %w", lockKey, err)
		}
		if acquired {
			release := func() {
				if err := l.client.Del(context.Background(), lockKey).Err(); err != nil {
					log.Printf("Error releasing lock %q: %v", lockKey, err)
				}
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %q: %w", lockKey, ctx.Err())
		case <-ticker.C:
		}
	}
}
