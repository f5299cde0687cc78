package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue on Redis lists. LPUSH/BRPOP keeps FIFO order
// per queue and hands each item to exactly one consumer per pop.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(redisURL string, poolSize int) (*RedisQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if poolSize > 0 {
		opt.PoolSize = poolSize
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisQueue{client: client}, nil
}

// NewRedisQueueFromClient wraps an already-constructed client. Tests use
// this to back the queue with miniredis.
func NewRedisQueueFromClient(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Push appends the payload to the named list.
func (q *RedisQueue) Push(ctx context.Context, name string, payload []byte) error {
	if err := q.client.LPush(ctx, name, payload).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", name, err)
	}
	return nil
}

// Pop removes the oldest item. BRPOP when timeout is positive, RPOP
// otherwise; redis.Nil maps to the empty (nil, nil) result.
func (q *RedisQueue) Pop(ctx context.Context, name string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		res, err := q.client.BRPop(ctx, timeout, name).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("blocking pop from %s: %w", name, err)
		}
		// BRPOP returns [key, value].
		return []byte(res[1]), nil
	}

	res, err := q.client.RPop(ctx, name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop from %s: %w", name, err)
	}
	return []byte(res), nil
}

// Len reports the list length.
func (q *RedisQueue) Len(ctx context.Context, name string) (int64, error) {
	n, err := q.client.LLen(ctx, name).Result()
	if err != nil {
		return 0, fmt.Errorf("len of %s: %w", name, err)
	}
	return n, nil
}

// Close releases the client connection pool.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
