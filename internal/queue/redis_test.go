package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisQueueFromClient(client)
}

func TestRedisQueueFIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "events", []byte("first")))
	require.NoError(t, q.Push(ctx, "events", []byte("second")))
	require.NoError(t, q.Push(ctx, "events", []byte("third")))

	n, err := q.Len(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, want := range []string{"first", "second", "third"} {
		payload, err := q.Pop(ctx, "events", 0)
		require.NoError(t, err)
		assert.Equal(t, want, string(payload))
	}
}

func TestRedisQueuePopEmpty(t *testing.T) {
	q := newTestQueue(t)

	payload, err := q.Pop(context.Background(), "events", 0)
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestRedisQueueIsolation(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "events", []byte("wa")))
	require.NoError(t, q.Push(ctx, "events_instagram", []byte("ig")))

	payload, err := q.Pop(ctx, "events_instagram", 0)
	require.NoError(t, err)
	assert.Equal(t, "ig", string(payload))

	n, err := q.Len(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisQueueLenEmpty(t *testing.T) {
	q := newTestQueue(t)

	n, err := q.Len(context.Background(), "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}
