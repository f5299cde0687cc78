// Package queue defines the durable queue contract between the ingress
// dispatcher and the workers, plus its Redis implementation.
package queue

import (
	"context"
	"time"
)

// Queue is a named FIFO work queue with at-least-once semantics: a pushed
// item survives engine restarts, and each successful pop delivers an item
// to exactly one consumer. The pop primitive is the only coordination
// between workers consuming the same queue.
type Queue interface {
	// Push appends a payload to the named queue.
	Push(ctx context.Context, name string, payload []byte) error

	// Pop removes the oldest item from the named queue. A positive timeout
	// blocks until an item arrives or the timeout elapses; zero performs a
	// non-blocking pop. An empty queue yields (nil, nil).
	Pop(ctx context.Context, name string, timeout time.Duration) ([]byte, error)

	// Len reports the current depth of the named queue.
	Len(ctx context.Context, name string) (int64, error)

	// Close releases the underlying connection.
	Close() error
}
