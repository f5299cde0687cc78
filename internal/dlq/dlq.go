// Package dlq provides an optional dead-letter sink for queue items the
// pipeline drops. Delivery stays best-effort either way; the sink only
// keeps dropped items inspectable instead of log-only.
package dlq

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one dropped queue item plus the failure that dropped it.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Queue     string    `json:"queue"`
	Payload   []byte    `json:"payload"`
	Error     string    `json:"error,omitempty"`
	Reason    string    `json:"reason"`
}

// Writer records dropped queue items.
type Writer interface {
	Write(ctx context.Context, queue string, payload []byte, cause error, reason string) error
}

// Noop discards entries. Used when the dead letter sink is disabled,
// which preserves the original drop-and-log semantics.
type Noop struct{}

func (Noop) Write(ctx context.Context, queue string, payload []byte, cause error, reason string) error {
	return nil
}

func marshalEntry(queue string, payload []byte, cause error, reason string) ([]byte, error) {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Queue:     queue,
		Payload:   payload,
		Reason:    reason,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	return json.Marshal(entry)
}
