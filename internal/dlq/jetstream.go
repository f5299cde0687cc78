package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// subjectPrefix groups dead letter subjects as relay.dlq.<reason>.
const subjectPrefix = "relay.dlq"

// JetStream publishes dropped items to a NATS JetStream stream so they
// survive process restarts and are visible across worker instances.
type JetStream struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewJetStream connects to NATS and creates or updates the dead letter
// stream.
func NewJetStream(ctx context.Context, natsURL, streamName string) (*JetStream, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ".>"},
		MaxAge:    7 * 24 * time.Hour,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create dlq stream %s: %w", streamName, err)
	}

	return &JetStream{conn: conn, js: js}, nil
}

// Write publishes one dropped item under relay.dlq.<reason>.
func (q *JetStream) Write(ctx context.Context, queue string, payload []byte, cause error, reason string) error {
	data, err := marshalEntry(queue, payload, cause, reason)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", subjectPrefix, reason)
	if _, err := q.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	return nil
}

// Close drains the NATS connection.
func (q *JetStream) Close() error {
	return q.conn.Drain()
}
