package model

import (
	"encoding/json"
	"time"
)

// Channel identifies the messaging-provider surface an event arrived on.
// It is classified exactly once, at ingress, so the rest of the pipeline
// never has to sniff payload shapes again.
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelInstagram Channel = "instagram"
	ChannelMessenger Channel = "messenger"
)

// FieldType classifies the provider change that produced an event.
type FieldType string

const (
	FieldMessages      FieldType = "messages"
	FieldAccountUpdate FieldType = "account_update"
	FieldFeed          FieldType = "feed"
	FieldLikes         FieldType = "likes"
	FieldPosts         FieldType = "posts"
	FieldMedia         FieldType = "media"
	FieldComments      FieldType = "comments"
	FieldUnknown       FieldType = "unknown"
)

// EventType is the delivery category derived from a message envelope's
// contents. Destinations subscribe to event types individually.
type EventType string

const (
	EventMessageReceived  EventType = "message_received"
	EventMessageSent      EventType = "message_sent"
	EventMessageDelivered EventType = "message_delivered"
	EventMessageRead      EventType = "message_read"
)

// Envelope is the canonical representation of one inbound provider event
// plus its transport metadata. It is created once at ingress, serialized
// into a queue, deserialized once by a worker, and never mutated.
//
// Raw holds the exact bytes received on the wire. Signature-verifying
// destinations depend on byte-exact fidelity, so Raw must never be
// re-serialized on the passthrough path.
type Envelope struct {
	ID          string    `json:"id"`
	Channel     Channel   `json:"channel"`
	AccountID   string    `json:"account_id,omitempty"`
	FieldType   FieldType `json:"field_type"`
	Raw         []byte    `json:"raw"`
	Signature   string    `json:"signature,omitempty"`
	ContentType string    `json:"content_type"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Parsed decodes the raw provider payload into a generic tree. The
// envelope itself stays untouched; callers own the returned value.
func (e *Envelope) Parsed() (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(e.Raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Message is a flattened messaging event extracted from a social-channel
// envelope.
type Message struct {
	Channel   Channel `json:"channel"`
	AccountID string  `json:"account_id"`
	SenderID  string  `json:"sender_id"`
	Text      string  `json:"text"`
	Timestamp int64   `json:"timestamp,omitempty"`
}
