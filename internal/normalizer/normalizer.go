// Package normalizer turns heterogeneous provider webhook payloads into
// canonical event envelopes. Classification happens once here; nothing
// downstream inspects payload shapes to decide what an event is.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hookbridge-systems/hookbridge/internal/model"
)

// ErrMissingObject is returned when a payload lacks the top-level object
// discriminator needed to classify the channel. Such payloads are logged
// and dropped, never fatal.
var ErrMissingObject = errors.New("payload missing object discriminator")

// Metadata carries the transport attributes captured at ingress alongside
// the raw body.
type Metadata struct {
	Signature   string
	ContentType string
	ReceivedAt  time.Time
}

// Normalize converts one raw provider payload plus transport metadata into
// a canonical envelope. Pure transformation: no I/O, no side effects.
func Normalize(raw []byte, meta Metadata) (*model.Envelope, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode provider payload: %w", err)
	}

	object, ok := payload["object"].(string)
	if !ok || object == "" {
		return nil, ErrMissingObject
	}

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	receivedAt := meta.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	return &model.Envelope{
		ID:          uuid.NewString(),
		Channel:     classifyChannel(object),
		AccountID:   entryID(payload),
		FieldType:   classifyField(payload),
		Raw:         raw,
		Signature:   meta.Signature,
		ContentType: contentType,
		ReceivedAt:  receivedAt,
	}, nil
}

// NormalizeBare classifies a stored bare payload. The administrative
// queue keeps provider payloads exactly as received, and some account
// lifecycle events arrive without the object discriminator, so unlike
// Normalize a missing object is not an error: field type and account id
// come from the entry structure alone.
func NormalizeBare(raw []byte) (*model.Envelope, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode provider payload: %w", err)
	}

	object, _ := payload["object"].(string)

	return &model.Envelope{
		ID:          uuid.NewString(),
		Channel:     classifyChannel(object),
		AccountID:   entryID(payload),
		FieldType:   classifyField(payload),
		Raw:         raw,
		ContentType: "application/json",
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

// classifyChannel maps the object discriminator onto a channel variant.
// Meta sends "page" for Messenger pages; anything that is neither the
// WhatsApp business marker nor instagram is treated as messenger.
func classifyChannel(object string) model.Channel {
	switch object {
	case "whatsapp_business_account":
		return model.ChannelWhatsApp
	case "instagram":
		return model.ChannelInstagram
	default:
		return model.ChannelMessenger
	}
}

// classifyField derives the field type from the first entry's change list,
// or from the presence of a messaging array for messaging-style payloads.
func classifyField(payload map[string]interface{}) model.FieldType {
	entry := firstEntry(payload)
	if entry == nil {
		return model.FieldUnknown
	}
	if _, ok := entry["messaging"].([]interface{}); ok {
		return model.FieldMessages
	}
	change := firstChange(entry)
	if change == nil {
		return model.FieldUnknown
	}
	field, _ := change["field"].(string)
	switch t := model.FieldType(field); t {
	case model.FieldMessages, model.FieldAccountUpdate, model.FieldFeed,
		model.FieldLikes, model.FieldPosts, model.FieldMedia, model.FieldComments:
		return t
	}
	return model.FieldUnknown
}

// ExtractValue returns the event's payload value for structured JSON
// delivery: the first change's value when present, otherwise the first
// entry itself (messaging-style payloads carry no change list).
func ExtractValue(env *model.Envelope) (map[string]interface{}, error) {
	payload, err := env.Parsed()
	if err != nil {
		return nil, fmt.Errorf("decode envelope payload: %w", err)
	}
	entry := firstEntry(payload)
	if entry == nil {
		return nil, fmt.Errorf("payload has no entry list")
	}
	if change := firstChange(entry); change != nil {
		if value, ok := change["value"].(map[string]interface{}); ok {
			return value, nil
		}
	}
	return entry, nil
}

// NormalizeMessages flattens the messaging events of a social-channel
// envelope into per-message records. Events without text are skipped.
func NormalizeMessages(env *model.Envelope) ([]model.Message, error) {
	payload, err := env.Parsed()
	if err != nil {
		return nil, fmt.Errorf("decode envelope payload: %w", err)
	}

	entries, _ := payload["entry"].([]interface{})
	var messages []model.Message
	for _, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		accountID := env.AccountID
		if accountID == "" {
			accountID, _ = entry["id"].(string)
		}
		for _, ev := range messagingEvents(entry) {
			text := eventText(ev)
			if text == "" {
				continue
			}
			messages = append(messages, model.Message{
				Channel:   env.Channel,
				AccountID: accountID,
				SenderID:  senderID(ev),
				Text:      text,
				Timestamp: eventTimestamp(ev),
			})
		}
	}
	return messages, nil
}

// messagingEvents returns the entry's messaging array, falling back to the
// messages list inside the first change for change-style payloads.
func messagingEvents(entry map[string]interface{}) []map[string]interface{} {
	raw, ok := entry["messaging"].([]interface{})
	if !ok {
		change := firstChange(entry)
		if change == nil {
			return nil
		}
		value, _ := change["value"].(map[string]interface{})
		if value == nil {
			return nil
		}
		raw, ok = value["messages"].([]interface{})
		if !ok {
			return nil
		}
	}
	events := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if ev, ok := item.(map[string]interface{}); ok {
			events = append(events, ev)
		}
	}
	return events
}

func eventText(ev map[string]interface{}) string {
	if msg, ok := ev["message"].(map[string]interface{}); ok {
		if text, ok := msg["text"].(string); ok {
			return text
		}
	}
	text, _ := ev["text"].(string)
	return text
}

func senderID(ev map[string]interface{}) string {
	if sender, ok := ev["sender"].(map[string]interface{}); ok {
		if id, ok := sender["id"].(string); ok {
			return id
		}
	}
	if from, ok := ev["from"].(map[string]interface{}); ok {
		if id, ok := from["id"].(string); ok {
			return id
		}
	}
	return ""
}

func eventTimestamp(ev map[string]interface{}) int64 {
	for _, key := range []string{"timestamp", "time"} {
		if ts, ok := numeric(ev[key]); ok {
			return ts
		}
	}
	if msg, ok := ev["message"].(map[string]interface{}); ok {
		if ts, ok := numeric(msg["timestamp"]); ok {
			return ts
		}
	}
	return 0
}

// numeric accepts the number-or-string timestamps providers send.
func numeric(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func firstEntry(payload map[string]interface{}) map[string]interface{} {
	entries, ok := payload["entry"].([]interface{})
	if !ok || len(entries) == 0 {
		return nil
	}
	entry, _ := entries[0].(map[string]interface{})
	return entry
}

func firstChange(entry map[string]interface{}) map[string]interface{} {
	changes, ok := entry["changes"].([]interface{})
	if !ok || len(changes) == 0 {
		return nil
	}
	change, _ := changes[0].(map[string]interface{})
	return change
}

func entryID(payload map[string]interface{}) string {
	entry := firstEntry(payload)
	if entry == nil {
		return ""
	}
	id, _ := entry["id"].(string)
	return id
}
