// Package router decides which durable queue an envelope is appended to.
package router

import "github.com/hookbridge-systems/hookbridge/internal/model"

// Queue names are part of the operational contract with the queue engine;
// workers and the ingress dispatcher must agree on them.
const (
	// QueueEvents carries WhatsApp message events.
	QueueEvents = "events"

	// QueueInstagram and QueueMessenger carry social messaging events.
	QueueInstagram = "events_instagram"
	QueueMessenger = "events_messenger"

	// QueueNonMessage carries administrative events, channel-agnostic.
	QueueNonMessage = "non_message"
)

// MessageQueues lists the queues consumed by message workers.
var MessageQueues = []string{QueueEvents, QueueInstagram, QueueMessenger}

// Route returns the queue name for an envelope. Pure function: the append
// itself, and tolerating its at-least-once redelivery, is the caller's
// concern.
func Route(env *model.Envelope) string {
	if env.FieldType != model.FieldMessages {
		return QueueNonMessage
	}
	switch env.Channel {
	case model.ChannelInstagram:
		return QueueInstagram
	case model.ChannelMessenger:
		return QueueMessenger
	default:
		return QueueEvents
	}
}
