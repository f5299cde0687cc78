package model

// Account is a tenant's registered messaging-provider identity, the unit
// of locking and throttling.
type Account struct {
	AccountID    string
	UserID       string
	Status       string
	IsActive     bool
	IsLocked     bool
	MessagesSent int64
}

// Deliverable reports whether the account may receive fan-out delivery.
// Locked or inactive accounts never do.
func (a *Account) Deliverable() bool {
	return a != nil && a.IsActive && !a.IsLocked
}

// Destination is a tenant-registered URL subscribed to event categories
// for one account. One row per (account, url) pair.
type Destination struct {
	URL              string
	MessageReceived  bool
	MessageSent      bool
	MessageDelivered bool
	MessageRead      bool
}

// Wants reports whether the destination subscribes to the given event type.
func (d Destination) Wants(t EventType) bool {
	switch t {
	case EventMessageReceived:
		return d.MessageReceived
	case EventMessageSent:
		return d.MessageSent
	case EventMessageDelivered:
		return d.MessageDelivered
	case EventMessageRead:
		return d.MessageRead
	default:
		return false
	}
}

// User owns accounts and carries the subscription plan that usage
// ceilings are keyed on.
type User struct {
	UserID             string
	SubscriptionPlanID string
}

// ChargeResult is the post-increment usage state returned by the store
// after a billable message is recorded.
type ChargeResult struct {
	MessagesSent int64
	Locked       bool
}
