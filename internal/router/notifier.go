// Package router provides an in-process pub/sub bus the metadata
// coordinator uses to announce cluster-visible events — new Locations,
// widened schemas, and node warm-up completion — to interested actors
// without those actors polling the coordinator directly.
package router

import (
	"sync"
	"time"
)

// NotificationType represents the kind of cluster event being announced.
type NotificationType int

const (
	// LocationAdded announces that a new Location became available
	// for writes and reads on a metric.
	LocationAdded NotificationType = iota
	// SchemaUpdated announces that a metric's Schema was widened.
	SchemaUpdated
	// NodeWarmedUp announces that a node finished replaying its
	// metadata and is ready to serve writes and reads.
	NodeWarmedUp
)

// Notification represents a single cluster event.
type Notification struct {
	Type      NotificationType
	Metric    string
	Node      string
	Timestamp int64
}

// Notifier provides an in-process pub/sub notification bus.
type Notifier struct {
	subscribers sync.Map
	bufferSize  int
}

// NewNotifier creates a new notifier instance.
func NewNotifier(bufferSize int) *Notifier {
	return &Notifier{
		bufferSize: bufferSize,
	}
}

// Publish sends a notification to all subscribers.
// Non-blocking: if a subscriber's channel is full, the notification is dropped.
func (n *Notifier) Publish(notif Notification) {
	n.subscribers.Range(func(key, value interface{}) bool {
		sub := value.(*Subscriber)
		if n.matchesFilter(sub, notif.Metric) {
			select {
			case sub.Ch <- notif:
			default:
				// Channel full - drop notification, do NOT block
			}
		}
		return true
	})
}

// Subscribe adds a new subscriber to the notifier with a custom ID.
// filters, when non-empty, restrict delivery to notifications whose
// Metric has one of the given prefixes.
func (n *Notifier) Subscribe(id string, filters []string) *Subscriber {
	ch := make(chan Notification, n.bufferSize)
	sub := &Subscriber{
		ID:      id,
		Filters: filters,
		Ch:      ch,
	}
	n.subscribers.Store(sub.ID, sub)
	return sub
}

// SubscribeAutoID adds a new subscriber to the notifier with an auto-generated ID.
func (n *Notifier) SubscribeAutoID(filters ...string) chan Notification {
	id := generateSubscriberID()
	ch := make(chan Notification, n.bufferSize)
	sub := &Subscriber{
		ID:      id,
		Filters: filters,
		Ch:      ch,
	}
	n.subscribers.Store(sub.ID, sub)
	return ch
}

// Unsubscribe removes a subscriber from the notifier and closes their channel.
func (n *Notifier) Unsubscribe(subID string) {
	if value, ok := n.subscribers.LoadAndDelete(subID); ok {
		sub := value.(*Subscriber)
		close(sub.Ch)
	}
}

// matchesFilter checks if the notification matches the subscriber's filters.
func (n *Notifier) matchesFilter(sub *Subscriber, metric string) bool {
	if len(sub.Filters) == 0 {
		return true // No filters - receive all notifications
	}
	for _, filter := range sub.Filters {
		if len(filter) == 0 {
			return true
		}
		if len(metric) >= len(filter) && metric[:len(filter)] == filter {
			return true
		}
	}
	return false
}

// Subscriber represents a notification subscriber.
type Subscriber struct {
	ID      string
	Filters []string
	Ch      chan Notification
}

// generateSubscriberID generates a unique subscriber ID.
func generateSubscriberID() string {
	return "sub_" + time.Now().Format("20060102150405000000")
}
