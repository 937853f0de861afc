// Package subscribe implements SubscriptionEngine: the subscribe/
// unsubscribe lifecycle, update ingestion queue, and dispatcher loop that
// fans signal changes out to transports and an external publisher.
package subscribe

import (
	"time"

	"vssbroker/internal/vss/authz"
	"vssbroker/internal/vss/pathaddr"
)

// Server is the inbound-transport collaborator: delivery of a formatted
// notification to a connection by id. Grounded on the teacher's
// sdk/forward connSender abstraction, generalized from a single tunnel
// connection to a registry of many.
type Server interface {
	SendToConnection(connectionID uint64, message []byte) error
}

// Publisher is the outbound external-bus collaborator (e.g. an MQTT or
// Redis mirror) invoked on every delivered change.
type Publisher interface {
	SendPathValue(path string, value any) error
}

// UpdateEvent is the internal message carrying one signal change from
// set_signal to the dispatcher.
type UpdateEvent struct {
	SubscriptionID string
	ChannelID      uint64
	Path           pathaddr.PathAddress
	Attribute      string
	Datatype       string
	Value          any
	Ts             time.Time
}

// Subscriber is one active interest of a channel in a (path, attribute)
// pair, holding the channel's scope snapshot at subscribe time for
// re-check on delivery (spec.md §4.5's Subscriber.channelSnapshot).
type Subscriber struct {
	ChannelID uint64
	Path      pathaddr.PathAddress
	Attribute string
	Datatype  string
	Snapshot  authz.Snapshot
}
