// ABOUTME: Tagged lifecycle events emitted by a tenant's provider connection
// ABOUTME: A single dispatch loop per tenant consumes these in arrival order

package session

import "time"

// EventType identifies a connection lifecycle event.
type EventType int

const (
	// EventPairing carries a freshly issued pairing code to be scanned by the operator.
	EventPairing EventType = iota
	// EventConnected signals the connection is established and authenticated.
	EventConnected
	// EventDisconnected signals the connection dropped; the handle is dead.
	EventDisconnected
	// EventMessage carries an inbound chat message.
	EventMessage
)

// Event is a single lifecycle or message event from a transport.
// Exactly one of the payload fields is meaningful, selected by Type.
type Event struct {
	Type        EventType
	PairingCode string          // EventPairing
	Reason      string          // EventDisconnected
	Message     *InboundMessage // EventMessage
}

// InboundMessage is a chat message received over a tenant's connection.
type InboundMessage struct {
	// ProviderMessageID is the provider's unique message identifier,
	// used for deduplication across redeliveries.
	ProviderMessageID string
	// RemoteJID is the sender's messaging address.
	RemoteJID string
	// SenderName is the contact's display name, if the provider knows it.
	SenderName string
	Body       string
	// FromMe marks messages echoed back for sends from this account.
	FromMe    bool
	Timestamp time.Time
}
