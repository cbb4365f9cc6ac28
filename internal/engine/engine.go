// Package engine abstracts the chat session transport. The lifecycle manager
// only sees the event and session surface defined here; the production
// implementation is backed by whatsmeow.
package engine

import "context"

// PairingEvent is emitted when the transport requires device pairing. Code is
// the raw pairing challenge to be rendered as a QR image.
type PairingEvent struct {
	Code string
}

// AuthenticatedEvent is emitted when the transport accepted the credentials.
type AuthenticatedEvent struct{}

// ConnectedEvent is emitted when the transport is fully operational.
type ConnectedEvent struct{}

// DisconnectedEvent is emitted on any loss of connection.
type DisconnectedEvent struct {
	Reason string
}

// MessageEvent is emitted for each inbound chat message.
type MessageEvent struct {
	Sender string
	Text   string
}

// EventHandler receives session events for one instance. The engine delivers
// events for a given instance serially, in emission order.
type EventHandler func(evt interface{})

// Session is the live capability of a started transport connection.
type Session interface {
	// SendText sends a text message to the given peer address.
	SendText(ctx context.Context, to string, text string) error
	// Disconnect tears the connection down.
	Disconnect()
}

// Engine starts transport sessions bound to instance ids.
type Engine interface {
	// StartSession binds a session to the instance id and begins connecting.
	// Connection progress arrives through handler out of band; the returned
	// Session is usable for sends once a ConnectedEvent was observed.
	StartSession(ctx context.Context, instanceID, number string, handler EventHandler) (Session, error)
}
