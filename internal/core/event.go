package core

import (
	"encoding/json"

	"github.com/vmarkelov/talkwire-server/internal/store"
)

// EventKind is a notification the core emits to sessions.
type EventKind int

const (
	// EventUserOnline notifies that a user gained a live connection.
	EventUserOnline EventKind = iota
	// EventUserOffline notifies that a user's registered connection closed.
	EventUserOffline
	// EventPrivateMessage delivers a message to its recipient.
	EventPrivateMessage
	// EventMessageSent acknowledges a persisted message to its sender.
	EventMessageSent
	// EventMessageDelivered confirms delivery to both participants.
	EventMessageDelivered
	// EventMessagesRead notifies a sender that the recipient read their messages.
	EventMessagesRead
	// EventIncomingCall relays a call offer to the callee.
	EventIncomingCall
	// EventCallAnswered relays an answer back to the caller.
	EventCallAnswered
	// EventCallRejected relays a rejection back to the caller.
	EventCallRejected
	// EventCallEnded tells the other side the call is over.
	EventCallEnded
	// EventError notifies a session about a domain error.
	EventError
)

// Event is the tagged union sent to sessions. Exactly one payload field
// is set for a given kind.
type Event struct {
	Kind      EventKind
	UserID    int64          // online/offline
	Message   *store.Message // private_message, message_sent
	MessageID string         // message_delivered
	Read      *ReadReceipt   // messages_read
	Call      *CallSignal    // call relay events
	Error     *CoreError
}

// ReadReceipt identifies the direction whose messages were read.
type ReadReceipt struct {
	From int64
	To   int64
}

// CallSignal carries an opaque signaling payload between two sessions.
// The core relays Signal verbatim and never inspects or persists it.
type CallSignal struct {
	From   int64
	Name   string
	Signal json.RawMessage
}
