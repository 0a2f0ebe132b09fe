package proto

import (
	"encoding/json"
	"time"

	"github.com/vmarkelov/talkwire-server/internal/store"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypePrivateMessage = "private_message"
	InboundTypeMarkAsRead     = "mark_as_read"
	InboundTypeCallUser       = "call_user"
	InboundTypeAnswerCall     = "answer_call"
	InboundTypeRejectCall     = "reject_call"
	InboundTypeEndCall        = "end_call"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Outbound event names.
const (
	EventUserOnline       = "user_online"
	EventUserOffline      = "user_offline"
	EventPrivateMessage   = "private_message"
	EventMessageSent      = "message_sent"
	EventMessageDelivered = "message_delivered"
	EventMessagesRead     = "messages_read"
	EventIncomingCall     = "incoming_call"
	EventCallAnswered     = "call_answered"
	EventCallRejected     = "call_rejected"
	EventCallEnded        = "call_ended"
)

// PrivateMessageData asks the server to deliver a text message.
type PrivateMessageData struct {
	To      int64  `json:"to"`
	Content string `json:"content"`
}

// MarkAsReadData marks every unread message from the given user as read.
type MarkAsReadData struct {
	From int64 `json:"from"`
}

// CallUserData carries a call offer. Signal is opaque to the server.
type CallUserData struct {
	To     int64           `json:"to"`
	Name   string          `json:"name"`
	Signal json.RawMessage `json:"signal"`
}

// AnswerCallData carries the callee's answer back to the caller.
type AnswerCallData struct {
	To     int64           `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

// RejectCallData tells the caller the call was declined.
type RejectCallData struct {
	To int64 `json:"to"`
}

// EndCallData tells the other side the call is over.
type EndCallData struct {
	To int64 `json:"to"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// MessagePayload is the wire form of a persisted message.
type MessagePayload struct {
	ID             string    `json:"id"`
	From           int64     `json:"from"`
	To             int64     `json:"to"`
	Content        string    `json:"content"`
	Attachment     string    `json:"attachment,omitempty"`
	AttachmentKind string    `json:"attachment_kind,omitempty"`
	Delivered      bool      `json:"delivered"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMessagePayload converts a stored message to its wire form.
func NewMessagePayload(msg *store.Message) *MessagePayload {
	return &MessagePayload{
		ID:             msg.ID,
		From:           msg.From,
		To:             msg.To,
		Content:        msg.Content,
		Attachment:     msg.Attachment,
		AttachmentKind: string(msg.AttachmentKind),
		Delivered:      msg.Delivered,
		Read:           msg.Read,
		CreatedAt:      msg.CreatedAt,
	}
}

// PresencePayload announces a presence change.
type PresencePayload struct {
	UserID int64 `json:"user_id"`
}

// DeliveredPayload confirms delivery of one message.
type DeliveredPayload struct {
	MessageID string `json:"message_id"`
}

// ReadPayload notifies a sender that their messages were read.
type ReadPayload struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// IncomingCallPayload relays a call offer to the callee.
type IncomingCallPayload struct {
	From   int64           `json:"from"`
	Name   string          `json:"name"`
	Signal json.RawMessage `json:"signal"`
}

// CallAnsweredPayload relays the answer back to the caller.
type CallAnsweredPayload struct {
	Signal json.RawMessage `json:"signal"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
