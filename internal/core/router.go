package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmarkelov/talkwire-server/internal/store"
)

// Router is the event core: it decides which sessions receive which
// outbound events, always persisting message state before attempting
// delivery. Call signaling is relayed without persistence.
//
// Router methods run on the calling connection's goroutine. Persistence
// may suspend that goroutine but never blocks other connections.
type Router struct {
	registry *Registry
	messages store.MessageStore
	users    store.UserStore
	log      *zerolog.Logger
}

// NewRouter builds the event router.
func NewRouter(registry *Registry, messages store.MessageStore, users store.UserStore, logger *zerolog.Logger) *Router {
	return &Router{
		registry: registry,
		messages: messages,
		users:    users,
		log:      logger,
	}
}

// SendMessage validates, persists, and routes one private message.
//
// The record is durable before any delivery is attempted: a message is
// never delivered without being stored first, and a delivery failure
// never loses the record. When the recipient is online the delivered
// flag is flipped in the store before either side hears about it.
func (rt *Router) SendMessage(ctx context.Context, from, to int64, content, attachment string, kind store.AttachmentKind) (*store.Message, error) {
	if content == "" && attachment == "" {
		return nil, ErrEmptyMessage
	}
	if from == to {
		return nil, ErrSelfMessage
	}
	if _, err := rt.users.GetUserByID(ctx, to); err != nil {
		return nil, ErrUnknownRecipient
	}

	msg := &store.Message{
		ID:             uuid.NewString(),
		From:           from,
		To:             to,
		Content:        content,
		Attachment:     attachment,
		AttachmentKind: kind,
		CreatedAt:      time.Now().UTC(),
	}
	if err := rt.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	// Sessions marshal their events on per-connection goroutines, so
	// each event carries a clone; the delivered flip below must not be
	// visible through a payload that is already queued.
	recipient, online := rt.registry.Lookup(to)
	if online {
		recipient.Send(&Event{Kind: EventPrivateMessage, Message: msg.Clone()})
	}

	// The sender gets an ack regardless of recipient presence.
	if sender, ok := rt.registry.Lookup(from); ok {
		sender.Send(&Event{Kind: EventMessageSent, Message: msg.Clone()})
	}

	if online {
		changed, err := rt.messages.MarkDelivered(ctx, msg.ID)
		if err != nil {
			rt.log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to mark message delivered")
			return msg, nil
		}
		if changed {
			msg.Delivered = true
			delivered := &Event{Kind: EventMessageDelivered, MessageID: msg.ID}
			recipient.Send(delivered)
			if sender, ok := rt.registry.Lookup(from); ok {
				sender.Send(delivered)
			}
		}
	}

	return msg, nil
}

// MarkRead flips every unread message counterpart -> reader to read.
// A call that changes nothing emits nothing (idempotent no-op); any
// change notifies the counterpart's session when it is online. The
// router does not verify the messages were delivered first; it trusts
// the reader's claim.
func (rt *Router) MarkRead(ctx context.Context, reader, counterpart int64) error {
	changed, err := rt.messages.BulkMarkRead(ctx, counterpart, reader)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if changed == 0 {
		return nil
	}

	if sess, ok := rt.registry.Lookup(counterpart); ok {
		sess.Send(&Event{
			Kind: EventMessagesRead,
			Read: &ReadReceipt{From: counterpart, To: reader},
		})
	}
	return nil
}

// CallUser relays a call offer to the callee. Best-effort: an offline
// target means the signal is dropped silently, nothing is persisted,
// and the caller sees normal completion.
func (rt *Router) CallUser(to, from int64, name string, signal json.RawMessage) {
	rt.relay(to, &Event{
		Kind: EventIncomingCall,
		Call: &CallSignal{From: from, Name: name, Signal: signal},
	})
}

// AnswerCall relays an answer payload back to the caller.
func (rt *Router) AnswerCall(to, from int64, signal json.RawMessage) {
	rt.relay(to, &Event{
		Kind: EventCallAnswered,
		Call: &CallSignal{From: from, Signal: signal},
	})
}

// RejectCall tells the caller the callee declined.
func (rt *Router) RejectCall(to, from int64) {
	rt.relay(to, &Event{
		Kind: EventCallRejected,
		Call: &CallSignal{From: from},
	})
}

// EndCall tells the other side the call is over.
func (rt *Router) EndCall(to int64) {
	rt.relay(to, &Event{Kind: EventCallEnded, Call: &CallSignal{}})
}

func (rt *Router) relay(target int64, ev *Event) {
	sess, ok := rt.registry.Lookup(target)
	if !ok {
		rt.log.Debug().Int64("target", target).Msg("signaling target offline, dropping")
		return
	}
	sess.Send(ev)
}
