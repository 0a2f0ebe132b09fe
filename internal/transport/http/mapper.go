package http

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vmarkelov/talkwire-server/internal/core"
	"github.com/vmarkelov/talkwire-server/internal/proto"
	"github.com/vmarkelov/talkwire-server/internal/store"
)

// dispatch routes one inbound frame to the event router. A returned
// *proto.Error goes back to the client; a returned error tears the
// connection down.
func (h *WSHandler) dispatch(ctx context.Context, sess *core.Session, inbound proto.Inbound) (*proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypePrivateMessage:
		var data proto.PrivateMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		_, err := h.router.SendMessage(ctx, sess.UserID(), data.To, data.Content, "", store.AttachmentNone)
		return sendErrorToProto(err), nil

	case proto.InboundTypeMarkAsRead:
		var data proto.MarkAsReadData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		if err := h.router.MarkRead(ctx, sess.UserID(), data.From); err != nil {
			return &proto.Error{Code: core.ErrCodePersistence, Msg: "failed to mark messages read"}, nil
		}
		return nil, nil

	case proto.InboundTypeCallUser:
		var data proto.CallUserData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		name := data.Name
		if name == "" {
			name = sess.Name()
		}
		h.router.CallUser(data.To, sess.UserID(), name, data.Signal)
		return nil, nil

	case proto.InboundTypeAnswerCall:
		var data proto.AnswerCallData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		h.router.AnswerCall(data.To, sess.UserID(), data.Signal)
		return nil, nil

	case proto.InboundTypeRejectCall:
		var data proto.RejectCallData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		h.router.RejectCall(data.To, sess.UserID())
		return nil, nil

	case proto.InboundTypeEndCall:
		var data proto.EndCallData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		h.router.EndCall(data.To)
		return nil, nil

	default:
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}, nil
	}
}

func sendErrorToProto(err error) *proto.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrEmptyMessage), errors.Is(err, core.ErrSelfMessage):
		return &proto.Error{Code: core.ErrCodeValidation, Msg: err.Error()}
	case errors.Is(err, core.ErrUnknownRecipient):
		return &proto.Error{Code: core.ErrCodeUnknownUser, Msg: err.Error()}
	default:
		return &proto.Error{Code: core.ErrCodePersistence, Msg: "failed to send message"}
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventUserOnline:
		return eventOutbound(proto.EventUserOnline, proto.PresencePayload{UserID: event.UserID})
	case core.EventUserOffline:
		return eventOutbound(proto.EventUserOffline, proto.PresencePayload{UserID: event.UserID})
	case core.EventPrivateMessage:
		return eventOutbound(proto.EventPrivateMessage, proto.NewMessagePayload(event.Message))
	case core.EventMessageSent:
		return eventOutbound(proto.EventMessageSent, proto.NewMessagePayload(event.Message))
	case core.EventMessageDelivered:
		return eventOutbound(proto.EventMessageDelivered, proto.DeliveredPayload{MessageID: event.MessageID})
	case core.EventMessagesRead:
		return eventOutbound(proto.EventMessagesRead, proto.ReadPayload{From: event.Read.From, To: event.Read.To})
	case core.EventIncomingCall:
		return eventOutbound(proto.EventIncomingCall, proto.IncomingCallPayload{
			From:   event.Call.From,
			Name:   event.Call.Name,
			Signal: event.Call.Signal,
		})
	case core.EventCallAnswered:
		return eventOutbound(proto.EventCallAnswered, proto.CallAnsweredPayload{Signal: event.Call.Signal})
	case core.EventCallRejected:
		return eventOutbound(proto.EventCallRejected, nil)
	case core.EventCallEnded:
		return eventOutbound(proto.EventCallEnded, nil)
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func eventOutbound(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}
