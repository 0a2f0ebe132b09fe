package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vmarkelov/talkwire-server/internal/proto"
)

func (env *testEnv) dialWS(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// readEvent skips frames until the named event arrives.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()

	for {
		var out rawOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("read waiting for %s: %v", event, err)
		}
		if out.Type == proto.OutboundTypeEvent && out.Event == event {
			return out.Data
		}
	}
}

func sendInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", msgType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func TestWSRejectsMissingAndBadTokens(t *testing.T) {
	env := newTestEnv(t)

	for _, url := range []string{env.ts.URL + "/ws", env.ts.URL + "/ws?token=garbage"} {
		resp, err := env.ts.Client().Get(url)
		if err != nil {
			t.Fatalf("ws request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", url, resp.StatusCode)
		}
	}
}

func TestWSPresenceBroadcast(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.seedVerifiedUser(t, "alice", "alice@example.com")
	bob, bobToken := env.seedVerifiedUser(t, "bob", "bob@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceConn := env.dialWS(t, ctx, aliceToken)
	bobConn := env.dialWS(t, ctx, bobToken)

	var online proto.PresencePayload
	data := readEvent(t, ctx, aliceConn, proto.EventUserOnline)
	if err := json.Unmarshal(data, &online); err != nil {
		t.Fatalf("unmarshal user_online: %v", err)
	}
	if online.UserID != bob.ID {
		t.Fatalf("expected online notice for bob, got %+v", online)
	}

	bobConn.Close(websocket.StatusNormalClosure, "done")

	var offline proto.PresencePayload
	data = readEvent(t, ctx, aliceConn, proto.EventUserOffline)
	if err := json.Unmarshal(data, &offline); err != nil {
		t.Fatalf("unmarshal user_offline: %v", err)
	}
	if offline.UserID != bob.ID {
		t.Fatalf("expected offline notice for bob, got %+v", offline)
	}
}

func TestWSPrivateMessageAndReceipts(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.seedVerifiedUser(t, "alice", "alice@example.com")
	bob, bobToken := env.seedVerifiedUser(t, "bob", "bob@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceConn := env.dialWS(t, ctx, aliceToken)
	bobConn := env.dialWS(t, ctx, bobToken)
	readEvent(t, ctx, aliceConn, proto.EventUserOnline)

	sendInbound(t, ctx, aliceConn, proto.InboundTypePrivateMessage,
		proto.PrivateMessageData{To: bob.ID, Content: "hi bob"})

	var delivered proto.MessagePayload
	data := readEvent(t, ctx, bobConn, proto.EventPrivateMessage)
	if err := json.Unmarshal(data, &delivered); err != nil {
		t.Fatalf("unmarshal private_message: %v", err)
	}
	if delivered.From != alice.ID || delivered.Content != "hi bob" {
		t.Fatalf("unexpected delivered message: %+v", delivered)
	}

	var sent proto.MessagePayload
	data = readEvent(t, ctx, aliceConn, proto.EventMessageSent)
	if err := json.Unmarshal(data, &sent); err != nil {
		t.Fatalf("unmarshal message_sent: %v", err)
	}
	if sent.ID != delivered.ID {
		t.Fatalf("ack for wrong message: %+v", sent)
	}

	var receipt proto.DeliveredPayload
	data = readEvent(t, ctx, aliceConn, proto.EventMessageDelivered)
	if err := json.Unmarshal(data, &receipt); err != nil {
		t.Fatalf("unmarshal message_delivered: %v", err)
	}
	if receipt.MessageID != sent.ID {
		t.Fatalf("delivery receipt for wrong message: %+v", receipt)
	}

	// Bob reads the conversation; alice gets the read receipt.
	sendInbound(t, ctx, bobConn, proto.InboundTypeMarkAsRead,
		proto.MarkAsReadData{From: alice.ID})

	var read proto.ReadPayload
	data = readEvent(t, ctx, aliceConn, proto.EventMessagesRead)
	if err := json.Unmarshal(data, &read); err != nil {
		t.Fatalf("unmarshal messages_read: %v", err)
	}
	if read.From != alice.ID || read.To != bob.ID {
		t.Fatalf("unexpected read receipt: %+v", read)
	}
}

func TestWSValidationErrorFrame(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.seedVerifiedUser(t, "alice", "alice@example.com")
	bob, _ := env.seedVerifiedUser(t, "bob", "bob@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceConn := env.dialWS(t, ctx, aliceToken)

	sendInbound(t, ctx, aliceConn, proto.InboundTypePrivateMessage,
		proto.PrivateMessageData{To: bob.ID, Content: ""})

	var out rawOutbound
	if err := wsjson.Read(ctx, aliceConn, &out); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if out.Type != proto.OutboundTypeError || out.Error == nil {
		t.Fatalf("expected error frame, got %+v", out)
	}
}

func TestWSCallSignalRelay(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.seedVerifiedUser(t, "alice", "alice@example.com")
	bob, bobToken := env.seedVerifiedUser(t, "bob", "bob@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceConn := env.dialWS(t, ctx, aliceToken)
	bobConn := env.dialWS(t, ctx, bobToken)
	readEvent(t, ctx, aliceConn, proto.EventUserOnline)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	sendInbound(t, ctx, aliceConn, proto.InboundTypeCallUser,
		proto.CallUserData{To: bob.ID, Name: "alice", Signal: offer})

	var incoming proto.IncomingCallPayload
	data := readEvent(t, ctx, bobConn, proto.EventIncomingCall)
	if err := json.Unmarshal(data, &incoming); err != nil {
		t.Fatalf("unmarshal incoming_call: %v", err)
	}
	if incoming.From != alice.ID || incoming.Name != "alice" {
		t.Fatalf("unexpected incoming call: %+v", incoming)
	}
	if string(incoming.Signal) != string(offer) {
		t.Fatalf("signal not relayed verbatim: %s", incoming.Signal)
	}

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	sendInbound(t, ctx, bobConn, proto.InboundTypeAnswerCall,
		proto.AnswerCallData{To: alice.ID, Signal: answer})

	var answered proto.CallAnsweredPayload
	data = readEvent(t, ctx, aliceConn, proto.EventCallAnswered)
	if err := json.Unmarshal(data, &answered); err != nil {
		t.Fatalf("unmarshal call_answered: %v", err)
	}
	if string(answered.Signal) != string(answer) {
		t.Fatalf("answer not relayed verbatim: %s", answered.Signal)
	}

	sendInbound(t, ctx, aliceConn, proto.InboundTypeEndCall, proto.EndCallData{To: bob.ID})
	readEvent(t, ctx, bobConn, proto.EventCallEnded)
}
