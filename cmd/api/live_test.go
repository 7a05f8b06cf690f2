package main

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/live"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

func wsURL(env *testEnv) string {
	return "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
}

func dialLive(t *testing.T, env *testEnv, who api.AuthResponse) *live.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := live.Dial(ctx, wsURL(env), who.Session(), live.Options{})
	if err != nil {
		t.Fatalf("dial as %s: %v", who.Name, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func listen(c *live.Conn, event string) chan []byte {
	ch := make(chan []byte, 32)
	c.Subscribe(event, func(data []byte) {
		select {
		case ch <- append([]byte(nil), data...):
		default:
		}
	})
	return ch
}

func next(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for live event")
	}
	return nil
}

func TestLiveRelaysStoredMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	alice, a := env.signup(t, "Alice")
	_, b := env.signup(t, "Bob")

	aliceConn := dialLive(t, env, a)
	bobConn := dialLive(t, env, b)
	inbox := listen(bobConn, wire.EventReceiveMessage)

	sent, err := alice.SendMessage(context.Background(), api.SendMessageRequest{Receiver: b.UserID, Text: "hi bob", ClientID: "c-9"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	// the payload lies about sender and text; the stored copy wins
	err = aliceConn.Emit(wire.EventSendMessage, map[string]any{
		"_id":      sent.ID,
		"sender":   b.UserID,
		"receiver": b.UserID,
		"text":     "tampered",
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var got wire.Message
	if err := json.Unmarshal(next(t, inbox), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != sent.ID || got.Text != "hi bob" || !got.Sender.Is(a.UserID) || got.ClientID != "c-9" {
		t.Fatalf("relayed %+v", got)
	}
}

func TestLiveRelaySkipsOriginConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	alice, a := env.signup(t, "Alice")
	_, b := env.signup(t, "Bob")

	origin := dialLive(t, env, a)
	otherTab := dialLive(t, env, a)
	bobConn := dialLive(t, env, b)
	originInbox := listen(origin, wire.EventReceiveMessage)
	otherInbox := listen(otherTab, wire.EventReceiveMessage)
	bobInbox := listen(bobConn, wire.EventReceiveMessage)

	sent, err := alice.SendMessage(context.Background(), api.SendMessageRequest{Receiver: b.UserID, Text: "hi bob"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := origin.Emit(wire.EventSendMessage, sent); err != nil {
		t.Fatalf("emit: %v", err)
	}

	for _, inbox := range []chan []byte{bobInbox, otherInbox} {
		var got wire.Message
		if err := json.Unmarshal(next(t, inbox), &got); err != nil || got.ID != sent.ID {
			t.Fatalf("relayed %+v, %v", got, err)
		}
	}
	select {
	case d := <-originInbox:
		t.Fatalf("sending connection got its own message back: %s", d)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestLiveTypingForcesSender(t *testing.T) {
	env := newTestEnv(t, nil)
	_, a := env.signup(t, "Alice")
	_, b := env.signup(t, "Bob")

	aliceConn := dialLive(t, env, a)
	bobConn := dialLive(t, env, b)
	typing := listen(bobConn, wire.EventTypingStatus)

	if err := aliceConn.Emit(wire.EventTyping, wire.TypingEvent{Sender: wire.Ref(b.UserID), Receiver: wire.Ref(b.UserID), IsTyping: true}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	var ev wire.TypingEvent
	if err := json.Unmarshal(next(t, typing), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ev.Sender.Is(a.UserID) || !ev.Receiver.Is(b.UserID) || !ev.IsTyping {
		t.Fatalf("typing status = %+v", ev)
	}
}

func TestLiveMarkAsReadNotifiesSender(t *testing.T) {
	env := newTestEnv(t, nil)
	alice, a := env.signup(t, "Alice")
	_, b := env.signup(t, "Bob")

	aliceConn := dialLive(t, env, a)
	bobConn := dialLive(t, env, b)
	receipts := listen(aliceConn, wire.EventMessageRead)

	sent, err := alice.SendMessage(context.Background(), api.SendMessageRequest{Receiver: b.UserID, Text: "read me"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := bobConn.Emit(wire.EventMarkAsRead, sent.ID); err != nil {
		t.Fatalf("emit: %v", err)
	}

	var rr wire.ReadReceipt
	if err := json.Unmarshal(next(t, receipts), &rr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.MessageID != sent.ID || rr.ReaderID != b.UserID {
		t.Fatalf("receipt = %+v", rr)
	}
}

func TestLiveSendNotification(t *testing.T) {
	env := newTestEnv(t, nil)
	_, a := env.signup(t, "Alice")
	_, b := env.signup(t, "Bob")

	aliceConn := dialLive(t, env, a)
	bobConn := dialLive(t, env, b)
	feed := listen(bobConn, wire.EventGetNotification)

	err := aliceConn.Emit(wire.EventSendNotification, wire.NotificationRequest{
		SenderID:   b.UserID,
		ReceiverID: b.UserID,
		Type:       "message",
		Message:    " ping ",
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var n wire.Notification
	if err := json.Unmarshal(next(t, feed), &n); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.ID == "" || n.Message != "ping" || n.SenderID != a.UserID || n.ReceiverID != b.UserID {
		t.Fatalf("notification = %+v", n)
	}
	if env.notes.count() != 1 {
		t.Fatalf("notification not persisted")
	}
}

func TestLiveOnlineUsers(t *testing.T) {
	env := newTestEnv(t, nil)
	_, a := env.signup(t, "Alice")
	_, b := env.signup(t, "Bob")

	aliceConn := dialLive(t, env, a)
	snapshots := listen(aliceConn, wire.EventOnlineUsers)

	waitFor := func(want []string) {
		t.Helper()
		slices.Sort(want)
		deadline := time.After(3 * time.Second)
		for {
			select {
			case d := <-snapshots:
				ids, err := wire.OnlineUsers(d)
				if err != nil {
					t.Fatalf("decode snapshot: %v", err)
				}
				slices.Sort(ids)
				if slices.Equal(ids, want) {
					return
				}
			case <-deadline:
				t.Fatalf("never saw online users %v", want)
			}
		}
	}

	bobConn := dialLive(t, env, b)
	waitFor([]string{a.UserID, b.UserID})

	bobConn.Close()
	waitFor([]string{a.UserID})
}

func TestLiveRejectsForeignRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	_, a := env.signup(t, "Alice")
	_, b := env.signup(t, "Bob")

	aliceConn := dialLive(t, env, a)
	errs := listen(aliceConn, wire.EventError)

	if err := aliceConn.JoinRoom(b.UserID); err != nil {
		t.Fatalf("join: %v", err)
	}
	var p wire.ErrorPayload
	if err := json.Unmarshal(next(t, errs), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Event != wire.EventJoinRoom {
		t.Fatalf("error payload = %+v", p)
	}
}

func TestLiveTokenQueryParameter(t *testing.T) {
	env := newTestEnv(t, nil)
	_, a := env.signup(t, "Alice")

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL(env)+"?token="+a.Token, nil)
	if err != nil {
		t.Fatalf("dial with query token: %v", err)
	}
	defer ws.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	// the first frame is the presence snapshot sent on connect
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, frame, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env2, err := wire.Decode(frame)
	if err != nil || env2.Event != wire.EventOnlineUsers {
		t.Fatalf("first frame = %s, %v", frame, err)
	}
}
