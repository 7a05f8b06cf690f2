package main

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/session"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

func TestLoginWhoamiLogout(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "alice@example.com\nsecret\n", "login")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Logged in as Alice ("+aliceID+")") {
		t.Fatalf("login output = %q", out)
	}
	sess, err := session.NewStore(env.session).Load()
	if err != nil || sess.Token != testToken {
		t.Fatalf("stored session = %+v, %v", sess, err)
	}

	out, err = env.run(t, "", "whoami")
	if err != nil || !strings.Contains(out, "Alice") {
		t.Fatalf("whoami = %q, %v", out, err)
	}

	if _, err := env.run(t, "", "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := os.Stat(env.session); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("session file still present: %v", err)
	}
	out, _ = env.run(t, "", "whoami")
	if !strings.Contains(out, "Not logged in") {
		t.Fatalf("whoami after logout = %q", out)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "wrong\n", "login", "--email", "alice@example.com")
	if err == nil || !strings.Contains(err.Error(), "Invalid email or password") {
		t.Fatalf("expected rejected login, got %v", err)
	}
	if _, err := session.NewStore(env.session).Load(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("failed login stored a session: %v", err)
	}
}

func TestRegisterPrompts(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "secret\nsecrex\n", "register", "--name", "Alice", "--email", "a@example.com")
	if err == nil || !strings.Contains(err.Error(), "do not match") {
		t.Fatalf("expected mismatch error, got %v", err)
	}

	out, err := env.run(t, "Alice\na@example.com\nsecret\nsecret\n", "register", "--offers", "Go, Rust")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.Contains(out, "Logged in as Alice") {
		t.Fatalf("register output = %q", out)
	}
}

func TestCommandsRequireLogin(t *testing.T) {
	env := newCLIEnv(t)
	for _, args := range [][]string{{"profiles"}, {"exchanges"}, {"notifications"}, {"chat", bobID}} {
		_, err := env.run(t, "", args...)
		if err == nil || !strings.Contains(err.Error(), "not logged in") {
			t.Fatalf("%v without session: %v", args, err)
		}
	}
}

func TestExpiredTokenIsExplained(t *testing.T) {
	env := newCLIEnv(t)
	if err := session.NewStore(env.session).Save(session.Session{Token: "stale", UserID: aliceID}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, err := env.run(t, "", "profiles")
	if err == nil || !strings.Contains(err.Error(), "skillswap login") {
		t.Fatalf("expected login hint, got %v", err)
	}
}

func TestProfilesFilterBySkill(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, err := env.run(t, "", "profiles", "--skill", "spanish")
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	if !strings.Contains(out, "Bob") || strings.Contains(out, "Cara") {
		t.Fatalf("filtered profiles = %q", out)
	}

	out, err = env.run(t, "", "profile", bobID)
	if err != nil || !strings.Contains(out, "Bob") {
		t.Fatalf("profile by id = %q, %v", out, err)
	}
	out, err = env.run(t, "", "profile")
	if err != nil || !strings.Contains(out, "alice@example.com") {
		t.Fatalf("own profile = %q, %v", out, err)
	}
}

func TestExchangesListAndDecide(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, err := env.run(t, "", "exchanges")
	if err != nil {
		t.Fatalf("exchanges: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("exchanges output = %q", out)
	}
	if !strings.Contains(lines[1], "requester") || !strings.Contains(lines[1], "Bob") {
		t.Fatalf("first row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "provider") || !strings.Contains(lines[2], "Spanish") {
		t.Fatalf("second row = %q", lines[2])
	}

	out, err = env.run(t, "", "exchanges", "start", bobID, "Go", "basics")
	if err != nil || !strings.Contains(out, "Go basics") {
		t.Fatalf("start = %q, %v", out, err)
	}

	if _, err := env.run(t, "", "exchanges", "decline", "x2"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	env.server.mu.Lock()
	decisions := append([]string(nil), env.server.decisions...)
	env.server.mu.Unlock()
	if len(decisions) != 1 || decisions[0] != "x2:decline" {
		t.Fatalf("decisions = %v", decisions)
	}
}

func TestNotificationsList(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, err := env.run(t, "", "notifications")
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	first := strings.Index(out, "accepted your exchange")
	second := strings.Index(out, "sent you a message")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("notifications output = %q", out)
	}
}

func TestNotifySendsOverLiveChannel(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, err := env.run(t, "", "notify", bobID, "see", "you", "at", "five", "--type", "reminder")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(out, "Notification sent") {
		t.Fatalf("notify output = %q", out)
	}

	env.server.waitFrame(t, wire.EventUserOnline)
	frame := env.server.waitFrame(t, wire.EventSendNotification)
	var req wire.NotificationRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.SenderID != aliceID || req.ReceiverID != bobID || req.Type != "reminder" || req.Message != "see you at five" {
		t.Fatalf("notification request = %+v", req)
	}
}

func TestChatShowsHistoryAndSends(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	env.server.history = []wire.Message{{
		ID:        "m-old",
		Sender:    wire.UserRef{ID: bobID, Name: "Bob"},
		Receiver:  wire.UserRef{ID: aliceID, Name: "Alice"},
		Text:      "hi alice",
		CreatedAt: time.Now().Add(-time.Minute),
	}}

	out, err := env.run(t, "hello bob\n/quit\n", "chat", bobID)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	for _, want := range []string{"Chatting with Bob", "-- Today --", "Bob: hi alice", "you: hello bob"} {
		if !strings.Contains(out, want) {
			t.Fatalf("chat output missing %q:\n%s", want, out)
		}
	}

	env.server.mu.Lock()
	sent := append([]api.SendMessageRequest(nil), env.server.sent...)
	reads := append([]string(nil), env.server.reads...)
	env.server.mu.Unlock()
	if len(sent) != 1 || sent[0].Text != "hello bob" || sent[0].Receiver != bobID || sent[0].ClientID == "" {
		t.Fatalf("sent = %+v", sent)
	}
	if len(reads) != 1 || reads[0] != "m-old" {
		t.Fatalf("unread history was not marked read: %v", reads)
	}

	relay := env.server.waitFrame(t, wire.EventSendMessage)
	var m wire.Message
	if err := json.Unmarshal(relay.Data, &m); err != nil || m.ID != "m-new-1" {
		t.Fatalf("relayed %+v, %v", m, err)
	}
}

func TestChatUnknownPeer(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	if _, err := env.run(t, "", "chat", "64b7f0c2a1b2c3d4e5f6ffff"); err == nil {
		t.Fatalf("expected error for unknown peer")
	}
}
