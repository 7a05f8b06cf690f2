package chat

import (
	"context"
	"testing"
	"time"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

func typingStates(f *fakeStream) []bool {
	var out []bool
	for _, p := range f.events(wire.EventTyping) {
		out = append(out, p.(wire.TypingEvent).IsTyping)
	}
	return out
}

func TestTypingDebounce(t *testing.T) {
	stream := newFakeStream()
	ty := NewTyping(stream, "u1", "u2", 40*time.Millisecond)
	defer ty.Close()

	for i := 0; i < 3; i++ {
		if err := ty.Keystroke(); err != nil {
			t.Fatalf("Keystroke: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !ty.Active() {
		t.Fatalf("typing should be active between keystrokes")
	}

	deadline := time.Now().Add(2 * time.Second)
	for ty.Active() {
		if time.Now().After(deadline) {
			t.Fatalf("stop never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := typingStates(stream)
	want := []bool{true, true, true, false}
	if len(got) != len(want) {
		t.Fatalf("typing events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("typing events = %v, want %v", got, want)
		}
	}

	ev := stream.events(wire.EventTyping)[0].(wire.TypingEvent)
	if ev.Sender.ID != "u1" || ev.Receiver.ID != "u2" {
		t.Fatalf("typing event addressed %s -> %s", ev.Sender.ID, ev.Receiver.ID)
	}
}

func TestTypingStopIsImmediateAndOnce(t *testing.T) {
	stream := newFakeStream()
	ty := NewTyping(stream, "u1", "u2", time.Hour)

	if err := ty.Stop(); err != nil {
		t.Fatalf("Stop on idle: %v", err)
	}
	if n := len(stream.events(wire.EventTyping)); n != 0 {
		t.Fatalf("idle stop emitted %d events", n)
	}

	_ = ty.Keystroke()
	_ = ty.Stop()
	_ = ty.Stop()
	ty.Close()

	got := typingStates(stream)
	if len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("typing events = %v, want [true false]", got)
	}
	if err := ty.Keystroke(); err != ErrClosed {
		t.Fatalf("Keystroke after Close = %v, want ErrClosed", err)
	}
}

func TestSendStopsTyping(t *testing.T) {
	msgs := newFakeMessages()
	stream := newFakeStream()
	c, _ := newConversation(t, msgs, stream, Options{TypingDebounce: time.Hour})
	selectPeer(t, c, "u2")

	_ = c.Keystroke()
	msgs.send = func(_ context.Context, req api.SendMessageRequest) (wire.Message, error) {
		return msg("m1", "u1", "u2", req.Text), nil
	}
	if _, err := c.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := typingStates(stream)
	if len(got) != 2 || got[1] {
		t.Fatalf("typing events = %v, want a stop after the send", got)
	}
}
