package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/live"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

type emitted struct {
	event   string
	payload any
}

// fakeStream records emitted events and delivers pushes synchronously to
// subscribed handlers.
type fakeStream struct {
	mu       sync.Mutex
	handlers map[string]map[int]live.Handler
	next     int
	emits    []emitted
	rooms    []string
	emitErr  error
}

func newFakeStream() *fakeStream {
	return &fakeStream{handlers: map[string]map[int]live.Handler{}}
}

func (f *fakeStream) Subscribe(event string, h live.Handler) live.Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := f.next
	if f.handlers[event] == nil {
		f.handlers[event] = map[int]live.Handler{}
	}
	f.handlers[event][id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[event], id)
	}
}

func (f *fakeStream) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emits = append(f.emits, emitted{event, payload})
	return nil
}

func (f *fakeStream) JoinRoom(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, id)
	return nil
}

func (f *fakeStream) handlerCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[event])
}

func (f *fakeStream) events(event string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, e := range f.emits {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (f *fakeStream) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal push: %v", err)
	}
	f.mu.Lock()
	ids := make([]int, 0, len(f.handlers[event]))
	for id := range f.handlers[event] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	hs := make([]live.Handler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, f.handlers[event][id])
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(data)
	}
}

// fakeMessages serves history per peer. A gate, when set for a peer, holds
// the fetch until the test closes it.
type fakeMessages struct {
	mu       sync.Mutex
	history  map[string][]wire.Message
	gates    map[string]chan struct{}
	started  chan string
	send     func(ctx context.Context, req api.SendMessageRequest) (wire.Message, error)
	sends    []api.SendMessageRequest
	marked   []string
	markErr  error
	fetchErr error
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{
		history: map[string][]wire.Message{},
		gates:   map[string]chan struct{}{},
		started: make(chan string, 16),
	}
}

func (f *fakeMessages) Messages(ctx context.Context, peerID string) ([]wire.Message, error) {
	f.mu.Lock()
	gate := f.gates[peerID]
	f.mu.Unlock()
	f.started <- peerID
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]wire.Message(nil), f.history[peerID]...), nil
}

func (f *fakeMessages) SendMessage(ctx context.Context, req api.SendMessageRequest) (wire.Message, error) {
	f.mu.Lock()
	f.sends = append(f.sends, req)
	send := f.send
	f.mu.Unlock()
	if send == nil {
		return wire.Message{}, errors.New("no send configured")
	}
	return send(ctx, req)
}

func (f *fakeMessages) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return f.markErr
}

func (f *fakeMessages) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeMessages) markedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.marked...)
}

func msg(id, from, to, text string) wire.Message {
	return wire.Message{ID: id, Sender: wire.Ref(from), Receiver: wire.Ref(to), Text: text}
}
