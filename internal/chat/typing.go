package chat

import (
	"sync"
	"time"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

// DefaultTypingDebounce is the quiet period after which typing stops.
const DefaultTypingDebounce = 2000 * time.Millisecond

// Typing broadcasts the local user's typing state to one peer. Every
// keystroke emits a start event and pushes a single stop timer back.
type Typing struct {
	stream   Emitter
	me, peer string
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	seq    uint64
	active bool
	closed bool
}

// NewTyping returns an idle indicator from me to peer.
func NewTyping(stream Emitter, me, peer string, debounce time.Duration) *Typing {
	if debounce <= 0 {
		debounce = DefaultTypingDebounce
	}
	return &Typing{stream: stream, me: me, peer: peer, debounce: debounce}
}

// Keystroke emits a start event and reschedules the stop timer.
func (t *Typing) Keystroke() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}

	t.seq++
	seq := t.seq
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.debounce, func() { t.expire(seq) })
	t.active = true
	return t.emitLocked(true)
}

func (t *Typing) expire(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || seq != t.seq || !t.active {
		return
	}
	t.active = false
	t.timer = nil
	_ = t.emitLocked(false)
}

// Stop cancels the timer and emits a stop event if typing was active.
func (t *Typing) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked()
}

func (t *Typing) stopLocked() error {
	t.seq++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if !t.active {
		return nil
	}
	t.active = false
	return t.emitLocked(false)
}

// Close stops the indicator for good.
func (t *Typing) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	_ = t.stopLocked()
	t.closed = true
}

// Active reports whether a start is outstanding.
func (t *Typing) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Typing) emitLocked(typing bool) error {
	return t.stream.Emit(wire.EventTyping, wire.TypingEvent{
		Sender:   wire.Ref(t.me),
		Receiver: wire.Ref(t.peer),
		IsTyping: typing,
	})
}
