// Package chat holds the client-side state of a SkillSwap session: the
// active conversation with its optimistic sends, the typing indicator, the
// presence map and the notification feed.
//
// Every type here is safe for concurrent use. Live events arrive on the
// connection's reader goroutine while sends and loads run on the caller's.
package chat

import (
	"context"
	"errors"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/live"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

var (
	// ErrNoUser means the local user id is unknown.
	ErrNoUser = errors.New("chat: no current user")
	// ErrNoPeer means no conversation is selected.
	ErrNoPeer = errors.New("chat: no peer selected")
	// ErrEmptyMessage rejects whitespace-only text.
	ErrEmptyMessage = errors.New("chat: message is empty")
	// ErrStale is returned by a load whose conversation was switched or
	// reloaded before the response arrived. The response is discarded.
	ErrStale = errors.New("chat: response superseded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("chat: closed")
)

// Emitter sends named events on the live connection.
type Emitter interface {
	Emit(event string, payload any) error
}

// Stream is the part of the live connection a conversation needs.
type Stream interface {
	live.Subscriber
	Emitter
}

// RoomStream adds room membership for components that need their own
// user-scoped fan-out.
type RoomStream interface {
	Stream
	JoinRoom(id string) error
}

// MessagesAPI is the REST surface used by a conversation.
type MessagesAPI interface {
	Messages(ctx context.Context, peerID string) ([]wire.Message, error)
	SendMessage(ctx context.Context, req api.SendMessageRequest) (wire.Message, error)
	MarkRead(ctx context.Context, messageID string) error
}

// NotificationsAPI is the REST surface used by the feed.
type NotificationsAPI interface {
	Notifications(ctx context.Context, userID string) ([]wire.Notification, error)
}

// State is where a message is in its send lifecycle.
type State int

const (
	// Pending is an optimistic entry awaiting the server.
	Pending State = iota
	// Confirmed is a server-stored message.
	Confirmed
	// Failed is an optimistic entry the server rejected. Failed entries are
	// handed to observers and then removed from the store.
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is a message together with its lifecycle state.
type Entry struct {
	wire.Message
	State State
}

// IsTemp reports whether the entry is still optimistic.
func (e Entry) IsTemp() bool { return e.State == Pending }
