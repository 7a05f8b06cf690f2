package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/live"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

// Feed is the user's notification list, newest first. It is filled by one
// fetch and then grows from live pushes.
type Feed struct {
	userID   string
	api      NotificationsAPI
	stream   RoomStream
	onChange func()
	now      func() time.Time
	log      zerolog.Logger

	mu       sync.Mutex
	items    []wire.Notification
	buffered []wire.Notification
	loading  bool
	scope    *live.Scope
}

// NewFeed returns a stopped feed for userID. onChange may be nil.
func NewFeed(userID string, notifications NotificationsAPI, stream RoomStream, onChange func()) *Feed {
	userID = normalize.UserID(userID)
	return &Feed{
		userID:   userID,
		api:      notifications,
		stream:   stream,
		onChange: onChange,
		now:      time.Now,
		log:      logging.Component("feed").With().Str(logging.FieldUserID, userID).Logger(),
	}
}

// Start joins the user's room, subscribes to pushes and fetches existing
// notifications. Pushes that arrive before the fetch completes are placed
// ahead of the fetched list. Calling Start on a running feed is a no-op; a
// failed Start unsubscribes and may be retried.
func (f *Feed) Start(ctx context.Context) error {
	if f.userID == "" {
		return ErrNoUser
	}

	f.mu.Lock()
	if f.scope != nil {
		f.mu.Unlock()
		return nil
	}
	f.scope = live.NewScope(f.stream)
	f.loading = true
	f.buffered = f.items
	scope := f.scope
	f.mu.Unlock()

	if err := f.stream.JoinRoom(f.userID); err != nil {
		f.log.Error().Err(err).Msg("join room failed")
	}
	scope.On(wire.EventGetNotification, f.onPush)

	fetched, err := f.api.Notifications(ctx, f.userID)

	f.mu.Lock()
	merged := f.buffered
	f.buffered = nil
	f.loading = false
	if err == nil {
		seen := make(map[string]struct{}, len(merged)+len(fetched))
		for _, n := range merged {
			if n.ID != "" {
				seen[n.ID] = struct{}{}
			}
		}
		for _, n := range fetched {
			if n.ID != "" {
				if _, dup := seen[n.ID]; dup {
					continue
				}
				seen[n.ID] = struct{}{}
			}
			merged = append(merged, n)
		}
	}
	f.items = merged
	if err != nil && f.scope == scope {
		f.scope = nil
	}
	f.mu.Unlock()
	f.changed()

	if err != nil {
		scope.Close()
		f.log.Error().Err(err).Msg("fetch notifications failed")
		return fmt.Errorf("chat: fetch notifications: %w", err)
	}
	return nil
}

func (f *Feed) onPush(data []byte) {
	var n wire.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		f.log.Warn().Err(err).Msg("dropping malformed notification")
		return
	}
	if n.ReceiverID != "" && n.ReceiverID != f.userID {
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = f.now()
	}

	f.mu.Lock()
	if f.loading {
		f.buffered = append([]wire.Notification{n}, f.buffered...)
		f.mu.Unlock()
		return
	}
	if n.ID != "" {
		for _, existing := range f.items {
			if existing.ID == n.ID {
				f.mu.Unlock()
				return
			}
		}
	}
	f.items = append([]wire.Notification{n}, f.items...)
	f.mu.Unlock()
	f.changed()
}

// Send emits a notification to receiverID. The sender's own feed is not
// touched.
func (f *Feed) Send(receiverID, kind, message string) error {
	receiverID = normalize.UserID(receiverID)
	message = normalize.Text(message)
	if f.userID == "" {
		return ErrNoUser
	}
	if receiverID == "" {
		return ErrNoPeer
	}
	if message == "" {
		return ErrEmptyMessage
	}
	return f.stream.Emit(wire.EventSendNotification, wire.NotificationRequest{
		SenderID:   f.userID,
		ReceiverID: receiverID,
		Type:       kind,
		Message:    message,
	})
}

// Items returns the feed, newest first.
func (f *Feed) Items() []wire.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.Notification, len(f.items))
	copy(out, f.items)
	return out
}

// Stop removes the feed's live handlers. The room stays joined because the
// connection owns room membership.
func (f *Feed) Stop() {
	f.mu.Lock()
	scope := f.scope
	f.scope = nil
	f.mu.Unlock()
	if scope != nil {
		scope.Close()
	}
}

func (f *Feed) changed() {
	if f.onChange != nil {
		f.onChange()
	}
}
