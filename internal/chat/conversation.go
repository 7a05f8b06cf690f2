package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/live"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

// TempIDPrefix marks ids generated for optimistic entries.
const TempIDPrefix = "temp-"

// Options tunes a Conversation. Zero values take the defaults.
type Options struct {
	// TypingDebounce is how long after the last keystroke the stop event
	// goes out. Default 2s.
	TypingDebounce time.Duration
	// RemoteTypingTimeout clears the peer's typing flag when no stop event
	// arrives in time. Zero keeps the flag until a stop event or a message.
	RemoteTypingTimeout time.Duration
	// DuplicateWindow bounds the same-sender same-text duplicate check.
	// Default 5s.
	DuplicateWindow time.Duration
	// DisableAutoMarkRead stops the conversation from marking received
	// messages read when they are loaded or pushed.
	DisableAutoMarkRead bool
	// OnChange runs after every visible state change, outside any lock.
	OnChange func()
	// OnFailed receives an optimistic entry the server rejected.
	OnFailed func(Entry)

	Now         func() time.Time
	NewClientID func() string
	Logger      *zerolog.Logger
}

func (o *Options) setDefaults() {
	if o.TypingDebounce <= 0 {
		o.TypingDebounce = DefaultTypingDebounce
	}
	if o.DuplicateWindow <= 0 {
		o.DuplicateWindow = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewClientID == nil {
		o.NewClientID = uuid.NewString
	}
}

// Conversation is the message store for the selected peer. It merges the
// fetched history, live pushes and optimistic sends into one list kept in
// insertion order.
type Conversation struct {
	me     string
	api    MessagesAPI
	stream Stream
	opts   Options
	log    zerolog.Logger

	mu           sync.Mutex
	peer         string
	selection    uint64
	load         uint64
	cancelLoad   context.CancelFunc
	loading      bool
	entries      []Entry
	buffered     []wire.Message
	scope        *live.Scope
	typing       *Typing
	remoteTyping bool
	remoteTimer  *time.Timer
	closed       bool

	wg sync.WaitGroup
}

// NewConversation returns an empty conversation for the local user me.
// Nothing is fetched or subscribed until Select.
func NewConversation(me string, msgs MessagesAPI, stream Stream, opts Options) *Conversation {
	opts.setDefaults()
	logger := logging.Component("conversation")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	me = normalize.UserID(me)
	return &Conversation{
		me:     me,
		api:    msgs,
		stream: stream,
		opts:   opts,
		log:    logger.With().Str(logging.FieldUserID, me).Logger(),
	}
}

// Select switches to peer. The store is cleared before the new history is
// requested, handlers bound to the previous peer are removed, and any load
// still in flight for the previous peer is cancelled and its result dropped.
func (c *Conversation) Select(ctx context.Context, peer string) error {
	peer = normalize.UserID(peer)
	if c.me == "" {
		return ErrNoUser
	}
	if peer == "" {
		return ErrNoPeer
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.selection++
	c.load++
	sel := c.selection
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	oldScope, oldTyping := c.scope, c.typing

	c.peer = peer
	c.entries = nil
	c.buffered = nil
	c.setRemoteTypingLocked(false)
	c.scope = live.NewScope(c.stream)
	c.typing = NewTyping(c.stream, c.me, peer, c.opts.TypingDebounce)
	scope := c.scope
	c.mu.Unlock()

	if oldScope != nil {
		oldScope.Close()
	}
	if oldTyping != nil {
		oldTyping.Close()
	}
	c.changed()

	scope.On(wire.EventReceiveMessage, func(data []byte) { c.onReceive(sel, data) })
	scope.On(wire.EventTypingStatus, func(data []byte) { c.onTyping(sel, data) })
	scope.On(wire.EventMessageRead, func(data []byte) { c.onReadReceipt(sel, data) })

	c.log.Debug().Str(logging.FieldPeerID, peer).Msg("conversation selected")
	return c.LoadHistory(ctx)
}

// LoadHistory fetches the conversation from the server and replaces the
// store, keeping own sends the fetch has not seen yet. Live pushes that
// arrive meanwhile are held back and merged once the history is in place.
// A newer Select or LoadHistory makes this call return ErrStale without
// touching the store.
func (c *Conversation) LoadHistory(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.peer == "" {
		c.mu.Unlock()
		return ErrNoPeer
	}
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	c.load++
	load, peer := c.load, c.peer
	ctx, cancel := context.WithCancel(ctx)
	c.cancelLoad = cancel
	c.loading = true
	c.mu.Unlock()
	defer cancel()

	fetched, err := c.api.Messages(ctx, peer)

	c.mu.Lock()
	if c.load != load || c.closed {
		c.mu.Unlock()
		return ErrStale
	}
	c.cancelLoad = nil
	c.loading = false

	if err == nil {
		// Own sends, pending or confirmed while the fetch was out, may be
		// missing from the fetched snapshot.
		var local []Entry
		for _, e := range c.entries {
			if e.State == Pending || (e.ClientID != "" && e.Sender.Is(c.me)) {
				local = append(local, e)
			}
		}
		c.entries = make([]Entry, 0, len(fetched)+len(local))
		seen := make(map[string]struct{}, len(fetched))
		seenClient := make(map[string]struct{})
		for _, m := range fetched {
			if !m.Between(c.me, peer) {
				continue
			}
			if m.ID != "" {
				if _, dup := seen[m.ID]; dup {
					continue
				}
				seen[m.ID] = struct{}{}
			}
			if m.ClientID != "" {
				seenClient[m.ClientID] = struct{}{}
			}
			c.entries = append(c.entries, Entry{Message: m, State: Confirmed})
		}
		for _, e := range local {
			if _, dup := seen[e.ID]; dup && e.State == Confirmed {
				continue
			}
			if _, dup := seenClient[e.ClientID]; dup && e.ClientID != "" {
				continue
			}
			c.entries = append(c.entries, e)
		}
	}
	for _, m := range c.buffered {
		c.applyLocked(m)
	}
	c.buffered = nil
	unread := c.unreadLocked()
	c.mu.Unlock()

	c.changed()
	if err != nil {
		c.log.Error().Err(err).Str(logging.FieldPeerID, peer).Msg("load history failed")
		return fmt.Errorf("chat: load history: %w", err)
	}
	for _, id := range unread {
		c.markReadAsync(id)
	}
	return nil
}

// ApplyIncoming merges a pushed message into the active conversation. It
// reports whether the message was stored or held for a pending load.
func (c *Conversation) ApplyIncoming(m wire.Message) bool {
	c.mu.Lock()
	sel := c.selection
	c.mu.Unlock()
	return c.applyIncoming(sel, m)
}

func (c *Conversation) applyIncoming(sel uint64, m wire.Message) bool {
	m = m.Normalized(c.opts.Now())

	c.mu.Lock()
	if c.closed || c.selection != sel || c.peer == "" || !m.Between(c.me, c.peer) {
		c.mu.Unlock()
		return false
	}
	if m.Sender.Is(c.peer) {
		c.setRemoteTypingLocked(false)
	}
	if c.loading {
		c.buffered = append(c.buffered, m)
		c.mu.Unlock()
		return true
	}
	stored := c.applyLocked(m)
	autoRead := stored && c.wantsReadLocked(m)
	c.mu.Unlock()

	if stored {
		c.changed()
	}
	if autoRead {
		c.markReadAsync(m.ID)
	}
	return stored
}

// applyLocked stores m unless it duplicates an entry. A message carrying
// the correlation id of a pending entry confirms that entry in place.
func (c *Conversation) applyLocked(m wire.Message) bool {
	if !m.Between(c.me, c.peer) {
		return false
	}
	if m.ID != "" && c.indexByIDLocked(m.ID) >= 0 {
		return false
	}
	if m.ClientID != "" {
		if i := c.indexByClientIDLocked(m.ClientID); i >= 0 {
			if c.entries[i].State != Pending {
				return false
			}
			c.entries[i] = Entry{Message: m, State: Confirmed}
			return true
		}
	}
	for _, e := range c.entries {
		if e.Sender.ID == m.Sender.ID && e.Text == m.Text && within(e.CreatedAt, m.CreatedAt, c.opts.DuplicateWindow) {
			return false
		}
	}
	c.entries = append(c.entries, Entry{Message: m, State: Confirmed})
	return true
}

func within(a, b time.Time, window time.Duration) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// Send renders text immediately as a pending entry, persists it and then
// swaps the pending entry for the stored message. On failure the pending
// entry is removed and the error returned.
func (c *Conversation) Send(ctx context.Context, text string) (Entry, error) {
	text = normalize.Text(text)
	if text == "" {
		return Entry{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Entry{}, ErrClosed
	}
	if c.me == "" {
		c.mu.Unlock()
		return Entry{}, ErrNoUser
	}
	if c.peer == "" {
		c.mu.Unlock()
		return Entry{}, ErrNoPeer
	}
	now := c.opts.Now()
	pending := Entry{
		Message: wire.Message{
			ID:        TempIDPrefix + strconv.FormatInt(now.UnixMilli(), 10),
			ClientID:  c.opts.NewClientID(),
			Sender:    wire.Ref(c.me),
			Receiver:  wire.Ref(c.peer),
			Text:      text,
			CreatedAt: now,
		},
		State: Pending,
	}
	c.entries = append(c.entries, pending)
	peer, sel, typing := c.peer, c.selection, c.typing
	c.mu.Unlock()
	c.changed()

	if typing != nil {
		typing.Stop()
	}

	saved, err := c.api.SendMessage(ctx, api.SendMessageRequest{Receiver: peer, Text: text, ClientID: pending.ClientID})
	if err != nil {
		failed := pending
		failed.State = Failed
		c.mu.Lock()
		if i := c.indexByClientIDLocked(pending.ClientID); i >= 0 && c.entries[i].State == Pending {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
		}
		c.mu.Unlock()
		c.changed()
		if c.opts.OnFailed != nil {
			c.opts.OnFailed(failed)
		}
		c.log.Warn().Err(err).Str(logging.FieldPeerID, peer).Msg("send failed, optimistic message removed")
		return failed, fmt.Errorf("chat: send message: %w", err)
	}

	saved = saved.Normalized(now)
	if saved.Sender.ID == "" {
		saved.Sender = wire.Ref(c.me)
	}
	if saved.Receiver.ID == "" {
		saved.Receiver = wire.Ref(peer)
	}
	echoedID := saved.ClientID != ""
	if !echoedID {
		saved.ClientID = pending.ClientID
	}
	confirmed := Entry{Message: saved, State: Confirmed}

	c.mu.Lock()
	if c.selection == sel {
		c.confirmLocked(confirmed, pending, echoedID)
	}
	c.mu.Unlock()
	c.changed()

	if err := c.stream.Emit(wire.EventSendMessage, saved); err != nil {
		c.log.Warn().Err(err).Str("message_id", saved.ID).Msg("broadcast of sent message failed")
	}
	return confirmed, nil
}

// confirmLocked replaces the pending entry with the stored one. The entry is
// found by correlation id; a server that does not echo the id falls back to
// the first pending entry with identical text. A copy of the stored message
// that arrived by push first is folded away.
func (c *Conversation) confirmLocked(confirmed, pending Entry, echoed bool) {
	i := c.indexByClientIDLocked(pending.ClientID)
	if i < 0 && !echoed {
		for j, e := range c.entries {
			if e.State == Pending && e.Text == pending.Text {
				i = j
				break
			}
		}
	}

	if i < 0 {
		if confirmed.ID == "" || c.indexByIDLocked(confirmed.ID) < 0 {
			c.entries = append(c.entries, confirmed)
		}
		return
	}
	c.entries[i] = confirmed
	if confirmed.ID == "" {
		return
	}
	for j := len(c.entries) - 1; j >= 0; j-- {
		if j != i && c.entries[j].ID == confirmed.ID {
			c.entries = append(c.entries[:j], c.entries[j+1:]...)
		}
	}
}

// MarkRead flags a message read locally, tells the sender over the live
// channel and persists the flag. A failed request is logged and returned;
// the local flag stays set.
func (c *Conversation) MarkRead(ctx context.Context, messageID string) error {
	c.mu.Lock()
	if i := c.indexByIDLocked(messageID); i >= 0 {
		c.entries[i].Read = true
	}
	c.mu.Unlock()
	c.changed()

	if err := c.stream.Emit(wire.EventMarkAsRead, messageID); err != nil {
		c.log.Warn().Err(err).Str("message_id", messageID).Msg("read receipt not broadcast")
	}
	if err := c.api.MarkRead(ctx, messageID); err != nil {
		c.log.Warn().Err(err).Str("message_id", messageID).Msg("mark read failed")
		return fmt.Errorf("chat: mark read %s: %w", messageID, err)
	}
	return nil
}

func (c *Conversation) markReadAsync(id string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.MarkRead(ctx, id)
	}()
}

func (c *Conversation) wantsReadLocked(m wire.Message) bool {
	return !c.opts.DisableAutoMarkRead && m.ID != "" && !m.Read && m.Receiver.Is(c.me)
}

func (c *Conversation) unreadLocked() []string {
	var ids []string
	for _, e := range c.entries {
		if e.State == Confirmed && c.wantsReadLocked(e.Message) {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Keystroke forwards a local keystroke to the typing indicator.
func (c *Conversation) Keystroke() error {
	c.mu.Lock()
	t := c.typing
	c.mu.Unlock()
	if t == nil {
		return ErrNoPeer
	}
	return t.Keystroke()
}

// StopTyping ends the local typing state now.
func (c *Conversation) StopTyping() error {
	c.mu.Lock()
	t := c.typing
	c.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Stop()
}

func (c *Conversation) onReceive(sel uint64, data []byte) {
	var m wire.Message
	if err := json.Unmarshal(data, &m); err != nil {
		c.log.Warn().Err(err).Str(logging.FieldEvent, wire.EventReceiveMessage).Msg("dropping malformed message")
		return
	}
	c.applyIncoming(sel, m)
}

func (c *Conversation) onTyping(sel uint64, data []byte) {
	var ev wire.TypingEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Warn().Err(err).Str(logging.FieldEvent, wire.EventTypingStatus).Msg("dropping malformed typing event")
		return
	}
	c.mu.Lock()
	if c.selection != sel || !ev.Sender.Is(c.peer) || !ev.Receiver.Is(c.me) {
		c.mu.Unlock()
		return
	}
	c.setRemoteTypingLocked(ev.IsTyping)
	c.mu.Unlock()
	c.changed()
}

func (c *Conversation) onReadReceipt(sel uint64, data []byte) {
	var r wire.ReadReceipt
	if err := json.Unmarshal(data, &r); err != nil {
		c.log.Warn().Err(err).Str(logging.FieldEvent, wire.EventMessageRead).Msg("dropping malformed read receipt")
		return
	}
	c.mu.Lock()
	i := -1
	if c.selection == sel {
		i = c.indexByIDLocked(r.MessageID)
	}
	if i >= 0 {
		c.entries[i].Read = true
	}
	c.mu.Unlock()
	if i >= 0 {
		c.changed()
	}
}

func (c *Conversation) setRemoteTypingLocked(v bool) {
	c.remoteTyping = v
	if c.remoteTimer != nil {
		c.remoteTimer.Stop()
		c.remoteTimer = nil
	}
	if !v || c.opts.RemoteTypingTimeout <= 0 {
		return
	}
	sel := c.selection
	c.remoteTimer = time.AfterFunc(c.opts.RemoteTypingTimeout, func() {
		c.mu.Lock()
		expired := c.selection == sel && c.remoteTyping
		if expired {
			c.remoteTyping = false
			c.remoteTimer = nil
		}
		c.mu.Unlock()
		if expired {
			c.changed()
		}
	})
}

func (c *Conversation) indexByIDLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, e := range c.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (c *Conversation) indexByClientIDLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, e := range c.entries {
		if e.ClientID == id {
			return i
		}
	}
	return -1
}

func (c *Conversation) changed() {
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}

// Peer returns the selected peer id.
func (c *Conversation) Peer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// Loading reports whether a history load is in flight.
func (c *Conversation) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// RemoteTyping reports whether the peer is typing.
func (c *Conversation) RemoteTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteTyping
}

// Messages returns the store in insertion order.
func (c *Conversation) Messages() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Chronological returns the store sorted by CreatedAt. The store itself
// keeps insertion order, so late pushes show where they arrived in
// Messages and where they belong here.
func (c *Conversation) Chronological() []Entry {
	out := c.Messages()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Groups buckets the store by calendar day in loc.
func (c *Conversation) Groups(now time.Time, loc *time.Location) []Group {
	return GroupByDay(c.Messages(), now, loc)
}

// Close cancels any load, drops live handlers, stops the typing timer and
// waits for background read receipts.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	scope, typing := c.scope, c.typing
	c.scope, c.typing = nil, nil
	if c.remoteTimer != nil {
		c.remoteTimer.Stop()
		c.remoteTimer = nil
	}
	c.mu.Unlock()

	if scope != nil {
		scope.Close()
	}
	if typing != nil {
		typing.Close()
	}
	c.wg.Wait()
}
