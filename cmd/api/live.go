package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/data"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

var (
	errSendQueueFull = errors.New("live: send queue full")
	errConnClosed    = errors.New("live: connection closed")
)

const eventTimeout = 10 * time.Second

// liveClient is one websocket connection. Frames queued with Send are
// written by a single writer goroutine.
type liveClient struct {
	srv    *Server
	ws     *websocket.Conn
	userID string
	connID int64
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	log    zerolog.Logger
}

// Send queues frame without blocking. A full queue means the client is not
// keeping up and the hub drops it.
func (c *liveClient) Send(frame []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		c.close()
		return errSendQueueFull
	}
}

func (c *liveClient) close() {
	c.once.Do(func() { close(c.done) })
}

// serveWS upgrades an authenticated request and runs the connection until
// either side closes it.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"message": "missing authorization header"})
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already answered
		log := logging.Ctx(r.Context())
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &liveClient{
		srv:    s,
		ws:     ws,
		userID: claims.UserID,
		send:   make(chan []byte, s.ws.SendBuffer),
		done:   make(chan struct{}),
	}
	c.connID = s.hub.Register(c.userID, c)
	c.log = s.log.With().
		Str(logging.FieldComponent, "live").
		Str(logging.FieldUserID, c.userID).
		Int64("conn_id", c.connID).
		Logger()
	c.log.Info().Msg("live connection opened")

	s.connected(c.userID)
	go c.writePump()
	c.readPump()

	c.close()
	last := s.hub.Unregister(c.userID, c.connID)
	s.disconnected(c.userID)
	c.log.Info().Bool("last_connection", last).Msg("live connection closed")
}

func (s *Server) connected(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := s.presence.Connect(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str(logging.FieldUserID, userID).Msg("presence connect")
	}
	s.broadcastOnline(ctx)
}

func (s *Server) disconnected(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := s.presence.Disconnect(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str(logging.FieldUserID, userID).Msg("presence disconnect")
	}
	s.broadcastOnline(ctx)
}

// broadcastOnline sends the full online snapshot to every connection.
func (s *Server) broadcastOnline(ctx context.Context) {
	ids, err := s.presence.Online(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("read online users")
		return
	}
	frame, err := wire.Encode(wire.EventOnlineUsers, ids)
	if err != nil {
		s.log.Error().Err(err).Msg("encode online users")
		return
	}
	s.hub.Broadcast(frame)
}

// runPresence rebroadcasts the snapshot every interval until ctx ends.
// Other instances' connections only show up through these ticks.
func (s *Server) runPresence(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tickCtx, cancel := context.WithTimeout(ctx, eventTimeout)
			s.broadcastOnline(tickCtx)
			cancel()
		}
	}
}

// push encodes payload and delivers it to userID's room. An offline
// receiver is not an error.
func (s *Server) push(userID, event string, payload any) {
	s.pushExcept(userID, 0, event, payload)
}

// pushExcept is push but leaves out connection skip.
func (s *Server) pushExcept(userID string, skip int64, event string, payload any) {
	frame, err := wire.Encode(event, payload)
	if err != nil {
		s.log.Error().Err(err).Str(logging.FieldEvent, event).Msg("encode live event")
		return
	}
	if !s.hub.Connected(userID) {
		return
	}
	if err := s.hub.SendToUserExcept(userID, skip, frame); err != nil {
		s.log.Debug().Err(err).Str(logging.FieldEvent, event).Str(logging.FieldPeerID, userID).Msg("live delivery failed")
	}
}

func (c *liveClient) readPump() {
	opts := c.srv.ws
	c.ws.SetReadLimit(opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	limitKey := fmt.Sprintf("ws:%s:%d", c.userID, c.connID)
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("live read failed")
			}
			return
		}
		// any frame proves the peer is alive
		_ = c.ws.SetReadDeadline(time.Now().Add(opts.PongWait))

		env, err := wire.Decode(frame)
		if err != nil {
			c.reject("", "malformed frame")
			continue
		}
		if c.srv.eventLimiter != nil && !c.srv.eventLimiter.Allow(limitKey) {
			c.reject(env.Event, "rate limit exceeded")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		err = c.srv.dispatch(logging.WithLogger(ctx, c.log), c, env)
		cancel()
		if err != nil {
			c.log.Debug().Err(err).Str(logging.FieldEvent, env.Event).Msg("live event rejected")
			c.reject(env.Event, err.Error())
		}
	}
}

func (c *liveClient) writePump() {
	opts := c.srv.ws
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug().Err(err).Msg("live write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(opts.WriteWait))
			return
		}
	}
}

func (c *liveClient) reject(event, msg string) {
	frame, err := wire.Encode(wire.EventError, wire.ErrorPayload{Event: event, Message: msg})
	if err != nil {
		return
	}
	_ = c.Send(frame)
}

// eventError is reported back to the sender as an error event.
type eventError string

func (e eventError) Error() string { return string(e) }

// dispatch handles one inbound event. Identities in payloads are never
// trusted: the sender is always the authenticated user.
func (s *Server) dispatch(ctx context.Context, c *liveClient, env wire.Envelope) error {
	switch env.Event {
	case wire.EventUserOnline, wire.EventJoinRoom:
		var ref wire.UserRef
		if err := json.Unmarshal(env.Data, &ref); err != nil || !ref.Is(c.userID) {
			return eventError("can only join your own room")
		}
		if env.Event == wire.EventUserOnline {
			s.broadcastOnline(ctx)
		}
		return nil

	case wire.EventSendMessage:
		return s.relayMessage(ctx, c, env.Data)

	case wire.EventTyping:
		var ev wire.TypingEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.Receiver.ID == "" {
			return eventError("typing needs a receiver")
		}
		ev.Sender = wire.Ref(c.userID)
		ev.Receiver = wire.Ref(ev.Receiver.ID)
		s.push(ev.Receiver.ID, wire.EventTypingStatus, ev)
		return nil

	case wire.EventMarkAsRead:
		var rr wire.ReadReceipt
		if err := json.Unmarshal(env.Data, &rr); err != nil {
			return eventError("markAsRead needs a message id")
		}
		id, err := data.ParseID(normalize.UserID(rr.MessageID))
		if err != nil {
			return eventError("invalid message id")
		}
		reader, _ := data.ParseID(c.userID)
		msg, err := s.msgs.MarkRead(ctx, id, reader)
		if err != nil {
			return liveError(ctx, err)
		}
		s.push(msg.Sender.Hex(), wire.EventMessageRead, wire.ReadReceipt{MessageID: msg.ID.Hex(), ReaderID: c.userID})
		return nil

	case wire.EventSendNotification:
		var req wire.NotificationRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return eventError("invalid notification")
		}
		receiver, err := data.ParseID(normalize.UserID(req.ReceiverID))
		if err != nil {
			return eventError("invalid receiver")
		}
		text := normalize.Text(req.Message)
		if text == "" {
			return eventError("notification message is required")
		}
		sender, _ := data.ParseID(c.userID)
		kind := strings.TrimSpace(req.Type)
		if kind == "" {
			kind = "message"
		}
		saved, err := s.notes.Create(ctx, &data.Notification{Sender: sender, Receiver: receiver, Type: kind, Message: text})
		if err != nil {
			return liveError(ctx, err)
		}
		s.push(receiver.Hex(), wire.EventGetNotification, notificationFrom(saved))
		return nil

	default:
		return eventError(fmt.Sprintf("unknown event %q", env.Event))
	}
}

// relayMessage forwards a message to the receiver's room and the sender's
// other connections. A message that names a stored id is relayed from the
// store so its text and timestamp cannot be forged.
func (s *Server) relayMessage(ctx context.Context, c *liveClient, payload json.RawMessage) error {
	var m wire.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return eventError("invalid message")
	}
	m.Sender = wire.Ref(c.userID)
	m.Receiver = wire.Ref(m.Receiver.ID)
	m.Text = normalize.Text(m.Text)
	if m.Receiver.ID == "" || m.Text == "" {
		return eventError("message needs a receiver and text")
	}

	if id, err := data.ParseID(m.ID); err == nil {
		stored, err := s.msgs.GetMessage(ctx, id)
		if err != nil {
			return liveError(ctx, err)
		}
		if stored.Sender.Hex() != c.userID {
			return liveError(ctx, data.ErrForbidden)
		}
		m = messageFrom(stored, s.names(ctx, stored.Sender, stored.Receiver))
	} else {
		m = m.Normalized(time.Now().UTC())
	}

	s.push(m.Receiver.ID, wire.EventReceiveMessage, m)
	if m.Receiver.ID != c.userID {
		s.pushExcept(c.userID, c.connID, wire.EventReceiveMessage, m)
	}
	return nil
}

// liveError hides storage failures from clients.
func liveError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, data.ErrForbidden), errors.Is(err, data.ErrMessageNotFound), errors.Is(err, data.ErrInvalidID):
		return eventError(err.Error())
	}
	log := logging.Ctx(ctx)
	log.Error().Err(err).Msg("live event failed")
	return eventError("internal error")
}

// originChecker allows every origin when allowed is empty.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// non-browser clients send no Origin
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}
