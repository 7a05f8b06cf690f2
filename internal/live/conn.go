// Package live is the client side of the live event channel: one websocket
// per session, announced and joined to the user's room on connect, with
// named-event subscribe and emit.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/session"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

// ErrClosed is returned by Emit after the connection has gone away.
var ErrClosed = errors.New("live: connection closed")

// Handler receives the raw data of one event. Handlers run one at a time on
// the connection's reader goroutine.
type Handler func(data []byte)

// Unsubscribe removes the handler it was returned for. Calling it more than
// once is harmless.
type Unsubscribe func()

// Options tunes the connection. Zero values take the defaults below.
type Options struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	MaxMessageSize   int64
	SendBuffer       int
	Logger           *zerolog.Logger
}

func (o *Options) setDefaults() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
}

// Conn is a live connection owned by one session.
type Conn struct {
	ws     *websocket.Conn
	userID string
	opts   Options
	log    zerolog.Logger

	mu       sync.Mutex
	handlers map[string]map[uint64]Handler
	nextID   uint64
	rooms    map[string]struct{}

	send      chan []byte
	queued    atomic.Uint64
	written   atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Dial opens the connection for sess, announces the user as online and
// joins the user's private room.
func Dial(ctx context.Context, url string, sess session.Session, opts Options) (*Conn, error) {
	if !sess.Authenticated() {
		return nil, session.ErrNoSession
	}
	opts.setDefaults()

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+sess.Token)

	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("live: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("live: dial %s: %w", url, err)
	}

	c := newConn(ws, sess.UserID, opts)
	go c.writePump()
	go c.readPump()

	if err := c.Emit(wire.EventUserOnline, sess.UserID); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.JoinRoom(sess.UserID); err != nil {
		c.Close()
		return nil, err
	}
	c.log.Info().Msg("live connection established")
	return c, nil
}

func newConn(ws *websocket.Conn, userID string, opts Options) *Conn {
	logger := logging.Component("live")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Conn{
		ws:       ws,
		userID:   userID,
		opts:     opts,
		log:      logger.With().Str(logging.FieldUserID, userID).Logger(),
		handlers: make(map[string]map[uint64]Handler),
		rooms:    make(map[string]struct{}),
		send:     make(chan []byte, opts.SendBuffer),
		done:     make(chan struct{}),
	}
}

// UserID is the identity the connection was opened for.
func (c *Conn) UserID() string { return c.userID }

// Subscribe registers h for event.
func (c *Conn) Subscribe(event string, h Handler) Unsubscribe {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.handlers[event][id] = h
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if hs, ok := c.handlers[event]; ok {
				delete(hs, id)
				if len(hs) == 0 {
					delete(c.handlers, event)
				}
			}
		})
	}
}

// Handlers returns how many handlers are registered for event.
func (c *Conn) Handlers(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[event])
}

// Emit queues event for the writer. It blocks while the send buffer is full
// and fails once the connection is closed.
func (c *Conn) Emit(event string, payload any) error {
	frame, err := wire.Encode(event, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.queued.Add(1)
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Flush waits until every event emitted before the call has been written
// to the socket.
func (c *Conn) Flush(ctx context.Context) error {
	target := c.queued.Load()
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for c.written.Load() < target {
		select {
		case <-c.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// JoinRoom joins the room for id. Only the first join per id reaches the
// server.
func (c *Conn) JoinRoom(id string) error {
	c.mu.Lock()
	if _, joined := c.rooms[id]; joined {
		c.mu.Unlock()
		return nil
	}
	c.rooms[id] = struct{}{}
	c.mu.Unlock()

	if err := c.Emit(wire.EventJoinRoom, id); err != nil {
		c.mu.Lock()
		delete(c.rooms, id)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Done is closed when the connection ends for any reason.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the connection, if any.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close sends a normal closure and tears the connection down.
func (c *Conn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.opts.WriteWait))
	c.shutdown(nil)
	return nil
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		c.ws.Close()
	})
}

func (c *Conn) readPump() {
	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Error().Err(err).Msg("live connection lost")
				} else {
					c.log.Info().Err(err).Msg("live connection closed")
				}
			}
			c.shutdown(err)
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		env, err := wire.Decode(frame)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Conn) dispatch(env wire.Envelope) {
	c.mu.Lock()
	hs := c.handlers[env.Event]
	ids := make([]uint64, 0, len(hs))
	for id := range hs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Handler, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, hs[id])
	}
	c.mu.Unlock()

	if len(fns) == 0 {
		c.log.Debug().Str(logging.FieldEvent, env.Event).Msg("no handler for event")
		return
	}
	for _, h := range fns {
		c.invoke(env, h)
	}
}

func (c *Conn) invoke(env wire.Envelope, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str(logging.FieldEvent, env.Event).Msg("event handler panicked")
		}
	}()
	h(env.Data)
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Error().Err(err).Msg("live write failed")
				c.shutdown(err)
				return
			}
			c.written.Add(1)
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}
