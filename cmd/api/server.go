package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/auth"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/data"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/middleware"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/presence"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/storage"
)

// The stores are consumed through these interfaces so handler tests can
// run against fakes.

type userStore interface {
	CreateUser(ctx context.Context, user *data.User) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	UserExists(ctx context.Context, email string) (bool, error)
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	ListUsers(ctx context.Context, limit int64) ([]*data.User, error)
	UpdateProfile(ctx context.Context, id bson.ObjectID, changes data.ProfileChanges) (*data.User, error)
	Names(ctx context.Context, ids ...bson.ObjectID) (map[bson.ObjectID]string, error)
}

type messageStore interface {
	SaveMessage(ctx context.Context, sender, receiver bson.ObjectID, text, clientID string) (*data.Message, error)
	GetMessage(ctx context.Context, id bson.ObjectID) (*data.Message, error)
	GetMessageHistory(ctx context.Context, user, peer bson.ObjectID, limit int64) ([]*data.Message, error)
	ListForUser(ctx context.Context, user bson.ObjectID, limit int64) ([]*data.Message, error)
	MarkRead(ctx context.Context, id, reader bson.ObjectID) (*data.Message, error)
}

type notificationStore interface {
	Create(ctx context.Context, n *data.Notification) (*data.Notification, error)
	ListForUser(ctx context.Context, user bson.ObjectID, limit int64) ([]*data.Notification, error)
}

type exchangeStore interface {
	Create(ctx context.Context, requester, provider bson.ObjectID, skill string) (*data.Exchange, error)
	ListForUser(ctx context.Context, user bson.ObjectID, limit int64) ([]*data.Exchange, error)
	Decide(ctx context.Context, id, provider bson.ObjectID, status string) (*data.Exchange, error)
}

// wsOptions tunes live connections.
type wsOptions struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
	AllowedOrigins []string
}

func (o *wsOptions) setDefaults() {
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

// deps is everything newServer wires together. Nil limiters disable rate
// limiting; a nil registry becomes an in-memory one.
type deps struct {
	Users          userStore
	Messages       messageStore
	Notifications  notificationStore
	Exchanges      exchangeStore
	DB             pinger
	Auth           *auth.JWTManager
	Presence       presence.Registry
	Files          storage.Store
	AuthLimiter    *middleware.LimiterStore
	EventLimiter   *middleware.LimiterStore
	WebSocket      wsOptions
	MaxUploadBytes int64
	RequestTimeout time.Duration
	Logger         *zerolog.Logger
}

// Server holds the REST handlers, the live hub and their dependencies.
type Server struct {
	users    userStore
	msgs     messageStore
	notes    notificationStore
	exch     exchangeStore
	db       pinger
	auth     *auth.JWTManager
	hub      *ConnectionHub
	presence presence.Registry
	files    storage.Store

	authLimiter  *middleware.LimiterStore
	eventLimiter *middleware.LimiterStore

	ws             wsOptions
	upgrader       websocket.Upgrader
	maxUpload      int64
	requestTimeout time.Duration
	log            zerolog.Logger
}

// newServer returns a ready-to-use Server.
func newServer(d deps) *Server {
	s := &Server{
		users:          d.Users,
		msgs:           d.Messages,
		notes:          d.Notifications,
		exch:           d.Exchanges,
		db:             d.DB,
		auth:           d.Auth,
		hub:            NewConnectionHub(),
		presence:       d.Presence,
		files:          d.Files,
		authLimiter:    d.AuthLimiter,
		eventLimiter:   d.EventLimiter,
		ws:             d.WebSocket,
		maxUpload:      d.MaxUploadBytes,
		requestTimeout: d.RequestTimeout,
		log:            logging.Component("api"),
	}
	if d.Logger != nil {
		s.log = *d.Logger
	}
	if s.presence == nil {
		s.presence = presence.NewMemory()
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 5 << 20
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = 30 * time.Second
	}
	s.ws.setDefaults()
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(s.ws.AllowedOrigins),
	}
	return s
}

// routes builds the HTTP handler: REST under /api, the live channel on /ws
// and uploaded pictures under /uploads.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(logging.HTTPMiddleware(s.log))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", healthz(s.db))
	r.With(authenticate(s.auth)).Get("/ws", s.serveWS)
	r.Get("/uploads/*", s.serveUpload)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(s.requestTimeout))

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if s.authLimiter != nil {
					r.Use(middleware.RateLimit(s.authLimiter, middleware.ByClientIP))
				}
				r.Post("/register", s.register)
				r.Post("/login", s.login)
			})
			r.Group(func(r chi.Router) {
				r.Use(authenticate(s.auth))
				r.Get("/profiles", s.listProfiles)
				r.Get("/profile", s.ownProfile)
				r.Put("/profile", s.updateProfile)
				r.Get("/profile/{id}", s.profileByID)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate(s.auth))

			r.Get("/messages", s.listMessages)
			r.Post("/messages", s.sendMessage)
			r.Put("/messages/read/{id}", s.markMessageRead)

			r.Get("/notifications/{userId}", s.listNotifications)

			r.Get("/exchanges", s.listExchanges)
			r.Post("/exchanges", s.createExchange)
			r.Put("/exchanges/{id}/accept", s.decideExchange(data.ExchangeAccepted))
			r.Put("/exchanges/{id}/decline", s.decideExchange(data.ExchangeDeclined))
		})
	})
	return r
}

// caller returns the authenticated user's id. authenticate guarantees the
// claims are present; a malformed id is reported as a bad token.
func caller(r *http.Request) (bson.ObjectID, error) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		return bson.ObjectID{}, auth.ErrInvalidToken
	}
	id, err := data.ParseID(claims.UserID)
	if err != nil {
		return bson.ObjectID{}, auth.ErrInvalidToken
	}
	return id, nil
}
