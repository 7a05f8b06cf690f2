package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/session"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

const (
	testToken = "tok"
	aliceID   = "64b7f0c2a1b2c3d4e5f60001"
	bobID     = "64b7f0c2a1b2c3d4e5f60002"
)

// fakeServer answers the REST routes the CLI uses with canned data and
// records every live frame it receives.
type fakeServer struct {
	*httptest.Server

	mu        sync.Mutex
	history   []wire.Message
	sent      []api.SendMessageRequest
	decisions []string
	reads     []string

	frames chan wire.Envelope
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{frames: make(chan wire.Envelope, 64)}

	r := chi.NewRouter()
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
			return
		}
		writeJSON(w, http.StatusOK, api.AuthResponse{Token: testToken, Name: "Alice", UserID: aliceID})
	})
	r.Post("/api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req api.RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, http.StatusCreated, api.AuthResponse{Token: testToken, Name: req.Name, UserID: aliceID})
	})

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer "+testToken {
					writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
					return
				}
				next.ServeHTTP(w, r)
			})
		})
		r.Get("/api/auth/profiles", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []api.Profile{
				{ID: bobID, Name: "Bob", SkillsOffered: []string{"Go"}, SkillsWanted: []string{"Spanish"}},
				{ID: "64b7f0c2a1b2c3d4e5f60003", Name: "Cara", SkillsOffered: []string{"Piano"}},
			})
		})
		r.Get("/api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, api.Profile{ID: aliceID, Name: "Alice", Email: "alice@example.com"})
		})
		r.Get("/api/auth/profile/{id}", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "id") != bobID {
				writeJSON(w, http.StatusNotFound, map[string]string{"message": "User not found"})
				return
			}
			writeJSON(w, http.StatusOK, api.Profile{ID: bobID, Name: "Bob"})
		})
		r.Get("/api/messages", func(w http.ResponseWriter, r *http.Request) {
			fs.mu.Lock()
			defer fs.mu.Unlock()
			writeJSON(w, http.StatusOK, fs.history)
		})
		r.Post("/api/messages", func(w http.ResponseWriter, r *http.Request) {
			var req api.SendMessageRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			fs.mu.Lock()
			fs.sent = append(fs.sent, req)
			n := len(fs.sent)
			fs.mu.Unlock()
			writeJSON(w, http.StatusCreated, wire.Message{
				ID:        "m-new-" + strconv.Itoa(n),
				ClientID:  req.ClientID,
				Sender:    wire.UserRef{ID: aliceID, Name: "Alice"},
				Receiver:  wire.UserRef{ID: req.Receiver, Name: "Bob"},
				Text:      req.Text,
				CreatedAt: time.Now().UTC(),
			})
		})
		r.Put("/api/messages/read/{id}", func(w http.ResponseWriter, r *http.Request) {
			fs.mu.Lock()
			fs.reads = append(fs.reads, chi.URLParam(r, "id"))
			fs.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
		})
		r.Get("/api/notifications/{user}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []wire.Notification{
				{ID: "n2", Type: "exchange", Message: "Bob accepted your exchange request for Go"},
				{ID: "n1", Type: "message", Message: "Bob sent you a message"},
			})
		})
		r.Get("/api/exchanges", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []api.Exchange{
				{ID: "x1", Requester: wire.UserRef{ID: aliceID, Name: "Alice"}, Provider: wire.UserRef{ID: bobID, Name: "Bob"}, Skill: "Go", Status: api.ExchangePending},
				{ID: "x2", Requester: wire.UserRef{ID: bobID, Name: "Bob"}, Provider: wire.UserRef{ID: aliceID, Name: "Alice"}, Skill: "Spanish", Status: api.ExchangeAccepted},
			})
		})
		r.Post("/api/exchanges", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				ProviderID string `json:"providerId"`
				Skill      string `json:"skill"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, http.StatusCreated, api.Exchange{ID: "x3", Skill: body.Skill, Status: api.ExchangePending})
		})
		r.Put("/api/exchanges/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
			fs.mu.Lock()
			fs.decisions = append(fs.decisions, chi.URLParam(r, "id")+":"+chi.URLParam(r, "action"))
			fs.mu.Unlock()
			status := api.ExchangeAccepted
			if chi.URLParam(r, "action") == "decline" {
				status = api.ExchangeDeclined
			}
			writeJSON(w, http.StatusOK, api.Exchange{ID: chi.URLParam(r, "id"), Skill: "Go", Status: status})
		})
		r.Get("/ws", fs.serveWS)
	})

	fs.Server = httptest.NewServer(r)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) serveWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	snapshot, _ := wire.Encode(wire.EventOnlineUsers, []string{aliceID, bobID})
	_ = ws.WriteMessage(websocket.TextMessage, snapshot)
	for {
		_, b, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if env, err := wire.Decode(b); err == nil {
			select {
			case fs.frames <- env:
			default:
			}
		}
	}
}

// waitFrame returns the first live frame named event.
func (fs *fakeServer) waitFrame(t *testing.T, event string) wire.Envelope {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case env := <-fs.frames:
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s frame", event)
			return wire.Envelope{}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// cliEnv points the CLI at a fake server and a private session file.
type cliEnv struct {
	server  *fakeServer
	session string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	fs := newFakeServer(t)
	path := filepath.Join(t.TempDir(), "session.json")
	t.Setenv("SKILLSWAP_API_URL", fs.URL)
	t.Setenv("SKILLSWAP_LIVE_URL", "")
	t.Setenv("SKILLSWAP_SESSION", path)
	t.Setenv("SKILLSWAP_LOG_LEVEL", "error")
	return &cliEnv{server: fs, session: path}
}

// login stores a valid session without going through the prompts.
func (e *cliEnv) login(t *testing.T) {
	t.Helper()
	err := session.NewStore(e.session).Save(session.Session{Token: testToken, UserName: "Alice", UserID: aliceID})
	if err != nil {
		t.Fatalf("save session: %v", err)
	}
}

// run executes the CLI with stdin and returns what it printed.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(strings.NewReader(stdin), &out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}
