// Package api is the REST client for the SkillSwap server. Every protected
// call carries the session's bearer token; list endpoints tolerate either a
// bare array or an envelope object.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

// ErrUnauthenticated is returned without issuing a request when the client
// has no token, and matched by a 401 *Error.
var ErrUnauthenticated = errors.New("api: not authenticated")

// Error is a non-2xx response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrUnauthenticated) match a 401.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthenticated && e.Status == http.StatusUnauthorized
}

// Client talks to one server as one user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 15s-timeout http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a client for baseURL authenticated with token. An empty token
// is allowed for Login and Register.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     logging.Component("api"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Authenticated reports whether protected calls can be made.
func (c *Client) Authenticated() bool { return c.token != "" }

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	public      bool
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

// raw performs r and returns the response body of a 2xx reply.
func (c *Client) raw(ctx context.Context, r request) ([]byte, error) {
	if !r.public && c.token == "" {
		return nil, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("api: build %s %s: %w", r.method, r.path, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		ct := r.contentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.Set("Content-Type", ct)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("api: read %s %s: %w", r.method, r.path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp.StatusCode, body)
	}
	return body, nil
}

func decodeError(status int, body []byte) error {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}
	return &Error{Status: status, Message: msg}
}

// do performs r and decodes a JSON reply into out when out is non-nil.
func (c *Client) do(ctx context.Context, r request, out any) error {
	body, err := c.raw(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

// list performs a GET whose reply should hold a list. A reply that holds no
// list is logged and treated as empty.
func list[T any](ctx context.Context, c *Client, path string, fields ...string) ([]T, error) {
	body, err := c.raw(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return nil, err
	}
	out, err := wire.DecodeList[T](body, fields...)
	if errors.Is(err, wire.ErrNotAList) {
		c.log.Warn().Str(logging.FieldPath, path).Int("bytes", len(body)).Msg("expected a list, treating reply as empty")
		return []T{}, nil
	}
	return out, err
}
