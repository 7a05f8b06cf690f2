package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

// SendMessageRequest persists one message. ClientID is echoed back so the
// sender can reconcile its optimistic entry.
type SendMessageRequest struct {
	Receiver string `json:"receiver"`
	Text     string `json:"text"`
	ClientID string `json:"clientId,omitempty"`
}

// Messages returns the caller's messages, limited to peerID when set.
func (c *Client) Messages(ctx context.Context, peerID string) ([]wire.Message, error) {
	path := "/api/messages"
	if peerID != "" {
		path += "?peer=" + url.QueryEscape(peerID)
	}
	return list[wire.Message](ctx, c, path, "messages")
}

// SendMessage persists a message and returns the stored copy.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (wire.Message, error) {
	body, err := jsonBody(req)
	if err != nil {
		return wire.Message{}, err
	}
	var out wire.Message
	err = c.do(ctx, request{method: http.MethodPost, path: "/api/messages", body: body}, &out)
	return out, err
}

// MarkRead flags a received message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.do(ctx, request{method: http.MethodPut, path: "/api/messages/read/" + url.PathEscape(messageID)}, nil)
}

// Notifications returns the feed for userID, newest first.
func (c *Client) Notifications(ctx context.Context, userID string) ([]wire.Notification, error) {
	return list[wire.Notification](ctx, c, "/api/notifications/"+url.PathEscape(userID), "notifications")
}
