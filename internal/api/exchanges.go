package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

// Exchange statuses.
const (
	ExchangePending  = "Pending"
	ExchangeAccepted = "Accepted"
	ExchangeDeclined = "Declined"
)

// Exchange is a proposal from a requester to learn a skill the provider offers.
type Exchange struct {
	ID        string       `json:"_id"`
	Requester wire.UserRef `json:"requester"`
	Provider  wire.UserRef `json:"provider"`
	Skill     string       `json:"skill"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Exchanges lists the exchanges the caller takes part in.
func (c *Client) Exchanges(ctx context.Context) ([]Exchange, error) {
	return list[Exchange](ctx, c, "/api/exchanges", "exchanges")
}

// CreateExchange proposes an exchange to providerID.
func (c *Client) CreateExchange(ctx context.Context, providerID, skill string) (Exchange, error) {
	body, err := jsonBody(map[string]string{"providerId": providerID, "skill": skill})
	if err != nil {
		return Exchange{}, err
	}
	var out Exchange
	err = c.do(ctx, request{method: http.MethodPost, path: "/api/exchanges", body: body}, &out)
	return out, err
}

// AcceptExchange accepts a pending exchange addressed to the caller.
func (c *Client) AcceptExchange(ctx context.Context, id string) (Exchange, error) {
	return c.decide(ctx, id, "accept")
}

// DeclineExchange declines a pending exchange addressed to the caller.
func (c *Client) DeclineExchange(ctx context.Context, id string) (Exchange, error) {
	return c.decide(ctx, id, "decline")
}

func (c *Client) decide(ctx context.Context, id, action string) (Exchange, error) {
	var out Exchange
	err := c.do(ctx, request{method: http.MethodPut, path: "/api/exchanges/" + url.PathEscape(id) + "/" + action}, &out)
	return out, err
}
