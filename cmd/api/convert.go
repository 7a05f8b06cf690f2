package main

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/data"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

// Responses reuse the client's wire types so both ends agree on one shape.

func profileFrom(u *data.User) api.Profile {
	p := api.Profile{
		ID:            u.ID.Hex(),
		Name:          u.Name,
		Email:         u.Email,
		Bio:           u.Bio,
		Location:      u.Location,
		City:          u.City,
		Country:       u.Country,
		Phone:         u.Phone,
		Age:           u.Age,
		Availability:  u.Availability,
		SkillsOffered: u.SkillsOffered,
		SkillsWanted:  u.SkillsWanted,
		ProfilePic:    u.ProfilePic,
	}
	if p.SkillsOffered == nil {
		p.SkillsOffered = []string{}
	}
	if p.SkillsWanted == nil {
		p.SkillsWanted = []string{}
	}
	return p
}

func refFor(id bson.ObjectID, names map[bson.ObjectID]string) wire.UserRef {
	return wire.UserRef{ID: id.Hex(), Name: names[id]}
}

func messageFrom(m *data.Message, names map[bson.ObjectID]string) wire.Message {
	return wire.Message{
		ID:        m.ID.Hex(),
		ClientID:  m.ClientID,
		Sender:    refFor(m.Sender, names),
		Receiver:  refFor(m.Receiver, names),
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		Read:      m.Read,
	}
}

func notificationFrom(n *data.Notification) wire.Notification {
	out := wire.Notification{
		ID:         n.ID.Hex(),
		ReceiverID: n.Receiver.Hex(),
		Type:       n.Type,
		Message:    n.Message,
		CreatedAt:  n.CreatedAt,
	}
	if !n.Sender.IsZero() {
		out.SenderID = n.Sender.Hex()
	}
	return out
}

func exchangeFrom(e *data.Exchange, names map[bson.ObjectID]string) api.Exchange {
	return api.Exchange{
		ID:        e.ID.Hex(),
		Requester: refFor(e.Requester, names),
		Provider:  refFor(e.Provider, names),
		Skill:     e.Skill,
		Status:    e.Status,
		CreatedAt: e.CreatedAt,
	}
}

// names populates display names. A lookup failure degrades to bare ids.
func (s *Server) names(ctx context.Context, ids ...bson.ObjectID) map[bson.ObjectID]string {
	if len(ids) == 0 {
		return nil
	}
	names, err := s.users.Names(ctx, ids...)
	if err != nil {
		log := logging.Ctx(ctx)
		log.Warn().Err(err).Msg("resolve display names")
		return nil
	}
	return names
}
