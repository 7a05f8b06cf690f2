package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/data"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

const (
	historyLimit      = 200
	allMessagesLimit  = 500
	notificationLimit = 100
	exchangeLimit     = 200
)

// listMessages returns the conversation with ?peer=, oldest first, or every
// message the caller sent or received.
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var msgs []*data.Message
	if peerHex := r.URL.Query().Get("peer"); peerHex != "" {
		peer, err := data.ParseID(normalize.UserID(peerHex))
		if err != nil {
			respondError(w, r, err)
			return
		}
		msgs, err = s.msgs.GetMessageHistory(r.Context(), me, peer, historyLimit)
		if err != nil {
			respondError(w, r, err)
			return
		}
	} else {
		msgs, err = s.msgs.ListForUser(r.Context(), me, allMessagesLimit)
		if err != nil {
			respondError(w, r, err)
			return
		}
	}

	ids := make([]bson.ObjectID, 0, 2*len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.Sender, m.Receiver)
	}
	names := s.names(r.Context(), ids...)

	out := make([]wire.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageFrom(m, names))
	}
	respondJSON(w, http.StatusOK, out)
}

// sendMessage persists a message and returns it with both parties' names
// populated. Live delivery is the sender's job through sendMessage.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req api.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	text := normalize.Text(req.Text)
	if text == "" {
		respondError(w, r, badRequest("text is required"))
		return
	}
	receiver, err := data.ParseID(normalize.UserID(req.Receiver))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.users.GetUserByID(r.Context(), receiver); err != nil {
		respondError(w, r, err)
		return
	}

	saved, err := s.msgs.SaveMessage(r.Context(), me, receiver, text, strings.TrimSpace(req.ClientID))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, messageFrom(saved, s.names(r.Context(), me, receiver)))
}

// markMessageRead flags a message as read. Only its receiver may.
func (s *Server) markMessageRead(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	id, err := data.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	msg, err := s.msgs.MarkRead(r.Context(), id, me)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageFrom(msg, nil))
}

// listNotifications returns the owner's feed, newest first.
func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	owner, err := data.ParseID(chi.URLParam(r, "userId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if owner != me {
		respondError(w, r, data.ErrForbidden)
		return
	}

	notes, err := s.notes.ListForUser(r.Context(), me, notificationLimit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]wire.Notification, 0, len(notes))
	for _, n := range notes {
		out = append(out, notificationFrom(n))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) listExchanges(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	exchanges, err := s.exch.ListForUser(r.Context(), me, exchangeLimit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ids := make([]bson.ObjectID, 0, 2*len(exchanges))
	for _, e := range exchanges {
		ids = append(ids, e.Requester, e.Provider)
	}
	names := s.names(r.Context(), ids...)

	out := make([]api.Exchange, 0, len(exchanges))
	for _, e := range exchanges {
		out = append(out, exchangeFrom(e, names))
	}
	respondJSON(w, http.StatusOK, out)
}

// createExchange proposes an exchange to a provider and notifies them.
func (s *Server) createExchange(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		ProviderID string `json:"providerId"`
		Skill      string `json:"skill"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	skill := strings.TrimSpace(req.Skill)
	if skill == "" {
		respondError(w, r, badRequest("skill is required"))
		return
	}
	provider, err := data.ParseID(normalize.UserID(req.ProviderID))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if provider == me {
		respondError(w, r, badRequest("cannot start an exchange with yourself"))
		return
	}
	if _, err := s.users.GetUserByID(r.Context(), provider); err != nil {
		respondError(w, r, err)
		return
	}

	ex, err := s.exch.Create(r.Context(), me, provider, skill)
	if err != nil {
		respondError(w, r, err)
		return
	}
	names := s.names(r.Context(), me, provider)
	s.notify(r.Context(), &data.Notification{
		Sender:   me,
		Receiver: provider,
		Type:     "exchange",
		Message:  fmt.Sprintf("%s wants to exchange skills with you: %s", displayName(names, me), skill),
	})
	respondJSON(w, http.StatusCreated, exchangeFrom(ex, names))
}

// decideExchange moves a Pending exchange to status. Only the provider may,
// and the requester is notified.
func (s *Server) decideExchange(status string) http.HandlerFunc {
	verb := strings.ToLower(status)
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := caller(r)
		if err != nil {
			respondError(w, r, err)
			return
		}
		id, err := data.ParseID(chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		ex, err := s.exch.Decide(r.Context(), id, me, status)
		if err != nil {
			respondError(w, r, err)
			return
		}

		names := s.names(r.Context(), ex.Requester, ex.Provider)
		s.notify(r.Context(), &data.Notification{
			Sender:   me,
			Receiver: ex.Requester,
			Type:     "exchange",
			Message:  fmt.Sprintf("%s %s your exchange request for %s", displayName(names, me), verb, ex.Skill),
		})
		respondJSON(w, http.StatusOK, exchangeFrom(ex, names))
	}
}

func displayName(names map[bson.ObjectID]string, id bson.ObjectID) string {
	if n := names[id]; n != "" {
		return n
	}
	return "Someone"
}

// notify persists n and pushes it live to the receiver. Failures are logged;
// the caller's operation has already succeeded.
func (s *Server) notify(ctx context.Context, n *data.Notification) {
	log := logging.Ctx(ctx)
	saved, err := s.notes.Create(ctx, n)
	if err != nil {
		log.Error().Err(err).Str(logging.FieldPeerID, n.Receiver.Hex()).Msg("persist notification")
		return
	}
	s.push(n.Receiver.Hex(), wire.EventGetNotification, notificationFrom(saved))
}
