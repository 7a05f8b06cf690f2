package wire

import (
	"encoding/json"
	"time"
)

// Message is the canonical chat message. CreatedAt is zero when the
// producer sent a missing or unparseable timestamp.
type Message struct {
	ID        string    `json:"_id"`
	ClientID  string    `json:"clientId,omitempty"`
	Sender    UserRef   `json:"sender"`
	Receiver  UserRef   `json:"receiver"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

// UnmarshalJSON decodes any producer's message shape.
func (m *Message) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        string          `json:"_id"`
		AltID     string          `json:"id"`
		ClientID  string          `json:"clientId"`
		Sender    UserRef         `json:"sender"`
		Receiver  UserRef         `json:"receiver"`
		Text      string          `json:"text"`
		CreatedAt json.RawMessage `json:"createdAt"`
		Read      bool            `json:"read"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*m = Message{
		ID:       raw.ID,
		ClientID: raw.ClientID,
		Sender:   raw.Sender,
		Receiver: raw.Receiver,
		Text:     raw.Text,
		Read:     raw.Read,
	}
	if m.ID == "" {
		m.ID = raw.AltID
	}
	m.CreatedAt, _ = ParseTime(raw.CreatedAt)
	return nil
}

// Normalized returns m with a usable timestamp: a zero CreatedAt becomes now.
// Live pushes go through this before they reach a store.
func (m Message) Normalized(now time.Time) Message {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	return m
}

// Between reports whether m belongs to the conversation {a, b}, in either
// direction.
func (m Message) Between(a, b string) bool {
	return (m.Sender.Is(a) && m.Receiver.Is(b)) || (m.Sender.Is(b) && m.Receiver.Is(a))
}

// ReadReceipt announces that a message was read. Clients emit markAsRead
// with a bare message id; the server answers the sender with messageRead.
type ReadReceipt struct {
	MessageID string `json:"messageId"`
	ReaderID  string `json:"readerId,omitempty"`
}

// UnmarshalJSON accepts a bare id string or an object.
func (r *ReadReceipt) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		*r = ReadReceipt{MessageID: id}
		return nil
	}
	type plain ReadReceipt
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = ReadReceipt(p)
	return nil
}

// TypingEvent is both the outgoing typing and the incoming typingStatus payload.
type TypingEvent struct {
	Sender   UserRef `json:"sender"`
	Receiver UserRef `json:"receiver"`
	IsTyping bool    `json:"isTyping"`
}
