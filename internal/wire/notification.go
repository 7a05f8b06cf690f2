package wire

import (
	"encoding/json"
	"time"
)

// Notification is one entry of a user's notification feed.
type Notification struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId,omitempty"`
	ReceiverID string    `json:"receiverId,omitempty"`
	Type       string    `json:"type,omitempty"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UnmarshalJSON accepts id/_id and userId as an alias of receiverId.
func (n *Notification) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID         string          `json:"_id"`
		AltID      string          `json:"id"`
		SenderID   UserRef         `json:"senderId"`
		ReceiverID UserRef         `json:"receiverId"`
		UserID     UserRef         `json:"userId"`
		Type       string          `json:"type"`
		Message    string          `json:"message"`
		CreatedAt  json.RawMessage `json:"createdAt"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*n = Notification{
		ID:         raw.ID,
		SenderID:   raw.SenderID.ID,
		ReceiverID: raw.ReceiverID.ID,
		Type:       raw.Type,
		Message:    raw.Message,
	}
	if n.ID == "" {
		n.ID = raw.AltID
	}
	if n.ReceiverID == "" {
		n.ReceiverID = raw.UserID.ID
	}
	n.CreatedAt, _ = ParseTime(raw.CreatedAt)
	return nil
}

// NotificationRequest is the sendNotification payload.
type NotificationRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Type       string `json:"type"`
	Message    string `json:"message"`
}
