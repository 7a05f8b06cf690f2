// Package wire defines the live event channel shared by the server hub and
// the client connection: event names, the envelope and payload shapes.
//
// Producers disagree on shapes (user references arrive as bare ids or as
// populated objects, timestamps as ISO strings or epoch millis), so every
// decoder here is tolerant and yields one canonical struct.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Live event names.
const (
	EventUserOnline       = "userOnline"
	EventOnlineUsers      = "onlineUsers"
	EventJoinRoom         = "joinRoom"
	EventSendMessage      = "sendMessage"
	EventReceiveMessage   = "receiveMessage"
	EventTyping           = "typing"
	EventTypingStatus     = "typingStatus"
	EventMarkAsRead       = "markAsRead"
	EventMessageRead      = "messageRead"
	EventSendNotification = "sendNotification"
	EventGetNotification  = "getNotification"
	EventError            = "error"
)

// ErrNoEvent is returned when a frame carries no event name.
var ErrNoEvent = errors.New("wire: frame has no event name")

// Envelope is one frame on the live channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals payload into a framed event.
func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("wire: encode %s: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses a frame. Frames written as {"type": ..., "payload": ...}
// are accepted as well.
func Decode(frame []byte) (Envelope, error) {
	var raw struct {
		Event   string          `json:"event"`
		Type    string          `json:"type"`
		Data    json.RawMessage `json:"data"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode frame: %w", err)
	}
	env := Envelope{Event: raw.Event, Data: raw.Data}
	if env.Event == "" {
		env.Event = raw.Type
	}
	if len(env.Data) == 0 {
		env.Data = raw.Payload
	}
	if env.Event == "" {
		return Envelope{}, ErrNoEvent
	}
	return env, nil
}

// ErrorPayload is sent by the server when it rejects an event.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}
