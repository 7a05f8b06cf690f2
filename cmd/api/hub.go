package main

import (
	"fmt"
	"sync"
)

// Sender is the minimal interface the hub needs from a live connection: the
// ability to queue an encoded frame for the connected client.
type Sender interface {
	Send(frame []byte) error
}

// ConnectionHub tracks open live connections. It maps a user id (the user's
// room) to every connection that user has open, so one emit reaches all of
// their tabs and devices.
type ConnectionHub struct {
	mu     sync.RWMutex
	rooms  map[string]map[int64]Sender
	nextID int64
}

// NewConnectionHub creates a new hub instance.
func NewConnectionHub() *ConnectionHub {
	return &ConnectionHub{rooms: make(map[string]map[int64]Sender)}
}

// Register adds s to userID's room and returns the id to unregister it with.
func (h *ConnectionHub) Register(userID string, s Sender) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[userID]; !ok {
		h.rooms[userID] = make(map[int64]Sender)
	}
	h.nextID++
	id := h.nextID
	h.rooms[userID][id] = s
	return id
}

// Unregister removes a connection. It reports whether the user has no
// connections left.
func (h *ConnectionHub) Unregister(userID string, id int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.rooms[userID]
	if !ok {
		return true
	}
	delete(conns, id)
	if len(conns) == 0 {
		delete(h.rooms, userID)
		return true
	}
	return false
}

// SendToUser queues frame on every connection in userID's room. Delivery is
// best effort: every connection is tried, the first error is returned and
// failed connections are dropped from the hub.
func (h *ConnectionHub) SendToUser(userID string, frame []byte) error {
	return h.SendToUserExcept(userID, 0, frame)
}

// SendToUserExcept is SendToUser but leaves out connection skip. Register
// never hands out 0, so a zero skip reaches every connection.
func (h *ConnectionHub) SendToUserExcept(userID string, skip int64, frame []byte) error {
	h.mu.RLock()
	conns := make(map[int64]Sender, len(h.rooms[userID]))
	for id, s := range h.rooms[userID] {
		if id != skip {
			conns[id] = s
		}
	}
	total := len(h.rooms[userID])
	h.mu.RUnlock()

	if total == 0 {
		return fmt.Errorf("user %s not connected", userID)
	}

	var firstErr error
	var failedIDs []int64
	for id, s := range conns {
		if err := s.Send(frame); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failedIDs = append(failedIDs, id)
		}
	}
	for _, id := range failedIDs {
		h.Unregister(userID, id)
	}
	return firstErr
}

// Broadcast queues frame on every connection and returns how many accepted it.
func (h *ConnectionHub) Broadcast(frame []byte) int {
	var delivered int
	for _, userID := range h.Users() {
		h.mu.RLock()
		n := len(h.rooms[userID])
		h.mu.RUnlock()
		if err := h.SendToUser(userID, frame); err == nil {
			delivered += n
		}
	}
	return delivered
}

// Users returns the ids of users with at least one open connection.
func (h *ConnectionHub) Users() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Connected reports whether userID has a connection open.
func (h *ConnectionHub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID]) > 0
}
