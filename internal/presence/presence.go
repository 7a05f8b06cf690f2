// Package presence keeps the server's view of who is online. A user is
// online while at least one live connection for them is open on any
// instance.
package presence

import (
	"context"
	"sort"
	"sync"
)

// Registry counts live connections per user.
type Registry interface {
	// Connect records one more connection for userID.
	Connect(ctx context.Context, userID string) error
	// Disconnect records one fewer. The user goes offline at zero.
	Disconnect(ctx context.Context, userID string) error
	// Online returns every online user id, sorted.
	Online(ctx context.Context) ([]string, error)
	Close() error
}

// Memory is a single-instance Registry.
type Memory struct {
	mu    sync.Mutex
	conns map[string]int
}

// NewMemory returns an empty in-process registry.
func NewMemory() *Memory {
	return &Memory{conns: make(map[string]int)}
}

func (m *Memory) Connect(_ context.Context, userID string) error {
	m.mu.Lock()
	m.conns[userID]++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Disconnect(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns[userID] <= 1 {
		delete(m.conns, userID)
		return nil
	}
	m.conns[userID]--
	return nil
}

func (m *Memory) Online(_ context.Context) ([]string, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Close() error { return nil }
