package live

import "sync"

// Subscriber is the registration half of a connection.
type Subscriber interface {
	Subscribe(event string, h Handler) Unsubscribe
}

// Scope collects the subscriptions made for one lifecycle (a conversation,
// a feed) so they are all removed together.
type Scope struct {
	sub Subscriber

	mu     sync.Mutex
	unsubs []Unsubscribe
	closed bool
}

// NewScope returns an open scope over sub.
func NewScope(sub Subscriber) *Scope {
	return &Scope{sub: sub}
}

// On subscribes h for event within the scope. It is a no-op once the scope
// is closed.
func (s *Scope) On(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.unsubs = append(s.unsubs, s.sub.Subscribe(event, h))
}

// Close removes every subscription made through the scope.
func (s *Scope) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.closed = true
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}
