package chat

import (
	"sync"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/live"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

// Presence maps tracked peers to their online state. Snapshots replace the
// whole map; there are no incremental transitions.
type Presence struct {
	mu       sync.RWMutex
	online   map[string]bool
	onChange func()
}

// NewPresence returns an empty tracker. onChange may be nil.
func NewPresence(onChange func()) *Presence {
	return &Presence{online: make(map[string]bool), onChange: onChange}
}

// Track starts tracking ids as offline. Already tracked ids keep their state.
func (p *Presence) Track(ids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		id = normalize.UserID(id)
		if id == "" {
			continue
		}
		if _, ok := p.online[id]; !ok {
			p.online[id] = false
		}
	}
}

// Untrack forgets ids.
func (p *Presence) Untrack(ids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		delete(p.online, normalize.UserID(id))
	}
}

// Apply sets every tracked id to whether it appears in snapshot. Ids that
// are not tracked are ignored.
func (p *Presence) Apply(snapshot []string) {
	in := make(map[string]struct{}, len(snapshot))
	for _, id := range snapshot {
		in[normalize.UserID(id)] = struct{}{}
	}

	p.mu.Lock()
	for id := range p.online {
		_, ok := in[id]
		p.online[id] = ok
	}
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange()
	}
}

// IsOnline reports the last known state of id.
func (p *Presence) IsOnline(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online[normalize.UserID(id)]
}

// Snapshot copies the map.
func (p *Presence) Snapshot() map[string]bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]bool, len(p.online))
	for k, v := range p.online {
		out[k] = v
	}
	return out
}

// Bind applies every onlineUsers snapshot pushed on sub.
func (p *Presence) Bind(sub live.Subscriber) live.Unsubscribe {
	log := logging.Component("presence")
	return sub.Subscribe(wire.EventOnlineUsers, func(data []byte) {
		ids, err := wire.OnlineUsers(data)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring malformed presence snapshot")
			return
		}
		p.Apply(ids)
	})
}
