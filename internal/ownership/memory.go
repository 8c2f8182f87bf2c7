package ownership

import (
	"context"
	"sync"
)

// MemoryPresence is an in-process Presence. Heartbeats never lapse.
type MemoryPresence struct {
	mu    sync.RWMutex
	users map[string]bool
}

// NewMemoryPresence returns a MemoryPresence with users connected.
func NewMemoryPresence(users ...string) *MemoryPresence {
	p := &MemoryPresence{users: make(map[string]bool, len(users))}
	for _, u := range users {
		p.users[u] = true
	}
	return p
}

// Connected implements Presence.
func (p *MemoryPresence) Connected(context.Context) (map[string]bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]bool, len(p.users))
	for u := range p.users {
		out[u] = true
	}
	return out, nil
}

// Heartbeat implements Presence.
func (p *MemoryPresence) Heartbeat(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[userID] = true
	return nil
}

// Leave implements Presence.
func (p *MemoryPresence) Leave(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.users, userID)
	return nil
}
