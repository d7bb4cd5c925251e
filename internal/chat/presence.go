package chat

import "sync"

// PresenceRegistry maps a logged-in username to its live connection handle.
// Only the latest connection per username is tracked; there is no multi-device
// fanout. State is process-lifetime only and rebuilt from scratch on restart.
//
// A dropped disconnect notification leaves a stale entry behind. That is an
// accepted inconsistency: the next connect overwrites it, and sends to a dead
// handle are absorbed by the hub's drop-slow-client policy.
type PresenceRegistry struct {
	mu     sync.RWMutex
	online map[string]*Client
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{online: make(map[string]*Client)}
}

// MarkOnline records that username is reachable via c, overwriting any prior
// handle for that username.
func (p *PresenceRegistry) MarkOnline(username string, c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[username] = c
}

// MarkOffline removes the entry for username. It is a no-op if absent, and a
// no-op if the registered handle is not c — a stale disconnect arriving after
// a reconnect must not knock the fresh connection offline.
func (p *PresenceRegistry) MarkOffline(username string, c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.online[username]; ok && (c == nil || current == c) {
		delete(p.online, username)
	}
}

func (p *PresenceRegistry) IsOnline(username string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[username]
	return ok
}

// Handle returns the live connection for username, if any.
func (p *PresenceRegistry) Handle(username string) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.online[username]
	return c, ok
}
