package memory

import (
	"context"
	"sort"
	"sync"
)

// Presence tracks connected sockets per session in this process.
type Presence struct {
	mu       sync.RWMutex
	sessions map[string]map[string]struct{}
}

func NewPresence() *Presence {
	return &Presence{sessions: make(map[string]map[string]struct{})}
}

func (p *Presence) MarkLive(_ context.Context, sessionID, socketID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sockets, ok := p.sessions[sessionID]
	if !ok {
		sockets = make(map[string]struct{})
		p.sessions[sessionID] = sockets
	}
	sockets[socketID] = struct{}{}
	return nil
}

func (p *Presence) Clear(_ context.Context, sessionID, socketID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sockets := p.sessions[sessionID]
	delete(sockets, socketID)
	if len(sockets) == 0 {
		delete(p.sessions, sessionID)
	}
	return nil
}

func (p *Presence) IsLive(_ context.Context, sessionID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions[sessionID]) > 0, nil
}

// LiveSessions returns live session ids sorted.
func (p *Presence) LiveSessions(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
