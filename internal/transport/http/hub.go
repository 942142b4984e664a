package http

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"asq-order-service/internal/domain"
	"github.com/oklog/ulid/v2"
)

// ErrSocketNotFound is returned when emitting to a socket this hub does not hold.
var ErrSocketNotFound = errors.New("socket not found")

// Presence records which sockets of a session are connected.
type Presence interface {
	MarkLive(ctx context.Context, sessionID, socketID string) error
	Clear(ctx context.Context, sessionID, socketID string) error
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// Client is one connected socket. Room pushes are held back until the restore
// snapshot is delivered so a client never applies an older snapshot over them.
type Client struct {
	ID          string
	SessionID   string
	Role        string
	Participant string
	send        chan outboundMessage[any]

	mu      sync.Mutex
	ready   bool
	pending []outboundMessage[any]
}

// Messages yields outbound messages until the client is unregistered.
func (c *Client) Messages() <-chan outboundMessage[any] {
	return c.send
}

// Hub implements app.Emitter for the sockets connected to this process. Sockets
// are grouped into rooms by session and role.
type Hub struct {
	presence Presence

	mu      sync.RWMutex
	sockets map[string]*Client
	rooms   map[string]map[string]map[*Client]struct{} // session -> role -> clients
}

func NewHub(presence Presence) *Hub {
	return &Hub{
		presence: presence,
		sockets:  make(map[string]*Client),
		rooms:    make(map[string]map[string]map[*Client]struct{}),
	}
}

// Register adds a socket to the (session, role) room. Room pushes are held
// until the socket receives its restore event or Ready is called.
func (h *Hub) Register(ctx context.Context, sessionID, role, participant string) *Client {
	c := &Client{
		ID:          ulid.Make().String(),
		SessionID:   sessionID,
		Role:        role,
		Participant: participant,
		send:        make(chan outboundMessage[any], 16),
	}

	h.mu.Lock()
	h.sockets[c.ID] = c
	roles, ok := h.rooms[sessionID]
	if !ok {
		roles = make(map[string]map[*Client]struct{})
		h.rooms[sessionID] = roles
	}
	if roles[role] == nil {
		roles[role] = make(map[*Client]struct{})
	}
	roles[role][c] = struct{}{}
	h.mu.Unlock()

	if h.presence != nil {
		if err := h.presence.MarkLive(ctx, sessionID, c.ID); err != nil {
			slog.Warn("mark socket live failed", "session", sessionID, "socket", c.ID, "err", err)
		}
	}
	return c
}

// Ready releases room pushes held while the socket was restoring. Delivering a
// restore event releases them too, so Ready is only needed when no restore
// arrives.
func (h *Hub) Ready(c *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.sockets[c.ID]; !ok {
		return
	}
	c.release(nil)
}

// KeepAlive refreshes the presence of every local socket each interval until ctx
// is done.
func (h *Hub) KeepAlive(ctx context.Context, interval time.Duration) error {
	if h.presence == nil {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.sockets))
			for _, c := range h.sockets {
				clients = append(clients, c)
			}
			h.mu.RUnlock()
			for _, c := range clients {
				if err := h.presence.MarkLive(ctx, c.SessionID, c.ID); err != nil {
					slog.Warn("refresh socket presence failed", "socket", c.ID, "err", err)
				}
			}
		}
	}
}

// Unregister removes the socket, closes its message channel and drops it from
// the session's presence.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	h.mu.Lock()
	if _, ok := h.sockets[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sockets, c.ID)
	if roles, ok := h.rooms[c.SessionID]; ok {
		delete(roles[c.Role], c)
		if len(roles[c.Role]) == 0 {
			delete(roles, c.Role)
		}
		if len(roles) == 0 {
			delete(h.rooms, c.SessionID)
		}
	}
	close(c.send)
	h.mu.Unlock()

	if h.presence != nil {
		if err := h.presence.Clear(ctx, c.SessionID, c.ID); err != nil {
			slog.Warn("clear socket presence failed", "socket", c.ID, "err", err)
		}
	}
}

func (h *Hub) EmitToRole(sessionID, role, event string, payload any) error {
	msg := outboundMessage[any]{Type: event, Payload: payload}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[sessionID][role] {
		c.mu.Lock()
		if c.ready {
			deliver(c, msg)
		} else {
			c.pending = append(c.pending, msg)
		}
		c.mu.Unlock()
	}
	return nil
}

func (h *Hub) EmitToSocket(socketID, event string, payload any) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.sockets[socketID]
	if !ok {
		return ErrSocketNotFound
	}
	msg := outboundMessage[any]{Type: event, Payload: payload}
	if event == domain.EventRestorePresenter || event == domain.EventRestoreViewer {
		c.release(&msg)
		return nil
	}
	deliver(c, msg)
	return nil
}

// release delivers first, then the held room pushes, and switches the client to
// direct delivery. The caller holds the hub lock.
func (c *Client) release(first *outboundMessage[any]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if first != nil {
		deliver(c, *first)
	}
	for _, msg := range c.pending {
		deliver(c, msg)
	}
	c.pending = nil
	c.ready = true
}

// deliver must be called with the hub lock held so send is not closed underneath.
func deliver(c *Client, msg outboundMessage[any]) {
	select {
	case c.send <- msg:
	default:
		// Drop the oldest message so a slow client never blocks fan-out.
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}
