package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"dmchat/internal/pkg/logx"
)

// Hub is the central coordinator for live connections. It owns the connection
// registry and the presence broadcaster, and fans events out to every handle of a user.
type Hub struct {
	registry *Registry
	presence *Broadcaster

	// clients tracks websocket clients so Shutdown can close them.
	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool

	// wg waits for client pumps during shutdown.
	wg sync.WaitGroup

	// structured logger with Hub context.
	logger zerolog.Logger
}

// NewHub constructs a Hub whose registry triggers a presence broadcast on every online/offline change.
func NewHub() *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logx.Component("Hub"),
	}
	h.registry = NewRegistry(func() { h.presence.Broadcast() })
	h.presence = NewBroadcaster(h.registry, logx.Component("Presence"))
	return h
}

// Registry exposes the underlying connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Join registers conn. A handle joining an already online user gets a private presence
// snapshot, since no broadcast is triggered for it.
func (h *Hub) Join(conn Conn) {
	if !h.registry.Register(conn.UserID(), conn) {
		h.presence.SendSnapshot(conn)
	}
	h.logger.Info().
		Str("user_id", conn.UserID()).
		Str("conn_id", conn.ID()).
		Int("user_connections", len(h.registry.ConnectionsFor(conn.UserID()))).
		Msg("Connection joined.")
}

// Leave unregisters conn.
func (h *Hub) Leave(conn Conn) {
	h.registry.Unregister(conn.UserID(), conn)
	h.logger.Info().
		Str("user_id", conn.UserID()).
		Str("conn_id", conn.ID()).
		Msg("Connection left.")
}

// IsOnline reports whether userID has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	return h.registry.IsOnline(userID)
}

// OnlineUserIDs returns the ids of all online users.
func (h *Hub) OnlineUserIDs() []string {
	return h.registry.OnlineUserIDs()
}

// Emit sends one event to every connection of userID and returns how many accepted it.
func (h *Hub) Emit(userID string, event EventType, payload any) int {
	conns := h.registry.ConnectionsFor(userID)
	if len(conns) == 0 {
		return 0
	}

	frame, err := Encode(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(event)).Msg("Failed to encode event")
		return 0
	}

	sent := 0
	for _, conn := range conns {
		if sendFrame(h.logger, conn, event, frame) {
			sent++
		}
	}
	return sent
}

// track records a websocket client for shutdown. It returns false once the hub is closed.
func (h *Hub) track(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) untrack(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.wg.Done()
	}
}

// Shutdown closes every websocket client and waits for their pumps to finish.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down Hub...")

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		c.Close()
	}
	h.mu.Unlock()

	h.wg.Wait()

	h.logger.Info().Msg("Hub shutdown complete.")
}
