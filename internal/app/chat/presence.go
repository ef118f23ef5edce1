package chat

import (
	"sync"

	"github.com/rs/zerolog"
)

// Broadcaster pushes the online user set to connections.
type Broadcaster struct {
	registry *Registry

	// mu serializes broadcasts so the snapshot taken last is also delivered last.
	mu sync.Mutex

	logger zerolog.Logger
}

// NewBroadcaster creates a Broadcaster reading from registry.
func NewBroadcaster(registry *Registry, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger}
}

// Broadcast sends the current online set to every live connection.
func (b *Broadcaster) Broadcast() {
	b.mu.Lock()
	defer b.mu.Unlock()

	online := b.registry.OnlineUserIDs()
	frame, err := Encode(EventOnlineUsers, online)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to encode presence snapshot")
		return
	}

	for _, conn := range b.registry.All() {
		sendFrame(b.logger, conn, EventOnlineUsers, frame)
	}

	b.logger.Debug().Int("online_users", len(online)).Msg("Presence broadcast sent")
}

// SendSnapshot sends the current online set to a single connection.
func (b *Broadcaster) SendSnapshot(conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, err := Encode(EventOnlineUsers, b.registry.OnlineUserIDs())
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to encode presence snapshot")
		return
	}
	sendFrame(b.logger, conn, EventOnlineUsers, frame)
}

// sendFrame enqueues frame on conn. Transport failures only affect that handle and are logged.
func sendFrame(logger zerolog.Logger, conn Conn, event EventType, frame []byte) bool {
	if err := conn.Send(frame); err != nil {
		logger.Warn().Err(err).
			Str("conn_id", conn.ID()).
			Str("user_id", conn.UserID()).
			Str("event", string(event)).
			Msg("Dropped event for connection")
		return false
	}
	return true
}
