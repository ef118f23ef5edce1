package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// capacity of the per-connection outbound queue.
	sendBufferSize = 256

	// inboundTimeout bounds the storage work triggered by one inbound event.
	inboundTimeout = 10 * time.Second

	// TokenRefreshWindow defines how much time before the token expires we should attempt to refresh it.
	TokenRefreshWindow = 2 * time.Minute
)

var (
	// ErrConnClosed is returned by Send after the client has been closed.
	ErrConnClosed = errors.New("chat: connection closed")

	// ErrSendQueueFull is returned by Send when the outbound queue is saturated.
	ErrSendQueueFull = errors.New("chat: client send queue full")
)

// InboundHandler processes a client->server event on behalf of userID.
type InboundHandler func(ctx context.Context, userID string, event Envelope) error

// ClientOptions carries the identity and callbacks of a websocket client.
type ClientOptions struct {
	UserID      string
	TokenExpiry time.Time
	JWTSecret   string
	OnEvent     InboundHandler
}

// Client struct represents an active WebSocket connection and its associated user.
type Client struct {
	hub *Hub

	// underlying WebSocket connection object.
	conn *websocket.Conn

	id     string
	userID string

	// tokenExpiry records the expiration time of the current JWT used by the client.
	tokenExpiry time.Time
	jwtSecret   string

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// mu guards closed and the close of send.
	mu     sync.Mutex
	closed bool

	onEvent InboundHandler

	// structured logger with client context.
	logger zerolog.Logger
}

// NewClient constructs and returns a new Client instance.
func NewClient(hub *Hub, wsConn *websocket.Conn, opts ClientOptions) *Client {
	id := randx.NewID()
	clientLogger := logx.Logger().With().
		Str("conn_id", id).
		Str("user_id", opts.UserID).
		Logger()

	return &Client{
		hub:         hub,
		conn:        wsConn,
		id:          id,
		userID:      opts.UserID,
		tokenExpiry: opts.TokenExpiry,
		jwtSecret:   opts.JWTSecret,
		send:        make(chan []byte, sendBufferSize),
		onEvent:     opts.OnEvent,
		logger:      clientLogger,
	}
}

// ID implements Conn.
func (c *Client) ID() string { return c.id }

// UserID implements Conn.
func (c *Client) UserID() string { return c.userID }

// Send implements Conn. It never blocks; a full queue drops the frame.
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close stops the outbound queue; WritePump then sends a close frame and exits.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Serve registers the client with the hub, starts the write pump and blocks in the read pump.
func (c *Client) Serve() {
	if !c.hub.track(c) {
		c.Close()
		_ = c.conn.Close()
		return
	}

	go c.WritePump()

	c.hub.Join(c)
	c.ReadPump()
}

// ReadPump handles reading frames from the WebSocket connection.
// It handles heartbeats (Pong), event parsing, and performs cleanup upon connection closure.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processInbound(frame)
	}
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's ReadPump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.hub.Leave(c)
	c.Close()

	if err := c.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}

	c.hub.untrack(c)
}

// processInbound handles raw frames received from the client.
func (c *Client) processInbound(frame []byte) {
	var event Envelope
	if err := json.Unmarshal(frame, &event); err != nil {
		c.logger.Warn().Err(err).Int("frame_bytes", len(frame)).Msg("Client sent invalid JSON")
		c.SendError(errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	if c.onEvent == nil {
		c.logger.Warn().Str("event", string(event.Type)).Msg("No inbound handler, dropping event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()

	ctx = c.logger.WithContext(ctx)
	if err := c.onEvent(ctx, c.userID, event); err != nil {
		c.SendError(err)
	}
}

// WritePump handles writing frames from the Client.send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueuedFrame(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePing() {
				return
			}

			c.checkAndRefreshToken(time.Now())
		}
	}
}

// writeQueuedFrame writes one queued frame, or the close frame once the queue is closed.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePing sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// checkAndRefreshToken issues a fresh token when the current one is about to expire.
func (c *Client) checkAndRefreshToken(now time.Time) {
	if c.jwtSecret == "" || c.tokenExpiry.IsZero() || now.Before(c.tokenExpiry.Add(-TokenRefreshWindow)) {
		return
	}

	c.logger.Info().
		Time("current_expiry", c.tokenExpiry).
		Dur("refresh_window", TokenRefreshWindow).
		Msg("JWT token is nearing expiry, attempting refresh.")

	token, expiresAt, err := jwt.IssueIdentity(c.userID, c.jwtSecret)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to generate new token. Aborting refresh.")
		return
	}

	frame, err := Encode(EventTokenUpdate, TokenUpdatePayload{Token: token})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to build token update.")
		return
	}
	if err := c.Send(frame); err != nil {
		c.logger.Error().Err(err).Msg("Failed to send token update to client.")
		return
	}

	c.tokenExpiry = expiresAt
}

// SendError sends an error event to this connection only.
func (c *Client) SendError(err error) {
	customErr := errs.From(err)

	frame, encErr := Encode(EventError, ErrorPayload{Code: customErr.Code, Message: customErr.Message})
	if encErr != nil {
		c.logger.Error().Err(encErr).Msg("Failed to build error event")
		return
	}
	if sendErr := c.Send(frame); sendErr != nil {
		c.logger.Warn().Err(sendErr).Msg("Failed to queue error event")
	}
}
