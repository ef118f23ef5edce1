package client

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dmchat/internal/app/chat"
)

const writeWait = 10 * time.Second

var (
	// ErrNotConnected is returned by realtime calls made before Connect or after Close.
	ErrNotConnected = errors.New("client: realtime connection not established")

	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = errors.New("client: already connected")
)

// Handler receives the raw payload of one event.
type Handler func(payload json.RawMessage)

// Subscription is one handler attached to one event name.
type Subscription struct {
	client  *Client
	event   chat.EventType
	id      uint64
	handler Handler
	once    sync.Once
}

// Event returns the event name the subscription listens to.
func (s *Subscription) Event() chat.EventType { return s.event }

// Cancel detaches the handler. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		c := s.client
		c.subsMu.Lock()
		defer c.subsMu.Unlock()

		delete(c.subs[s.event], s.id)
		if len(c.subs[s.event]) == 0 {
			delete(c.subs, s.event)
		}
	})
}

// Subscribe attaches handler to event. Handlers run on the connection's read goroutine
// in subscription order and must not block.
func (c *Client) Subscribe(event chat.EventType, handler Handler) *Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.nextID++
	sub := &Subscription{client: c, event: event, id: c.nextID, handler: handler}

	if c.subs[event] == nil {
		c.subs[event] = make(map[uint64]*Subscription)
	}
	c.subs[event][sub.id] = sub
	return sub
}

// SubscribeTo is Subscribe with the payload decoded into T. Undecodable payloads are logged and dropped.
func SubscribeTo[T any](c *Client, event chat.EventType, fn func(T)) *Subscription {
	return c.Subscribe(event, func(payload json.RawMessage) {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			c.logger.Warn().Err(err).Str("event", string(event)).Msg("Dropping undecodable event payload")
			return
		}
		fn(v)
	})
}

func (c *Client) dispatch(env chat.Envelope) {
	c.subsMu.Lock()
	handlers := make([]*Subscription, 0, len(c.subs[env.Type]))
	for _, sub := range c.subs[env.Type] {
		handlers = append(handlers, sub)
	}
	c.subsMu.Unlock()

	slices.SortFunc(handlers, func(a, b *Subscription) int {
		return cmp.Compare(a.id, b.id)
	})
	for _, sub := range handlers {
		sub.handler(env.Payload)
	}
}

// wsURL maps the HTTP base URL onto the websocket endpoint.
func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": []string{c.Token()}}.Encode()
	return u.String(), nil
}

// Connect opens the realtime connection and starts dispatching events to subscribers.
// The server pushes the online user list right after the handshake, so subscribe first.
func (c *Client) Connect(ctx context.Context) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.conn != nil {
		return ErrAlreadyConnected
	}

	target, err := c.wsURL()
	if err != nil {
		return err
	}

	conn, res, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if res != nil {
			return fmt.Errorf("dial websocket (HTTP %d): %w", res.StatusCode, err)
		}
		return fmt.Errorf("dial websocket: %w", err)
	}
	if res != nil && res.Body != nil {
		res.Body.Close()
	}

	c.conn = conn
	c.done = make(chan struct{})
	go c.readLoop(conn, c.done)

	c.logger.Info().Msg("Realtime connection established")
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		var env chat.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Realtime connection lost")
			}
			return
		}

		if env.Type == chat.EventTokenUpdate {
			var p chat.TokenUpdatePayload
			if err := json.Unmarshal(env.Payload, &p); err == nil && p.Token != "" {
				c.SetToken(p.Token)
				c.logger.Debug().Msg("Identity token refreshed")
			}
		}

		c.dispatch(env)
	}
}

// Done is closed when the realtime connection ends. It is nil before Connect.
func (c *Client) Done() <-chan struct{} {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.done
}

// MarkSeenLive marks a message seen over the realtime connection instead of HTTP.
func (c *Client) MarkSeenLive(messageID string) error {
	frame, err := chat.Encode(chat.EventMarkMessageSeen, chat.MessageRefPayload{MessageID: messageID})
	if err != nil {
		return err
	}

	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close ends the realtime connection and waits for the read goroutine to exit.
func (c *Client) Close() error {
	c.wsMu.Lock()
	conn, done := c.conn, c.done
	c.conn = nil
	c.wsMu.Unlock()

	if conn == nil {
		return nil
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait))
	err := conn.Close()
	<-done
	return err
}
