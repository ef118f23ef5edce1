package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
)

type wsServer struct {
	hub    *Hub
	server *httptest.Server

	mu      sync.Mutex
	inbound []Envelope
}

// newWSServer serves /ws?uid=<id>; inbound events are recorded and "fail" events return an error.
func newWSServer(t *testing.T) *wsServer {
	t.Helper()

	s := &wsServer{hub: NewHub()}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(s.hub, conn, ClientOptions{
			UserID: r.URL.Query().Get("uid"),
			OnEvent: func(_ context.Context, userID string, event Envelope) error {
				s.mu.Lock()
				s.inbound = append(s.inbound, event)
				s.mu.Unlock()
				if event.Type == "fail" {
					return errs.NewError(errs.ErrForbidden)
				}
				return nil
			},
		})
		client.Serve()
	}))
	t.Cleanup(func() {
		s.hub.Shutdown()
		s.server.Close()
	})
	return s
}

func (s *wsServer) dial(t *testing.T, uid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws?uid=" + uid
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (s *wsServer) inboundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inbound)
}

// readUntil reads frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event EventType) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		if env.Type == event {
			return env
		}
	}
}

func TestClient_PresenceOverWebsocket(t *testing.T) {
	s := newWSServer(t)

	alice := s.dial(t, "alice")
	first := readUntil(t, alice, EventOnlineUsers)
	assert.Equal(t, []string{"alice"}, decodePayload[[]string](t, first))

	bob := s.dial(t, "bob")
	assert.Equal(t, []string{"alice", "bob"}, decodePayload[[]string](t, readUntil(t, bob, EventOnlineUsers)))
	assert.Equal(t, []string{"alice", "bob"}, decodePayload[[]string](t, readUntil(t, alice, EventOnlineUsers)))

	require.NoError(t, bob.Close())
	assert.Equal(t, []string{"alice"}, decodePayload[[]string](t, readUntil(t, alice, EventOnlineUsers)))
	assert.Eventually(t, func() bool { return !s.hub.IsOnline("bob") }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_EmitReachesEveryTab(t *testing.T) {
	s := newWSServer(t)

	tab1 := s.dial(t, "alice")
	readUntil(t, tab1, EventOnlineUsers)
	tab2 := s.dial(t, "alice")
	readUntil(t, tab2, EventOnlineUsers)

	require.Eventually(t, func() bool { return len(s.hub.Registry().ConnectionsFor("alice")) == 2 },
		2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, s.hub.Emit("alice", EventMessageSeen, MessageRefPayload{MessageID: "m1"}))
	for _, tab := range []*websocket.Conn{tab1, tab2} {
		env := readUntil(t, tab, EventMessageSeen)
		assert.Equal(t, "m1", decodePayload[MessageRefPayload](t, env).MessageID)
	}
}

func TestClient_InboundEvents(t *testing.T) {
	s := newWSServer(t)

	conn := s.dial(t, "alice")
	readUntil(t, conn, EventOnlineUsers)

	frame, err := Encode(EventMarkMessageSeen, MessageRefPayload{MessageID: "m1"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
	assert.Eventually(t, func() bool { return s.inboundCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"fail"}`)))
	env := readUntil(t, conn, EventError)
	assert.Equal(t, errs.ErrForbidden, decodePayload[ErrorPayload](t, env).Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	env = readUntil(t, conn, EventError)
	assert.Equal(t, errs.ErrInvalidJSONFormat, decodePayload[ErrorPayload](t, env).Code)
}

func TestClient_SendAfterClose(t *testing.T) {
	c := NewClient(NewHub(), nil, ClientOptions{UserID: "alice"})

	require.NoError(t, c.Send([]byte("x")))
	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Send([]byte("y")), ErrConnClosed)
}

func TestClient_SendQueueFull(t *testing.T) {
	c := NewClient(NewHub(), nil, ClientOptions{UserID: "alice"})

	for i := 0; i < sendBufferSize; i++ {
		require.NoError(t, c.Send([]byte("x")))
	}
	assert.ErrorIs(t, c.Send([]byte("overflow")), ErrSendQueueFull)
}

func TestClient_TokenRefresh(t *testing.T) {
	now := time.Now()
	c := NewClient(NewHub(), nil, ClientOptions{
		UserID:      "alice",
		TokenExpiry: now.Add(time.Hour),
		JWTSecret:   "secret",
	})

	c.checkAndRefreshToken(now)
	assert.Len(t, c.send, 0, "no refresh outside the window")

	c.checkAndRefreshToken(now.Add(time.Hour - time.Minute))
	require.Len(t, c.send, 1)

	env := decodeEnvelope(t, <-c.send)
	assert.Equal(t, EventTokenUpdate, env.Type)

	token := decodePayload[TokenUpdatePayload](t, env).Token
	payload, err := jwt.ParseToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", payload.ID)
	assert.True(t, c.tokenExpiry.After(now.Add(time.Hour)))
}
