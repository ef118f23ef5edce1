package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"dmchat/internal/app/message"
	"dmchat/internal/app/store"
	"dmchat/internal/pkg/randx"
)

// fakeConn records every frame sent to it.
type fakeConn struct {
	id     string
	userID string

	mu     sync.Mutex
	frames [][]byte
	broken bool
}

func newFakeConn(userID string) *fakeConn {
	return &fakeConn{id: randx.NewID(), userID: userID}
}

func (f *fakeConn) ID() string     { return f.id }
func (f *fakeConn) UserID() string { return f.userID }

func (f *fakeConn) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.broken {
		return errors.New("connection broken")
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeConn) breakConn() {
	f.mu.Lock()
	f.broken = true
	f.mu.Unlock()
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

func (f *fakeConn) events(t *testing.T) []Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Envelope, 0, len(f.frames))
	for _, frame := range f.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	return out
}

func (f *fakeConn) eventsOf(t *testing.T, event EventType) []Envelope {
	t.Helper()
	var out []Envelope
	for _, env := range f.events(t) {
		if env.Type == event {
			out = append(out, env)
		}
	}
	return out
}

func decodePayload[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

// fakeFiles is an in-memory AttachmentStore.
type fakeFiles struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	failWrite bool
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{objects: make(map[string][]byte)}
}

func (f *fakeFiles) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	if f.failWrite {
		return "", errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return fmt.Sprintf("https://cdn.test/%s", key), nil
}

func (f *fakeFiles) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func (f *fakeFiles) deletedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func decodeEnvelope(t *testing.T, frame []byte) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	return env
}

// ctxStore honours cancellation on writes the way a database driver does.
// onCreate runs after each successful insert.
type ctxStore struct {
	*store.Memory
	onCreate func()
}

func (s *ctxStore) CreateMessage(ctx context.Context, msg *message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Memory.CreateMessage(ctx, msg); err != nil {
		return err
	}
	if s.onCreate != nil {
		s.onCreate()
	}
	return nil
}

func (s *ctxStore) UpdateOne(ctx context.Context, id string, patch message.Patch) (*message.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return s.Memory.UpdateOne(ctx, id, patch)
}

func (s *ctxStore) UpdateMany(ctx context.Context, ids []string, patch message.Patch) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Memory.UpdateMany(ctx, ids, patch)
}
