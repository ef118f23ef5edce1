package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"dmchat/internal/app/chat"
	"dmchat/internal/app/store"
	"dmchat/internal/app/user"
	"dmchat/internal/configs"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/pow"
)

const (
	testSecret  = "test-secret"
	testCDNBase = "https://cdn.test/bucket"
)

// memStorage is an in-memory storage.StorageService.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func (m *memStorage) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return testCDNBase + "/" + key, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memStorage) KeyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, testCDNBase+"/")
	return key, ok && key != ""
}

func (m *memStorage) deletedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

type testApp struct {
	t       *testing.T
	deps    *AppDeps
	store   *store.Memory
	storage *memStorage
	server  *httptest.Server
}

func newTestApp(t *testing.T, powDifficulty int) *testApp {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	mem := store.NewMemory()
	files := &memStorage{objects: make(map[string][]byte)}
	hub := chat.NewHub()

	deps := &AppDeps{
		Hub:            hub,
		Chat:           chat.NewService(mem, mem, files, hub),
		Users:          mem,
		StorageService: files,
		PoW:            pow.NewPoWManager(ctx, powDifficulty),
		Config: &configs.AppConfig{
			Environment:   "development",
			JWTSecret:     testSecret,
			PowDifficulty: powDifficulty,
		},
	}

	app := &testApp{t: t, deps: deps, store: mem, storage: files}
	app.server = httptest.NewServer(Router(ctx, deps))

	t.Cleanup(func() {
		hub.Shutdown()
		app.server.Close()
		cancel()
	})
	return app
}

// addUser creates a user directly in the store and returns it with a valid token.
func (a *testApp) addUser(name string) (*user.User, string) {
	a.t.Helper()

	u := &user.User{FullName: name, Email: name + "@example.com", PasswordHash: "x", Bio: "hello"}
	require.NoError(a.t, a.store.CreateUser(context.Background(), u))

	token, err := jwt.GenerateToken(&jwt.Payload{ID: u.ID}, testSecret, jwt.UserIdentityExpiration)
	require.NoError(a.t, err)
	return u, token
}

type apiResponse struct {
	Status  int
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (a *testApp) do(method, path, token string, body any, headers ...string) apiResponse {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(a.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	return a.send(req)
}

func (a *testApp) send(req *http.Request) apiResponse {
	a.t.Helper()

	res, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer res.Body.Close()

	var out apiResponse
	require.NoError(a.t, json.NewDecoder(res.Body).Decode(&out), "%s %s", req.Method, req.URL)
	out.Status = res.StatusCode
	return out
}

func decodeData[T any](t *testing.T, r apiResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v), "data: %s", string(r.Data))
	return v
}

func wsURL(server *httptest.Server, token string) string {
	return fmt.Sprintf("ws%s/ws?token=%s", strings.TrimPrefix(server.URL, "http"), token)
}
