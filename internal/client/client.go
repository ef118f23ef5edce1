/*
Package client is a Go client for the DM Chat Server.

It wraps the HTTP API with typed calls, streams realtime events over a websocket with
per-event subscriptions, and keeps conversation timelines that show outgoing messages
before the server confirms them.
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dmchat/internal/app/chat"
	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/pow"
)

// maxResponseSize bounds how much of a response body is decoded.
const maxResponseSize = 8 << 20

// Client talks to one DM Chat Server as one user.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger

	mu    sync.RWMutex
	token string
	self  *user.User

	subsMu sync.Mutex
	subs   map[chat.EventType]map[uint64]*Subscription
	nextID uint64

	wsMu sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

// New returns a Client for the server at baseURL. A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logx.Component("client"),
		subs:       make(map[chat.EventType]map[uint64]*Subscription),
	}
}

// Token returns the current identity token. It changes when the server pushes a refresh.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken installs a token obtained elsewhere.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Self returns the signed-in user, or nil before Signup, Login or CheckAuth.
func (c *Client) Self() *user.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

func (c *Client) setSession(token string, u *user.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != "" {
		c.token = token
	}
	c.self = u
}

type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type call struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	header      http.Header
}

// do performs c and decodes the data field into out. Business failures come back as *errs.CustomError.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, cl.body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for key, values := range cl.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}
	defer res.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseSize)).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode response (HTTP %d): %w", cl.method, cl.path, res.StatusCode, err)
	}

	if env.Code != 0 || res.StatusCode >= http.StatusBadRequest {
		return &errs.CustomError{Code: env.Code, Message: env.Message, Status: res.StatusCode}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", cl.method, cl.path, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, header http.Header) error {
	cl := call{method: method, path: path, header: header}
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		cl.body = bytes.NewReader(raw)
		cl.contentType = "application/json"
	}
	return c.do(ctx, cl, out)
}

// SignupRequest holds the fields of a new account.
type SignupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

type userResponse struct {
	User *user.User `json:"user"`
}

// Signup creates an account and signs in as it. When the server asks for proof of work,
// the challenge is solved locally first.
func (c *Client) Signup(ctx context.Context, in SignupRequest) (*user.User, error) {
	proof, err := c.solveChallenge(ctx)
	if err != nil {
		return nil, err
	}

	var header http.Header
	if proof != "" {
		header = http.Header{pow.TokenHeaderKey: []string{proof}}
	}

	var out authResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/signup", in, &out, header); err != nil {
		return nil, err
	}
	c.setSession(out.Token, out.User)
	return out.User, nil
}

type challenge struct {
	Enabled    bool   `json:"enabled"`
	Nonce      string `json:"nonce"`
	Difficulty int    `json:"difficulty"`
}

// solveChallenge returns a proof token, or "" when the server does not require one.
func (c *Client) solveChallenge(ctx context.Context) (string, error) {
	var ch challenge
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/challenge", nil, &ch, nil); err != nil {
		return "", err
	}
	if !ch.Enabled {
		return "", nil
	}

	counter := 0
	for !pow.Solves(ch.Nonce, strconv.Itoa(counter), ch.Difficulty) {
		counter++
		if counter%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
	}
	c.logger.Debug().Int("difficulty", ch.Difficulty).Int("counter", counter).Msg("Solved signup challenge")

	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"nonce": ch.Nonce, "counter": strconv.Itoa(counter)}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/challenge", body, &out, nil); err != nil {
		return "", err
	}
	return out.Token, nil
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*user.User, error) {
	var out authResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", body, &out, nil); err != nil {
		return nil, err
	}
	c.setSession(out.Token, out.User)
	return out.User, nil
}

// CheckAuth resolves the current token to its user.
func (c *Client) CheckAuth(ctx context.Context) (*user.User, error) {
	var out userResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/check", nil, &out, nil); err != nil {
		return nil, err
	}
	c.setSession("", out.User)
	return out.User, nil
}

// UpdateProfile changes the name and/or bio. Nil fields are left alone.
func (c *Client) UpdateProfile(ctx context.Context, fullName, bio *string) (*user.User, error) {
	var out userResponse
	body := map[string]*string{"fullName": fullName, "bio": bio}
	if err := c.doJSON(ctx, http.MethodPut, "/api/auth/update-profile-info", body, &out, nil); err != nil {
		return nil, err
	}
	c.setSession("", out.User)
	return out.User, nil
}

// Roster lists the other users, unseen counts per sender and who is online.
func (c *Client) Roster(ctx context.Context) (*chat.Roster, error) {
	var out chat.Roster
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/users", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns the conversation with otherID, oldest first. The server marks it seen.
func (c *Client) History(ctx context.Context, otherID string) ([]message.Message, error) {
	var out struct {
		Messages []message.Message `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(otherID), nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

type sendResponse struct {
	NewMessage *message.Message `json:"newMessage"`
}

// Send sends a text message.
func (c *Client) Send(ctx context.Context, receiverID, text string) (*message.Message, error) {
	var out sendResponse
	body := map[string]string{"text": text}
	if err := c.doJSON(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(receiverID), body, &out, nil); err != nil {
		return nil, err
	}
	return out.NewMessage, nil
}

// SendFile sends a message with an attachment as multipart form data.
func (c *Client) SendFile(ctx context.Context, receiverID, text, fileName string, file io.Reader) (*message.Message, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if text != "" {
		if err := form.WriteField("text", text); err != nil {
			return nil, fmt.Errorf("write text field: %w", err)
		}
	}
	part, err := form.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, io.LimitReader(file, message.MaxAttachmentSize+1)); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	var out sendResponse
	err = c.do(ctx, call{
		method:      http.MethodPost,
		path:        "/api/messages/send/" + url.PathEscape(receiverID),
		body:        &body,
		contentType: form.FormDataContentType(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.NewMessage, nil
}

// MarkSeen marks a received message as seen.
func (c *Client) MarkSeen(ctx context.Context, messageID string) error {
	return c.doJSON(ctx, http.MethodPut, "/api/messages/mark/"+url.PathEscape(messageID), nil, nil, nil)
}
