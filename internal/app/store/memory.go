package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/randx"
)

// Memory is an in-process Store guarded by a single mutex.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]*user.User
	emails   map[string]string
	messages []*message.Message
	byID     map[string]*message.Message

	// now is replaceable in tests to control CreatedAt.
	now func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:  make(map[string]*user.User),
		emails: make(map[string]string),
		byID:   make(map[string]*message.Message),
		now:    time.Now,
	}
}

func cloneMessage(m *message.Message) message.Message {
	c := *m
	if m.Attachment != nil {
		a := *m.Attachment
		c.Attachment = &a
	}
	return c
}

func (s *Memory) CreateMessage(_ context.Context, msg *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = randx.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}

	stored := cloneMessage(msg)
	s.messages = append(s.messages, &stored)
	s.byID[stored.ID] = &stored
	return nil
}

func (s *Memory) GetMessage(_ context.Context, id string) (*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneMessage(m)
	return &c, nil
}

// filter returns copies of the matching messages in insertion order.
func (s *Memory) filter(match func(*message.Message) bool) []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]message.Message, 0)
	for _, m := range s.messages {
		if match(m) {
			out = append(out, cloneMessage(m))
		}
	}
	return out
}

func (s *Memory) FindConversation(_ context.Context, a, b string) ([]message.Message, error) {
	out := s.filter(func(m *message.Message) bool {
		return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
	})
	// Stable sort keeps insertion order for equal timestamps.
	slices.SortStableFunc(out, func(x, y message.Message) int {
		return x.CreatedAt.Compare(y.CreatedAt)
	})
	return out, nil
}

func (s *Memory) FindUndelivered(_ context.Context, receiverID string) ([]message.Message, error) {
	return s.filter(func(m *message.Message) bool {
		return m.ReceiverID == receiverID && !m.Delivered
	}), nil
}

func (s *Memory) FindUnseen(_ context.Context, senderID, receiverID string) ([]message.Message, error) {
	return s.filter(func(m *message.Message) bool {
		return m.SenderID == senderID && m.ReceiverID == receiverID && !m.Seen
	}), nil
}

func (s *Memory) UpdateMany(_ context.Context, ids []string, patch message.Patch) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make([]string, 0, len(ids))
	for _, id := range ids {
		m, ok := s.byID[id]
		if !ok {
			continue
		}
		if m.Apply(patch) {
			changed = append(changed, id)
		}
	}
	return changed, nil
}

func (s *Memory) UpdateOne(_ context.Context, id string, patch message.Patch) (*message.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	changed := m.Apply(patch)
	c := cloneMessage(m)
	return &c, changed, nil
}

func (s *Memory) CountUnseenBySender(_ context.Context, receiverID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, m := range s.messages {
		if m.ReceiverID == receiverID && !m.Seen {
			counts[m.SenderID]++
		}
	}
	return counts, nil
}

func (s *Memory) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := user.NormalizeEmail(u.Email)
	if _, taken := s.emails[email]; taken {
		return ErrDuplicateEmail
	}

	u.Email = email
	if u.ID == "" {
		u.ID = randx.NewID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}

	stored := *u
	s.users[stored.ID] = &stored
	s.emails[email] = stored.ID
	return nil
}

func (s *Memory) GetUserByID(_ context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *Memory) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[user.NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	c := *s.users[id]
	return &c, nil
}

func (s *Memory) ListUsersExcept(_ context.Context, id string) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		if u.ID != id {
			out = append(out, *u)
		}
	}
	slices.SortFunc(out, func(a, b user.User) int {
		if c := strings.Compare(strings.ToLower(a.FullName), strings.ToLower(b.FullName)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Memory) UpdateProfileInfo(_ context.Context, id string, update user.ProfileUpdate) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if update.FullName != nil {
		u.FullName = *update.FullName
	}
	if update.Bio != nil {
		u.Bio = *update.Bio
	}
	c := *u
	return &c, nil
}

func (s *Memory) UpdateProfileImage(_ context.Context, id string, url string) (*user.User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, "", ErrNotFound
	}
	previous := u.ProfilePic
	u.ProfilePic = url
	c := *u
	return &c, previous, nil
}
