package client

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"dmchat/internal/app/chat"
	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
)

const markSeenTimeout = 10 * time.Second

// ErrNoConversation is returned by Inbox.Send when no conversation is open.
var ErrNoConversation = errors.New("client: no conversation open")

// Inbox is the sidebar state of a signed-in user: the roster, unseen counts per
// sender, who is online, and at most one open conversation that live events are
// routed into.
type Inbox struct {
	client *Client
	selfID string

	mu     sync.Mutex
	users  []user.User
	unseen map[string]int
	online []string
	active *Timeline

	subs []*Subscription
}

// NewInbox fetches the roster and starts following realtime events. Call it before
// Connect to catch the first presence snapshot.
func (c *Client) NewInbox(ctx context.Context) (*Inbox, error) {
	self := c.Self()
	if self == nil {
		return nil, errors.New("client: not signed in")
	}

	roster, err := c.Roster(ctx)
	if err != nil {
		return nil, err
	}

	in := &Inbox{
		client: c,
		selfID: self.ID,
		users:  roster.Users,
		unseen: maps.Clone(roster.UnseenMessages),
		online: roster.OnlineUsers,
	}
	if in.unseen == nil {
		in.unseen = make(map[string]int)
	}

	in.subs = []*Subscription{
		SubscribeTo(c, chat.EventOnlineUsers, in.onOnlineUsers),
		SubscribeTo(c, chat.EventNewMessage, in.onNewMessage),
		SubscribeTo(c, chat.EventMessageDelivered, func(p chat.MessageRefPayload) {
			if tl := in.Active(); tl != nil {
				tl.ApplyDelivered(p.MessageID)
			}
		}),
		SubscribeTo(c, chat.EventBatchMessagesDelivered, func(p chat.BatchDeliveredPayload) {
			if tl := in.Active(); tl != nil {
				tl.ApplyBatchDelivered(p.DeliveredBy)
			}
		}),
		SubscribeTo(c, chat.EventMessageSeen, func(p chat.MessageRefPayload) {
			if tl := in.Active(); tl != nil {
				tl.ApplySeen(p.MessageID)
			}
		}),
	}
	return in, nil
}

func (in *Inbox) onOnlineUsers(ids []string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.online = ids
}

func (in *Inbox) onNewMessage(msg message.Message) {
	if msg.ReceiverID != in.selfID {
		return
	}

	in.mu.Lock()
	active := in.active
	if active == nil || active.PeerID() != msg.SenderID {
		in.unseen[msg.SenderID]++
		in.mu.Unlock()
		return
	}
	in.mu.Unlock()

	if active.ApplyIncoming(msg) {
		go in.markSeen(msg.ID)
	}
}

func (in *Inbox) markSeen(messageID string) {
	if err := in.client.MarkSeenLive(messageID); err == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), markSeenTimeout)
	defer cancel()

	if err := in.client.MarkSeen(ctx, messageID); err != nil {
		in.client.logger.Warn().Err(err).Str("message_id", messageID).Msg("Failed to mark message seen")
	}
}

// Open makes peerID the active conversation. The unseen count for peerID is cleared
// immediately; the history fetch clears it on the server.
func (in *Inbox) Open(ctx context.Context, peerID string) (*Timeline, error) {
	tl := NewTimeline(in.selfID, peerID)

	in.mu.Lock()
	prevActive := in.active
	prevUnseen, hadUnseen := in.unseen[peerID]
	delete(in.unseen, peerID)
	in.active = tl
	in.mu.Unlock()

	history, err := in.client.History(ctx, peerID)
	if err != nil {
		in.mu.Lock()
		if in.active == tl {
			in.active = prevActive
			if hadUnseen {
				in.unseen[peerID] += prevUnseen
			}
		}
		in.mu.Unlock()
		return nil, err
	}
	tl.Load(history)
	return tl, nil
}

// CloseConversation detaches the active conversation. Later messages count as unseen.
func (in *Inbox) CloseConversation() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.active = nil
}

// Active returns the open conversation, or nil.
func (in *Inbox) Active() *Timeline {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.active
}

// Send posts text to the active conversation. The message shows up as pending at once
// and is committed or rolled back when the server answers.
func (in *Inbox) Send(ctx context.Context, text string) (*message.Message, error) {
	tl := in.Active()
	if tl == nil {
		return nil, ErrNoConversation
	}

	tempID := tl.AddPending(text, nil)

	stored, err := in.client.Send(ctx, tl.PeerID(), text)
	if err != nil {
		tl.Rollback(tempID)
		return nil, err
	}

	tl.Commit(tempID, *stored)
	return stored, nil
}

// Users returns the roster fetched at construction.
func (in *Inbox) Users() []user.User {
	in.mu.Lock()
	defer in.mu.Unlock()
	return slices.Clone(in.users)
}

// Unseen returns the unseen count per sender. Senders with nothing unseen are absent.
func (in *Inbox) Unseen() map[string]int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return maps.Clone(in.unseen)
}

// Online returns the ids of users with at least one live connection.
func (in *Inbox) Online() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return slices.Clone(in.online)
}

// Close stops following realtime events.
func (in *Inbox) Close() {
	for _, sub := range in.subs {
		sub.Cancel()
	}
}
