package client

import (
	"slices"
	"sync"
	"time"

	"dmchat/internal/app/message"
	"dmchat/internal/pkg/randx"
)

// EntryState tells whether the server has confirmed an entry.
type EntryState int

const (
	EntryPending EntryState = iota
	EntryCommitted
)

func (s EntryState) String() string {
	if s == EntryPending {
		return "pending"
	}
	return "committed"
}

// Entry is one line of a conversation as the user sees it.
type Entry struct {
	Message message.Message
	State   EntryState
}

// Timeline is the local view of the conversation between self and one peer.
// Outgoing messages appear as pending entries with a temporary id until the
// server answers; they are then swapped for the stored message or removed.
type Timeline struct {
	mu      sync.Mutex
	selfID  string
	peerID  string
	entries []Entry

	// early holds state changes for ids not in entries yet, e.g. a delivery
	// receipt that beats the send response. It is only filled while a send is
	// pending and emptied once none is.
	early map[string]message.Patch
}

// NewTimeline returns an empty timeline for the conversation between selfID and peerID.
func NewTimeline(selfID, peerID string) *Timeline {
	return &Timeline{selfID: selfID, peerID: peerID, early: make(map[string]message.Patch)}
}

// PeerID returns the other participant.
func (t *Timeline) PeerID() string { return t.peerID }

// Load merges fetched history into the timeline. Messages already present keep the
// furthest lifecycle state of the two copies.
func (t *Timeline) Load(history []message.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, msg := range history {
		if !t.belongs(msg) {
			continue
		}
		if i := t.indexOf(msg.ID); i >= 0 {
			t.entries[i].Message.Apply(message.Patch{Delivered: msg.Delivered, Seen: msg.Seen})
			continue
		}
		t.entries = append(t.entries, Entry{Message: msg, State: EntryCommitted})
		t.catchUp(len(t.entries) - 1)
	}

	slices.SortStableFunc(t.entries, func(a, b Entry) int {
		return a.Message.CreatedAt.Compare(b.Message.CreatedAt)
	})
}

// AddPending appends an unconfirmed outgoing message and returns its temporary id.
func (t *Timeline) AddPending(text string, attachment *message.Attachment) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := randx.TempID()
	t.entries = append(t.entries, Entry{
		Message: message.Message{
			ID:         id,
			SenderID:   t.selfID,
			ReceiverID: t.peerID,
			Text:       text,
			Attachment: attachment,
			CreatedAt:  time.Now(),
		},
		State: EntryPending,
	})
	return id
}

// Commit replaces the pending entry tempID with the stored message. If the stored
// message is already in the timeline the pending entry is simply dropped.
func (t *Timeline) Commit(tempID string, stored message.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(tempID)
	if i < 0 || t.entries[i].State != EntryPending {
		return false
	}

	if j := t.indexOf(stored.ID); j >= 0 {
		t.entries[j].Message.Apply(message.Patch{Delivered: stored.Delivered, Seen: stored.Seen})
		t.entries = slices.Delete(t.entries, i, i+1)
		t.settle()
		return true
	}

	t.entries[i] = Entry{Message: stored, State: EntryCommitted}
	t.catchUp(i)
	t.settle()
	return true
}

// Rollback removes the pending entry tempID after a failed send.
func (t *Timeline) Rollback(tempID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(tempID)
	if i < 0 || t.entries[i].State != EntryPending {
		return false
	}
	t.entries = slices.Delete(t.entries, i, i+1)
	t.settle()
	return true
}

// ApplyIncoming appends a message pushed by the server. Messages of other
// conversations and duplicates are ignored.
func (t *Timeline) ApplyIncoming(msg message.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.belongs(msg) || t.indexOf(msg.ID) >= 0 {
		return false
	}
	t.entries = append(t.entries, Entry{Message: msg, State: EntryCommitted})
	t.catchUp(len(t.entries) - 1)
	return true
}

// ApplyDelivered marks one message delivered.
func (t *Timeline) ApplyDelivered(messageID string) bool {
	return t.patch(messageID, message.MarkDelivered)
}

// ApplySeen marks one message seen.
func (t *Timeline) ApplySeen(messageID string) bool {
	return t.patch(messageID, message.MarkSeen)
}

// ApplyBatchDelivered marks every committed message sent to deliveredBy as delivered.
// It returns how many entries changed.
func (t *Timeline) ApplyBatchDelivered(deliveredBy string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if deliveredBy != t.peerID {
		return 0
	}

	n := 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.State == EntryCommitted && e.Message.SenderID == t.selfID && e.Message.Apply(message.MarkDelivered) {
			n++
		}
	}
	return n
}

// Entries returns a copy of the timeline in display order.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.entries)
}

func (t *Timeline) patch(messageID string, p message.Patch) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(messageID)
	if i < 0 {
		if !t.hasPending() {
			return false
		}
		prev := t.early[messageID]
		t.early[messageID] = message.Patch{Delivered: prev.Delivered || p.Delivered, Seen: prev.Seen || p.Seen}
		return false
	}
	if t.entries[i].State != EntryCommitted {
		return false
	}
	return t.entries[i].Message.Apply(p)
}

// catchUp applies a buffered early patch to entry i.
func (t *Timeline) catchUp(i int) {
	id := t.entries[i].Message.ID
	if p, ok := t.early[id]; ok {
		t.entries[i].Message.Apply(p)
		delete(t.early, id)
	}
}

func (t *Timeline) hasPending() bool {
	return slices.ContainsFunc(t.entries, func(e Entry) bool { return e.State == EntryPending })
}

// settle drops receipts buffered for ids that never showed up; they belong to
// other conversations.
func (t *Timeline) settle() {
	if !t.hasPending() {
		clear(t.early)
	}
}

func (t *Timeline) belongs(msg message.Message) bool {
	return msg.SenderID != msg.ReceiverID && msg.Involves(t.selfID) && msg.Involves(t.peerID)
}

func (t *Timeline) indexOf(id string) int {
	return slices.IndexFunc(t.entries, func(e Entry) bool { return e.Message.ID == id })
}
