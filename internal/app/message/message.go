/*
Package message defines the direct message record and its delivery lifecycle.

A message moves monotonically through SENT, DELIVERED and SEEN. The persisted
form keeps two flags (delivered, seen) and the invariant seen => delivered.
*/
package message

import (
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"dmchat/internal/pkg/errs"
)

const (
	// MaxTextBytes is the maximum allowed size (in bytes) for message text.
	MaxTextBytes = 5000

	// MaxAttachmentSizeMB is the maximum allowed attachment size in megabytes.
	MaxAttachmentSizeMB = 25

	// MaxAttachmentSize is the maximum allowed attachment size in bytes.
	MaxAttachmentSize = MaxAttachmentSizeMB * 1024 * 1024
)

// Kind classifies an attachment for rendering.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindPDF   Kind = "pdf"
)

// Valid reports whether k is one of the supported attachment kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindPDF:
		return true
	}
	return false
}

// KindFromMIME maps a content type onto an attachment kind.
func KindFromMIME(contentType string) (Kind, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return KindImage, true
	case strings.HasPrefix(mediaType, "video/"):
		return KindVideo, true
	case mediaType == "application/pdf":
		return KindPDF, true
	}
	return "", false
}

// State is the position of a message in its delivery lifecycle.
type State int

const (
	StateSent State = iota
	StateDelivered
	StateSeen
)

func (s State) String() string {
	switch s {
	case StateDelivered:
		return "delivered"
	case StateSeen:
		return "seen"
	default:
		return "sent"
	}
}

// Attachment is a stored file referenced by a message.
type Attachment struct {
	URL  string `json:"url"`
	Kind Kind   `json:"kind"`
}

// Message is a persisted direct message between two users.
type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"senderId"`
	ReceiverID string      `json:"receiverId"`
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	Delivered  bool        `json:"delivered"`
	Seen       bool        `json:"seen"`
}

// State derives the lifecycle position from the persisted flags.
func (m *Message) State() State {
	switch {
	case m.Seen:
		return StateSeen
	case m.Delivered:
		return StateDelivered
	default:
		return StateSent
	}
}

// Involves reports whether userID is the sender or the receiver.
func (m *Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Apply advances the flags with p. Transitions never move backwards and
// marking seen also marks delivered. It reports whether anything changed.
func (m *Message) Apply(p Patch) bool {
	changed := false
	if p.Delivered && !m.Delivered {
		m.Delivered = true
		changed = true
	}
	if p.Seen && !m.Seen {
		m.Seen = true
		changed = true
	}
	if m.Seen && !m.Delivered {
		m.Delivered = true
		changed = true
	}
	return changed
}

// Patch is a monotonic flag update. Zero fields leave the flag untouched.
type Patch struct {
	Delivered bool
	Seen      bool
}

// MarkDelivered flips delivered only.
var MarkDelivered = Patch{Delivered: true}

// MarkSeen flips seen and, with it, delivered.
var MarkSeen = Patch{Delivered: true, Seen: true}

// Normalize closes the patch under seen => delivered.
func (p Patch) Normalize() Patch {
	if p.Seen {
		p.Delivered = true
	}
	return p
}

// NormalizeText trims surrounding whitespace and enforces the size limit.
func NormalizeText(text string) (string, *errs.CustomError) {
	text = strings.TrimSpace(text)
	if len(text) > MaxTextBytes {
		return "", errs.NewError(errs.ErrMessageContentTooLong)
	}
	if !utf8.ValidString(text) {
		return "", errs.NewError(errs.ErrInvalidParams)
	}
	return text, nil
}

// Validate checks the content invariants of a new message.
func (m *Message) Validate() *errs.CustomError {
	if m.Text == "" && m.Attachment == nil {
		return errs.NewError(errs.ErrMessageEmpty)
	}
	if len(m.Text) > MaxTextBytes {
		return errs.NewError(errs.ErrMessageContentTooLong)
	}
	if m.Attachment != nil && (m.Attachment.URL == "" || !m.Attachment.Kind.Valid()) {
		return errs.NewError(errs.ErrAttachmentInvalid)
	}
	if m.Seen && !m.Delivered {
		return errs.NewError(errs.ErrInvalidParams)
	}
	return nil
}
