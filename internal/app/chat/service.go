package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dmchat/internal/app/message"
	"dmchat/internal/app/store"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/randx"
)

const (
	// attachmentFolder is the key prefix for message attachments.
	attachmentFolder = "messages"

	// cleanupTimeout bounds the best-effort removal of an orphaned upload.
	cleanupTimeout = 30 * time.Second
)

// Notifier delivers events to the live connections of a user.
type Notifier interface {
	IsOnline(userID string) bool
	OnlineUserIDs() []string
	Emit(userID string, event EventType, payload any) int
}

// AttachmentStore stores uploaded files.
type AttachmentStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Service drives the message lifecycle and the real-time notifications that accompany it.
type Service struct {
	messages store.MessageStore
	users    store.UserStore
	files    AttachmentStore
	notifier Notifier
	logger   zerolog.Logger
}

// NewService wires the message lifecycle to its stores and notifier.
func NewService(messages store.MessageStore, users store.UserStore, files AttachmentStore, notifier Notifier) *Service {
	return &Service{
		messages: messages,
		users:    users,
		files:    files,
		notifier: notifier,
		logger:   logx.Component("ChatService"),
	}
}

// Roster is the sidebar view of a user: everyone else, unseen counts per sender, and who is online.
type Roster struct {
	Users          []user.User    `json:"users"`
	UnseenMessages map[string]int `json:"unseenMessages"`
	OnlineUsers    []string       `json:"onlineUsers"`
}

// Roster runs the retroactive delivery sweep for viewerID and returns the roster.
func (s *Service) Roster(ctx context.Context, viewerID string) (*Roster, error) {
	if _, err := s.SweepUndelivered(ctx, viewerID); err != nil {
		return nil, err
	}

	roster := &Roster{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		users, err := s.users.ListUsersExcept(gctx, viewerID)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		roster.Users = users
		return nil
	})

	g.Go(func() error {
		counts, err := s.messages.CountUnseenBySender(gctx, viewerID)
		if err != nil {
			return fmt.Errorf("count unseen: %w", err)
		}
		roster.UnseenMessages = counts
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	roster.OnlineUsers = s.notifier.OnlineUserIDs()
	return roster, nil
}

// SweepUndelivered marks every undelivered message addressed to receiverID as delivered and
// notifies each affected sender once. It returns the number of messages that changed.
func (s *Service) SweepUndelivered(ctx context.Context, receiverID string) (int, error) {
	pending, err := s.messages.FindUndelivered(ctx, receiverID)
	if err != nil {
		return 0, fmt.Errorf("find undelivered: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(pending))
	senderOf := make(map[string]string, len(pending))
	for _, m := range pending {
		ids = append(ids, m.ID)
		senderOf[m.ID] = m.SenderID
	}

	// A started state change finishes and fans out even if the caller goes away.
	changed, err := s.messages.UpdateMany(context.WithoutCancel(ctx), ids, message.MarkDelivered)
	if err != nil {
		return 0, fmt.Errorf("mark delivered: %w", err)
	}

	notified := make(map[string]struct{})
	for _, id := range changed {
		sender := senderOf[id]
		if _, done := notified[sender]; done {
			continue
		}
		notified[sender] = struct{}{}
		s.notifier.Emit(sender, EventBatchMessagesDelivered, BatchDeliveredPayload{DeliveredBy: receiverID})
	}

	if len(changed) > 0 {
		s.logger.Debug().
			Str("receiver_id", receiverID).
			Int("delivered", len(changed)).
			Int("senders", len(notified)).
			Msg("Retroactive delivery sweep")
	}
	return len(changed), nil
}

// History marks the conversation with otherID as seen by viewerID and returns it in order.
func (s *Service) History(ctx context.Context, viewerID, otherID string) ([]message.Message, error) {
	if !randx.IsValidID(otherID) {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	if _, err := s.MarkConversationSeen(ctx, viewerID, otherID); err != nil {
		return nil, err
	}

	conversation, err := s.messages.FindConversation(ctx, viewerID, otherID)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return conversation, nil
}

// MarkConversationSeen flips every unseen message from otherID to viewerID to seen and
// emits one messageSeen per flipped message to otherID. It returns the flipped ids.
func (s *Service) MarkConversationSeen(ctx context.Context, viewerID, otherID string) ([]string, error) {
	unseen, err := s.messages.FindUnseen(ctx, otherID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("find unseen: %w", err)
	}
	if len(unseen) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(unseen))
	for _, m := range unseen {
		ids = append(ids, m.ID)
	}

	changed, err := s.messages.UpdateMany(context.WithoutCancel(ctx), ids, message.MarkSeen)
	if err != nil {
		return nil, fmt.Errorf("mark seen: %w", err)
	}

	for _, id := range changed {
		s.notifier.Emit(otherID, EventMessageSeen, MessageRefPayload{MessageID: id})
	}
	return changed, nil
}

// MarkSeen marks one message as seen by its receiver. Marking an already seen message is a no-op.
func (s *Service) MarkSeen(ctx context.Context, viewerID, messageID string) error {
	if !randx.IsValidID(messageID) {
		return errs.NewError(errs.ErrInvalidParams)
	}

	msg, err := s.messages.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return errs.NewError(errs.ErrMessageNotFound)
	}
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}

	if msg.ReceiverID != viewerID {
		return errs.NewError(errs.ErrForbidden)
	}
	if msg.Seen {
		return nil
	}

	_, changed, err := s.messages.UpdateOne(context.WithoutCancel(ctx), messageID, message.MarkSeen)
	if errors.Is(err, store.ErrNotFound) {
		return errs.NewError(errs.ErrMessageNotFound)
	}
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}

	if changed {
		s.notifier.Emit(msg.SenderID, EventMessageSeen, MessageRefPayload{MessageID: messageID})
	}
	return nil
}

// SendInput is the content of a new message. Either field may be empty, not both.
type SendInput struct {
	Text       string
	Attachment *Upload
}

// Send validates, stores and fans out a new message from senderID to receiverID.
func (s *Service) Send(ctx context.Context, senderID, receiverID string, in SendInput) (*message.Message, error) {
	text, cerr := message.NormalizeText(in.Text)
	if cerr != nil {
		return nil, cerr
	}
	if text == "" && in.Attachment == nil {
		return nil, errs.NewError(errs.ErrMessageEmpty)
	}

	if !randx.IsValidID(receiverID) || receiverID == senderID {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}
	if _, err := s.users.GetUserByID(ctx, receiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NewError(errs.ErrUserNotFound)
		}
		return nil, fmt.Errorf("get receiver: %w", err)
	}

	msg := &message.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
	}

	var uploadedKey string
	if in.Attachment != nil {
		key, url, err := s.upload(ctx, senderID, in.Attachment)
		if err != nil {
			return nil, err
		}
		uploadedKey = key
		msg.Attachment = &message.Attachment{URL: url, Kind: in.Attachment.Kind}
	}

	if verr := msg.Validate(); verr != nil {
		s.discard(uploadedKey)
		return nil, verr
	}

	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		s.discard(uploadedKey)
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NewError(errs.ErrUserNotFound)
		}
		return nil, fmt.Errorf("create message: %w", err)
	}

	// Stored: delivery and fan-out no longer depend on the sender's request.
	ctx = context.WithoutCancel(ctx)

	if !s.notifier.IsOnline(receiverID) {
		return msg, nil
	}

	delivered, changed, err := s.messages.UpdateOne(ctx, msg.ID, message.MarkDelivered)
	if err != nil {
		// The message is stored; delivery is retried by the receiver's next roster sweep.
		s.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to mark message delivered")
		s.notifier.Emit(receiverID, EventNewMessage, msg)
		return msg, nil
	}

	s.notifier.Emit(receiverID, EventNewMessage, delivered)
	if changed {
		s.notifier.Emit(senderID, EventMessageDelivered, MessageRefPayload{MessageID: msg.ID})
	}
	return delivered, nil
}

func (s *Service) upload(ctx context.Context, ownerID string, up *Upload) (string, string, error) {
	key, err := randx.ObjectKey(attachmentFolder, ownerID, up.Ext)
	if err != nil {
		return "", "", fmt.Errorf("object key: %w", err)
	}

	url, err := s.files.Upload(ctx, key, up.Body, up.Size, up.ContentType)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Attachment upload failed")
		return "", "", errs.NewError(errs.ErrFileStorageFailed)
	}
	return key, url, nil
}

// discard removes an uploaded object whose message could not be stored.
func (s *Service) discard(key string) {
	if key == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		if err := s.files.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to remove orphaned attachment")
		}
	}()
}

// HandleInbound processes client->server websocket events.
func (s *Service) HandleInbound(ctx context.Context, userID string, event Envelope) error {
	switch event.Type {
	case EventMarkMessageSeen:
		var payload MessageRefPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.MessageID == "" {
			return errs.NewError(errs.ErrInvalidParams)
		}
		return s.MarkSeen(ctx, userID, payload.MessageID)

	default:
		logx.Ctx(ctx).Warn().Str("event", string(event.Type)).Msg("Client sent unsupported event type")
		return errs.NewError(errs.ErrInvalidParams)
	}
}
