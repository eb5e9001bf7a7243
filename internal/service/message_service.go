package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/logger"
	"github.com/clippy-oss/homie/convo-engine/internal/metrics"
	"github.com/clippy-oss/homie/convo-engine/internal/repository"
)

const maxEmojiLength = 16

type SendRequest struct {
	ChatID    string
	SenderID  string
	Content   domain.Content
	ReplyToID string
	// ClientID makes retries of the same send idempotent.
	ClientID string
}

type ListRequest struct {
	ChatID   string
	UserID   string
	BeforeID string
	Limit    int
}

type MessageService struct {
	msgRepo  repository.MessageRepository
	chatRepo repository.ChatRepository
	registry *Registry
	chats    *ChatService
	fanout   *NotificationService
	eventBus domain.EventBus
	log      zerolog.Logger
}

func NewMessageService(
	msgRepo repository.MessageRepository,
	chatRepo repository.ChatRepository,
	registry *Registry,
	chats *ChatService,
	fanout *NotificationService,
	eventBus domain.EventBus,
) *MessageService {
	return &MessageService{
		msgRepo:  msgRepo,
		chatRepo: chatRepo,
		registry: registry,
		chats:    chats,
		fanout:   fanout,
		eventBus: eventBus,
		log:      logger.Module("message"),
	}
}

func (s *MessageService) Send(ctx context.Context, req SendRequest) (*domain.Message, error) {
	if err := req.Content.Validate(); err != nil {
		return nil, err
	}
	chat, err := s.registry.RequireParticipant(ctx, req.SenderID, req.ChatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsGroup() {
		if err := s.registry.requireCanMessage(ctx, req.SenderID, chat.Other(req.SenderID)); err != nil {
			return nil, err
		}
	}

	if req.ClientID != "" {
		existing, err := s.msgRepo.GetByClientID(ctx, req.ChatID, req.SenderID, req.ClientID)
		if err != nil {
			return nil, storeErr("load message", err)
		}
		if existing != nil {
			return existing.ViewFor(req.SenderID), nil
		}
	}

	if req.ReplyToID != "" {
		parent, err := s.msgRepo.GetByID(ctx, req.ReplyToID)
		if err != nil {
			return nil, storeErr("load message", err)
		}
		if parent == nil || parent.ChatID != req.ChatID {
			return nil, apperr.InvalidArgument("reply target is not in this chat")
		}
	}

	msg := &domain.Message{
		ID:        newMessageID(),
		ChatID:    req.ChatID,
		SenderID:  req.SenderID,
		ClientID:  req.ClientID,
		Content:   req.Content,
		ReplyToID: req.ReplyToID,
		ReadBy:    []string{req.SenderID},
		CreatedAt: now(),
	}
	if err := s.msgRepo.Create(ctx, msg); err != nil {
		if req.ClientID != "" && errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, getErr := s.msgRepo.GetByClientID(ctx, req.ChatID, req.SenderID, req.ClientID)
			if getErr == nil && existing != nil {
				return existing.ViewFor(req.SenderID), nil
			}
		}
		return nil, storeErr("create message", err)
	}
	metrics.MessagesSent.WithLabelValues(string(chat.Type), string(msg.Content.Kind)).Inc()

	if err := s.chatRepo.UpdateLastMessage(ctx, chat.ID, msg.ID, msg.Content.Preview(), msg.CreatedAt); err != nil {
		s.log.Warn().Err(err).Str("chat", chat.ID).Msg("failed to update chat")
	}
	// The message is durable at this point; counters and notifications are
	// best effort and must not make the caller resend it.
	if err := s.fanout.MessageSent(ctx, chat, msg); err != nil {
		s.log.Warn().Err(err).Str("chat", chat.ID).Str("message", msg.ID).Msg("fan-out incomplete")
	}

	publish(s.eventBus, domain.FanOut(chat.Participants, domain.EventMessageNew, msg, msg.CreatedAt))
	return msg, nil
}

// SendDirect sends to the direct chat between sender and recipient,
// creating the chat on first contact.
func (s *MessageService) SendDirect(ctx context.Context, senderID, recipientID string, content domain.Content, clientID string) (*domain.Message, error) {
	if err := content.Validate(); err != nil {
		return nil, err
	}
	chat, err := s.chats.GetOrCreateDirect(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, SendRequest{ChatID: chat.ID, SenderID: senderID, Content: content, ClientID: clientID})
}

// MarkRead marks every message up to and including upToMessageID (all
// messages when empty) as read by userID and clears their unread counter.
func (s *MessageService) MarkRead(ctx context.Context, chatID, userID, upToMessageID string) (*domain.ReadReceipt, error) {
	chat, err := s.registry.RequireParticipant(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	var upTo *time.Time
	if upToMessageID != "" {
		target, err := s.msgRepo.GetByID(ctx, upToMessageID)
		if err != nil {
			return nil, storeErr("load message", err)
		}
		// An unknown bound marks the whole chat.
		if target != nil && target.ChatID == chatID {
			upTo = &target.CreatedAt
		}
	}

	at := now()
	ids, err := s.msgRepo.MarkReadUpTo(ctx, chatID, userID, upTo, at)
	if err != nil {
		return nil, storeErr("mark read", err)
	}
	if err := s.chatRepo.ResetUnreadCount(ctx, chatID, userID); err != nil {
		return nil, storeErr("reset unread", err)
	}

	receipt := &domain.ReadReceipt{ChatID: chatID, UserID: userID, MessageIDs: ids, ReadAt: at}
	s.emitRead(chat, receipt)
	return receipt, nil
}

func (s *MessageService) emitRead(chat *domain.Chat, receipt *domain.ReadReceipt) {
	events := []domain.Envelope{{Recipient: receipt.UserID, Kind: domain.EventChatRead, Payload: receipt, EventTime: receipt.ReadAt}}
	if len(receipt.MessageIDs) > 0 {
		metrics.ReadReceipts.Add(float64(len(receipt.MessageIDs)))
		events = append(events, domain.FanOut(chat.Recipients(receipt.UserID), domain.EventMessageRead, receipt, receipt.ReadAt)...)
	}
	publish(s.eventBus, events)
}

// React sets userID's reaction, replacing any earlier one.
func (s *MessageService) React(ctx context.Context, messageID, userID, emoji string) (*domain.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLength {
		return nil, apperr.InvalidArgument("invalid reaction")
	}
	msg, chat, err := s.loadForParticipant(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.msgRepo.SetReaction(ctx, messageID, userID, emoji, now()); err != nil {
		return nil, storeErr("set reaction", err)
	}
	metrics.Reactions.WithLabelValues("add").Inc()

	change := domain.ReactionChange{ChatID: chat.ID, MessageID: messageID, UserID: userID, Emoji: emoji}
	publish(s.eventBus, domain.FanOut(chat.Participants, domain.EventMessageReaction, change, now()))
	if err := s.fanout.ReactionAdded(ctx, msg, userID, emoji); err != nil {
		s.log.Warn().Err(err).Str("message", messageID).Msg("failed to notify reaction")
	}
	return s.reload(ctx, messageID, userID)
}

// Unreact removes userID's reaction. A non-empty emoji must match the
// current one. Removing a reaction that is not there is a no-op.
func (s *MessageService) Unreact(ctx context.Context, messageID, userID, emoji string) (*domain.Message, error) {
	_, chat, err := s.loadForParticipant(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	removed, err := s.msgRepo.RemoveReaction(ctx, messageID, userID, strings.TrimSpace(emoji))
	if err != nil {
		return nil, storeErr("remove reaction", err)
	}
	if removed {
		metrics.Reactions.WithLabelValues("remove").Inc()
		change := domain.ReactionChange{ChatID: chat.ID, MessageID: messageID, UserID: userID, Removed: true}
		publish(s.eventBus, domain.FanOut(chat.Participants, domain.EventMessageReaction, change, now()))
	}
	return s.reload(ctx, messageID, userID)
}

// SoftDelete hides the message from userID only. Repeating it is a no-op.
func (s *MessageService) SoftDelete(ctx context.Context, messageID, userID string) error {
	msg, chat, err := s.loadForParticipant(ctx, messageID, userID)
	if err != nil {
		return err
	}
	applied, err := s.msgRepo.HideFor(ctx, msg, userID, now())
	if err != nil {
		return storeErr("hide message", err)
	}
	if applied {
		ref := domain.MessageRef{ChatID: chat.ID, MessageID: messageID}
		publish(s.eventBus, []domain.Envelope{{Recipient: userID, Kind: domain.EventMessageHidden, Payload: ref, EventTime: now()}})
	}
	return nil
}

// HardDelete removes the content for every viewer. Allowed for the sender
// and for admins of a group. Deleting twice is a no-op.
func (s *MessageService) HardDelete(ctx context.Context, messageID, userID string) error {
	msg, err := s.load(ctx, messageID)
	if err != nil {
		return err
	}
	chat, err := s.chatRepo.GetByID(ctx, msg.ChatID)
	if err != nil {
		return storeErr("load chat", err)
	}
	if chat == nil {
		return apperr.NotFound("chat not found")
	}
	if msg.SenderID != userID && !(chat.IsGroup() && chat.IsAdmin(userID)) {
		return apperr.Forbidden("only the sender or a group admin can delete this message")
	}

	applied, err := s.msgRepo.MarkDeleted(ctx, messageID, now())
	if err != nil {
		return storeErr("delete message", err)
	}
	if applied {
		ref := domain.MessageRef{ChatID: chat.ID, MessageID: messageID}
		publish(s.eventBus, domain.FanOut(chat.Participants, domain.EventMessageDeleted, ref, now()))
	}
	return nil
}

func (s *MessageService) Edit(ctx context.Context, messageID, userID, text string) (*domain.Message, error) {
	if err := domain.TextContent(text).Validate(); err != nil {
		return nil, err
	}
	msg, chat, err := s.loadForParticipant(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, apperr.Forbidden("only the sender can edit a message")
	}
	if msg.Content.Kind != domain.ContentText {
		return nil, apperr.InvalidArgument("only text messages can be edited")
	}

	applied, err := s.msgRepo.UpdateText(ctx, messageID, userID, text, now())
	if err != nil {
		return nil, storeErr("edit message", err)
	}
	if !applied {
		return nil, apperr.Conflict("message was deleted")
	}

	updated, err := s.reload(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	publish(s.eventBus, domain.FanOut(chat.Participants, domain.EventMessageEdited, updated, now()))
	return updated, nil
}

// List returns a page of messages newest-first and marks the
// page's unread messages from others as read by the caller.
func (s *MessageService) List(ctx context.Context, req ListRequest) ([]*domain.Message, error) {
	chat, err := s.registry.RequireParticipant(ctx, req.UserID, req.ChatID)
	if err != nil {
		return nil, err
	}

	q := repository.MessageQuery{ChatID: req.ChatID, Viewer: req.UserID, Limit: pageSize(req.Limit)}
	if req.BeforeID != "" {
		cursor, err := s.msgRepo.GetByID(ctx, req.BeforeID)
		if err != nil {
			return nil, storeErr("load message", err)
		}
		if cursor == nil || cursor.ChatID != req.ChatID {
			return nil, apperr.InvalidArgument("unknown cursor")
		}
		q.Before = &repository.Cursor{CreatedAt: cursor.CreatedAt, ID: cursor.ID}
	}

	messages, err := s.msgRepo.List(ctx, q)
	if err != nil {
		return nil, storeErr("list messages", err)
	}

	var unread []string
	for _, m := range messages {
		if !m.IsReadBy(req.UserID) {
			unread = append(unread, m.ID)
		}
	}
	at := now()
	if len(unread) > 0 {
		ids, err := s.msgRepo.MarkReadIDs(ctx, req.ChatID, req.UserID, unread, at)
		if err != nil {
			return nil, storeErr("mark read", err)
		}
		s.emitRead(chat, &domain.ReadReceipt{ChatID: req.ChatID, UserID: req.UserID, MessageIDs: ids, ReadAt: at})
	}
	if chat.UnreadFor(req.UserID) > 0 || len(unread) > 0 {
		if err := s.chatRepo.ResetUnreadCount(ctx, req.ChatID, req.UserID); err != nil {
			return nil, storeErr("reset unread", err)
		}
	}

	out := make([]*domain.Message, len(messages))
	for i, m := range messages {
		if !m.IsReadBy(req.UserID) {
			m.ReadBy = append(m.ReadBy, req.UserID)
		}
		out[i] = m.ViewFor(req.UserID)
	}
	return out, nil
}

func (s *MessageService) load(ctx context.Context, messageID string) (*domain.Message, error) {
	if messageID == "" {
		return nil, apperr.InvalidArgument("message id is required")
	}
	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, storeErr("load message", err)
	}
	if msg == nil {
		return nil, apperr.NotFound("message not found")
	}
	return msg, nil
}

func (s *MessageService) loadForParticipant(ctx context.Context, messageID, userID string) (*domain.Message, *domain.Chat, error) {
	msg, err := s.load(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	chat, err := s.registry.RequireParticipant(ctx, userID, msg.ChatID)
	if err != nil {
		return nil, nil, err
	}
	return msg, chat, nil
}

func (s *MessageService) reload(ctx context.Context, messageID, viewer string) (*domain.Message, error) {
	msg, err := s.load(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return msg.ViewFor(viewer), nil
}
