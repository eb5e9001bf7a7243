package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/logger"
	"github.com/clippy-oss/homie/convo-engine/internal/repository"
)

const maxGroupNameLength = 100

type ChatService struct {
	chatRepo  repository.ChatRepository
	msgRepo   repository.MessageRepository
	blockRepo repository.BlockRepository
	registry  *Registry
	eventBus  domain.EventBus
	log       zerolog.Logger
}

func NewChatService(
	chatRepo repository.ChatRepository,
	msgRepo repository.MessageRepository,
	blockRepo repository.BlockRepository,
	registry *Registry,
	eventBus domain.EventBus,
) *ChatService {
	return &ChatService{
		chatRepo:  chatRepo,
		msgRepo:   msgRepo,
		blockRepo: blockRepo,
		registry:  registry,
		eventBus:  eventBus,
		log:       logger.Module("chat"),
	}
}

func (s *ChatService) CreateGroup(ctx context.Context, creatorID, name string, members []string, privacy domain.Privacy) (*domain.Chat, error) {
	name = strings.TrimSpace(name)
	if creatorID == "" {
		return nil, apperr.InvalidArgument("creator is required")
	}
	if name == "" || len(name) > maxGroupNameLength {
		return nil, apperr.InvalidArgument("group name must be 1-100 characters")
	}
	if privacy == "" {
		privacy = domain.PrivacyOpen
	}
	if !privacy.Valid() {
		return nil, apperr.InvalidArgument("unknown privacy setting")
	}

	chat := domain.NewGroupChat(newID(), name, creatorID, members, privacy, now())
	for _, member := range chat.Recipients(creatorID) {
		if err := s.registry.requireCanMessage(ctx, creatorID, member); err != nil {
			return nil, err
		}
	}

	if err := s.chatRepo.Create(ctx, chat); err != nil {
		return nil, storeErr("create chat", err)
	}
	s.log.Debug().Str("chat", chat.ID).Int("participants", len(chat.Participants)).Msg("group created")

	publish(s.eventBus, domain.FanOut(chat.Participants, domain.EventChatCreated, chat, chat.CreatedAt))
	s.postSystem(ctx, chat, domain.SystemContent(domain.SystemGroupCreated, creatorID, chat.Recipients(creatorID)...))
	return chat, nil
}

// GetOrCreateDirect returns the single direct chat between a and b,
// creating it on first use.
func (s *ChatService) GetOrCreateDirect(ctx context.Context, a, b string) (*domain.Chat, error) {
	if a == "" || b == "" {
		return nil, apperr.InvalidArgument("both users are required")
	}
	if a == b {
		return nil, apperr.InvalidArgument("cannot open a direct chat with yourself")
	}
	if err := s.registry.requireCanMessage(ctx, a, b); err != nil {
		return nil, err
	}

	existing, err := s.chatRepo.GetDirect(ctx, a, b)
	if err != nil {
		return nil, storeErr("load direct chat", err)
	}
	if existing != nil {
		return existing, nil
	}

	chat, created, err := s.chatRepo.CreateDirect(ctx, domain.NewDirectChat(newID(), a, b, now()))
	if err != nil {
		return nil, storeErr("create direct chat", err)
	}
	if created {
		publish(s.eventBus, domain.FanOut(chat.Participants, domain.EventChatCreated, chat, chat.CreatedAt))
	}
	return chat, nil
}

func (s *ChatService) GetChat(ctx context.Context, chatID, userID string) (*domain.Chat, error) {
	chat, err := s.registry.RequireParticipant(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	return viewChat(chat, userID), nil
}

func (s *ChatService) ListChats(ctx context.Context, userID string, limit, offset int) ([]*domain.Chat, error) {
	chats, err := s.chatRepo.ListForUser(ctx, userID, pageSize(limit), offset)
	if err != nil {
		return nil, storeErr("list chats", err)
	}
	out := make([]*domain.Chat, len(chats))
	for i, c := range chats {
		out[i] = viewChat(c, userID)
	}
	return out, nil
}

// AddMember adds userID to a group. Open groups accept additions from any
// participant, invite-only groups only from admins.
func (s *ChatService) AddMember(ctx context.Context, chatID, actorID, userID string) (*domain.Chat, error) {
	chat, err := s.registry.RequireParticipant(ctx, actorID, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsGroup() {
		return nil, apperr.InvalidArgument("direct chats have fixed participants")
	}
	if userID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}
	if chat.Privacy == domain.PrivacyInviteOnly && !chat.IsAdmin(actorID) {
		return nil, apperr.Forbidden("only admins can add members to this group")
	}
	if err := s.registry.requireCanMessage(ctx, actorID, userID); err != nil {
		return nil, err
	}

	added, err := s.chatRepo.AddParticipant(ctx, chatID, userID, now())
	if err != nil {
		return nil, storeErr("add participant", err)
	}
	updated, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, storeErr("load chat", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("chat not found")
	}
	if added {
		change := domain.MemberChange{ChatID: chatID, ActorID: actorID, UserID: userID}
		publish(s.eventBus, domain.FanOut(updated.Participants, domain.EventChatMemberAdded, change, now()))
		s.postSystem(ctx, updated, domain.SystemContent(domain.SystemMemberAdded, actorID, userID))
	}
	return viewChat(updated, actorID), nil
}

// RemoveMember removes userID from a group; admins may remove anyone and
// every participant may remove themselves.
func (s *ChatService) RemoveMember(ctx context.Context, chatID, actorID, userID string) error {
	chat, err := s.registry.RequireParticipant(ctx, actorID, chatID)
	if err != nil {
		return err
	}
	if !chat.IsGroup() {
		return apperr.InvalidArgument("direct chats have fixed participants")
	}
	if actorID != userID && !chat.IsAdmin(actorID) {
		return apperr.Forbidden("only admins can remove other members")
	}
	if !chat.HasParticipant(userID) {
		return apperr.NotFound("user is not a participant")
	}
	return s.removeParticipant(ctx, chat, actorID, userID, true)
}

// removeParticipant drops userID from the chat. announce posts the
// member-removed system message to the remaining participants.
func (s *ChatService) removeParticipant(ctx context.Context, chat *domain.Chat, actorID, userID string, announce bool) error {
	removed, remaining, err := s.chatRepo.RemoveParticipant(ctx, chat.ID, userID)
	if err != nil {
		return storeErr("remove participant", err)
	}
	if !removed {
		return nil
	}
	if remaining == 0 {
		if err := s.chatRepo.Delete(ctx, chat.ID); err != nil {
			return storeErr("delete chat", err)
		}
		s.log.Debug().Str("chat", chat.ID).Msg("last participant left, chat destroyed")
		return nil
	}

	if chat.IsAdmin(userID) && len(chat.Admins) == 1 {
		for _, p := range chat.Recipients(userID) {
			ok, err := s.chatRepo.SetAdmin(ctx, chat.ID, p, true)
			if err != nil {
				s.log.Warn().Err(err).Str("chat", chat.ID).Msg("failed to promote new admin")
			}
			if ok {
				break
			}
		}
	}

	change := domain.MemberChange{ChatID: chat.ID, ActorID: actorID, UserID: userID}
	publish(s.eventBus, domain.FanOut(chat.Participants, domain.EventChatMemberRemoved, change, now()))

	if !announce {
		return nil
	}
	updated, err := s.chatRepo.GetByID(ctx, chat.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("chat", chat.ID).Msg("failed to reload chat")
		return nil
	}
	if updated != nil {
		s.postSystem(ctx, updated, domain.SystemContent(domain.SystemMemberRemoved, actorID, userID))
	}
	return nil
}

func (s *ChatService) SetAdmin(ctx context.Context, chatID, actorID, userID string, admin bool) error {
	chat, err := s.registry.RequireAdmin(ctx, actorID, chatID)
	if err != nil {
		return err
	}
	if !chat.IsGroup() {
		return apperr.InvalidArgument("direct chats have no admins")
	}
	if !chat.HasParticipant(userID) {
		return apperr.NotFound("user is not a participant")
	}
	if !admin && chat.IsAdmin(userID) && len(chat.Admins) == 1 {
		return apperr.InvalidArgument("a group needs at least one admin")
	}
	if _, err := s.chatRepo.SetAdmin(ctx, chatID, userID, admin); err != nil {
		return storeErr("set admin", err)
	}
	return nil
}

func (s *ChatService) Block(ctx context.Context, blockerID, blockedID string) error {
	if blockerID == "" || blockedID == "" || blockerID == blockedID {
		return apperr.InvalidArgument("block needs two distinct users")
	}
	if err := s.blockRepo.Block(ctx, blockerID, blockedID, now()); err != nil {
		return storeErr("block user", err)
	}
	return nil
}

func (s *ChatService) Unblock(ctx context.Context, blockerID, blockedID string) error {
	if err := s.blockRepo.Unblock(ctx, blockerID, blockedID); err != nil {
		return storeErr("unblock user", err)
	}
	return nil
}

// postSystem records a server-generated message. Failures are logged; the
// membership change it describes has already happened.
func (s *ChatService) postSystem(ctx context.Context, chat *domain.Chat, content domain.Content) {
	msg := &domain.Message{
		ID:        newMessageID(),
		ChatID:    chat.ID,
		SenderID:  content.System.ActorID,
		Content:   content,
		CreatedAt: now(),
	}
	if err := s.msgRepo.Create(ctx, msg); err != nil {
		s.log.Warn().Err(err).Str("chat", chat.ID).Str("action", content.System.Action).Msg("failed to post system message")
		return
	}
	if err := s.chatRepo.UpdateLastMessage(ctx, chat.ID, msg.ID, content.Preview(), msg.CreatedAt); err != nil {
		s.log.Warn().Err(err).Str("chat", chat.ID).Msg("failed to update chat")
	}
	publish(s.eventBus, domain.FanOut(chat.Participants, domain.EventMessageNew, msg, msg.CreatedAt))
}
