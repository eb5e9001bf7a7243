package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/logger"
	"github.com/clippy-oss/homie/convo-engine/internal/repository"
)

// AccountService removes everything a deleted account leaves behind. Call
// history is kept so the other participants' records stay intact.
type AccountService struct {
	chats     *ChatService
	chatRepo  repository.ChatRepository
	msgRepo   repository.MessageRepository
	notifRepo repository.NotificationRepository
	blockRepo repository.BlockRepository
	log       zerolog.Logger
}

func NewAccountService(
	chats *ChatService,
	chatRepo repository.ChatRepository,
	msgRepo repository.MessageRepository,
	notifRepo repository.NotificationRepository,
	blockRepo repository.BlockRepository,
) *AccountService {
	return &AccountService{
		chats:     chats,
		chatRepo:  chatRepo,
		msgRepo:   msgRepo,
		notifRepo: notifRepo,
		blockRepo: blockRepo,
		log:       logger.Module("account"),
	}
}

func (s *AccountService) Purge(ctx context.Context, userID string) error {
	if userID == "" {
		return apperr.InvalidArgument("user id is required")
	}

	chatIDs, err := s.chatRepo.ListIDsForUser(ctx, userID)
	if err != nil {
		return storeErr("list chats", err)
	}
	for _, chatID := range chatIDs {
		chat, err := s.chatRepo.GetByID(ctx, chatID)
		if err != nil {
			return storeErr("load chat", err)
		}
		if chat == nil {
			continue
		}
		if !chat.IsGroup() {
			if err := s.chatRepo.Delete(ctx, chatID); err != nil {
				return storeErr("delete chat", err)
			}
			continue
		}
		// Anything the user authored is deleted below, so no system message.
		if err := s.chats.removeParticipant(ctx, chat, userID, userID, false); err != nil {
			return err
		}
	}

	messages, err := s.msgRepo.DeleteBySender(ctx, userID)
	if err != nil {
		return storeErr("delete messages", err)
	}
	notifications, err := s.notifRepo.DeleteForUser(ctx, userID)
	if err != nil {
		return storeErr("delete notifications", err)
	}
	if err := s.blockRepo.DeleteForUser(ctx, userID); err != nil {
		return storeErr("delete blocks", err)
	}

	s.log.Info().
		Str("user", userID).
		Int("chats", len(chatIDs)).
		Int64("messages", messages).
		Int64("notifications", notifications).
		Msg("account purged")
	return nil
}
