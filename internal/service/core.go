package service

import (
	"gorm.io/gorm"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/repository"
)

// Core bundles the services that make up the conversation engine.
type Core struct {
	Registry      *Registry
	Chats         *ChatService
	Messages      *MessageService
	Calls         *CallService
	Notifications *NotificationService
	Accounts      *AccountService
}

func NewCore(db *gorm.DB, eventBus domain.EventBus, maxCallParticipants int) *Core {
	chatRepo := repository.NewChatRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	callRepo := repository.NewCallRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	blockRepo := repository.NewBlockRepository(db)

	registry := NewRegistry(chatRepo, blockRepo)
	notifications := NewNotificationService(notifRepo, chatRepo, eventBus)
	chats := NewChatService(chatRepo, msgRepo, blockRepo, registry, eventBus)

	return &Core{
		Registry:      registry,
		Chats:         chats,
		Messages:      NewMessageService(msgRepo, chatRepo, registry, chats, notifications, eventBus),
		Calls:         NewCallService(callRepo, registry, notifications, eventBus, maxCallParticipants),
		Notifications: notifications,
		Accounts:      NewAccountService(chats, chatRepo, msgRepo, notifRepo, blockRepo),
	}
}
