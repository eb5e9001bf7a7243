package repository

import (
	"context"
	"time"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
)

// Conditional updates return applied=false when the row was not in an
// allowed state; the caller decides whether that is a conflict or a no-op.

type ChatRepository interface {
	Create(ctx context.Context, chat *domain.Chat) error
	// CreateDirect stores chat unless a direct chat between the same pair
	// exists, in which case the stored one is returned with created=false.
	CreateDirect(ctx context.Context, chat *domain.Chat) (stored *domain.Chat, created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.Chat, error)
	GetDirect(ctx context.Context, a, b string) (*domain.Chat, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Chat, error)
	ListIDsForUser(ctx context.Context, userID string) ([]string, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
	IsAdmin(ctx context.Context, chatID, userID string) (bool, error)
	AddParticipant(ctx context.Context, chatID, userID string, at time.Time) (added bool, err error)
	RemoveParticipant(ctx context.Context, chatID, userID string) (removed bool, remaining int64, err error)
	SetAdmin(ctx context.Context, chatID, userID string, admin bool) (bool, error)
	UpdateLastMessage(ctx context.Context, chatID, messageID, preview string, at time.Time) error
	IncrementUnreadCount(ctx context.Context, chatID, userID string) error
	ResetUnreadCount(ctx context.Context, chatID, userID string) error
	Delete(ctx context.Context, chatID string) error
}

type BlockRepository interface {
	Block(ctx context.Context, blocker, blocked string, at time.Time) error
	Unblock(ctx context.Context, blocker, blocked string) error
	// IsBlocked reports whether either user blocked the other.
	IsBlocked(ctx context.Context, a, b string) (bool, error)
	DeleteForUser(ctx context.Context, userID string) error
}

// Cursor positions a page strictly before a message.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

type MessageQuery struct {
	ChatID string
	// Viewer's soft-deleted messages are excluded.
	Viewer string
	Before *Cursor
	Limit  int
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	GetByClientID(ctx context.Context, chatID, senderID, clientID string) (*domain.Message, error)
	List(ctx context.Context, q MessageQuery) ([]*domain.Message, error)
	// MarkReadUpTo adds userID to readBy of every message in the chat created
	// at or before upTo (all messages when nil) and returns the ids newly read.
	MarkReadUpTo(ctx context.Context, chatID, userID string, upTo *time.Time, at time.Time) ([]string, error)
	MarkReadIDs(ctx context.Context, chatID, userID string, ids []string, at time.Time) ([]string, error)
	SetReaction(ctx context.Context, messageID, userID, emoji string, at time.Time) error
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) (bool, error)
	HideFor(ctx context.Context, msg *domain.Message, userID string, at time.Time) (bool, error)
	MarkDeleted(ctx context.Context, id string, at time.Time) (bool, error)
	UpdateText(ctx context.Context, id, senderID, text string, at time.Time) (bool, error)
	DeleteBySender(ctx context.Context, senderID string) (int64, error)
}

type ParticipantRef struct {
	CallID string
	UserID string
}

type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByID(ctx context.Context, id string) (*domain.Call, error)
	// TransitionParticipant moves a participant to `to` only from one of
	// to.Sources().
	TransitionParticipant(ctx context.Context, callID, userID string, to domain.ParticipantStatus, at time.Time) (bool, error)
	// AddParticipant inserts a ringing participant unless the call already
	// has max participants.
	AddParticipant(ctx context.Context, callID, userID, invitedBy string, max int, at time.Time) (bool, error)
	// UpdateStatus moves the call to `to` only from one of to.Predecessors().
	UpdateStatus(ctx context.Context, callID string, to domain.CallStatus, endedAt *time.Time) (bool, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Call, error)
	ListMissed(ctx context.Context, userID string, limit int) ([]*domain.Call, error)
	CountMissed(ctx context.Context, userID string) (int64, error)
	ListRingingBefore(ctx context.Context, cutoff time.Time, limit int) ([]ParticipantRef, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	List(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, id, recipientID string) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, id, recipientID string) (bool, error)
	DeleteForUser(ctx context.Context, userID string) (int64, error)
}
