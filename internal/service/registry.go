package service

import (
	"context"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/repository"
)

// Registry answers membership and permission questions. It holds no state
// of its own; every answer is read from the store.
type Registry struct {
	chats  repository.ChatRepository
	blocks repository.BlockRepository
}

func NewRegistry(chats repository.ChatRepository, blocks repository.BlockRepository) *Registry {
	return &Registry{chats: chats, blocks: blocks}
}

func (r *Registry) IsParticipant(ctx context.Context, userID, chatID string) (bool, error) {
	ok, err := r.chats.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return false, storeErr("check participant", err)
	}
	return ok, nil
}

func (r *Registry) IsAdmin(ctx context.Context, userID, chatID string) (bool, error) {
	ok, err := r.chats.IsAdmin(ctx, chatID, userID)
	if err != nil {
		return false, storeErr("check admin", err)
	}
	return ok, nil
}

// CanMessage is false when either user has blocked the other.
func (r *Registry) CanMessage(ctx context.Context, a, b string) (bool, error) {
	if a == b {
		return true, nil
	}
	blocked, err := r.blocks.IsBlocked(ctx, a, b)
	if err != nil {
		return false, storeErr("check block", err)
	}
	return !blocked, nil
}

func (r *Registry) CanCall(ctx context.Context, a, b string) (bool, error) {
	return r.CanMessage(ctx, a, b)
}

// RequireParticipant loads the chat and fails with NotFound or Forbidden.
func (r *Registry) RequireParticipant(ctx context.Context, userID, chatID string) (*domain.Chat, error) {
	if chatID == "" {
		return nil, apperr.InvalidArgument("chat id is required")
	}
	chat, err := r.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, storeErr("load chat", err)
	}
	if chat == nil {
		return nil, apperr.NotFound("chat not found")
	}
	if !chat.HasParticipant(userID) {
		return nil, apperr.Forbidden("not a participant of this chat")
	}
	return chat, nil
}

func (r *Registry) RequireAdmin(ctx context.Context, userID, chatID string) (*domain.Chat, error) {
	chat, err := r.RequireParticipant(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsAdmin(userID) {
		return nil, apperr.Forbidden("only group admins can do this")
	}
	return chat, nil
}

func (r *Registry) requireCanMessage(ctx context.Context, a, b string) error {
	ok, err := r.CanMessage(ctx, a, b)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("messaging between these users is blocked")
	}
	return nil
}
