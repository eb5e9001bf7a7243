package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
)

type gormChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &gormChatRepository{db: db}
}

func (r *gormChatRepository) Create(ctx context.Context, chat *domain.Chat) error {
	model, participants := ChatDomainToModel(chat)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return tx.Create(&participants).Error
	})
}

func (r *gormChatRepository) CreateDirect(ctx context.Context, chat *domain.Chat) (*domain.Chat, bool, error) {
	model, participants := ChatDomainToModel(chat)
	if model.DirectKey == nil {
		return nil, false, errors.New("direct chat needs exactly two participants")
	}

	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "direct_key"}},
			DoNothing: true,
		}).Create(model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true
		return tx.Create(&participants).Error
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		return chat, true, nil
	}
	stored, err := r.GetDirect(ctx, chat.Participants[0], chat.Participants[1])
	return stored, false, err
}

func (r *gormChatRepository) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormChatRepository) GetDirect(ctx context.Context, a, b string) (*domain.Chat, error) {
	return r.first(ctx, "direct_key = ?", domain.DirectKey(a, b))
}

func (r *gormChatRepository) first(ctx context.Context, query string, args ...interface{}) (*domain.Chat, error) {
	var model ChatModel
	if err := r.db.WithContext(ctx).Where(query, args...).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	participants, err := r.participants(ctx, model.ID)
	if err != nil {
		return nil, err
	}
	return ChatModelToDomain(&model, participants[model.ID]), nil
}

func (r *gormChatRepository) participants(ctx context.Context, chatIDs ...string) (map[string][]ChatParticipantModel, error) {
	var rows []ChatParticipantModel
	if err := r.db.WithContext(ctx).
		Where("chat_id IN ?", chatIDs).
		Order("position ASC, joined_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string][]ChatParticipantModel, len(chatIDs))
	for _, p := range rows {
		out[p.ChatID] = append(out[p.ChatID], p)
	}
	return out, nil
}

func (r *gormChatRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Chat, error) {
	var models []ChatModel
	query := r.db.WithContext(ctx).
		Model(&ChatModel{}).
		Select("chats.*").
		Joins("JOIN chat_participants cp ON cp.chat_id = chats.id AND cp.user_id = ?", userID).
		Order("chats.last_message_at DESC")

	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}

	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}

	ids := make([]string, len(models))
	for i := range models {
		ids[i] = models[i].ID
	}
	participants, err := r.participants(ctx, ids...)
	if err != nil {
		return nil, err
	}

	chats := make([]*domain.Chat, len(models))
	for i := range models {
		chats[i] = ChatModelToDomain(&models[i], participants[models[i].ID])
	}
	return chats, nil
}

func (r *gormChatRepository) ListIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&ChatParticipantModel{}).
		Where("user_id = ?", userID).
		Pluck("chat_id", &ids).Error
	return ids, err
}

func (r *gormChatRepository) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ChatParticipantModel{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *gormChatRepository) IsAdmin(ctx context.Context, chatID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ChatParticipantModel{}).
		Where("chat_id = ? AND user_id = ? AND is_admin = ?", chatID, userID, true).
		Count(&count).Error
	return count > 0, err
}

func (r *gormChatRepository) AddParticipant(ctx context.Context, chatID, userID string, at time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&ChatParticipantModel{}).
		Where("chat_id = ?", chatID).
		Count(&count).Error; err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&ChatParticipantModel{
		ChatID:   chatID,
		UserID:   userID,
		Position: int(count),
		JoinedAt: at,
	})
	return res.RowsAffected > 0, res.Error
}

func (r *gormChatRepository) RemoveParticipant(ctx context.Context, chatID, userID string) (bool, int64, error) {
	var removed bool
	var remaining int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("chat_id = ? AND user_id = ?", chatID, userID).Delete(&ChatParticipantModel{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		return tx.Model(&ChatParticipantModel{}).Where("chat_id = ?", chatID).Count(&remaining).Error
	})
	return removed, remaining, err
}

func (r *gormChatRepository) SetAdmin(ctx context.Context, chatID, userID string, admin bool) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&ChatParticipantModel{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Update("is_admin", admin)
	return res.RowsAffected > 0, res.Error
}

func (r *gormChatRepository) UpdateLastMessage(ctx context.Context, chatID, messageID, preview string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&ChatModel{}).
		Where("id = ? AND last_message_at <= ?", chatID, at).
		Updates(map[string]interface{}{
			"last_message_id":      messageID,
			"last_message_preview": preview,
			"last_message_at":      at,
		}).Error
}

func (r *gormChatRepository) IncrementUnreadCount(ctx context.Context, chatID, userID string) error {
	return r.db.WithContext(ctx).
		Model(&ChatParticipantModel{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1)).Error
}

func (r *gormChatRepository) ResetUnreadCount(ctx context.Context, chatID, userID string) error {
	return r.db.WithContext(ctx).
		Model(&ChatParticipantModel{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		UpdateColumn("unread_count", 0).Error
}

// Delete removes the chat together with its participants and messages.
func (r *gormChatRepository) Delete(ctx context.Context, chatID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messageIDs := tx.Model(&MessageModel{}).Select("id").Where("chat_id = ?", chatID)
		if err := tx.Where("message_id IN (?)", messageIDs).Delete(&MessageReactionModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&MessageReadModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&MessageDeletionModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&MessageModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&ChatParticipantModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", chatID).Delete(&ChatModel{}).Error
	})
}
