package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
)

type gormMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

// Create stores the message and records the sender as its first reader.
func (r *gormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	model := MessageDomainToModel(msg)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return tx.Create(&MessageReadModel{
			MessageID: msg.ID,
			UserID:    msg.SenderID,
			ChatID:    msg.ChatID,
			ReadAt:    msg.CreatedAt,
		}).Error
	})
}

func (r *gormMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormMessageRepository) GetByClientID(ctx context.Context, chatID, senderID, clientID string) (*domain.Message, error) {
	return r.first(ctx, "chat_id = ? AND sender_id = ? AND client_id = ?", chatID, senderID, clientID)
}

func (r *gormMessageRepository) first(ctx context.Context, query string, args ...interface{}) (*domain.Message, error) {
	var model MessageModel
	if err := r.db.WithContext(ctx).Where(query, args...).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	messages, err := r.hydrate(ctx, []MessageModel{model})
	if err != nil {
		return nil, err
	}
	return messages[0], nil
}

// List returns up to q.Limit messages newest-first, starting at the newest
// end of the chat or just before q.Before. Messages sharing the cursor's
// timestamp are ordered by id so no page boundary drops one.
func (r *gormMessageRepository) List(ctx context.Context, q MessageQuery) ([]*domain.Message, error) {
	query := r.db.WithContext(ctx).
		Where("chat_id = ?", q.ChatID).
		Order("created_at DESC, id DESC")

	if q.Viewer != "" {
		query = query.Where("NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = messages.id AND d.user_id = ?)", q.Viewer)
	}
	if q.Before != nil {
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", q.Before.CreatedAt, q.Before.CreatedAt, q.Before.ID)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var models []MessageModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.hydrate(ctx, models)
}

// hydrate attaches reactions, readers and per-viewer deletions.
func (r *gormMessageRepository) hydrate(ctx context.Context, models []MessageModel) ([]*domain.Message, error) {
	messages := make([]*domain.Message, len(models))
	if len(models) == 0 {
		return messages, nil
	}

	ids := make([]string, len(models))
	byID := make(map[string]*domain.Message, len(models))
	for i := range models {
		ids[i] = models[i].ID
		messages[i] = MessageModelToDomain(&models[i])
		byID[models[i].ID] = messages[i]
	}

	var reactions []MessageReactionModel
	if err := r.db.WithContext(ctx).
		Where("message_id IN ?", ids).
		Order("created_at ASC, user_id ASC").
		Find(&reactions).Error; err != nil {
		return nil, err
	}
	for _, rx := range reactions {
		m := byID[rx.MessageID]
		m.Reactions = append(m.Reactions, domain.Reaction{UserID: rx.UserID, Emoji: rx.Emoji, CreatedAt: rx.CreatedAt})
	}

	var reads []MessageReadModel
	if err := r.db.WithContext(ctx).
		Where("message_id IN ?", ids).
		Order("read_at ASC, user_id ASC").
		Find(&reads).Error; err != nil {
		return nil, err
	}
	for _, rd := range reads {
		m := byID[rd.MessageID]
		m.ReadBy = append(m.ReadBy, rd.UserID)
	}

	var deletions []MessageDeletionModel
	if err := r.db.WithContext(ctx).
		Where("message_id IN ?", ids).
		Find(&deletions).Error; err != nil {
		return nil, err
	}
	for _, d := range deletions {
		m := byID[d.MessageID]
		m.DeletedFor = append(m.DeletedFor, d.UserID)
	}

	return messages, nil
}

func (r *gormMessageRepository) unreadQuery(ctx context.Context, chatID, userID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("chat_id = ? AND sender_id <> ?", chatID, userID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads rd WHERE rd.message_id = messages.id AND rd.user_id = ?)", userID)
}

func (r *gormMessageRepository) MarkReadUpTo(ctx context.Context, chatID, userID string, upTo *time.Time, at time.Time) ([]string, error) {
	query := r.unreadQuery(ctx, chatID, userID)
	if upTo != nil {
		query = query.Where("created_at <= ?", *upTo)
	}
	var ids []string
	if err := query.Order("created_at ASC, id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, r.insertReads(ctx, chatID, userID, ids, at)
}

func (r *gormMessageRepository) MarkReadIDs(ctx context.Context, chatID, userID string, ids []string, at time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var unread []string
	if err := r.unreadQuery(ctx, chatID, userID).
		Where("id IN ?", ids).
		Order("created_at ASC, id ASC").
		Pluck("id", &unread).Error; err != nil {
		return nil, err
	}
	return unread, r.insertReads(ctx, chatID, userID, unread, at)
}

// insertReads only ever adds rows, so readBy can never shrink.
func (r *gormMessageRepository) insertReads(ctx context.Context, chatID, userID string, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	rows := make([]MessageReadModel, len(ids))
	for i, id := range ids {
		rows[i] = MessageReadModel{MessageID: id, UserID: userID, ChatID: chatID, ReadAt: at}
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, 200).Error
}

// SetReaction replaces any reaction userID already has on the message.
func (r *gormMessageRepository) SetReaction(ctx context.Context, messageID, userID, emoji string, at time.Time) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emoji", "created_at"}),
	}).Create(&MessageReactionModel{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: at,
	}).Error
}

// RemoveReaction deletes userID's reaction; a non-empty emoji must match.
func (r *gormMessageRepository) RemoveReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	query := r.db.WithContext(ctx).Where("message_id = ? AND user_id = ?", messageID, userID)
	if emoji != "" {
		query = query.Where("emoji = ?", emoji)
	}
	res := query.Delete(&MessageReactionModel{})
	return res.RowsAffected > 0, res.Error
}

func (r *gormMessageRepository) HideFor(ctx context.Context, msg *domain.Message, userID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&MessageDeletionModel{
			MessageID: msg.ID,
			UserID:    userID,
			ChatID:    msg.ChatID,
			HiddenAt:  at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *gormMessageRepository) MarkDeleted(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"removed_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *gormMessageRepository) UpdateText(ctx context.Context, id, senderID, text string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ? AND sender_id = ? AND is_deleted = ? AND kind = ?", id, senderID, false, string(domain.ContentText)).
		Updates(map[string]interface{}{
			"text":      text,
			"is_edited": true,
			"edited_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

// DeleteBySender removes every message senderID wrote and points each
// affected chat at its newest remaining message.
func (r *gormMessageRepository) DeleteBySender(ctx context.Context, senderID string) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chatIDs []string
		if err := tx.Model(&MessageModel{}).
			Where("sender_id = ?", senderID).
			Distinct().
			Pluck("chat_id", &chatIDs).Error; err != nil {
			return err
		}

		ids := tx.Model(&MessageModel{}).Select("id").Where("sender_id = ?", senderID)
		for _, model := range []interface{}{&MessageReactionModel{}, &MessageReadModel{}, &MessageDeletionModel{}} {
			if err := tx.Where("message_id IN (?)", ids).Delete(model).Error; err != nil {
				return err
			}
		}
		res := tx.Where("sender_id = ?", senderID).Delete(&MessageModel{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected

		for _, chatID := range chatIDs {
			if err := refreshLastMessage(tx, chatID); err != nil {
				return err
			}
		}
		return nil
	})
	return deleted, err
}

func refreshLastMessage(tx *gorm.DB, chatID string) error {
	var newest []MessageModel
	if err := tx.Where("chat_id = ?", chatID).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&newest).Error; err != nil {
		return err
	}
	updates := map[string]interface{}{"last_message_id": "", "last_message_preview": ""}
	if len(newest) == 1 {
		updates["last_message_id"] = newest[0].ID
		updates["last_message_preview"] = MessageModelToDomain(&newest[0]).Content.Preview()
		updates["last_message_at"] = newest[0].CreatedAt
	}
	return tx.Model(&ChatModel{}).Where("id = ?", chatID).Updates(updates).Error
}
