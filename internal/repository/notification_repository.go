package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
)

type gormNotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &gormNotificationRepository{db: db}
}

func (r *gormNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	return r.db.WithContext(ctx).Create(NotificationDomainToModel(n)).Error
}

func (r *gormNotificationRepository) List(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]*domain.Notification, error) {
	query := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC, id DESC")
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}

	var models []NotificationModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Notification, len(models))
	for i := range models {
		out[i] = NotificationModelToDomain(&models[i])
	}
	return out, nil
}

func (r *gormNotificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

func (r *gormNotificationRepository) MarkRead(ctx context.Context, id, recipientID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND recipient_id = ? AND is_read = ?", id, recipientID, false).
		Update("is_read", true)
	return res.RowsAffected > 0, res.Error
}

func (r *gormNotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *gormNotificationRepository) Delete(ctx context.Context, id, recipientID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&NotificationModel{})
	return res.RowsAffected > 0, res.Error
}

func (r *gormNotificationRepository) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("recipient_id = ? OR source_id = ?", userID, userID).
		Delete(&NotificationModel{})
	return res.RowsAffected, res.Error
}
