package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
)

type gormCallRepository struct {
	db *gorm.DB
}

func NewCallRepository(db *gorm.DB) CallRepository {
	return &gormCallRepository{db: db}
}

func (r *gormCallRepository) Create(ctx context.Context, call *domain.Call) error {
	model, participants := CallDomainToModel(call)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return tx.Create(&participants).Error
	})
}

func (r *gormCallRepository) GetByID(ctx context.Context, id string) (*domain.Call, error) {
	var model CallModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	calls, err := r.withParticipants(ctx, []CallModel{model})
	if err != nil {
		return nil, err
	}
	return calls[0], nil
}

func (r *gormCallRepository) withParticipants(ctx context.Context, models []CallModel) ([]*domain.Call, error) {
	calls := make([]*domain.Call, len(models))
	if len(models) == 0 {
		return calls, nil
	}
	ids := make([]string, len(models))
	for i := range models {
		ids[i] = models[i].ID
	}

	var rows []CallParticipantModel
	if err := r.db.WithContext(ctx).
		Where("call_id IN ?", ids).
		Order("position ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	byCall := make(map[string][]CallParticipantModel, len(models))
	for _, p := range rows {
		byCall[p.CallID] = append(byCall[p.CallID], p)
	}

	for i := range models {
		calls[i] = CallModelToDomain(&models[i], byCall[models[i].ID])
	}
	return calls, nil
}

func (r *gormCallRepository) TransitionParticipant(ctx context.Context, callID, userID string, to domain.ParticipantStatus, at time.Time) (bool, error) {
	from := to.Sources()
	if len(from) == 0 {
		return false, nil
	}
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}

	patch := map[string]interface{}{"status": string(to)}
	if to == domain.ParticipantJoined {
		patch["joined_at"] = at
	}
	if to.IsTerminal() {
		patch["ended_at"] = at
	}

	res := r.db.WithContext(ctx).
		Model(&CallParticipantModel{}).
		Where("call_id = ? AND user_id = ? AND status IN ?", callID, userID, sources).
		Updates(patch)
	return res.RowsAffected > 0, res.Error
}

func (r *gormCallRepository) AddParticipant(ctx context.Context, callID, userID, invitedBy string, max int, at time.Time) (bool, error) {
	var added bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serializes concurrent adds to the same call on databases with row locks.
		var call CallModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&call, "id = ?", callID).Error; err != nil {
			return err
		}
		res := tx.Exec(`INSERT INTO call_participants (call_id, user_id, status, position, invited_by, created_at, updated_at)
SELECT ?, ?, ?, (SELECT COUNT(*) FROM call_participants WHERE call_id = ?), ?, ?, ?
WHERE (SELECT COUNT(*) FROM call_participants WHERE call_id = ?) < ?`,
			callID, userID, string(domain.ParticipantRinging), callID, invitedBy, at, at, callID, max)
		added = res.RowsAffected > 0
		return res.Error
	})
	return added, err
}

func (r *gormCallRepository) UpdateStatus(ctx context.Context, callID string, to domain.CallStatus, endedAt *time.Time) (bool, error) {
	from := to.Predecessors()
	if len(from) == 0 {
		return false, nil
	}
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}

	patch := map[string]interface{}{"status": string(to)}
	if endedAt != nil {
		patch["ended_at"] = *endedAt
	}
	res := r.db.WithContext(ctx).
		Model(&CallModel{}).
		Where("id = ? AND status IN ?", callID, sources).
		Updates(patch)
	return res.RowsAffected > 0, res.Error
}

func (r *gormCallRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Call, error) {
	query := r.db.WithContext(ctx).
		Model(&CallModel{}).
		Select("calls.*").
		Joins("JOIN call_participants p ON p.call_id = calls.id AND p.user_id = ?", userID).
		Order("calls.started_at DESC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}

	var models []CallModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.withParticipants(ctx, models)
}

// missedQuery matches calls userID did not start where they timed out, or
// were still ringing when the call reached a terminal status.
func (r *gormCallRepository) missedQuery(ctx context.Context, userID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&CallModel{}).
		Joins("JOIN call_participants p ON p.call_id = calls.id AND p.user_id = ?", userID).
		Where("calls.initiator_id <> ?", userID).
		Where("(p.status = ? OR (p.status = ? AND calls.status IN ?))",
			string(domain.ParticipantMissed),
			string(domain.ParticipantRinging),
			[]string{string(domain.CallStatusEnded), string(domain.CallStatusCancelled)})
}

func (r *gormCallRepository) ListMissed(ctx context.Context, userID string, limit int) ([]*domain.Call, error) {
	query := r.missedQuery(ctx, userID).Select("calls.*").Order("calls.started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []CallModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.withParticipants(ctx, models)
}

func (r *gormCallRepository) CountMissed(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.missedQuery(ctx, userID).Count(&count).Error
	return count, err
}

func (r *gormCallRepository) ListRingingBefore(ctx context.Context, cutoff time.Time, limit int) ([]ParticipantRef, error) {
	var rows []CallParticipantModel
	query := r.db.WithContext(ctx).
		Select("call_id", "user_id").
		Where("status = ? AND created_at < ?", string(domain.ParticipantRinging), cutoff.UTC()).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	refs := make([]ParticipantRef, len(rows))
	for i, p := range rows {
		refs[i] = ParticipantRef{CallID: p.CallID, UserID: p.UserID}
	}
	return refs, nil
}
