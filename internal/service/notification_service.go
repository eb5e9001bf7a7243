package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/logger"
	"github.com/clippy-oss/homie/convo-engine/internal/metrics"
	"github.com/clippy-oss/homie/convo-engine/internal/repository"
)

// NotificationService fans message, reaction and call events out to unread
// counters and notification records. Each recipient is handled on its own;
// a failure for one does not undo or skip the others.
type NotificationService struct {
	notifs   repository.NotificationRepository
	chatRepo repository.ChatRepository
	eventBus domain.EventBus
	log      zerolog.Logger
}

func NewNotificationService(
	notifs repository.NotificationRepository,
	chatRepo repository.ChatRepository,
	eventBus domain.EventBus,
) *NotificationService {
	return &NotificationService{
		notifs:   notifs,
		chatRepo: chatRepo,
		eventBus: eventBus,
		log:      logger.Module("fanout"),
	}
}

// MessageSent bumps the unread counter of every participant except the
// sender and records a message notification for each.
func (s *NotificationService) MessageSent(ctx context.Context, chat *domain.Chat, msg *domain.Message) error {
	var errs []error
	for _, recipient := range chat.Recipients(msg.SenderID) {
		if err := s.chatRepo.IncrementUnreadCount(ctx, chat.ID, recipient); err != nil {
			metrics.FanoutFailures.Inc()
			errs = append(errs, storeErr("increment unread", err))
			continue
		}
		n := &domain.Notification{
			RecipientID: recipient,
			SourceID:    msg.SenderID,
			Type:        domain.NotificationMessage,
			ChatID:      chat.ID,
			RefID:       msg.ID,
			Preview:     msg.Content.Preview(),
		}
		if err := s.create(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *NotificationService) ReactionAdded(ctx context.Context, msg *domain.Message, reactorID, emoji string) error {
	if reactorID == msg.SenderID {
		return nil
	}
	return s.create(ctx, &domain.Notification{
		RecipientID: msg.SenderID,
		SourceID:    reactorID,
		Type:        domain.NotificationReaction,
		ChatID:      msg.ChatID,
		RefID:       msg.ID,
		Preview:     emoji,
	})
}

func (s *NotificationService) CallMissed(ctx context.Context, call *domain.Call, userID string) error {
	return s.create(ctx, &domain.Notification{
		RecipientID: userID,
		SourceID:    call.InitiatorID,
		Type:        domain.NotificationCallMissed,
		ChatID:      call.ChatID,
		RefID:       call.ID,
		Preview:     string(call.Kind),
	})
}

func (s *NotificationService) FriendRequest(ctx context.Context, fromID, toID string) (*domain.Notification, error) {
	if fromID == "" || toID == "" || fromID == toID {
		return nil, apperr.InvalidArgument("friend request needs two distinct users")
	}
	n := &domain.Notification{
		RecipientID: toID,
		SourceID:    fromID,
		Type:        domain.NotificationFriendRequest,
		RefID:       fromID,
	}
	if err := s.create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *NotificationService) create(ctx context.Context, n *domain.Notification) error {
	n.ID = newID()
	n.CreatedAt = now()
	if err := s.notifs.Create(ctx, n); err != nil {
		metrics.FanoutFailures.Inc()
		s.log.Error().Err(err).Str("recipient", n.RecipientID).Str("type", string(n.Type)).Msg("failed to create notification")
		return storeErr("create notification", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	publish(s.eventBus, []domain.Envelope{{
		Recipient: n.RecipientID,
		Kind:      domain.EventNotificationCreated,
		Payload:   n,
		EventTime: n.CreatedAt,
	}})
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*domain.Notification, error) {
	list, err := s.notifs.List(ctx, userID, unreadOnly, pageSize(limit), offset)
	if err != nil {
		return nil, storeErr("list notifications", err)
	}
	return list, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	n, err := s.notifs.CountUnread(ctx, userID)
	if err != nil {
		return 0, storeErr("count notifications", err)
	}
	return n, nil
}

// MarkRead is idempotent: marking an already read notification succeeds.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	applied, err := s.notifs.MarkRead(ctx, id, userID)
	if err != nil {
		return storeErr("mark notification read", err)
	}
	if applied {
		publish(s.eventBus, []domain.Envelope{{
			Recipient: userID,
			Kind:      domain.EventNotificationRead,
			Payload:   map[string]any{"ids": []string{id}},
			EventTime: now(),
		}})
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.notifs.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, storeErr("mark notifications read", err)
	}
	if n > 0 {
		publish(s.eventBus, []domain.Envelope{{
			Recipient: userID,
			Kind:      domain.EventNotificationRead,
			Payload:   map[string]any{"all": true, "count": n},
			EventTime: now(),
		}})
	}
	return n, nil
}

func (s *NotificationService) Dismiss(ctx context.Context, id, userID string) error {
	deleted, err := s.notifs.Delete(ctx, id, userID)
	if err != nil {
		return storeErr("dismiss notification", err)
	}
	if !deleted {
		return apperr.NotFound("notification not found")
	}
	return nil
}
