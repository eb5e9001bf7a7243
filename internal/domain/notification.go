package domain

import "time"

type NotificationType string

const (
	NotificationMessage       NotificationType = "message"
	NotificationFriendRequest NotificationType = "friend_request"
	NotificationCallMissed    NotificationType = "call_missed"
	NotificationReaction      NotificationType = "reaction"
)

type Notification struct {
	ID          string
	RecipientID string
	SourceID    string
	Type        NotificationType
	ChatID      string
	RefID       string
	Preview     string
	IsRead      bool
	CreatedAt   time.Time
}
