package repository

import (
	"time"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
)

type ChatModel struct {
	ID                 string    `gorm:"primaryKey;column:id"`
	Type               string    `gorm:"column:type"`
	Name               string    `gorm:"column:name"`
	Privacy            string    `gorm:"column:privacy"`
	CreatedBy          string    `gorm:"column:created_by"`
	DirectKey          *string   `gorm:"column:direct_key;uniqueIndex"`
	LastMessageID      string    `gorm:"column:last_message_id"`
	LastMessagePreview string    `gorm:"column:last_message_preview"`
	LastMessageAt      time.Time `gorm:"column:last_message_at;index"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (ChatModel) TableName() string { return "chats" }

type ChatParticipantModel struct {
	ChatID      string    `gorm:"primaryKey;column:chat_id"`
	UserID      string    `gorm:"primaryKey;column:user_id;index"`
	IsAdmin     bool      `gorm:"column:is_admin"`
	Position    int       `gorm:"column:position"`
	UnreadCount int       `gorm:"column:unread_count"`
	JoinedAt    time.Time `gorm:"column:joined_at"`
}

func (ChatParticipantModel) TableName() string { return "chat_participants" }

type UserBlockModel struct {
	BlockerID string    `gorm:"primaryKey;column:blocker_id"`
	BlockedID string    `gorm:"primaryKey;column:blocked_id;index"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (UserBlockModel) TableName() string { return "user_blocks" }

type MessageModel struct {
	ID        string              `gorm:"primaryKey;column:id"`
	ChatID    string              `gorm:"column:chat_id;index:idx_chat_created,priority:1;uniqueIndex:idx_client_key,priority:1"`
	SenderID  string              `gorm:"column:sender_id;index;uniqueIndex:idx_client_key,priority:2"`
	ClientID  *string             `gorm:"column:client_id;uniqueIndex:idx_client_key,priority:3"`
	Kind      string              `gorm:"column:kind"`
	Text      string              `gorm:"column:text"`
	Media     []domain.MediaItem  `gorm:"column:media;type:text;serializer:json"`
	System    *domain.SystemEvent `gorm:"column:system;type:text;serializer:json"`
	ReplyToID string              `gorm:"column:reply_to_id"`
	IsDeleted bool                `gorm:"column:is_deleted"`
	IsEdited  bool                `gorm:"column:is_edited"`
	CreatedAt time.Time           `gorm:"column:created_at;index:idx_chat_created,priority:2"`
	EditedAt  *time.Time          `gorm:"column:edited_at"`
	RemovedAt *time.Time          `gorm:"column:removed_at"`
	UpdatedAt time.Time           `gorm:"column:updated_at"`
}

func (MessageModel) TableName() string { return "messages" }

type MessageReadModel struct {
	MessageID string    `gorm:"primaryKey;column:message_id"`
	UserID    string    `gorm:"primaryKey;column:user_id;index"`
	ChatID    string    `gorm:"column:chat_id;index"`
	ReadAt    time.Time `gorm:"column:read_at"`
}

func (MessageReadModel) TableName() string { return "message_reads" }

type MessageReactionModel struct {
	MessageID string    `gorm:"primaryKey;column:message_id"`
	UserID    string    `gorm:"primaryKey;column:user_id"`
	Emoji     string    `gorm:"column:emoji"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (MessageReactionModel) TableName() string { return "message_reactions" }

type MessageDeletionModel struct {
	MessageID string    `gorm:"primaryKey;column:message_id"`
	UserID    string    `gorm:"primaryKey;column:user_id;index"`
	ChatID    string    `gorm:"column:chat_id"`
	HiddenAt  time.Time `gorm:"column:hidden_at"`
}

func (MessageDeletionModel) TableName() string { return "message_deletions" }

type CallModel struct {
	ID          string     `gorm:"primaryKey;column:id"`
	ChatID      string     `gorm:"column:chat_id"`
	InitiatorID string     `gorm:"column:initiator_id;index"`
	Kind        string     `gorm:"column:kind"`
	Status      string     `gorm:"column:status;index"`
	StartedAt   time.Time  `gorm:"column:started_at;index"`
	EndedAt     *time.Time `gorm:"column:ended_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (CallModel) TableName() string { return "calls" }

type CallParticipantModel struct {
	CallID    string     `gorm:"primaryKey;column:call_id"`
	UserID    string     `gorm:"primaryKey;column:user_id;index"`
	Status    string     `gorm:"column:status;index"`
	Position  int        `gorm:"column:position"`
	InvitedBy string     `gorm:"column:invited_by"`
	JoinedAt  *time.Time `gorm:"column:joined_at"`
	EndedAt   *time.Time `gorm:"column:ended_at"`
	CreatedAt time.Time  `gorm:"column:created_at;index"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (CallParticipantModel) TableName() string { return "call_participants" }

type NotificationModel struct {
	ID          string    `gorm:"primaryKey;column:id"`
	RecipientID string    `gorm:"column:recipient_id;index:idx_recipient_created,priority:1"`
	SourceID    string    `gorm:"column:source_id;index"`
	Type        string    `gorm:"column:type"`
	ChatID      string    `gorm:"column:chat_id"`
	RefID       string    `gorm:"column:ref_id"`
	Preview     string    `gorm:"column:preview"`
	IsRead      bool      `gorm:"column:is_read"`
	CreatedAt   time.Time `gorm:"column:created_at;index:idx_recipient_created,priority:2"`
}

func (NotificationModel) TableName() string { return "notifications" }

// Conversion functions
func ChatModelToDomain(m *ChatModel, participants []ChatParticipantModel) *domain.Chat {
	if m == nil {
		return nil
	}

	chat := &domain.Chat{
		ID:                 m.ID,
		Type:               domain.ChatType(m.Type),
		Name:               m.Name,
		Privacy:            domain.Privacy(m.Privacy),
		CreatedBy:          m.CreatedBy,
		Unread:             make(map[string]int, len(participants)),
		LastMessageID:      m.LastMessageID,
		LastMessagePreview: m.LastMessagePreview,
		LastMessageAt:      m.LastMessageAt,
		CreatedAt:          m.CreatedAt,
	}
	for _, p := range participants {
		chat.Participants = append(chat.Participants, p.UserID)
		if p.IsAdmin {
			chat.Admins = append(chat.Admins, p.UserID)
		}
		chat.Unread[p.UserID] = p.UnreadCount
	}
	return chat
}

func ChatDomainToModel(chat *domain.Chat) (*ChatModel, []ChatParticipantModel) {
	if chat == nil {
		return nil, nil
	}

	model := &ChatModel{
		ID:                 chat.ID,
		Type:               string(chat.Type),
		Name:               chat.Name,
		Privacy:            string(chat.Privacy),
		CreatedBy:          chat.CreatedBy,
		LastMessageID:      chat.LastMessageID,
		LastMessagePreview: chat.LastMessagePreview,
		LastMessageAt:      chat.LastMessageAt,
		CreatedAt:          chat.CreatedAt,
	}
	if chat.Type == domain.ChatTypeDirect && len(chat.Participants) == 2 {
		key := domain.DirectKey(chat.Participants[0], chat.Participants[1])
		model.DirectKey = &key
	}
	if model.LastMessageAt.IsZero() {
		model.LastMessageAt = chat.CreatedAt
	}

	participants := make([]ChatParticipantModel, len(chat.Participants))
	for i, userID := range chat.Participants {
		participants[i] = ChatParticipantModel{
			ChatID:      chat.ID,
			UserID:      userID,
			IsAdmin:     chat.IsAdmin(userID),
			Position:    i,
			UnreadCount: chat.Unread[userID],
			JoinedAt:    chat.CreatedAt,
		}
	}
	return model, participants
}

func MessageModelToDomain(m *MessageModel) *domain.Message {
	if m == nil {
		return nil
	}

	msg := &domain.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		ReplyToID: m.ReplyToID,
		Content: domain.Content{
			Kind:   domain.ContentKind(m.Kind),
			Text:   m.Text,
			Media:  m.Media,
			System: m.System,
		},
		IsDeleted: m.IsDeleted,
		IsEdited:  m.IsEdited,
		CreatedAt: m.CreatedAt,
		EditedAt:  m.EditedAt,
		DeletedAt: m.RemovedAt,
	}
	if m.ClientID != nil {
		msg.ClientID = *m.ClientID
	}
	return msg
}

func MessageDomainToModel(msg *domain.Message) *MessageModel {
	if msg == nil {
		return nil
	}

	model := &MessageModel{
		ID:        msg.ID,
		ChatID:    msg.ChatID,
		SenderID:  msg.SenderID,
		Kind:      string(msg.Content.Kind),
		Text:      msg.Content.Text,
		Media:     msg.Content.Media,
		System:    msg.Content.System,
		ReplyToID: msg.ReplyToID,
		IsDeleted: msg.IsDeleted,
		IsEdited:  msg.IsEdited,
		CreatedAt: msg.CreatedAt,
		EditedAt:  msg.EditedAt,
		RemovedAt: msg.DeletedAt,
	}
	if msg.ClientID != "" {
		clientID := msg.ClientID
		model.ClientID = &clientID
	}
	return model
}

func CallModelToDomain(m *CallModel, participants []CallParticipantModel) *domain.Call {
	if m == nil {
		return nil
	}

	call := &domain.Call{
		ID:          m.ID,
		ChatID:      m.ChatID,
		InitiatorID: m.InitiatorID,
		Kind:        domain.CallKind(m.Kind),
		Status:      domain.CallStatus(m.Status),
		StartedAt:   m.StartedAt,
		EndedAt:     m.EndedAt,
	}
	for _, p := range participants {
		call.Participants = append(call.Participants, domain.CallParticipant{
			UserID:    p.UserID,
			Status:    domain.ParticipantStatus(p.Status),
			InvitedBy: p.InvitedBy,
			JoinedAt:  p.JoinedAt,
			EndedAt:   p.EndedAt,
			CreatedAt: p.CreatedAt,
		})
	}
	return call
}

func CallDomainToModel(call *domain.Call) (*CallModel, []CallParticipantModel) {
	if call == nil {
		return nil, nil
	}

	model := &CallModel{
		ID:          call.ID,
		ChatID:      call.ChatID,
		InitiatorID: call.InitiatorID,
		Kind:        string(call.Kind),
		Status:      string(call.Status),
		StartedAt:   call.StartedAt,
		EndedAt:     call.EndedAt,
	}
	participants := make([]CallParticipantModel, len(call.Participants))
	for i, p := range call.Participants {
		participants[i] = CallParticipantModel{
			CallID:    call.ID,
			UserID:    p.UserID,
			Status:    string(p.Status),
			Position:  i,
			InvitedBy: p.InvitedBy,
			JoinedAt:  p.JoinedAt,
			EndedAt:   p.EndedAt,
			CreatedAt: p.CreatedAt,
		}
	}
	return model, participants
}

func NotificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}
	return &domain.Notification{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		SourceID:    m.SourceID,
		Type:        domain.NotificationType(m.Type),
		ChatID:      m.ChatID,
		RefID:       m.RefID,
		Preview:     m.Preview,
		IsRead:      m.IsRead,
		CreatedAt:   m.CreatedAt,
	}
}

func NotificationDomainToModel(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}
	return &NotificationModel{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SourceID:    n.SourceID,
		Type:        string(n.Type),
		ChatID:      n.ChatID,
		RefID:       n.RefID,
		Preview:     n.Preview,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
}
