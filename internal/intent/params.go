package intent

import (
	"encoding/json"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
)

type ContentParams struct {
	Kind  domain.ContentKind `json:"kind,omitempty"`
	Text  string             `json:"text,omitempty"`
	Media []domain.MediaItem `json:"media,omitempty"`
}

// Content infers the kind when omitted: media when items are attached,
// text otherwise.
func (p ContentParams) Content() domain.Content {
	kind := p.Kind
	if kind == "" {
		kind = domain.ContentText
		if len(p.Media) > 0 {
			kind = domain.ContentMedia
		}
	}
	return domain.Content{Kind: kind, Text: p.Text, Media: p.Media}
}

type PageParams struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

type CreateGroupParams struct {
	Name    string         `json:"name"`
	Members []string       `json:"members"`
	Privacy domain.Privacy `json:"privacy,omitempty"`
}

type UserParams struct {
	UserID string `json:"user_id"`
}

type ChatParams struct {
	ChatID string `json:"chat_id"`
}

type MemberParams struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

type SetAdminParams struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
	Admin  bool   `json:"admin"`
}

type SendParams struct {
	ChatID    string        `json:"chat_id"`
	Content   ContentParams `json:"content"`
	ReplyToID string        `json:"reply_to_id,omitempty"`
	ClientID  string        `json:"client_id,omitempty"`
}

type SendDirectParams struct {
	To       string        `json:"to"`
	Content  ContentParams `json:"content"`
	ClientID string        `json:"client_id,omitempty"`
}

type MarkReadParams struct {
	ChatID string `json:"chat_id"`
	UpToID string `json:"up_to_id,omitempty"`
}

type MessageParams struct {
	MessageID string `json:"message_id"`
}

type ReactParams struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type EditParams struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

type ListMessagesParams struct {
	ChatID   string `json:"chat_id"`
	BeforeID string `json:"before_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type StartCallParams struct {
	Callees []string        `json:"callees"`
	Kind    domain.CallKind `json:"kind,omitempty"`
	ChatID  string          `json:"chat_id,omitempty"`
}

type CallParams struct {
	CallID string `json:"call_id"`
}

type AddCallParticipantParams struct {
	CallID string `json:"call_id"`
	UserID string `json:"user_id"`
}

type ListNotificationsParams struct {
	UnreadOnly bool `json:"unread_only,omitempty"`
	Limit      int  `json:"limit,omitempty"`
	Offset     int  `json:"offset,omitempty"`
}

type NotificationParams struct {
	NotificationID string `json:"notification_id"`
}

// Request is one client intent as carried by the websocket, HTTP and
// headless transports.
type Request struct {
	ID     string          `json:"id,omitempty"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Response struct {
	ID     string      `json:"id,omitempty"`
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}
