package domain

import (
	"strings"
	"time"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
)

type ContentKind string

const (
	ContentText   ContentKind = "text"
	ContentMedia  ContentKind = "media"
	ContentSystem ContentKind = "system"
	// ContentDeleted replaces the content of hard-deleted messages for every viewer.
	ContentDeleted ContentKind = "deleted"
)

const maxTextLength = 8192

type MediaItem struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type SystemEvent struct {
	Action  string   `json:"action"`
	ActorID string   `json:"actor_id,omitempty"`
	Targets []string `json:"targets,omitempty"`
}

const (
	SystemGroupCreated  = "group_created"
	SystemMemberAdded   = "member_added"
	SystemMemberRemoved = "member_removed"
)

// Content is a tagged variant: Text for text, Media (with optional Text as
// caption) for media, System for server-generated events.
type Content struct {
	Kind   ContentKind  `json:"kind"`
	Text   string       `json:"text,omitempty"`
	Media  []MediaItem  `json:"media,omitempty"`
	System *SystemEvent `json:"system,omitempty"`
}

func TextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

func SystemContent(action, actor string, targets ...string) Content {
	return Content{Kind: ContentSystem, System: &SystemEvent{Action: action, ActorID: actor, Targets: targets}}
}

// Validate checks content a user may send. System content is rejected since
// only the server produces it.
func (c Content) Validate() error {
	switch c.Kind {
	case ContentText:
		if strings.TrimSpace(c.Text) == "" {
			return apperr.InvalidArgument("message text is empty")
		}
		if len(c.Text) > maxTextLength {
			return apperr.InvalidArgument("message text is too long")
		}
	case ContentMedia:
		if len(c.Media) == 0 {
			return apperr.InvalidArgument("media message has no items")
		}
		for _, m := range c.Media {
			if strings.TrimSpace(m.URL) == "" {
				return apperr.InvalidArgument("media item has no url")
			}
		}
	case ContentSystem:
		return apperr.InvalidArgument("system messages cannot be sent by users")
	default:
		return apperr.InvalidArgument("unknown content kind")
	}
	return nil
}

// Preview is the short text shown in chat lists.
func (c Content) Preview() string {
	switch c.Kind {
	case ContentText:
		return truncate(c.Text, 80)
	case ContentMedia:
		if c.Text != "" {
			return truncate(c.Text, 80)
		}
		return "[media]"
	case ContentSystem:
		if c.System != nil {
			return "[" + c.System.Action + "]"
		}
	}
	return ""
}

type Reaction struct {
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID         string
	ChatID     string
	SenderID   string
	ClientID   string
	Content    Content
	ReplyToID  string
	Reactions  []Reaction
	ReadBy     []string
	DeletedFor []string
	IsDeleted  bool
	IsEdited   bool
	CreatedAt  time.Time
	EditedAt   *time.Time
	DeletedAt  *time.Time
}

func (m *Message) IsReadBy(userID string) bool {
	return m.SenderID == userID || contains(m.ReadBy, userID)
}

func (m *Message) IsDeletedFor(userID string) bool {
	return contains(m.DeletedFor, userID)
}

func (m *Message) ReactionBy(userID string) *Reaction {
	for i := range m.Reactions {
		if m.Reactions[i].UserID == userID {
			return &m.Reactions[i]
		}
	}
	return nil
}

// ViewFor returns the message as viewer should see it. Hard-deleted content
// is replaced by a placeholder while reactions and read state remain, and
// other users' soft deletions are not exposed.
func (m *Message) ViewFor(viewer string) *Message {
	v := *m
	if m.IsDeleted {
		v.Content = Content{Kind: ContentDeleted}
	}
	v.DeletedFor = nil
	if m.IsDeletedFor(viewer) {
		v.DeletedFor = []string{viewer}
	}
	return &v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
