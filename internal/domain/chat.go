package domain

import (
	"sort"
	"strings"
	"time"
)

type ChatType string

const (
	ChatTypeDirect ChatType = "direct"
	ChatTypeGroup  ChatType = "group"
)

type Privacy string

const (
	PrivacyOpen       Privacy = "open"
	PrivacyInviteOnly Privacy = "invite_only"
)

func (p Privacy) Valid() bool {
	return p == PrivacyOpen || p == PrivacyInviteOnly
}

type Chat struct {
	ID                 string
	Type               ChatType
	Name               string
	Privacy            Privacy
	CreatedBy          string
	Participants       []string
	Admins             []string
	Unread             map[string]int
	LastMessageID      string
	LastMessagePreview string
	LastMessageAt      time.Time
	CreatedAt          time.Time
}

func NewDirectChat(id, a, b string, now time.Time) *Chat {
	return &Chat{
		ID:           id,
		Type:         ChatTypeDirect,
		Privacy:      PrivacyInviteOnly,
		CreatedBy:    a,
		Participants: []string{a, b},
		Unread:       map[string]int{},
		CreatedAt:    now,
	}
}

// NewGroupChat builds a group with the creator as its first participant and
// only admin. Duplicate members and the creator are dropped from members.
func NewGroupChat(id, name, creator string, members []string, privacy Privacy, now time.Time) *Chat {
	participants := []string{creator}
	seen := map[string]bool{creator: true}
	for _, m := range members {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		participants = append(participants, m)
	}
	return &Chat{
		ID:           id,
		Type:         ChatTypeGroup,
		Name:         name,
		Privacy:      privacy,
		CreatedBy:    creator,
		Participants: participants,
		Admins:       []string{creator},
		Unread:       map[string]int{},
		CreatedAt:    now,
	}
}

func (c *Chat) IsGroup() bool {
	return c.Type == ChatTypeGroup
}

func (c *Chat) HasParticipant(userID string) bool {
	return contains(c.Participants, userID)
}

func (c *Chat) IsAdmin(userID string) bool {
	return contains(c.Admins, userID)
}

// Other returns the counterpart of userID in a direct chat.
func (c *Chat) Other(userID string) string {
	if c.IsGroup() {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// Recipients returns every participant except exclude, in participant order.
func (c *Chat) Recipients(exclude string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != exclude {
			out = append(out, p)
		}
	}
	return out
}

func (c *Chat) UnreadFor(userID string) int {
	return c.Unread[userID]
}

// DirectKey identifies the unique direct chat between two users regardless
// of argument order.
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
