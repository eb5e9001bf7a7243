package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
)

func TestContentValidate(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		ok      bool
	}{
		{"text", TextContent("hi"), true},
		{"blank text", TextContent("   "), false},
		{"too long", TextContent(strings.Repeat("a", maxTextLength+1)), false},
		{"media", Content{Kind: ContentMedia, Media: []MediaItem{{URL: "https://cdn/x.png"}}}, true},
		{"media without items", Content{Kind: ContentMedia}, false},
		{"media item without url", Content{Kind: ContentMedia, Media: []MediaItem{{MimeType: "image/png"}}}, false},
		{"system", SystemContent(SystemMemberAdded, "alice", "bob"), false},
		{"unknown kind", Content{Kind: "poll"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.content.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
		})
	}
}

func TestMessageViewFor(t *testing.T) {
	m := &Message{
		ID:         "m1",
		SenderID:   "alice",
		Content:    TextContent("secret"),
		Reactions:  []Reaction{{UserID: "bob", Emoji: "👍"}},
		DeletedFor: []string{"bob", "carol"},
	}

	v := m.ViewFor("bob")
	assert.Equal(t, []string{"bob"}, v.DeletedFor)
	assert.Equal(t, "secret", v.Content.Text)

	v = m.ViewFor("dave")
	assert.Empty(t, v.DeletedFor)

	m.IsDeleted = true
	v = m.ViewFor("dave")
	assert.Equal(t, ContentDeleted, v.Content.Kind)
	assert.Empty(t, v.Content.Text)
	assert.Len(t, v.Reactions, 1)
	assert.Equal(t, "secret", m.Content.Text, "original is untouched")
}

func TestMessageIsReadBy(t *testing.T) {
	m := &Message{SenderID: "alice", ReadBy: []string{"bob"}}
	assert.True(t, m.IsReadBy("alice"))
	assert.True(t, m.IsReadBy("bob"))
	assert.False(t, m.IsReadBy("carol"))
}

func TestNewGroupChat(t *testing.T) {
	c := NewGroupChat("g1", "team", "alice", []string{"bob", "alice", "bob", "", "carol"}, PrivacyOpen, timeZero)
	assert.Equal(t, []string{"alice", "bob", "carol"}, c.Participants)
	assert.Equal(t, []string{"alice"}, c.Admins)
	assert.Equal(t, []string{"bob", "carol"}, c.Recipients("alice"))
	assert.Equal(t, DirectKey("bob", "alice"), DirectKey("alice", "bob"))
}
