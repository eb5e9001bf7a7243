package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/service"
)

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	core, _ := newCore(t)

	chat := newGroup(t, core, "alice", "bob", "carol", "bob")
	assert.Equal(t, []string{"alice", "bob", "carol"}, chat.Participants)
	assert.Equal(t, []string{"alice"}, chat.Admins)

	_, err := core.Chats.CreateGroup(ctx, "alice", " ", []string{"bob"}, domain.PrivacyOpen)
	requireCode(t, err, apperr.CodeInvalidArgument)
	_, err = core.Chats.CreateGroup(ctx, "alice", "team", []string{"bob"}, "secret")
	requireCode(t, err, apperr.CodeInvalidArgument)

	require.NoError(t, core.Chats.Block(ctx, "dave", "alice"))
	_, err = core.Chats.CreateGroup(ctx, "alice", "team", []string{"dave"}, domain.PrivacyOpen)
	requireCode(t, err, apperr.CodeForbidden)
}

func TestGetOrCreateDirect(t *testing.T) {
	ctx := context.Background()
	core, _ := newCore(t)

	first, err := core.Chats.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	second, err := core.Chats.GetOrCreateDirect(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.ChatTypeDirect, second.Type)

	chats, err := core.Chats.ListChats(ctx, "alice", 0, 0)
	require.NoError(t, err)
	assert.Len(t, chats, 1)

	_, err = core.Chats.GetOrCreateDirect(ctx, "alice", "alice")
	requireCode(t, err, apperr.CodeInvalidArgument)

	require.NoError(t, core.Chats.Block(ctx, "carol", "alice"))
	_, err = core.Chats.GetOrCreateDirect(ctx, "alice", "carol")
	requireCode(t, err, apperr.CodeForbidden)

	require.NoError(t, core.Chats.Unblock(ctx, "carol", "alice"))
	_, err = core.Chats.GetOrCreateDirect(ctx, "alice", "carol")
	require.NoError(t, err)

	_, err = core.Chats.AddMember(ctx, first.ID, "alice", "carol")
	requireCode(t, err, apperr.CodeInvalidArgument)
}

func TestMembership(t *testing.T) {
	ctx := context.Background()

	t.Run("invite only groups need an admin to add", func(t *testing.T) {
		core, _ := newCore(t)
		chat, err := core.Chats.CreateGroup(ctx, "alice", "core", []string{"bob"}, domain.PrivacyInviteOnly)
		require.NoError(t, err)

		_, err = core.Chats.AddMember(ctx, chat.ID, "bob", "carol")
		requireCode(t, err, apperr.CodeForbidden)

		updated, err := core.Chats.AddMember(ctx, chat.ID, "alice", "carol")
		require.NoError(t, err)
		assert.True(t, updated.HasParticipant("carol"))

		_, err = core.Chats.AddMember(ctx, chat.ID, "mallory", "eve")
		requireCode(t, err, apperr.CodeForbidden)
	})

	t.Run("open groups accept any member's additions", func(t *testing.T) {
		core, bus := newCore(t)
		chat := newGroup(t, core, "alice", "bob")
		events := bus.Subscribe(domain.Filter{Recipient: "carol"})
		defer bus.Unsubscribe(events)

		updated, err := core.Chats.AddMember(ctx, chat.ID, "bob", "carol")
		require.NoError(t, err)
		assert.True(t, updated.HasParticipant("carol"))
		assert.NotEmpty(t, ofType(drain(events), domain.EventChatMemberAdded))

		ok, err := core.Registry.IsParticipant(ctx, "carol", chat.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("removal rules", func(t *testing.T) {
		core, _ := newCore(t)
		chat := newGroup(t, core, "alice", "bob", "carol")

		requireCode(t, core.Chats.RemoveMember(ctx, chat.ID, "bob", "carol"), apperr.CodeForbidden)
		require.NoError(t, core.Chats.RemoveMember(ctx, chat.ID, "carol", "carol"))
		requireCode(t, core.Chats.RemoveMember(ctx, chat.ID, "alice", "carol"), apperr.CodeNotFound)

		_, err := core.Chats.GetChat(ctx, chat.ID, "carol")
		requireCode(t, err, apperr.CodeForbidden)
	})

	t.Run("last admin leaving promotes someone", func(t *testing.T) {
		core, _ := newCore(t)
		chat := newGroup(t, core, "alice", "bob", "carol")

		requireCode(t, core.Chats.SetAdmin(ctx, chat.ID, "alice", "alice", false), apperr.CodeInvalidArgument)
		requireCode(t, core.Chats.SetAdmin(ctx, chat.ID, "bob", "carol", true), apperr.CodeForbidden)

		require.NoError(t, core.Chats.RemoveMember(ctx, chat.ID, "alice", "alice"))
		ok, err := core.Registry.IsAdmin(ctx, "bob", chat.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("chat is destroyed with its last participant", func(t *testing.T) {
		core, _ := newCore(t)
		chat := newGroup(t, core, "alice", "bob")
		send(t, core, chat.ID, "bob", "bye")

		require.NoError(t, core.Chats.RemoveMember(ctx, chat.ID, "alice", "alice"))
		require.NoError(t, core.Chats.RemoveMember(ctx, chat.ID, "bob", "bob"))

		_, err := core.Chats.GetChat(ctx, chat.ID, "bob")
		requireCode(t, err, apperr.CodeNotFound)
	})
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	core, _ := newCore(t)

	direct, err := core.Messages.SendDirect(ctx, "alice", "bob", domain.TextContent("hi bob"), "")
	require.NoError(t, err)
	group := newGroup(t, core, "alice", "bob", "carol")
	send(t, core, group.ID, "alice", "hi all")
	reply := send(t, core, group.ID, "bob", "hi alice")
	send(t, core, group.ID, "alice", "bye")
	require.NoError(t, core.Chats.Block(ctx, "alice", "dave"))

	require.NoError(t, core.Accounts.Purge(ctx, "alice"))

	_, err = core.Chats.GetChat(ctx, direct.ChatID, "bob")
	requireCode(t, err, apperr.CodeNotFound)

	chat, err := core.Chats.GetChat(ctx, group.ID, "bob")
	require.NoError(t, err)
	assert.False(t, chat.HasParticipant("alice"))
	assert.True(t, chat.IsAdmin("bob"))
	assert.Equal(t, reply.ID, chat.LastMessageID, "last message falls back to the newest survivor")
	assert.Equal(t, "hi alice", chat.LastMessagePreview)

	page, err := core.Messages.List(ctx, service.ListRequest{ChatID: group.ID, UserID: "bob"})
	require.NoError(t, err)
	require.NotEmpty(t, page)
	assert.Equal(t, reply.ID, page[0].ID)
	for _, m := range page {
		assert.NotEqual(t, "alice", m.SenderID)
	}

	n, err := core.Notifications.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, n)

	ok, err := core.Registry.CanMessage(ctx, "alice", "dave")
	require.NoError(t, err)
	assert.True(t, ok)
}
