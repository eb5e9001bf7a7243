package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
)

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	core, bus := newCore(t)
	chat := newGroup(t, core, "alice", "bob")
	events := bus.Subscribe(domain.Filter{Recipient: "bob", Types: []domain.EventType{domain.EventNotificationRead}})
	defer bus.Unsubscribe(events)

	first := send(t, core, chat.ID, "alice", "one")
	send(t, core, chat.ID, "alice", "two")
	request, err := core.Notifications.FriendRequest(ctx, "carol", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationFriendRequest, request.Type)

	n, err := core.Notifications.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	list, err := core.Notifications.List(ctx, "bob", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	var messageNote *domain.Notification
	for _, note := range list {
		if note.RefID == first.ID {
			messageNote = note
		}
	}
	require.NotNil(t, messageNote)
	assert.Equal(t, domain.NotificationMessage, messageNote.Type)
	assert.Equal(t, "alice", messageNote.SourceID)
	assert.Equal(t, chat.ID, messageNote.ChatID)

	require.NoError(t, core.Notifications.MarkRead(ctx, messageNote.ID, "bob"))
	require.NoError(t, core.Notifications.MarkRead(ctx, messageNote.ID, "bob"))
	require.NoError(t, core.Notifications.MarkRead(ctx, request.ID, "alice"), "someone else's notification is left alone")
	assert.Len(t, drain(events), 1)

	n, err = core.Notifications.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	marked, err := core.Notifications.MarkAllRead(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 2, marked)
	marked, err = core.Notifications.MarkAllRead(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, marked)

	unread, err := core.Notifications.List(ctx, "bob", true, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)

	requireCode(t, core.Notifications.Dismiss(ctx, request.ID, "alice"), apperr.CodeNotFound)
	require.NoError(t, core.Notifications.Dismiss(ctx, request.ID, "bob"))
	requireCode(t, core.Notifications.Dismiss(ctx, request.ID, "bob"), apperr.CodeNotFound)

	_, err = core.Notifications.FriendRequest(ctx, "bob", "bob")
	requireCode(t, err, apperr.CodeInvalidArgument)
}
