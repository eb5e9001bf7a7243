package intent_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/intent"
	"github.com/clippy-oss/homie/convo-engine/internal/repository/repotest"
	"github.com/clippy-oss/homie/convo-engine/internal/service"
)

func newDispatcher(t *testing.T) *intent.Dispatcher {
	t.Helper()
	core := service.NewCore(repotest.Open(t), domain.NewEventBus(), service.DefaultMaxCallParticipants)
	return intent.NewDispatcher(core)
}

func execute(t *testing.T, d *intent.Dispatcher, actor, action, params string) interface{} {
	t.Helper()
	result, err := d.Execute(context.Background(), actor, action, json.RawMessage(params))
	require.NoError(t, err, "%s as %s", action, actor)
	return result
}

func TestExecuteRejects(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  string
		action string
		params string
		code   apperr.Code
	}{
		{"no actor", "", "chat.list", `{}`, apperr.CodeUnauthorized},
		{"unknown action", "alice", "chat.explode", `{}`, apperr.CodeInvalidArgument},
		{"malformed params", "alice", "message.send", `{"chat_id":`, apperr.CodeInvalidArgument},
		{"unknown field", "alice", "chat.get", `{"chat":"x"}`, apperr.CodeInvalidArgument},
		{"missing chat", "alice", "chat.get", `{"chat_id":"nope"}`, apperr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Execute(ctx, tt.actor, tt.action, json.RawMessage(tt.params))
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
}

func TestConversationFlow(t *testing.T) {
	d := newDispatcher(t)

	chat := execute(t, d, "alice", "chat.create_group", `{"name":"team","members":["bob","carol"]}`).(*domain.Chat)
	require.Len(t, chat.Participants, 3)

	msg := execute(t, d, "alice", "message.send", `{"chat_id":"`+chat.ID+`","content":{"text":"hello"}}`).(*domain.Message)
	assert.Equal(t, domain.ContentText, msg.Content.Kind)

	media := execute(t, d, "bob", "message.send", `{"chat_id":"`+chat.ID+`","content":{"media":[{"url":"https://cdn.example/a.png","mime_type":"image/png"}]}}`).(*domain.Message)
	assert.Equal(t, domain.ContentMedia, media.Content.Kind)

	reacted := execute(t, d, "bob", "message.react", `{"message_id":"`+msg.ID+`","emoji":"👍"}`).(*domain.Message)
	require.Len(t, reacted.Reactions, 1)

	listed := execute(t, d, "carol", "message.list", `{"chat_id":"`+chat.ID+`"}`).(map[string]interface{})
	assert.Equal(t, 3, listed["count"], "system message plus two sent")

	chats := execute(t, d, "carol", "chat.list", ``).(map[string]interface{})
	require.Equal(t, 1, chats["count"])
	assert.Zero(t, chats["chats"].([]*domain.Chat)[0].UnreadFor("carol"), "listing messages reads them")

	notes := execute(t, d, "alice", "notification.list", `{"unread_only":true}`).(map[string]interface{})
	assert.EqualValues(t, 2, notes["unread"], "bob's message and reaction")

	marked := execute(t, d, "alice", "notification.mark_all_read", ``).(map[string]int64)
	assert.EqualValues(t, 2, marked["marked"])
}

func TestCallFlow(t *testing.T) {
	d := newDispatcher(t)

	call := execute(t, d, "alice", "call.start", `{"callees":["bob"],"kind":"audio"}`).(*domain.Call)
	answered := execute(t, d, "bob", "call.answer", `{"call_id":"`+call.ID+`"}`).(*domain.Call)
	assert.Equal(t, domain.CallStatusActive, answered.Status)

	ended := execute(t, d, "alice", "call.leave", `{"call_id":"`+call.ID+`"}`).(*domain.Call)
	assert.Equal(t, domain.CallStatusActive, ended.Status, "bob is still in the call")

	ended = execute(t, d, "bob", "call.leave", `{"call_id":"`+call.ID+`"}`).(*domain.Call)
	assert.Equal(t, domain.CallStatusEnded, ended.Status)

	view := execute(t, d, "bob", "call.get", `{"call_id":"`+call.ID+`"}`).(domain.CallView)
	assert.True(t, view.Incoming)
	assert.False(t, view.Missed)

	missed := execute(t, d, "bob", "call.missed", ``).(map[string]interface{})
	assert.EqualValues(t, 0, missed["count"])
}

func TestFriendRequest(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	n := execute(t, d, "alice", "notification.friend_request", `{"user_id":"bob"}`).(*domain.Notification)
	assert.Equal(t, domain.NotificationFriendRequest, n.Type)
	assert.Equal(t, "bob", n.RecipientID)
	assert.Equal(t, "alice", n.SourceID)

	notes := execute(t, d, "bob", "notification.list", ``).(map[string]interface{})
	assert.EqualValues(t, 1, notes["unread"])

	_, err := d.Execute(ctx, "alice", "notification.friend_request", json.RawMessage(`{"user_id":"alice"}`))
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))

	execute(t, d, "carol", "chat.block", `{"user_id":"alice"}`)
	_, err = d.Execute(ctx, "alice", "notification.friend_request", json.RawMessage(`{"user_id":"carol"}`))
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestActions(t *testing.T) {
	actions := newDispatcher(t).Actions()
	assert.Len(t, actions, 31)
	assert.Contains(t, actions, "message.send_direct")
	assert.Contains(t, actions, "notification.dismiss")
}

func TestNewResponse(t *testing.T) {
	ok := intent.NewResponse("1", map[string]bool{"x": true}, nil)
	assert.True(t, ok.OK)
	assert.Nil(t, ok.Error)

	failed := intent.NewResponse("2", nil, apperr.Internal("boom", errors.New("db password leaked")))
	assert.False(t, failed.OK)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "INTERNAL", failed.Error.Code)
	assert.NotContains(t, failed.Error.Message, "password")

	denied := intent.NewResponse("3", nil, apperr.Forbidden("not a participant of this chat"))
	assert.Equal(t, "FORBIDDEN", denied.Error.Code)
	assert.Equal(t, "not a participant of this chat", denied.Error.Message)
}
