package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/intent"
	"github.com/clippy-oss/homie/convo-engine/internal/repository/repotest"
	"github.com/clippy-oss/homie/convo-engine/internal/service"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newDispatcher(t *testing.T) (*intent.Dispatcher, domain.EventBus) {
	t.Helper()
	bus := domain.NewEventBus()
	core := service.NewCore(repotest.Open(t), bus, service.DefaultMaxCallParticipants)
	return intent.NewDispatcher(core), bus
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("  /send c1 hello there ")
	require.NoError(t, err)
	assert.Equal(t, "send", cmd.Name)
	assert.Equal(t, []string{"c1", "hello", "there"}, cmd.Args)

	for _, input := range []string{"", "send c1 hi", "/"} {
		_, err := ParseCommand(input)
		assert.Error(t, err, input)
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		input  string
		action string
		params string
	}{
		{"/ls 5", "chat.list", `{"limit":5}`},
		{"/group team bob carol", "chat.create_group", `{"members":["bob","carol"],"name":"team"}`},
		{"/kick c1 bob", "chat.remove_member", `{"chat_id":"c1","user_id":"bob"}`},
		{"/send c1 hello there", "message.send", `{"chat_id":"c1","content":{"text":"hello there"}}`},
		{"/dm bob hi", "message.send_direct", `{"content":{"text":"hi"},"to":"bob"}`},
		{"/read c1 m9", "message.mark_read", `{"chat_id":"c1","up_to_id":"m9"}`},
		{"/unsend m1", "message.hard_delete", `{"message_id":"m1"}`},
		{"/video bob carol", "call.start", `{"callees":["bob","carol"],"kind":"video"}`},
		{"/decline k1", "call.decline", `{"call_id":"k1"}`},
		{"/n unread", "notification.list", `{"unread_only":true}`},
		{"/friend bob", "notification.friend_request", `{"user_id":"bob"}`},
		{`/do chat.get {"chat_id": "c1"}`, "chat.get", `{"chat_id":"c1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd, err := ParseCommand(tt.input)
			require.NoError(t, err)
			action, p, err := translate(cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.action, action)
			raw, err := json.Marshal(p)
			require.NoError(t, err)
			assert.JSONEq(t, tt.params, string(raw))
		})
	}

	for _, input := range []string{"/send c1", "/ls many", "/answer", "/do x {bad", "/bogus"} {
		cmd, err := ParseCommand(input)
		require.NoError(t, err)
		_, _, err = translate(cmd)
		assert.Error(t, err, input)
	}
}

func TestCommandHandlerActsAsCurrentUser(t *testing.T) {
	dispatcher, bus := newDispatcher(t)
	h := NewCommandHandler(dispatcher, bus)
	ctx := context.Background()

	_, err := h.Execute(ctx, &Command{Name: "chats"})
	require.Error(t, err)

	_, err = h.Execute(ctx, &Command{Name: "as", Args: []string{"alice"}})
	require.NoError(t, err)
	assert.Equal(t, "alice", h.UserID())

	result, err := h.Execute(ctx, &Command{Name: "group", Args: []string{"team", "bob"}})
	require.NoError(t, err)
	chat, ok := result.(*domain.Chat)
	require.True(t, ok)
	assert.Equal(t, "alice", chat.CreatedBy)

	_, err = h.Execute(ctx, &Command{Name: "quit"})
	assert.ErrorIs(t, err, errQuit)
}

func TestHeadless(t *testing.T) {
	dispatcher, bus := newDispatcher(t)

	input := strings.Join([]string{
		`{"id":"1","as":"bob","action":"subscribe"}`,
		`{"id":"2","as":"alice","action":"message.send_direct","params":{"to":"bob","content":{"text":"hi"}}}`,
		`{"id":"3","action":"chat.list"}`,
		`not json`,
		`{"id":"5","action":"quit"}`,
		`{"id":"6","as":"alice","action":"chat.list"}`,
	}, "\n") + "\n"
	out := &syncBuffer{}

	cli := NewHeadlessCLI(dispatcher, bus, strings.NewReader(input), out)
	require.NoError(t, cli.Run(context.Background()))

	responses := map[string]map[string]interface{}{}
	var events []map[string]interface{}
	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	for scanner.Scan() {
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		if line["type"] == "event" {
			events = append(events, line)
			continue
		}
		id, _ := line["id"].(string)
		responses[id] = line
	}

	assert.Equal(t, true, responses["1"]["success"])
	assert.Equal(t, true, responses["2"]["success"])
	assert.Equal(t, false, responses["3"]["success"])
	assert.Equal(t, "UNAUTHORIZED", responses["3"]["code"])
	assert.Equal(t, "INVALID_ARGUMENT", responses[""]["code"])
	assert.Equal(t, true, responses["5"]["success"])
	assert.NotContains(t, responses, "6")

	var kinds []string
	for _, e := range events {
		assert.Equal(t, "bob", e["recipient"])
		kinds = append(kinds, e["event"].(string))
	}
	assert.Contains(t, kinds, string(domain.EventMessageNew))
}

func TestInteractive(t *testing.T) {
	dispatcher, bus := newDispatcher(t)
	handler := NewCommandHandler(dispatcher, bus)

	input := strings.Join([]string{
		"/as alice",
		"/group team bob",
		"/chats",
		"/send missing-chat hi",
		"hello",
		"/quit",
		"/chats",
	}, "\n") + "\n"
	out := &syncBuffer{}

	cli := NewInteractiveCLI(handler, strings.NewReader(input), out)
	require.NoError(t, cli.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Now acting as alice")
	assert.Contains(t, text, "Found 1 chat(s)")
	assert.Contains(t, text, "team (group)")
	assert.Contains(t, text, "Error: commands must start with /")
	assert.Contains(t, text, "Goodbye!")
	assert.Equal(t, 1, strings.Count(text, "Found 1 chat(s)"))
}
