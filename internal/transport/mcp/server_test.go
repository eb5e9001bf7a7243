package mcp_test

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/repository/repotest"
	"github.com/clippy-oss/homie/convo-engine/internal/service"
	mcptransport "github.com/clippy-oss/homie/convo-engine/internal/transport/mcp"
)

func newClient(t *testing.T) (*client.Client, *service.Core) {
	t.Helper()
	core := service.NewCore(repotest.Open(t), domain.NewEventBus(), service.DefaultMaxCallParticipants)
	srv := mcptransport.NewServer(core, mcptransport.ServerConfig{})

	c, err := client.NewInProcessClient(srv.MCPServer())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "1.0.0"}
	_, err = c.Initialize(ctx, initReq)
	require.NoError(t, err)
	return c, core
}

func callTool(t *testing.T, c *client.Client, name string, args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestListTools(t *testing.T) {
	c, _ := newClient(t)

	res, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)
	names := make([]string, len(res.Tools))
	for i, tool := range res.Tools {
		names[i] = tool.Name
	}
	assert.ElementsMatch(t, []string{
		"convo_list_chats",
		"convo_get_messages",
		"convo_send_message",
		"convo_send_reaction",
		"convo_mark_read",
		"convo_missed_calls",
		"convo_list_notifications",
	}, names)
}

func TestMessagingTools(t *testing.T) {
	c, core := newClient(t)
	ctx := context.Background()

	chat, err := core.Chats.CreateGroup(ctx, "alice", "team", []string{"bob"}, "")
	require.NoError(t, err)

	text, isErr := callTool(t, c, "convo_send_message", map[string]any{"user_id": "alice", "chat_id": chat.ID, "text": "hello team"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "Message sent successfully!")

	text, isErr = callTool(t, c, "convo_list_chats", map[string]any{"user_id": "bob"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "team (Group)")
	assert.Contains(t, text, "hello team")

	text, isErr = callTool(t, c, "convo_get_messages", map[string]any{"user_id": "bob", "chat_id": chat.ID})
	require.False(t, isErr, text)
	assert.Contains(t, text, "alice")
	assert.Contains(t, text, "hello team")

	text, isErr = callTool(t, c, "convo_mark_read", map[string]any{"user_id": "bob", "chat_id": chat.ID})
	require.False(t, isErr, text)
	assert.Contains(t, text, "as read in chat "+chat.ID)

	text, isErr = callTool(t, c, "convo_list_notifications", map[string]any{"user_id": "bob"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "message from alice")
}

func TestToolErrors(t *testing.T) {
	c, core := newClient(t)
	chat, err := core.Chats.CreateGroup(context.Background(), "alice", "team", []string{"bob"}, "")
	require.NoError(t, err)

	text, isErr := callTool(t, c, "convo_get_messages", map[string]any{"user_id": "mallory", "chat_id": chat.ID})
	assert.True(t, isErr)
	assert.Contains(t, text, "Failed to get messages")

	text, isErr = callTool(t, c, "convo_send_reaction", map[string]any{"user_id": "alice", "message_id": "missing", "emoji": "👍"})
	assert.True(t, isErr)
	assert.Contains(t, text, "Failed to send reaction")

	_, isErr = callTool(t, c, "convo_send_message", map[string]any{"user_id": "alice", "chat_id": chat.ID})
	assert.True(t, isErr)
}

func TestMissedCallsTool(t *testing.T) {
	c, core := newClient(t)
	ctx := context.Background()

	call, err := core.Calls.StartCall(ctx, service.StartCallRequest{InitiatorID: "alice", Callees: []string{"bob"}})
	require.NoError(t, err)
	_, err = core.Calls.Timeout(ctx, call.ID, "bob")
	require.NoError(t, err)

	text, isErr := callTool(t, c, "convo_missed_calls", map[string]any{"user_id": "bob"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "call from alice")
	assert.Contains(t, text, call.ID)

	text, _ = callTool(t, c, "convo_missed_calls", map[string]any{"user_id": "alice"})
	assert.Equal(t, "No missed calls.", text)
}
