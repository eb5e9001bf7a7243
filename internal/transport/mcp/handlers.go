package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/service"
)

func clampLimit(limit, def, max int) int {
	if limit > max {
		return max
	}
	if limit <= 0 {
		return def
	}
	return limit
}

func toolError(action string, err error) *mcp.CallToolResult {
	_, msg := apperr.Public(err)
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %s", action, msg))
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func (s *Server) handleListChats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	limit := clampLimit(request.GetInt("limit", 20), 20, 100)

	chats, err := s.core.Chats.ListChats(ctx, userID, limit, 0)
	if err != nil {
		return toolError("get chats", err), nil
	}

	if len(chats) == 0 {
		return mcp.NewToolResultText("No chats found."), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d chat(s):\n\n", len(chats)))

	for i, chat := range chats {
		name := chat.Name
		chatType := "Group"
		if chat.Type == domain.ChatTypeDirect {
			chatType = "Direct"
			name = strings.Join(chat.Participants, " & ")
		}

		result.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, name, chatType))
		result.WriteString(fmt.Sprintf("   ID: %s\n", chat.ID))

		if n := chat.Unread[userID]; n > 0 {
			result.WriteString(fmt.Sprintf("   Unread: %d message(s)\n", n))
		}

		if chat.LastMessagePreview != "" {
			result.WriteString(fmt.Sprintf("   Last: %s\n", truncate(chat.LastMessagePreview, 60)))
			result.WriteString(fmt.Sprintf("   Time: %s\n", chat.LastMessageAt.Format("2006-01-02 15:04")))
		}
		result.WriteString("\n")
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (s *Server) handleGetMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	chatID := request.GetString("chat_id", "")
	if userID == "" || chatID == "" {
		return mcp.NewToolResultError("user_id and chat_id are required"), nil
	}
	limit := clampLimit(request.GetInt("limit", 50), 50, 100)

	messages, err := s.core.Messages.List(ctx, service.ListRequest{ChatID: chatID, UserID: userID, Limit: limit})
	if err != nil {
		return toolError("get messages", err), nil
	}

	if len(messages) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No messages found in chat %s", chatID)), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Messages from %s (%d, newest first):\n\n", chatID, len(messages)))

	for _, msg := range messages {
		sender := msg.SenderID
		switch {
		case msg.SenderID == userID:
			sender = "Me"
		case msg.Content.Kind == domain.ContentSystem:
			sender = "System"
		}

		result.WriteString(fmt.Sprintf("[%s] %s", msg.CreatedAt.Format("2006-01-02 15:04"), sender))
		if msg.IsEdited {
			result.WriteString(" (edited)")
		}
		result.WriteString(":\n")
		result.WriteString(fmt.Sprintf("  %s\n", msg.Content.Preview()))

		if len(msg.Reactions) > 0 {
			emojis := make([]string, len(msg.Reactions))
			for i, r := range msg.Reactions {
				emojis[i] = r.Emoji
			}
			result.WriteString(fmt.Sprintf("  Reactions: %s\n", strings.Join(emojis, " ")))
		}

		result.WriteString(fmt.Sprintf("  ID: %s\n\n", msg.ID))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	chatID := request.GetString("chat_id", "")
	text := request.GetString("text", "")
	if userID == "" || chatID == "" {
		return mcp.NewToolResultError("user_id and chat_id are required"), nil
	}
	if text == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	msg, err := s.core.Messages.Send(ctx, service.SendRequest{
		ChatID:   chatID,
		SenderID: userID,
		Content:  domain.Content{Kind: domain.ContentText, Text: text},
	})
	if err != nil {
		return toolError("send message", err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Message sent successfully!\nID: %s\nTimestamp: %s\nTo: %s",
		msg.ID, msg.CreatedAt.Format("2006-01-02 15:04:05"), chatID)), nil
}

func (s *Server) handleSendReaction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	messageID := request.GetString("message_id", "")
	emoji := request.GetString("emoji", "")

	if userID == "" || messageID == "" {
		return mcp.NewToolResultError("user_id and message_id are required"), nil
	}
	if emoji == "" {
		return mcp.NewToolResultError("emoji is required"), nil
	}

	if _, err := s.core.Messages.React(ctx, messageID, userID, emoji); err != nil {
		return toolError("send reaction", err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Reaction %s sent to message %s", emoji, messageID)), nil
}

func (s *Server) handleMarkRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	chatID := request.GetString("chat_id", "")
	if userID == "" || chatID == "" {
		return mcp.NewToolResultError("user_id and chat_id are required"), nil
	}

	receipt, err := s.core.Messages.MarkRead(ctx, chatID, userID, "")
	if err != nil {
		return toolError("mark as read", err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Marked %d message(s) as read in chat %s", len(receipt.MessageIDs), chatID)), nil
}

func (s *Server) handleMissedCalls(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	limit := clampLimit(request.GetInt("limit", 20), 20, 100)

	calls, err := s.core.Calls.MissedCallsFor(ctx, userID, limit)
	if err != nil {
		return toolError("get missed calls", err), nil
	}

	if len(calls) == 0 {
		return mcp.NewToolResultText("No missed calls."), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Missed calls (%d):\n\n", len(calls)))
	for i, call := range calls {
		result.WriteString(fmt.Sprintf("%d. %s call from %s\n", i+1, call.Kind, call.InitiatorID))
		result.WriteString(fmt.Sprintf("   Time: %s\n", call.StartedAt.Format("2006-01-02 15:04")))
		result.WriteString(fmt.Sprintf("   ID: %s\n\n", call.ID))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (s *Server) handleListNotifications(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	unreadOnly := request.GetBool("unread_only", false)
	limit := clampLimit(request.GetInt("limit", 20), 20, 100)

	notifications, err := s.core.Notifications.List(ctx, userID, unreadOnly, limit, 0)
	if err != nil {
		return toolError("get notifications", err), nil
	}
	unread, err := s.core.Notifications.UnreadCount(ctx, userID)
	if err != nil {
		return toolError("count notifications", err), nil
	}

	if len(notifications) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No notifications. Unread: %d", unread)), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Notifications (%d shown, %d unread):\n\n", len(notifications), unread))
	for i, n := range notifications {
		marker := ""
		if !n.IsRead {
			marker = " [new]"
		}
		result.WriteString(fmt.Sprintf("%d. %s from %s%s\n", i+1, n.Type, n.SourceID, marker))
		if n.Preview != "" {
			result.WriteString(fmt.Sprintf("   %s\n", truncate(n.Preview, 80)))
		}
		result.WriteString(fmt.Sprintf("   ID: %s\n\n", n.ID))
	}

	return mcp.NewToolResultText(result.String()), nil
}
