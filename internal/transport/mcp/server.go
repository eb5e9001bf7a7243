// Package mcp exposes a read-mostly operator surface over the Model Context
// Protocol. Every tool acts on behalf of the user named in its user_id
// argument, so the endpoint must only be bound to trusted interfaces.
package mcp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/clippy-oss/homie/convo-engine/internal/service"
)

type ServerConfig struct {
	Address string
}

type Server struct {
	mcpServer  *server.MCPServer
	sseServer  *server.SSEServer
	httpServer *http.Server
	core       *service.Core
	config     ServerConfig
}

func NewServer(core *service.Core, config ServerConfig) *Server {
	s := &Server{
		core:   core,
		config: config,
	}

	s.mcpServer = server.NewMCPServer(
		"convo-engine",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	s.sseServer = server.NewSSEServer(s.mcpServer,
		server.WithKeepAliveInterval(30*time.Second),
	)

	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func userArg() mcp.ToolOption {
	return mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("ID of the user the tool acts as"),
	)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("convo_list_chats",
			mcp.WithDescription("List a user's chats sorted by most recent activity"),
			userArg(),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of chats to return (default 20, max 100)"),
			),
		),
		s.handleListChats,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("convo_get_messages",
			mcp.WithDescription("Get the most recent messages of a chat as the user sees them"),
			userArg(),
			mcp.WithString("chat_id",
				mcp.Required(),
				mcp.Description("ID of the chat"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of messages to return (default 50, max 100)"),
			),
		),
		s.handleGetMessages,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("convo_send_message",
			mcp.WithDescription("Send a text message to a chat"),
			userArg(),
			mcp.WithString("chat_id",
				mcp.Required(),
				mcp.Description("ID of the chat to send the message to"),
			),
			mcp.WithString("text",
				mcp.Required(),
				mcp.Description("Message text to send"),
			),
		),
		s.handleSendMessage,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("convo_send_reaction",
			mcp.WithDescription("React to a message with an emoji, replacing any earlier reaction by the same user"),
			userArg(),
			mcp.WithString("message_id",
				mcp.Required(),
				mcp.Description("ID of the message to react to"),
			),
			mcp.WithString("emoji",
				mcp.Required(),
				mcp.Description("Reaction emoji (e.g., '👍', '❤️', '😂')"),
			),
		),
		s.handleSendReaction,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("convo_mark_read",
			mcp.WithDescription("Mark every message in a chat as read"),
			userArg(),
			mcp.WithString("chat_id",
				mcp.Required(),
				mcp.Description("ID of the chat"),
			),
		),
		s.handleMarkRead,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("convo_missed_calls",
			mcp.WithDescription("List calls the user missed"),
			userArg(),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of calls to return (default 20, max 100)"),
			),
		),
		s.handleMissedCalls,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("convo_list_notifications",
			mcp.WithDescription("List the user's notifications, newest first"),
			userArg(),
			mcp.WithBoolean("unread_only",
				mcp.Description("Only return unread notifications"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of notifications to return (default 20, max 100)"),
			),
		),
		s.handleListNotifications,
	)
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.Handle("/sse", s.sseServer.SSEHandler())
	mux.Handle("/message", s.sseServer.MessageHandler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.httpServer = &http.Server{
		Addr:    s.config.Address,
		Handler: mux,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
