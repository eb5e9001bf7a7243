package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/intent"
)

// errQuit ends the interactive loop.
var errQuit = errors.New("quit")

// CommandHandler turns slash commands into intents executed as the current
// user.
type CommandHandler struct {
	dispatcher *intent.Dispatcher
	eventBus   domain.EventBus

	mu     sync.RWMutex
	userID string
}

func NewCommandHandler(dispatcher *intent.Dispatcher, eventBus domain.EventBus) *CommandHandler {
	return &CommandHandler{
		dispatcher: dispatcher,
		eventBus:   eventBus,
	}
}

// Command represents a parsed command
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a command string (e.g., "/send <chat_id> Hello")
func ParseCommand(input string) (*Command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty command")
	}

	if !strings.HasPrefix(input, "/") {
		return nil, fmt.Errorf("commands must start with /")
	}

	parts := strings.Fields(input)
	name := strings.TrimPrefix(parts[0], "/")
	if name == "" {
		return nil, fmt.Errorf("empty command")
	}

	return &Command{Name: name, Args: parts[1:]}, nil
}

func (h *CommandHandler) UserID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.userID
}

func (h *CommandHandler) setUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.userID = userID
}

// Execute executes a command and returns the result
func (h *CommandHandler) Execute(ctx context.Context, cmd *Command) (interface{}, error) {
	switch cmd.Name {
	case "help", "h":
		return map[string]string{"help": helpText}, nil
	case "as":
		if len(cmd.Args) != 1 {
			return nil, fmt.Errorf("usage: /as <user_id>")
		}
		h.setUser(cmd.Args[0])
		return map[string]string{"message": "Now acting as " + cmd.Args[0]}, nil
	case "whoami":
		if h.UserID() == "" {
			return map[string]string{"message": "No user selected. Use /as <user_id>"}, nil
		}
		return map[string]string{"message": h.UserID()}, nil
	case "quit", "exit", "q":
		return nil, errQuit
	}

	action, params, err := translate(cmd)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return h.dispatcher.Execute(ctx, h.UserID(), action, raw)
}

// SubscribeEvents streams events addressed to userID.
func (h *CommandHandler) SubscribeEvents(userID string) <-chan domain.Envelope {
	return h.eventBus.Subscribe(domain.Filter{Recipient: userID})
}

func (h *CommandHandler) UnsubscribeEvents(ch <-chan domain.Envelope) {
	h.eventBus.Unsubscribe(ch)
}

const helpText = `Available commands:

Identity:
  /as <user_id>                 Act as the given user
  /whoami                       Show the current user

Chats:
  /chats, /ls [limit]           List chats (default: 20)
  /group <name> <member>...     Create a group chat
  /add <chat_id> <user_id>      Add a member to a group
  /kick <chat_id> <user_id>     Remove a member from a group
  /block <user_id>              Block a user
  /unblock <user_id>            Unblock a user
  /friend <user_id>             Send a friend request

Messages:
  /messages, /msg <chat_id> [limit]  Get messages from a chat
  /send <chat_id> <text>        Send a text message
  /dm <user_id> <text>          Send a direct message
  /react <msg_id> <emoji>       React to a message
  /read <chat_id> [msg_id]      Mark a chat as read
  /edit <msg_id> <text>         Edit a message
  /delete <msg_id>              Delete a message for yourself
  /unsend <msg_id>              Delete a message for everyone

Calls:
  /call <user_id>...            Start an audio call
  /video <user_id>...           Start a video call
  /answer <call_id>             Answer a ringing call
  /decline <call_id>            Decline a ringing call
  /leave <call_id>              Leave or cancel a call
  /calls                        Call history
  /missed                       Missed calls

Notifications:
  /notifications, /n [unread]   List notifications
  /seen <notification_id>       Mark a notification as read
  /seen-all                     Mark every notification as read

Other:
  /do <action> [json]           Execute any intent directly
  /help, /h                     Show this help
  /quit, /exit, /q              Exit the CLI`

type params map[string]interface{}

func usage(s string) error {
	return fmt.Errorf("usage: %s", s)
}

func optionalLimit(args []string, at int, p params) error {
	if len(args) <= at {
		return nil
	}
	n, err := strconv.Atoi(args[at])
	if err != nil {
		return fmt.Errorf("invalid limit %q", args[at])
	}
	p["limit"] = n
	return nil
}

func text(args []string) map[string]string {
	return map[string]string{"text": strings.Join(args, " ")}
}

// translate maps a slash command onto an intent action and its params.
func translate(cmd *Command) (string, interface{}, error) {
	args := cmd.Args
	switch cmd.Name {
	case "chats", "ls":
		p := params{}
		if err := optionalLimit(args, 0, p); err != nil {
			return "", nil, err
		}
		return "chat.list", p, nil
	case "group":
		if len(args) < 2 {
			return "", nil, usage("/group <name> <member>...")
		}
		return "chat.create_group", params{"name": args[0], "members": args[1:]}, nil
	case "add", "kick":
		if len(args) != 2 {
			return "", nil, usage("/" + cmd.Name + " <chat_id> <user_id>")
		}
		action := "chat.add_member"
		if cmd.Name == "kick" {
			action = "chat.remove_member"
		}
		return action, params{"chat_id": args[0], "user_id": args[1]}, nil
	case "block", "unblock":
		if len(args) != 1 {
			return "", nil, usage("/" + cmd.Name + " <user_id>")
		}
		return "chat." + cmd.Name, params{"user_id": args[0]}, nil

	case "friend":
		if len(args) != 1 {
			return "", nil, usage("/friend <user_id>")
		}
		return "notification.friend_request", params{"user_id": args[0]}, nil

	case "messages", "msg":
		if len(args) < 1 {
			return "", nil, usage("/messages <chat_id> [limit]")
		}
		p := params{"chat_id": args[0]}
		if err := optionalLimit(args, 1, p); err != nil {
			return "", nil, err
		}
		return "message.list", p, nil
	case "send":
		if len(args) < 2 {
			return "", nil, usage("/send <chat_id> <text>")
		}
		return "message.send", params{"chat_id": args[0], "content": text(args[1:])}, nil
	case "dm":
		if len(args) < 2 {
			return "", nil, usage("/dm <user_id> <text>")
		}
		return "message.send_direct", params{"to": args[0], "content": text(args[1:])}, nil
	case "react":
		if len(args) != 2 {
			return "", nil, usage("/react <msg_id> <emoji>")
		}
		return "message.react", params{"message_id": args[0], "emoji": args[1]}, nil
	case "read":
		if len(args) < 1 || len(args) > 2 {
			return "", nil, usage("/read <chat_id> [msg_id]")
		}
		p := params{"chat_id": args[0]}
		if len(args) == 2 {
			p["up_to_id"] = args[1]
		}
		return "message.mark_read", p, nil
	case "edit":
		if len(args) < 2 {
			return "", nil, usage("/edit <msg_id> <text>")
		}
		return "message.edit", params{"message_id": args[0], "text": strings.Join(args[1:], " ")}, nil
	case "delete", "unsend":
		if len(args) != 1 {
			return "", nil, usage("/" + cmd.Name + " <msg_id>")
		}
		action := "message.soft_delete"
		if cmd.Name == "unsend" {
			action = "message.hard_delete"
		}
		return action, params{"message_id": args[0]}, nil

	case "call", "video":
		if len(args) < 1 {
			return "", nil, usage("/" + cmd.Name + " <user_id>...")
		}
		kind := domain.CallKindAudio
		if cmd.Name == "video" {
			kind = domain.CallKindVideo
		}
		return "call.start", params{"callees": args, "kind": kind}, nil
	case "answer", "decline", "leave":
		if len(args) != 1 {
			return "", nil, usage("/" + cmd.Name + " <call_id>")
		}
		return "call." + cmd.Name, params{"call_id": args[0]}, nil
	case "calls":
		return "call.list", params{}, nil
	case "missed":
		return "call.missed", params{}, nil

	case "notifications", "n":
		p := params{}
		if len(args) > 0 && args[0] == "unread" {
			p["unread_only"] = true
		}
		return "notification.list", p, nil
	case "seen":
		if len(args) != 1 {
			return "", nil, usage("/seen <notification_id>")
		}
		return "notification.mark_read", params{"notification_id": args[0]}, nil
	case "seen-all":
		return "notification.mark_all_read", params{}, nil

	case "do":
		if len(args) < 1 {
			return "", nil, usage("/do <action> [json]")
		}
		if len(args) == 1 {
			return args[0], nil, nil
		}
		raw := json.RawMessage(strings.Join(args[1:], " "))
		if !json.Valid(raw) {
			return "", nil, fmt.Errorf("params must be valid JSON")
		}
		return args[0], raw, nil
	}
	return "", nil, fmt.Errorf("unknown command: %s. Type /help for available commands", cmd.Name)
}
