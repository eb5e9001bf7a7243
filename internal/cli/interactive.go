package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
)

// InteractiveCLI handles interactive command-line interface
type InteractiveCLI struct {
	handler *CommandHandler
	reader  *bufio.Reader
	writer  io.Writer
	mu      sync.Mutex

	events <-chan domain.Envelope
}

func NewInteractiveCLI(handler *CommandHandler, in io.Reader, out io.Writer) *InteractiveCLI {
	return &InteractiveCLI{
		handler: handler,
		reader:  bufio.NewReader(in),
		writer:  out,
	}
}

// Run starts the interactive CLI loop
func (cli *InteractiveCLI) Run(ctx context.Context) error {
	cli.printWelcome()
	defer cli.unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			cli.print(cli.prompt())
			line, err := cli.reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			if err := cli.processCommand(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					cli.println("Goodbye!")
					return nil
				}
				cli.printf("Error: %s\n", err)
			}
		}
	}
}

func (cli *InteractiveCLI) prompt() string {
	if user := cli.handler.UserID(); user != "" {
		return "\n" + user + "> "
	}
	return "\n> "
}

func (cli *InteractiveCLI) printWelcome() {
	cli.println("===========================================")
	cli.println("  Convo Engine CLI")
	cli.println("===========================================")
	cli.println("Type /help for available commands, /as <user_id> to pick a user")
}

func (cli *InteractiveCLI) processCommand(ctx context.Context, input string) error {
	cmd, err := ParseCommand(input)
	if err != nil {
		return err
	}

	result, err := cli.handler.Execute(ctx, cmd)
	if err != nil {
		return err
	}

	if cmd.Name == "as" {
		cli.resubscribe()
	}
	cli.displayResult(cmd.Name, result)
	return nil
}

// resubscribe switches the live event feed to the current user.
func (cli *InteractiveCLI) resubscribe() {
	cli.unsubscribe()
	events := cli.handler.SubscribeEvents(cli.handler.UserID())
	cli.mu.Lock()
	cli.events = events
	cli.mu.Unlock()
	go cli.handleEvents(events)
}

func (cli *InteractiveCLI) unsubscribe() {
	cli.mu.Lock()
	events := cli.events
	cli.events = nil
	cli.mu.Unlock()
	if events != nil {
		cli.handler.UnsubscribeEvents(events)
	}
}

func (cli *InteractiveCLI) displayResult(cmdName string, result interface{}) {
	switch cmdName {
	case "help", "h":
		if m, ok := result.(map[string]string); ok {
			cli.println(m["help"])
		}
		return

	case "chats", "ls":
		if m, ok := result.(map[string]interface{}); ok {
			chats, _ := m["chats"].([]*domain.Chat)
			cli.printf("Found %d chat(s):\n\n", len(chats))
			for i, chat := range chats {
				name := chat.Name
				if chat.Type == domain.ChatTypeDirect {
					name = strings.Join(chat.Participants, " & ")
				}
				unread := ""
				if n := chat.Unread[cli.handler.UserID()]; n > 0 {
					unread = fmt.Sprintf(" [%d unread]", n)
				}
				cli.printf("%d. %s (%s)%s\n", i+1, name, chat.Type, unread)
				cli.printf("   ID: %s\n", chat.ID)
				if chat.LastMessagePreview != "" {
					preview := chat.LastMessagePreview
					if len(preview) > 50 {
						preview = preview[:50] + "..."
					}
					cli.printf("   Last: %s\n", preview)
				}
			}
			return
		}

	case "messages", "msg":
		if m, ok := result.(map[string]interface{}); ok {
			messages, _ := m["messages"].([]*domain.Message)
			cli.printf("Found %d message(s):\n\n", len(messages))
			for _, msg := range messages {
				sender := msg.SenderID
				if sender == cli.handler.UserID() {
					sender = "Me"
				}
				cli.printf("[%s] %s:\n", msg.CreatedAt.Format("2006-01-02 15:04"), sender)
				cli.printf("  %s\n", msg.Content.Preview())
				cli.printf("  ID: %s\n\n", msg.ID)
			}
			return
		}

	case "send", "dm":
		if msg, ok := result.(*domain.Message); ok {
			cli.printf("Message sent!\n")
			cli.printf("  ID: %s\n", msg.ID)
			cli.printf("  Chat: %s\n", msg.ChatID)
			cli.printf("  Time: %s\n", msg.CreatedAt.Format("2006-01-02 15:04:05"))
			return
		}
	}

	if m, ok := result.(map[string]string); ok {
		if msg, exists := m["message"]; exists {
			cli.println(msg)
			return
		}
	}
	if result == nil {
		cli.println("OK")
		return
	}
	data, _ := json.MarshalIndent(result, "", "  ")
	cli.println(string(data))
}

func (cli *InteractiveCLI) handleEvents(events <-chan domain.Envelope) {
	for event := range events {
		switch event.Kind {
		case domain.EventMessageNew:
			if msg, ok := event.Payload.(*domain.Message); ok {
				cli.printf("\n[New Message] From %s in %s:\n  %s\n", msg.SenderID, msg.ChatID, msg.Content.Preview())
			}
		case domain.EventCallIncoming:
			if call, ok := event.Payload.(*domain.Call); ok {
				cli.printf("\n[Incoming %s call] From %s (/answer %s)\n", call.Kind, call.InitiatorID, call.ID)
			}
		default:
			cli.printf("\n[%s]\n", event.Kind)
		}
		cli.print(cli.prompt())
	}
}

func (cli *InteractiveCLI) print(s string) {
	cli.mu.Lock()
	defer cli.mu.Unlock()
	fmt.Fprint(cli.writer, s)
}

func (cli *InteractiveCLI) println(s string) {
	cli.print(s + "\n")
}

func (cli *InteractiveCLI) printf(format string, args ...interface{}) {
	cli.print(fmt.Sprintf(format, args...))
}
