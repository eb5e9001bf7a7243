package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/clippy-oss/homie/convo-engine/internal/auth"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/repository"
	"github.com/clippy-oss/homie/convo-engine/internal/service"
)

// Dummy users
var users = []string{
	"alice",
	"bob",
	"charlie",
	"diana",
	"eve",
	"frank",
	"grace",
	"henry",
}

// Dummy group names
var groupNames = []string{
	"Family Group",
	"Work Team",
	"Book Club",
}

// Sample messages for variety
var sampleTexts = []string{
	"Hey! How are you doing?",
	"Just checking in 😊",
	"Can we meet tomorrow?",
	"Thanks for your help!",
	"See you later!",
	"That sounds great!",
	"Let me know when you're free",
	"Perfect! I'll be there",
	"Did you see the latest news?",
	"Have a great day!",
	"What time works for you?",
	"I'll send it over shortly",
	"Looking forward to it!",
	"Let's catch up soon",
	"Can you send me that file?",
	"See you at the meeting",
}

var reactions = []string{"👍", "❤️", "😂", "😮", "🙏"}

func main() {
	// Default to a dummy database in the current directory
	dbPath := "dummy_convo.db"
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}

	fmt.Printf("Using database at: %s\n", dbPath)

	db, err := repository.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	core := service.NewCore(db, domain.NewEventBus(), service.DefaultMaxCallParticipants)
	ctx := context.Background()

	// Start from a clean slate for the seeded users
	for _, user := range users {
		if err := core.Accounts.Purge(ctx, user); err != nil {
			log.Fatalf("Failed to purge %s: %v", user, err)
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	if err := seedDummyData(ctx, core, rng); err != nil {
		log.Fatalf("Failed to seed dummy data: %v", err)
	}

	fmt.Println("✅ Successfully seeded chats, messages, calls and notifications!")
	fmt.Printf("Database location: %s\n", dbPath)

	if secret := os.Getenv("CONVO_JWT_SECRET"); secret != "" {
		printTokens(auth.New(secret, 24*time.Hour))
	}
}

func seedDummyData(ctx context.Context, core *service.Core, rng *rand.Rand) error {
	me := users[0]

	// Direct chats between alice and everybody else
	for _, other := range users[1:] {
		if err := converse(ctx, core, rng, []string{me, other}, func(sender, text string) (*domain.Message, error) {
			recipient := other
			if sender == other {
				recipient = me
			}
			return core.Messages.SendDirect(ctx, sender, recipient, textContent(text), "")
		}); err != nil {
			return fmt.Errorf("failed to seed direct chat with %s: %w", other, err)
		}
	}

	// Groups of four drawn from the user list
	for i, name := range groupNames {
		members := pick(rng, users[1:], 3)
		chat, err := core.Chats.CreateGroup(ctx, me, name, members, domain.PrivacyInviteOnly)
		if err != nil {
			return fmt.Errorf("failed to create group %s: %w", name, err)
		}
		if i == 0 {
			if err := core.Chats.SetAdmin(ctx, chat.ID, me, members[0], true); err != nil {
				return err
			}
		}
		if err := converse(ctx, core, rng, chat.Participants, func(sender, text string) (*domain.Message, error) {
			return core.Messages.Send(ctx, service.SendRequest{ChatID: chat.ID, SenderID: sender, Content: textContent(text)})
		}); err != nil {
			return fmt.Errorf("failed to seed group %s: %w", name, err)
		}
		fmt.Printf("Created group %q with %s\n", name, strings.Join(chat.Participants, ", "))
	}

	return seedCalls(ctx, core, me)
}

// converse sends 10-15 messages from random participants and leaves some
// of them reacted to and read.
func converse(ctx context.Context, core *service.Core, rng *rand.Rand, participants []string, send func(sender, text string) (*domain.Message, error)) error {
	numMessages := 10 + rng.Intn(6)
	var last *domain.Message
	for j := 0; j < numMessages; j++ {
		sender := participants[rng.Intn(len(participants))]
		msg, err := send(sender, sampleTexts[rng.Intn(len(sampleTexts))])
		if err != nil {
			return err
		}
		last = msg

		if rng.Float32() < 0.3 {
			reactor := participants[rng.Intn(len(participants))]
			if _, err := core.Messages.React(ctx, msg.ID, reactor, reactions[rng.Intn(len(reactions))]); err != nil {
				return err
			}
		}
	}

	// Half of the participants caught up, the rest keep unread messages
	for _, p := range participants {
		if rng.Float32() < 0.5 {
			if _, err := core.Messages.MarkRead(ctx, last.ChatID, p, last.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedCalls(ctx context.Context, core *service.Core, me string) error {
	// An answered call
	call, err := core.Calls.StartCall(ctx, service.StartCallRequest{InitiatorID: me, Callees: []string{users[1]}, Kind: domain.CallKindVideo})
	if err != nil {
		return err
	}
	if _, err := core.Calls.Answer(ctx, call.ID, users[1]); err != nil {
		return err
	}
	if _, err := core.Calls.Leave(ctx, call.ID, me); err != nil {
		return err
	}

	// A declined call
	call, err = core.Calls.StartCall(ctx, service.StartCallRequest{InitiatorID: users[2], Callees: []string{me}})
	if err != nil {
		return err
	}
	if _, err := core.Calls.Decline(ctx, call.ID, me); err != nil {
		return err
	}

	// A missed group call
	call, err = core.Calls.StartCall(ctx, service.StartCallRequest{InitiatorID: users[3], Callees: []string{me, users[4]}})
	if err != nil {
		return err
	}
	for _, callee := range []string{me, users[4]} {
		if _, err := core.Calls.Timeout(ctx, call.ID, callee); err != nil {
			return err
		}
	}

	for _, from := range users[5:] {
		if _, err := core.Notifications.FriendRequest(ctx, from, me); err != nil {
			return err
		}
	}
	fmt.Println("Created call history and friend requests")
	return nil
}

func textContent(text string) domain.Content {
	return domain.Content{Kind: domain.ContentText, Text: text}
}

func pick(rng *rand.Rand, from []string, n int) []string {
	shuffled := append([]string(nil), from...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}

func printTokens(a *auth.Authenticator) {
	fmt.Println("\nAccess tokens (24h):")
	for _, user := range users {
		token, err := a.Issue(user)
		if err != nil {
			log.Fatalf("Failed to issue token for %s: %v", user, err)
		}
		fmt.Printf("  %-8s %s\n", user, token)
	}
}
