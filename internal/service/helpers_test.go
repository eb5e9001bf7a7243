package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/repository/repotest"
	"github.com/clippy-oss/homie/convo-engine/internal/service"
)

func newCore(t *testing.T) (*service.Core, *domain.SimpleEventBus) {
	t.Helper()
	bus := domain.NewEventBus()
	return service.NewCore(repotest.Open(t), bus, service.DefaultMaxCallParticipants), bus
}

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, apperr.CodeOf(err), "error: %v", err)
}

func newGroup(t *testing.T, core *service.Core, creator string, members ...string) *domain.Chat {
	t.Helper()
	chat, err := core.Chats.CreateGroup(context.Background(), creator, "team", members, domain.PrivacyOpen)
	require.NoError(t, err)
	return chat
}

func send(t *testing.T, core *service.Core, chatID, sender, text string) *domain.Message {
	t.Helper()
	msg, err := core.Messages.Send(context.Background(), service.SendRequest{
		ChatID:   chatID,
		SenderID: sender,
		Content:  domain.TextContent(text),
	})
	require.NoError(t, err)
	return msg
}

func unread(t *testing.T, core *service.Core, chatID, userID string) int {
	t.Helper()
	chat, err := core.Chats.GetChat(context.Background(), chatID, userID)
	require.NoError(t, err)
	return chat.UnreadFor(userID)
}

// drain collects every envelope currently buffered on ch.
func drain(ch <-chan domain.Envelope) []domain.Envelope {
	var out []domain.Envelope
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func ofType(events []domain.Envelope, kind domain.EventType) []domain.Envelope {
	var out []domain.Envelope
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// userMessages drops the system messages posted by membership changes.
func userMessages(page []*domain.Message) []*domain.Message {
	var out []*domain.Message
	for _, m := range page {
		if m.Content.Kind != domain.ContentSystem {
			out = append(out, m)
		}
	}
	return out
}
