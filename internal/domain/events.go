package domain

import (
	"sync"
	"time"
)

type EventType string

const (
	EventChatCreated         EventType = "chat.created"
	EventChatMemberAdded     EventType = "chat.member_added"
	EventChatMemberRemoved   EventType = "chat.member_removed"
	EventChatRead            EventType = "chat.read"
	EventMessageNew          EventType = "message.new"
	EventMessageRead         EventType = "message.read"
	EventMessageReaction     EventType = "message.reaction"
	EventMessageEdited       EventType = "message.edited"
	EventMessageDeleted      EventType = "message.deleted"
	EventMessageHidden       EventType = "message.hidden"
	EventCallIncoming        EventType = "call.incoming"
	EventCallParticipant     EventType = "call.participant"
	EventCallUpdated         EventType = "call.updated"
	EventNotificationCreated EventType = "notification.created"
	EventNotificationRead    EventType = "notification.read"
)

type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// Envelope is one event addressed to one user.
type Envelope struct {
	Recipient string    `json:"recipient"`
	Kind      EventType `json:"type"`
	Payload   any       `json:"payload"`
	EventTime time.Time `json:"time"`
}

func (e Envelope) Type() EventType      { return e.Kind }
func (e Envelope) Timestamp() time.Time { return e.EventTime }

// FanOut addresses the same payload to each recipient.
func FanOut(recipients []string, kind EventType, payload any, at time.Time) []Envelope {
	out := make([]Envelope, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, Envelope{Recipient: r, Kind: kind, Payload: payload, EventTime: at})
	}
	return out
}

// Payloads carried by envelopes.

type ReadReceipt struct {
	ChatID     string    `json:"chat_id"`
	UserID     string    `json:"user_id"`
	MessageIDs []string  `json:"message_ids"`
	ReadAt     time.Time `json:"read_at"`
}

type ReactionChange struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji,omitempty"`
	Removed   bool   `json:"removed,omitempty"`
}

type MessageRef struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

type MemberChange struct {
	ChatID  string `json:"chat_id"`
	ActorID string `json:"actor_id"`
	UserID  string `json:"user_id"`
}

type ParticipantChange struct {
	CallID string            `json:"call_id"`
	UserID string            `json:"user_id"`
	Status ParticipantStatus `json:"status"`
}

// Filter selects envelopes for a subscriber. Empty fields match everything.
type Filter struct {
	Recipient string
	Types     []EventType
}

// EventBus provides pub/sub for addressed events
type EventBus interface {
	Publish(events ...Envelope)
	Subscribe(filter Filter) <-chan Envelope
	Unsubscribe(ch <-chan Envelope)
}

// SimpleEventBus is a basic in-memory implementation of EventBus
type SimpleEventBus struct {
	mu          sync.RWMutex
	subscribers map[<-chan Envelope]subscription
	dropped     func(Envelope)
}

type subscription struct {
	ch         chan Envelope
	recipient  string
	eventTypes map[EventType]bool
}

func NewEventBus() *SimpleEventBus {
	return &SimpleEventBus{
		subscribers: make(map[<-chan Envelope]subscription),
	}
}

// OnDrop registers a callback invoked when a slow subscriber misses an event.
func (b *SimpleEventBus) OnDrop(fn func(Envelope)) {
	b.mu.Lock()
	b.dropped = fn
	b.mu.Unlock()
}

func (b *SimpleEventBus) Publish(events ...Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, event := range events {
		for _, sub := range b.subscribers {
			if sub.recipient != "" && sub.recipient != event.Recipient {
				continue
			}
			if len(sub.eventTypes) > 0 && !sub.eventTypes[event.Kind] {
				continue
			}
			select {
			case sub.ch <- event:
			default:
				// Channel full, skip this subscriber
				if b.dropped != nil {
					b.dropped(event)
				}
			}
		}
	}
}

func (b *SimpleEventBus) Subscribe(filter Filter) <-chan Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, 100)
	typeMap := make(map[EventType]bool)
	for _, t := range filter.Types {
		typeMap[t] = true
	}

	b.subscribers[ch] = subscription{
		ch:         ch,
		recipient:  filter.Recipient,
		eventTypes: typeMap,
	}

	return ch
}

func (b *SimpleEventBus) Unsubscribe(ch <-chan Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[ch]; ok {
		close(sub.ch)
		delete(b.subscribers, ch)
	}
}
