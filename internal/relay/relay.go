// Package relay shares addressed events between engine instances over
// Redis pub/sub, so a user connected to one instance sees events produced
// on another.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/logger"
	"github.com/clippy-oss/homie/convo-engine/internal/metrics"
)

const DefaultChannel = "convo:events"

type wireEvent struct {
	Origin    string           `json:"origin"`
	Recipient string           `json:"recipient"`
	Kind      domain.EventType `json:"kind"`
	Payload   json.RawMessage  `json:"payload"`
	EventTime time.Time        `json:"event_time"`
}

// Bus is an EventBus that delivers to local subscribers directly and
// mirrors every event to the other instances through Redis. Events
// received from Redis carry their payload as json.RawMessage.
type Bus struct {
	client  *redis.Client
	channel string
	origin  string
	local   *domain.SimpleEventBus
	pubsub  *redis.PubSub
	log     zerolog.Logger
	done    chan struct{}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// New subscribes to channel and starts relaying. Close stops it.
func New(ctx context.Context, client *redis.Client, channel string) (*Bus, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	b := &Bus{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   domain.NewEventBus(),
		pubsub:  pubsub,
		log:     logger.Module("relay"),
		done:    make(chan struct{}),
	}
	b.local.OnDrop(func(e domain.Envelope) {
		metrics.EventsDropped.WithLabelValues(string(e.Kind)).Inc()
	})
	go b.receive()
	return b, nil
}

func (b *Bus) Publish(events ...domain.Envelope) {
	b.local.Publish(events...)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			b.log.Error().Err(err).Str("kind", string(e.Kind)).Msg("failed to encode event payload")
			continue
		}
		data, err := json.Marshal(wireEvent{
			Origin:    b.origin,
			Recipient: e.Recipient,
			Kind:      e.Kind,
			Payload:   payload,
			EventTime: e.EventTime,
		})
		if err != nil {
			b.log.Error().Err(err).Str("kind", string(e.Kind)).Msg("failed to encode event")
			continue
		}

		start := time.Now()
		err = b.client.Publish(ctx, b.channel, data).Err()
		metrics.RedisLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			b.log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("failed to relay event")
		}
	}
}

func (b *Bus) Subscribe(filter domain.Filter) <-chan domain.Envelope {
	return b.local.Subscribe(filter)
}

func (b *Bus) Unsubscribe(ch <-chan domain.Envelope) {
	b.local.Unsubscribe(ch)
}

func (b *Bus) receive() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		var e wireEvent
		if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
			b.log.Warn().Err(err).Msg("dropping malformed relayed event")
			continue
		}
		if e.Origin == b.origin {
			continue
		}
		b.local.Publish(domain.Envelope{
			Recipient: e.Recipient,
			Kind:      e.Kind,
			Payload:   e.Payload,
			EventTime: e.EventTime,
		})
	}
}

// Close stops relaying. The Redis client is left open.
func (b *Bus) Close() error {
	err := b.pubsub.Close()
	<-b.done
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
