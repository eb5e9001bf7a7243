package relay_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/relay"
)

func newBus(t *testing.T, addr string) *relay.Bus {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	bus, err := relay.New(context.Background(), client, "test:events")
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })
	return bus
}

func receive(t *testing.T, ch <-chan domain.Envelope) domain.Envelope {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Envelope{}
	}
}

func TestRelayAcrossInstances(t *testing.T) {
	srv := miniredis.RunT(t)
	a := newBus(t, srv.Addr())
	b := newBus(t, srv.Addr())

	onA := a.Subscribe(domain.Filter{Recipient: "bob"})
	onB := b.Subscribe(domain.Filter{Recipient: "bob"})
	defer a.Unsubscribe(onA)
	defer b.Unsubscribe(onB)

	ref := domain.MessageRef{ChatID: "chat-1", MessageID: "msg-1"}
	a.Publish(
		domain.Envelope{Recipient: "bob", Kind: domain.EventMessageDeleted, Payload: ref, EventTime: time.Now()},
		domain.Envelope{Recipient: "carol", Kind: domain.EventMessageDeleted, Payload: ref, EventTime: time.Now()},
	)

	local := receive(t, onA)
	assert.Equal(t, ref, local.Payload, "local subscribers get the original payload")

	remote := receive(t, onB)
	assert.Equal(t, "bob", remote.Recipient)
	assert.Equal(t, domain.EventMessageDeleted, remote.Kind)
	raw, ok := remote.Payload.(json.RawMessage)
	require.True(t, ok)
	var got domain.MessageRef
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, ref, got)

	select {
	case e := <-onA:
		t.Fatalf("own event echoed back: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDial(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := relay.Dial(context.Background(), "redis://"+srv.Addr())
	require.NoError(t, err)
	client.Close()

	_, err = relay.Dial(context.Background(), "not a url")
	assert.Error(t, err)
}
