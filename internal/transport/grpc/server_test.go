package grpc_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/clippy-oss/homie/convo-engine/internal/auth"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/intent"
	"github.com/clippy-oss/homie/convo-engine/internal/repository/repotest"
	"github.com/clippy-oss/homie/convo-engine/internal/service"
	grpctransport "github.com/clippy-oss/homie/convo-engine/internal/transport/grpc"
)

type harness struct {
	conn *grpc.ClientConn
	auth *auth.Authenticator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	bus := domain.NewEventBus()
	core := service.NewCore(repotest.Open(t), bus, service.DefaultMaxCallParticipants)
	authenticator := auth.New("test-secret", time.Hour)
	srv := grpctransport.NewServer(intent.NewDispatcher(core), bus, authenticator, grpctransport.ServerConfig{})

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(grpctransport.CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &harness{conn: conn, auth: authenticator}
}

func (h *harness) as(t *testing.T, userID string) context.Context {
	t.Helper()
	token, err := h.auth.Issue(userID)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func (h *harness) execute(ctx context.Context, action string, params interface{}) (*grpctransport.ExecuteResponse, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	resp := new(grpctransport.ExecuteResponse)
	err = h.conn.Invoke(ctx, grpctransport.ExecuteMethod, &grpctransport.ExecuteRequest{Action: action, Params: raw}, resp)
	return resp, err
}

func TestExecute(t *testing.T) {
	h := newHarness(t)

	resp, err := h.execute(h.as(t, "alice"), "chat.create_group", map[string]interface{}{"name": "team", "members": []string{"bob"}})
	require.NoError(t, err)
	var chat domain.Chat
	require.NoError(t, json.Unmarshal(resp.Result, &chat))
	assert.Equal(t, []string{"alice", "bob"}, chat.Participants)

	_, err = h.execute(h.as(t, "mallory"), "chat.get", map[string]string{"chat_id": chat.ID})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = h.execute(h.as(t, "alice"), "chat.get", map[string]string{"chat_id": "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestExecuteRequiresToken(t *testing.T) {
	h := newHarness(t)

	_, err := h.execute(context.Background(), "chat.list", nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer forged")
	_, err = h.execute(ctx, "chat.list", nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestStreamEvents(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithTimeout(h.as(t, "bob"), 5*time.Second)
	defer cancel()
	stream, err := h.conn.NewStream(ctx, &grpctransport.StreamEventsDesc, grpctransport.StreamEventsMethod)
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(&grpctransport.StreamEventsRequest{Types: []domain.EventType{domain.EventCallIncoming}}))
	require.NoError(t, stream.CloseSend())

	// The subscription is registered asynchronously; keep ringing until the
	// stream sees one.
	received := make(chan *grpctransport.Event, 1)
	go func() {
		evt := new(grpctransport.Event)
		if err := stream.RecvMsg(evt); err == nil {
			received <- evt
		}
	}()

	deadline := time.After(3 * time.Second)
	for {
		_, err := h.execute(h.as(t, "alice"), "call.start", map[string]interface{}{"callees": []string{"bob"}})
		require.NoError(t, err)
		select {
		case evt := <-received:
			assert.Equal(t, domain.EventCallIncoming, evt.Kind)
			var call domain.Call
			require.NoError(t, json.Unmarshal(evt.Payload, &call))
			assert.Equal(t, "alice", call.InitiatorID)
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("no event received")
		}
	}
}
