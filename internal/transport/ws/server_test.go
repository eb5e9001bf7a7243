package ws_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/convo-engine/internal/auth"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/intent"
	"github.com/clippy-oss/homie/convo-engine/internal/repository/repotest"
	"github.com/clippy-oss/homie/convo-engine/internal/service"
	"github.com/clippy-oss/homie/convo-engine/internal/transport/ws"
)

// frame covers both responses and pushed events.
type frame struct {
	ID      string            `json:"id"`
	OK      bool              `json:"ok"`
	Result  json.RawMessage   `json:"result"`
	Error   *intent.ErrorBody `json:"error"`
	Event   domain.EventType  `json:"event"`
	Payload json.RawMessage   `json:"payload"`
}

type harness struct {
	srv  *ws.Server
	http *httptest.Server
	auth *auth.Authenticator
}

func newHarness(t *testing.T, cfg ws.ServerConfig) *harness {
	t.Helper()
	bus := domain.NewEventBus()
	core := service.NewCore(repotest.Open(t), bus, service.DefaultMaxCallParticipants)
	authenticator := auth.New("test-secret", time.Hour)
	srv := ws.NewServer(intent.NewDispatcher(core), bus, authenticator, cfg)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().CloseAll()
		hs.Close()
	})
	return &harness{srv: srv, http: hs, auth: authenticator}
}

func (h *harness) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := h.auth.Issue(userID)
	require.NoError(t, err)
	return token
}

func (h *harness) post(t *testing.T, userID, action string, params interface{}) (int, frame) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(intent.Request{ID: "1", Action: action, Params: raw})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, h.http.URL+"/api/intents", bytes.NewReader(body))
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(t, userID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out frame
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (h *harness) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws?token=" + h.token(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func call(t *testing.T, conn *websocket.Conn, id, action string, params interface{}) frame {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(intent.Request{ID: id, Action: action, Params: raw}))
	for {
		f := read(t, conn)
		if f.ID == id {
			return f
		}
	}
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHealth(t *testing.T) {
	h := newHarness(t, ws.ServerConfig{})

	resp, err := http.Get(h.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIntentEndpoint(t *testing.T) {
	h := newHarness(t, ws.ServerConfig{})

	status, resp := h.post(t, "", "chat.list", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)

	status, resp = h.post(t, "alice", "chat.create_group", map[string]interface{}{"name": "team", "members": []string{"bob"}})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.OK)
	assert.Equal(t, "1", resp.ID)
	var chat domain.Chat
	require.NoError(t, json.Unmarshal(resp.Result, &chat))

	status, resp = h.post(t, "mallory", "chat.get", map[string]string{"chat_id": chat.ID})
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, resp.OK)

	status, _ = h.post(t, "alice", "chat.nope", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestIntentEndpointRateLimit(t *testing.T) {
	h := newHarness(t, ws.ServerConfig{IntentRPS: 0.001, IntentBurst: 1})

	status, _ := h.post(t, "alice", "chat.list", nil)
	assert.Equal(t, http.StatusOK, status)
	status, resp := h.post(t, "alice", "chat.list", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RATE_LIMITED", resp.Error.Code)

	// Buckets are per user.
	status, _ = h.post(t, "bob", "chat.list", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestWebsocketRejectsMissingToken(t *testing.T) {
	h := newHarness(t, ws.ServerConfig{})

	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebsocketIntentsAndEvents(t *testing.T) {
	h := newHarness(t, ws.ServerConfig{})
	bob := h.dial(t, "bob")

	// The first round trip guarantees the subscription is in place.
	resp := call(t, bob, "a", "chat.list", nil)
	require.True(t, resp.OK)
	assert.Equal(t, 1, h.srv.Hub().Connections("bob"))

	status, sent := h.post(t, "alice", "message.send_direct", map[string]interface{}{
		"to":      "bob",
		"content": map[string]string{"text": "hi bob"},
	})
	require.Equal(t, http.StatusOK, status)
	var msg domain.Message
	require.NoError(t, json.Unmarshal(sent.Result, &msg))

	for {
		f := read(t, bob)
		if f.Event != domain.EventMessageNew {
			continue
		}
		var pushed domain.Message
		require.NoError(t, json.Unmarshal(f.Payload, &pushed))
		assert.Equal(t, msg.ID, pushed.ID)
		assert.Equal(t, "alice", pushed.SenderID)
		break
	}

	resp = call(t, bob, "b", "message.mark_read", map[string]string{"chat_id": msg.ChatID})
	assert.True(t, resp.OK)

	resp = call(t, bob, "c", "message.react", map[string]string{"message_id": "missing", "emoji": "👍"})
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestWebsocketMalformedFrame(t *testing.T) {
	h := newHarness(t, ws.ServerConfig{})
	conn := h.dial(t, "alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := read(t, conn)
	assert.False(t, f.OK)
	require.NotNil(t, f.Error)
	assert.Equal(t, "INVALID_ARGUMENT", f.Error.Code)

	// The connection survives a bad frame.
	assert.True(t, call(t, conn, "ok", "chat.list", nil).OK)
}

func TestWebsocketRateLimit(t *testing.T) {
	h := newHarness(t, ws.ServerConfig{IntentRPS: 0.001, IntentBurst: 1})
	conn := h.dial(t, "alice")

	assert.True(t, call(t, conn, "1", "chat.list", nil).OK)
	f := call(t, conn, "2", "chat.list", nil)
	assert.False(t, f.OK)
	require.NotNil(t, f.Error)
	assert.Equal(t, "RATE_LIMITED", f.Error.Code)
}
