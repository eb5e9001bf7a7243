package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/intent"
	"github.com/clippy-oss/homie/convo-engine/internal/metrics"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameSize  = 64 * 1024
	sendBuffer    = 64
	intentTimeout = 15 * time.Second
)

// PushFrame carries an event to the client outside any request.
type PushFrame struct {
	Event     domain.EventType `json:"event"`
	Payload   interface{}      `json:"payload"`
	EventTime time.Time        `json:"event_time"`
}

type client struct {
	userID  string
	conn    *websocket.Conn
	limiter *rate.Limiter
	send    chan interface{}
	log     zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(userID string, conn *websocket.Conn, limiter *rate.Limiter, log zerolog.Logger) *client {
	return &client{
		userID:  userID,
		conn:    conn,
		limiter: limiter,
		send:    make(chan interface{}, sendBuffer),
		log:     log.With().Str("user", userID).Logger(),
		done:    make(chan struct{}),
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// reply queues a response frame, waiting for room unless the connection
// is gone.
func (c *client) reply(frame intent.Response) {
	select {
	case c.send <- frame:
	case <-c.done:
	}
}

// readPump executes intents in the order they arrive on the socket.
func (c *client) readPump(ctx context.Context, dispatcher *intent.Dispatcher) {
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		var req intent.Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(intent.NewResponse("", nil, apperr.InvalidArgument("malformed frame")))
			continue
		}
		if !c.limiter.Allow() {
			metrics.RateLimitHits.WithLabelValues("websocket").Inc()
			c.reply(rateLimited(req.ID))
			continue
		}

		execCtx, cancel := context.WithTimeout(ctx, intentTimeout)
		result, err := dispatcher.Execute(execCtx, c.userID, req.Action, req.Params)
		cancel()
		c.reply(intent.NewResponse(req.ID, result, err))
	}
}

// writePump is the only writer on the connection.
func (c *client) writePump(events <-chan domain.Envelope) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				c.close()
				return
			}
		case event, ok := <-events:
			if !ok {
				c.close()
				return
			}
			if err := c.write(PushFrame{Event: event.Kind, Payload: event.Payload, EventTime: event.EventTime}); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) write(v interface{}) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func rateLimited(id string) intent.Response {
	return intent.Response{ID: id, Error: &intent.ErrorBody{Code: "RATE_LIMITED", Message: "too many requests, slow down"}}
}
