package ringing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/logger"
)

const timeoutDeadline = 10 * time.Second

// Timeouter moves a ringing participant to missed. A participant that
// already left ringing must make it a no-op.
type Timeouter interface {
	Timeout(ctx context.Context, callID, userID string) (*domain.Call, error)
}

// Timer fires Timeout for each scheduled participant once the ring delay
// has elapsed. Pending rings are lost on restart; the Sweeper picks those up.
type Timer struct {
	target Timeouter
	delay  time.Duration
	log    zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

func NewTimer(target Timeouter, delay time.Duration) *Timer {
	return &Timer{
		target:  target,
		delay:   delay,
		log:     logger.Module("ringing"),
		pending: make(map[string]*time.Timer),
	}
}

// Schedule arms the ring timeout for one participant. Scheduling the same
// participant again restarts its timer.
func (t *Timer) Schedule(callID, userID string) {
	key := callID + "/" + userID

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if existing, ok := t.pending[key]; ok {
		existing.Stop()
	}
	t.pending[key] = time.AfterFunc(t.delay, func() {
		t.fire(key, callID, userID)
	})
}

func (t *Timer) fire(key, callID, userID string) {
	t.mu.Lock()
	delete(t.pending, key)
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeoutDeadline)
	defer cancel()
	if _, err := t.target.Timeout(ctx, callID, userID); err != nil {
		evt := t.log.Warn()
		if apperr.Is(err, apperr.CodeNotFound) || apperr.Is(err, apperr.CodeForbidden) {
			evt = t.log.Debug()
		}
		evt.Err(err).Str("call", callID).Str("user", userID).Msg("ring timeout failed")
	}
}

// Pending reports how many ring timers are armed.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stop disarms every pending timer. Further calls to Schedule are ignored.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for key, timer := range t.pending {
		timer.Stop()
		delete(t.pending, key)
	}
}
