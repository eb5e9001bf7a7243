package ringing

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/convo-engine/internal/logger"
)

const sweepBatch = 500

type Expirer interface {
	ExpireRinging(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// Sweeper periodically times out participants that have been ringing for
// longer than the ring timeout, on a cron schedule.
type Sweeper struct {
	target      Expirer
	cron        string
	ringTimeout time.Duration
	log         zerolog.Logger

	mu      sync.Mutex
	running bool
}

func NewSweeper(target Expirer, cron string, ringTimeout time.Duration) *Sweeper {
	return &Sweeper{
		target:      target,
		cron:        cron,
		ringTimeout: ringTimeout,
		log:         logger.Module("sweeper"),
	}
}

// Start runs the schedule loop until ctx is done or the returned cancel
// func is called.
func (s *Sweeper) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	s.log.Info().Str("cron", s.cron).Dur("ring_timeout", s.ringTimeout).Msg("ring sweeper enabled")
	go s.scheduleLoop(ctx)
	return cancel
}

func (s *Sweeper) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.cron, time.Now(), false)
		if err != nil {
			s.log.Error().Err(err).Str("cron", s.cron).Msg("failed to compute next sweep")
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			s.runJob(ctx)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			s.runJob(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) runJob(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error().Err(err).Msg("ring sweep failed")
	}
}

// RunOnce expires every overdue ringing participant, in batches.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.ringTimeout)
	total := 0
	for {
		n, err := s.target.ExpireRinging(ctx, cutoff, sweepBatch)
		total += n
		if err != nil {
			return total, err
		}
		if n < sweepBatch || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		s.log.Info().Int("expired", total).Time("cutoff", cutoff).Msg("ring sweep done")
	}
	return total, nil
}
