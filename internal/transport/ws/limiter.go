package ws

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterTTL = 10 * time.Minute

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// limiterPool keeps one token bucket per user for the HTTP intent
// endpoint. Idle entries are dropped when the pool is next swept.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	rps       rate.Limit
	burst     int
	lastSweep time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	return &limiterPool{
		m:         make(map[string]*limiterEntry),
		rps:       rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

func (p *limiterPool) newLimiter() *rate.Limiter {
	return rate.NewLimiter(p.rps, p.burst)
}

func (p *limiterPool) Allow(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.lastSweep) > limiterTTL {
		for k, e := range p.m {
			if now.Sub(e.lastSeen) > limiterTTL {
				delete(p.m, k)
			}
		}
		p.lastSweep = now
	}

	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{l: p.newLimiter()}
		p.m[key] = e
	}
	e.lastSeen = now
	return e.l.Allow()
}
