package rpc

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter throttles requests per client identity using a token bucket per
// visitor. Idle visitors are evicted so the map does not grow without bound.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

// newRateLimiter builds a limiter allowing perMinute requests per client. A
// non-positive rate disables throttling.
func newRateLimiter(perMinute float64) *rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	burst := int(perMinute / 6)
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		visitors:  make(map[string]*visitor),
		limit:     rate.Limit(perMinute / 60),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

func (rl *rateLimiter) allow(client string) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	if now.Sub(rl.lastSweep) > visitorTTL {
		for id, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(rl.visitors, id)
			}
		}
		rl.lastSweep = now
	}
	v, ok := rl.visitors[client]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[client] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}
