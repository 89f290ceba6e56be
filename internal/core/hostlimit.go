package core

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter paces outbound REST calls per target host using
// golang.org/x/time/rate, independent of and in addition to a venue's own
// TokenBucket — a shared host (e.g. a CDN fronting several venues) must
// never be hit harder than its own budget even if each venue's bucket would
// individually allow it. Adapted from the teacher's
// internal/net/ratelimit.Limiter, trimmed to the single-tier case this
// service needs (no per-provider Manager wrapper).
type HostLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewHostLimiter creates a limiter that lazily allocates one rate.Limiter
// per host, all sharing the same rps/burst.
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *HostLimiter) getLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[host]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[host] = limiter
	return limiter
}

// Wait blocks until a request to host is permitted or ctx is cancelled.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	return l.getLimiter(host).Wait(ctx)
}

// Allow reports, without blocking, whether a request to host is permitted
// right now.
func (l *HostLimiter) Allow(host string) bool {
	return l.getLimiter(host).Allow()
}
