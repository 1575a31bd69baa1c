package worker

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter implements per-task rate limiting so one pipeline task (concept
// proposals, reranking, branch judging) cannot starve the others of
// provider quota.
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter with shared defaults for unknown tasks.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// Wait blocks until the task's limiter admits one call.
func (l *Limiter) Wait(ctx context.Context, task string) error {
	return l.getLimiter(task).Wait(ctx)
}

// Allow reports whether a call is admitted without waiting.
func (l *Limiter) Allow(task string) bool {
	return l.getLimiter(task).Allow()
}

func (l *Limiter) getLimiter(task string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[task]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists := l.limiters[task]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[task] = limiter
	return limiter
}

// SetTaskRate overrides the rate for one task.
func (l *Limiter) SetTaskRate(task string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if burst <= 0 {
		burst = l.defaultBurst
	}
	l.limiters[task] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}
