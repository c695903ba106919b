package ratelimit

import (
	"sync"
	"time"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
)

// IntervalLimiter limits the number of calls to Allow per fixed interval.
// The counter resets at interval boundaries, so it can briefly admit up to
// twice the limit at an edge; avoid very small intervals.
type IntervalLimiter struct {
	mu    sync.Mutex
	ival  time.Duration
	limit int

	// guarded by mu
	last  time.Time
	count int
}

// NewIntervalLimiter returns a rate limiter using the given conf.Rate.
func NewIntervalLimiter(r conf.Rate) *IntervalLimiter {
	ival := r.OverTime
	if ival <= 0 {
		ival = defaultWindow
	}
	return &IntervalLimiter{
		ival:  ival,
		limit: int(r.Events),
		last:  time.Now(),
	}
}

// Allow implements Limiter by calling AllowAt with the current time.
func (rl *IntervalLimiter) Allow() bool {
	return rl.AllowAt(time.Now())
}

// AllowAt implements Limiter.
func (rl *IntervalLimiter) AllowAt(at time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	since := at.Sub(rl.last)
	if ivals := int64(since / rl.ival); ivals > 0 {
		rl.last = rl.last.Add(time.Duration(ivals) * rl.ival)
		rl.count = 0
	}
	if rl.count < rl.limit {
		rl.count++
		return true
	}
	return false
}
