package ratelimit

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
)

const defaultWindow = time.Hour

// BurstLimiter wraps the golang.org/x/time/rate package.
type BurstLimiter struct {
	rl *rate.Limiter
}

// NewBurstLimiter returns a limiter with an initial token bucket of
// r.Events tokens, refilled at a rate of one token per r.OverTime.
//
// For example, "10/1h" allows 10 events immediately, then one more per
// hour.
func NewBurstLimiter(r conf.Rate) *BurstLimiter {
	d := r.OverTime
	if d <= 0 {
		d = defaultWindow
	}

	e := r.Events
	if e < 0 {
		e = 0
	}

	return &BurstLimiter{
		rl: rate.NewLimiter(rate.Every(d), int(e)),
	}
}

// Allow implements Limiter by calling AllowAt with the current time.
func (l *BurstLimiter) Allow() bool {
	return l.AllowAt(time.Now())
}

// AllowAt implements Limiter by consulting the underlying x/time/rate
// limiter at the given time.
func (l *BurstLimiter) AllowAt(at time.Time) bool {
	return l.rl.AllowN(at, 1)
}
