// Package ratelimit provides in-process limiters for quotas that are not
// backed by the database, such as how often verification codes may be sent
// to a single address.
package ratelimit

import (
	"sync"
	"time"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
)

// Limiter is the interface implemented by rate limiters.
//
// Implementations of Limiter must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if an event should be allowed at the time it was
	// called, or false otherwise.
	Allow() bool

	// AllowAt returns true if an event should be allowed at the given time.
	AllowAt(at time.Time) bool
}

// New returns a Limiter matching the semantics of the given conf.Rate: a
// BurstLimiter for "events/window" rates, an IntervalLimiter otherwise.
func New(r conf.Rate) Limiter {
	switch r.GetRateType() {
	case conf.BurstRateType:
		return NewBurstLimiter(r)
	default:
		return NewIntervalLimiter(r)
	}
}

// maxKeys bounds the keyed limiter map. When the map is full, requests for
// new keys are denied until stale entries age out of a full sweep.
const maxKeys = 100_000

// KeyedLimiter applies an independent Limiter per key, keys being lowercased
// by the caller where case matters. Entries idle for a full rate window are
// dropped on the next sweep.
type KeyedLimiter struct {
	mu       sync.Mutex
	rate     conf.Rate
	limiters map[string]*keyedEntry
	lastGC   time.Time
}

type keyedEntry struct {
	limiter  Limiter
	lastSeen time.Time
}

func NewKeyedLimiter(r conf.Rate) *KeyedLimiter {
	return &KeyedLimiter{
		rate:     r,
		limiters: make(map[string]*keyedEntry),
		lastGC:   time.Now(),
	}
}

// Allow returns true if an event for key should be allowed now.
func (kl *KeyedLimiter) Allow(key string) bool {
	return kl.AllowAt(key, time.Now())
}

// AllowAt returns true if an event for key should be allowed at the given
// time.
func (kl *KeyedLimiter) AllowAt(key string, at time.Time) bool {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	kl.gc(at)

	entry, ok := kl.limiters[key]
	if !ok {
		if len(kl.limiters) >= maxKeys {
			return false
		}
		entry = &keyedEntry{limiter: New(kl.rate)}
		kl.limiters[key] = entry
	}
	entry.lastSeen = at

	return entry.limiter.AllowAt(at)
}

// gc sweeps entries idle for a full window. Runs at most once per window.
func (kl *KeyedLimiter) gc(at time.Time) {
	window := kl.rate.OverTime
	if window <= 0 || at.Sub(kl.lastGC) < window {
		return
	}
	kl.lastGC = at

	for key, entry := range kl.limiters {
		if at.Sub(entry.lastSeen) >= window {
			delete(kl.limiters, key)
		}
	}
}
