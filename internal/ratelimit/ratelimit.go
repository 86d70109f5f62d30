// Package ratelimit provides the token buckets that throttle board
// writes and websocket traffic. There is no automatic retry anywhere in
// the system, so a rejected write is simply surfaced to the caller.
package ratelimit

import (
	"sync"
	"time"
)

type Limiter struct {
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// refill must be called with the lock held.
func (l *Limiter) refill() {
	now := time.Now()
	l.tokens += now.Sub(l.lastUpdate).Seconds() * l.rate
	l.lastUpdate = now
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
}

func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// ClientLimiters keeps one bucket per participant identity, so one
// flooding participant cannot starve the others.
type ClientLimiters struct {
	limiters map[string]*Limiter
	rate     float64
	burst    int
	mu       sync.RWMutex
}

func NewClientLimiters(rate float64, burst int) *ClientLimiters {
	return &ClientLimiters{
		limiters: make(map[string]*Limiter),
		rate:     rate,
		burst:    burst,
	}
}

func (cl *ClientLimiters) Get(userID string) *Limiter {
	cl.mu.RLock()
	limiter, ok := cl.limiters[userID]
	cl.mu.RUnlock()

	if ok {
		return limiter
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if limiter, ok := cl.limiters[userID]; ok {
		return limiter
	}

	// Bound the map; anonymous identities churn, buckets refill fast
	// enough that dropping all of them is harmless.
	if len(cl.limiters) > 10000 {
		cl.limiters = make(map[string]*Limiter)
	}

	limiter = NewLimiter(cl.rate, cl.burst)
	cl.limiters[userID] = limiter
	return limiter
}

func (cl *ClientLimiters) Remove(userID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.limiters, userID)
}
