package validation

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client exceeds its message budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiter is a per-client token bucket: each client may send burst
// messages at once, refilled continuously at burst per window.
type RateLimiter struct {
	burst  float64
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*bucket

	cleanupTick *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
}

type bucket struct {
	tokens   float64
	last     time.Time
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing burst messages per window.
func NewRateLimiter(burst int, window time.Duration) *RateLimiter {
	rl := newRateLimiter(burst, window, time.Now)
	rl.cleanupTick = time.NewTicker(window)
	go rl.cleanup()
	return rl
}

func newRateLimiter(burst int, window time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		burst:   float64(burst),
		window:  window,
		now:     now,
		clients: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
}

// Allow spends one token for clientID if one is available.
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.clients[clientID]
	if !ok {
		b = &bucket{tokens: rl.burst, last: now}
		rl.clients[clientID] = b
	}
	b.lastSeen = now

	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens = min(rl.burst, b.tokens+rl.burst*float64(elapsed)/float64(rl.window))
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Forget drops a client's bucket, e.g. on disconnect.
func (rl *RateLimiter) Forget(clientID string) {
	rl.mu.Lock()
	delete(rl.clients, clientID)
	rl.mu.Unlock()
}

// Clients is the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.removeIdle()
		case <-rl.done:
			return
		}
	}
}

// removeIdle drops clients silent for two windows; their bucket would be
// full again anyway.
func (rl *RateLimiter) removeIdle() {
	cutoff := rl.now().Add(-2 * rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, b := range rl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(rl.clients, id)
		}
	}
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.done)
		if rl.cleanupTick != nil {
			rl.cleanupTick.Stop()
		}
	})
}
