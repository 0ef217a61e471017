package relay

import (
	"sync"
	"time"
)

// DefaultEventsPerMinute bounds signal/chat traffic from one connection.
const DefaultEventsPerMinute = 120

// RateLimiter tracks a fixed per-minute window per connection.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	clients map[string]*clientWindow
}

type clientWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing limit events per minute per
// connection; zero or negative selects the default.
func NewRateLimiter(limit int) *RateLimiter {
	if limit <= 0 {
		limit = DefaultEventsPerMinute
	}
	return &RateLimiter{
		limit:   limit,
		clients: make(map[string]*clientWindow),
	}
}

// Allow reports whether the connection may send another event.
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	window, exists := rl.clients[connID]
	if !exists {
		rl.clients[connID] = &clientWindow{count: 1, windowStart: now}
		return true
	}

	if now.Sub(window.windowStart) >= time.Minute {
		window.count = 1
		window.windowStart = now
		return true
	}

	if window.count >= rl.limit {
		return false
	}
	window.count++
	return true
}

// Forget drops tracking state for a disconnected connection.
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, connID)
}

// Cleanup removes stale windows. Connections disconnect eventually, so this
// only matters for callers that never call Forget.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for connID, window := range rl.clients {
		if now.Sub(window.windowStart) > 5*time.Minute {
			delete(rl.clients, connID)
		}
	}
}
