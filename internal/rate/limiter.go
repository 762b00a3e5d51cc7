// Package rate enforces per-caller request budgets over a fixed window.
package rate

import (
	"sync"
	"time"
)

// Decision is the outcome of charging one request against a key's budget.
type Decision struct {
	OK         bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter tracks request budgets per key. The budget arrives with each
// call so callers can read it from the runtime settings store; the window
// is a property of the limiter itself.
type Limiter interface {
	Allow(key string, budget int) Decision
}

// MemoryLimiter is an in-process fixed-window limiter. Each key gets a
// counter that resets when the window elapses; expired counters are
// pruned as a side effect of normal traffic.
type MemoryLimiter struct {
	window time.Duration

	mu     sync.Mutex
	counts map[string]*windowCount
	lastGC time.Time
}

type windowCount struct {
	used    int
	resetAt time.Time
}

func NewMemory(window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		window: window,
		counts: make(map[string]*windowCount),
		lastGC: time.Now(),
	}
}

// Allow charges one request to key. Remaining reports the budget left
// after this request; RetryAfter is the time until the key's window
// resets, whether or not the request was allowed.
func (m *MemoryLimiter) Allow(key string, budget int) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.pruneLocked(now)

	wc, ok := m.counts[key]
	if !ok || now.After(wc.resetAt) {
		wc = &windowCount{resetAt: now.Add(m.window)}
		m.counts[key] = wc
	}

	retry := wc.resetAt.Sub(now)
	if wc.used >= budget {
		return Decision{RetryAfter: retry}
	}
	wc.used++
	return Decision{OK: true, Remaining: budget - wc.used, RetryAfter: retry}
}

// pruneLocked drops expired counters, at most once per window.
func (m *MemoryLimiter) pruneLocked(now time.Time) {
	if now.Sub(m.lastGC) < m.window {
		return
	}
	for key, wc := range m.counts {
		if now.After(wc.resetAt) {
			delete(m.counts, key)
		}
	}
	m.lastGC = now
}
