/*
Package ratelimit tracks failed identity resolutions and locks out a key
after too many failures inside a sliding window.

KEY CONCEPTS:
  CounterStore: where failures live. MemoryCounter keeps them in process,
                bounded per key, forgets idle keys, and is best effort
                across instances.
  Lockout:      the policy (max failures per window).

The counter is not linearizable across server instances. A second instance
has its own counts, which only loosens the limit.
*/
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore records timestamped failures per key.
type CounterStore interface {
	// Count returns the failures for key that happened after since.
	Count(ctx context.Context, key string, since time.Time) (int, error)
	// Add records one failure at t.
	Add(ctx context.Context, key string, t time.Time) error
	// Reset forgets every failure for key.
	Reset(ctx context.Context, key string) error
}

// MemoryCounter is an in-process CounterStore.
type MemoryCounter struct {
	mu        sync.Mutex
	attempts  map[string][]time.Time
	window    time.Duration
	lastSweep time.Time
}

// NewMemoryCounter keeps at most window worth of history per key.
func NewMemoryCounter(window time.Duration) *MemoryCounter {
	return &MemoryCounter{
		attempts: make(map[string][]time.Time),
		window:   window,
	}
}

func (m *MemoryCounter) Count(_ context.Context, key string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.attempts[key] {
		if t.After(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryCounter) Add(_ context.Context, key string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.Sub(m.lastSweep) >= m.window {
		m.sweep(t)
	}
	m.attempts[key] = append(m.prune(m.attempts[key], t), t)
	return nil
}

// prune drops attempts that fell out of the window at t.
func (m *MemoryCounter) prune(attempts []time.Time, t time.Time) []time.Time {
	var valid []time.Time
	for _, at := range attempts {
		if t.Sub(at) < m.window {
			valid = append(valid, at)
		}
	}
	return valid
}

// sweep forgets keys with no attempt left in the window at t. It runs at
// most once per window, so the map holds only keys seen recently.
func (m *MemoryCounter) sweep(t time.Time) {
	for key, attempts := range m.attempts {
		if valid := m.prune(attempts, t); len(valid) == 0 {
			delete(m.attempts, key)
		} else {
			m.attempts[key] = valid
		}
	}
	m.lastSweep = t
}

func (m *MemoryCounter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, key)
	return nil
}

// Lockout applies a max-failures-per-window policy over a CounterStore.
type Lockout struct {
	Store       CounterStore
	MaxFailures int
	Window      time.Duration
	Now         func() time.Time
}

// NewLockout returns a Lockout over an in-process counter.
func NewLockout(maxFailures int, window time.Duration) *Lockout {
	return &Lockout{
		Store:       NewMemoryCounter(window),
		MaxFailures: maxFailures,
		Window:      window,
		Now:         time.Now,
	}
}

// Locked reports whether key has reached MaxFailures within Window.
func (l *Lockout) Locked(ctx context.Context, key string) (bool, error) {
	now := l.Now()
	n, err := l.Store.Count(ctx, key, now.Add(-l.Window))
	if err != nil {
		return false, err
	}
	return n >= l.MaxFailures, nil
}

// Fail records a failure for key.
func (l *Lockout) Fail(ctx context.Context, key string) error {
	return l.Store.Add(ctx, key, l.Now())
}

// Succeed clears key's failures.
func (l *Lockout) Succeed(ctx context.Context, key string) error {
	return l.Store.Reset(ctx, key)
}
