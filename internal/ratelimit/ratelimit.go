// Package ratelimit bounds inbound webhook volume per client.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// UnknownKey is used when the client IP cannot be resolved.
const UnknownKey = "unknown"

// Result is the outcome of one check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	Check(ctx context.Context, key string) Result
	// Reset forgets every counter.
	Reset(ctx context.Context) error
}

// Memory is a process-local fixed-window limiter.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count int
	end   time.Time
}

func NewMemory(limit int, period time.Duration) *Memory {
	return &Memory{
		limit:   limit,
		window:  period,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

func (m *Memory) Check(_ context.Context, key string) Result {
	if key == "" {
		key = UnknownKey
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.end) {
		w = &window{end: now.Add(m.window)}
		m.windows[key] = w
		m.sweep(now)
	}
	if w.count >= m.limit {
		return Result{Allowed: false, Limit: m.limit, Remaining: 0, ResetAt: w.end}
	}
	w.count++
	return Result{Allowed: true, Limit: m.limit, Remaining: m.limit - w.count, ResetAt: w.end}
}

// sweep drops expired windows so idle clients do not accumulate.
func (m *Memory) sweep(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.end) {
			delete(m.windows, k)
		}
	}
}

func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	m.windows = make(map[string]*window)
	m.mu.Unlock()
	return nil
}
