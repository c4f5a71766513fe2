package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindow is a process-local fixed-window counter store. Each replica
// keeps its own counters, so the effective global budget is limit times the
// number of replicas.
type FixedWindow struct {
	mu      sync.Mutex
	entries map[string]*window
	now     func() time.Time
}

// Option customises a FixedWindow.
type Option func(*FixedWindow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *FixedWindow) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFixedWindow constructs an empty in-memory limiter.
func NewFixedWindow(opts ...Option) *FixedWindow {
	f := &FixedWindow{entries: make(map[string]*window), now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Check records one hit for identifier. A limit below one denies every call
// without recording it.
func (f *FixedWindow) Check(identifier string, limit int, windowLen time.Duration) Result {
	if limit < 1 {
		return Result{Allowed: false, Remaining: 0, ResetInSeconds: ceilSeconds(windowLen)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	entry, ok := f.entries[identifier]
	if !ok || !entry.resetAt.After(now) {
		f.entries[identifier] = &window{count: 1, resetAt: now.Add(windowLen)}
		return Result{Allowed: true, Remaining: limit - 1, ResetInSeconds: ceilSeconds(windowLen)}
	}

	entry.count++
	reset := ceilSeconds(entry.resetAt.Sub(now))
	if entry.count > limit {
		return Result{Allowed: false, Remaining: 0, ResetInSeconds: reset}
	}
	return Result{Allowed: true, Remaining: limit - entry.count, ResetInSeconds: reset}
}

// Allow implements Limiter. It never returns an error.
func (f *FixedWindow) Allow(_ context.Context, key string, limit int, windowLen time.Duration) (Result, error) {
	return f.Check(key, limit, windowLen), nil
}

// Sweep removes entries whose window has elapsed at now and returns how many
// were dropped. Entries still inside their window are kept.
func (f *FixedWindow) Sweep(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for id, entry := range f.entries {
		if !entry.resetAt.After(now) {
			delete(f.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is cancelled.
func (f *FixedWindow) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Sweep(f.now())
		}
	}
}

// Len returns the number of tracked identifiers.
func (f *FixedWindow) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
