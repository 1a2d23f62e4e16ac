package checker

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the limiter capacity used when none is configured.
const DefaultConcurrency = 5

// Limiter is the global counting semaphore bounding in-flight check tasks.
//
// Slots come from a semaphore.Weighted; the Limiter adds bookkeeping on top:
//   - InFlight: slots currently held.
//   - Peak: highest InFlight since the last ResetPeak, reported per cycle.
//   - the pricewatcher_fetch_inflight gauge, written under the same lock as
//     the counter so concurrent Acquire/Release calls cannot leave it stale.
//
// The zero value is not usable; build one with NewLimiter.
type Limiter struct {
	sem *semaphore.Weighted
	cap int

	mu       sync.Mutex
	inFlight int
	peak     int
}

// NewLimiter returns a limiter with capacity n (DefaultConcurrency if n < 1).
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = DefaultConcurrency
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), cap: n}
}

// Acquire blocks until a slot is free or ctx is done.
//
// Return values:
//   - nil when a slot is held; the caller must Release it exactly once.
//   - ctx.Err() when ctx ends first; nothing is held and Release must not
//     be called.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.mu.Lock()
	l.inFlight++
	if l.inFlight > l.peak {
		l.peak = l.inFlight
	}
	fetchInflight.Set(float64(l.inFlight))
	l.mu.Unlock()
	return nil
}

// Release frees one slot. Every successful Acquire must be matched by exactly
// one Release.
func (l *Limiter) Release() {
	l.mu.Lock()
	l.inFlight--
	fetchInflight.Set(float64(l.inFlight))
	l.mu.Unlock()
	l.sem.Release(1)
}

// Cap returns the configured capacity.
func (l *Limiter) Cap() int { return l.cap }

// InFlight returns the number of slots currently held.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// Peak returns the highest InFlight value observed since the last ResetPeak.
func (l *Limiter) Peak() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peak
}

// ResetPeak sets the peak to the current in-flight count and returns the
// previous peak.
func (l *Limiter) ResetPeak() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.peak
	l.peak = l.inFlight
	return p
}
