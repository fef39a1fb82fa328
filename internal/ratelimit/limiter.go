package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// CheckResult is the outcome of one rate limit check.
type CheckResult struct {
	Exceeded bool
	Key      string
	Current  int
	Limit    int
	Reason   string
}

// Usage describes one key's consumption of its current window.
type Usage struct {
	Current int     `json:"current"`
	Limit   int     `json:"limit"`
	Percent float64 `json:"percentage"`
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// Limiter is a sliding-window call log keyed by operation.
// Each key keeps the timestamps of its accepted calls inside the trailing
// window; a burst on one key never affects another.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	def    int
	limits map[string]int
	calls  map[string][]time.Time
	now    func() time.Time
}

// New creates a Limiter. Invalid configuration is rejected.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Limiter{
		window: cfg.Window,
		def:    cfg.Default,
		limits: cfg.limits(),
		calls:  make(map[string][]time.Time),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// TryConsume records a call for key and reports whether it was within limit.
// A denied call is not recorded.
func (l *Limiter) TryConsume(key string) bool {
	return !l.Check(key).Exceeded
}

// Check is TryConsume with the numbers behind the answer.
func (l *Limiter) Check(key string) CheckResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := prune(l.calls[key], now.Add(-l.window))
	limit := l.limitFor(key)

	if len(kept) >= limit {
		l.calls[key] = kept
		return CheckResult{
			Exceeded: true,
			Key:      key,
			Current:  len(kept),
			Limit:    limit,
			Reason: fmt.Sprintf("rate limit exceeded for %q: %d/%d requests in %s window",
				key, len(kept), limit, l.window),
		}
	}

	l.calls[key] = append(kept, now)
	return CheckResult{Key: key, Current: len(kept) + 1, Limit: limit}
}

// Limit returns the effective limit for key.
func (l *Limiter) Limit(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limitFor(key)
}

// Window returns the trailing interval calls are counted over.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Status reports current-window usage for every key seen so far.
// It does not prune; expired calls are simply not counted.
func (l *Limiter) Status() map[string]Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	out := make(map[string]Usage, len(l.calls))
	for key, ts := range l.calls {
		n := 0
		for _, t := range ts {
			if t.After(cutoff) {
				n++
			}
		}
		limit := l.limitFor(key)
		out[key] = Usage{
			Current: n,
			Limit:   limit,
			Percent: float64(n) / float64(limit) * 100,
		}
	}
	return out
}

// Len returns how many operation keys have been seen.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

// Keys returns the operation keys seen so far, sorted.
func (l *Limiter) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(l.calls))
	for k := range l.calls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (l *Limiter) limitFor(key string) int {
	if n, ok := l.limits[key]; ok {
		return n
	}
	return l.def
}

// prune drops timestamps at or before cutoff. Timestamps are appended in
// clock order, so the survivors are a suffix.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}
