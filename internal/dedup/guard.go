// Package dedup suppresses repeated processing of the same transaction signature
// within a short delivery-retry window. It is best-effort and process-local.
package dedup

import (
	"sync"
	"time"
)

// Guard is an expiring set of signatures. Entries are grouped into buckets by
// expiry time, so expiring them costs one map delete per bucket instead of a timer per entry.
type Guard struct {
	mu          sync.Mutex
	horizon     time.Duration
	granularity time.Duration
	now         func() time.Time

	expiry  map[string]int64   // signature -> bucket index
	buckets map[int64][]string // bucket index -> signatures
	oldest  int64              // lowest bucket index that may still hold entries
}

// Option customises a Guard.
type Option func(*Guard)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithGranularity sets the bucket width. Entries may outlive the horizon by up to one bucket.
func WithGranularity(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.granularity = d
		}
	}
}

// NewGuard creates a Guard whose entries expire after horizon.
func NewGuard(horizon time.Duration, opts ...Option) *Guard {
	g := &Guard{
		horizon:     horizon,
		granularity: time.Second,
		now:         time.Now,
		expiry:      make(map[string]int64),
		buckets:     make(map[int64][]string),
	}
	for _, o := range opts {
		o(g)
	}
	g.oldest = g.bucket(g.now())
	return g
}

func (g *Guard) bucket(t time.Time) int64 {
	return t.UnixNano() / int64(g.granularity)
}

// sweep drops every bucket whose index is at or before the current one. Caller holds mu.
func (g *Guard) sweep(now time.Time) {
	current := g.bucket(now)
	if current-g.oldest > int64(len(g.buckets)) {
		// Gap wider than the live set: visit existing buckets only.
		for b := range g.buckets {
			if b <= current {
				g.drop(b)
			}
		}
	} else {
		for b := g.oldest; b <= current; b++ {
			g.drop(b)
		}
	}
	if current+1 > g.oldest {
		g.oldest = current + 1
	}
}

func (g *Guard) drop(b int64) {
	for _, sig := range g.buckets[b] {
		if g.expiry[sig] == b {
			delete(g.expiry, sig)
		}
	}
	delete(g.buckets, b)
}

// Seen reports whether sig was marked within the horizon.
func (g *Guard) Seen(sig string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep(g.now())
	_, ok := g.expiry[sig]
	return ok
}

// Mark records sig, restarting its expiry.
func (g *Guard) Mark(sig string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.sweep(now)
	g.mark(sig, now)
}

func (g *Guard) mark(sig string, now time.Time) {
	b := g.bucket(now.Add(g.horizon)) + 1
	g.expiry[sig] = b
	g.buckets[b] = append(g.buckets[b], sig)
}

// Claim marks sig and returns true if it was not already present.
// Two concurrent callers with the same signature get exactly one true.
func (g *Guard) Claim(sig string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.sweep(now)
	if _, ok := g.expiry[sig]; ok {
		return false
	}
	g.mark(sig, now)
	return true
}

// Len returns the number of live signatures.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep(g.now())
	return len(g.expiry)
}

// Reset forgets everything.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expiry = make(map[string]int64)
	g.buckets = make(map[int64][]string)
	g.oldest = g.bucket(g.now())
}
