package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pmontanari/taskchat/internal/observability"
)

type lockEntry struct {
	mu       sync.Mutex
	refs     int
	lastUsed time.Time
}

// lockRegistry hands out one mutex per key so turns on the same
// conversation (or conversation lookups for the same user) serialize
// while unrelated keys proceed in parallel. Idle entries are swept by
// the janitor once nothing holds them.
type lockRegistry struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	idleTTL time.Duration
	metrics *observability.Metrics
}

func newLockRegistry(idleTTL time.Duration, metrics *observability.Metrics) *lockRegistry {
	if idleTTL <= 0 {
		idleTTL = 5 * time.Minute
	}
	return &lockRegistry{
		entries: make(map[string]*lockEntry),
		idleTTL: idleTTL,
		metrics: metrics,
	}
}

// acquire blocks until the key's lock is held and returns the release
// function. Release must be called exactly once.
func (r *lockRegistry) acquire(key string) func() {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &lockEntry{}
		r.entries[key] = e
		r.metrics.ObserveConversationLocks(len(r.entries))
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			r.mu.Lock()
			e.refs--
			e.lastUsed = time.Now()
			r.mu.Unlock()
		})
	}
}

func (r *lockRegistry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *lockRegistry) sweep() {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, e := range r.entries {
		if e.refs == 0 && now.Sub(e.lastUsed) >= r.idleTTL {
			delete(r.entries, key)
		}
	}
	r.metrics.ObserveConversationLocks(len(r.entries))
}

func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
