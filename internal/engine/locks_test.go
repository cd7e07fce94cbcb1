package engine

import (
	"sync"
	"testing"
	"time"
)

func TestLockRegistrySerializesSameKey(t *testing.T) {
	r := newLockRegistry(time.Minute, nil)

	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := r.acquire("conv-1")
			defer release()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInCritical != 1 {
		t.Fatalf("max holders = %d, want 1", maxInCritical)
	}
}

func TestLockRegistrySweepDropsIdleEntries(t *testing.T) {
	r := newLockRegistry(time.Nanosecond, nil)

	release := r.acquire("conv-1")

	// Held entries survive the sweep.
	r.sweep()
	if r.size() != 1 {
		t.Fatalf("size = %d, want 1 while held", r.size())
	}

	release()
	time.Sleep(time.Millisecond)
	r.sweep()
	if r.size() != 0 {
		t.Fatalf("size = %d, want 0 after release and sweep", r.size())
	}
}

func TestLockRegistryReleaseIsIdempotent(t *testing.T) {
	r := newLockRegistry(time.Minute, nil)

	release := r.acquire("conv-1")
	release()
	release()

	done := make(chan struct{})
	go func() {
		r.acquire("conv-1")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock still held after double release")
	}
}
