package service

import (
	"sync"
	"testing"
)

func TestThreadLocksSerializeSameThread(t *testing.T) {
	locks := newThreadLocks()

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("th1")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("Expected one holder at a time, observed %d", maxActive)
	}
}

func TestThreadLocksIndependentThreads(t *testing.T) {
	locks := newThreadLocks()

	unlockA := locks.Lock("a")
	// Locking a different thread must not block.
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}

func TestThreadLocksCleanUpEntries(t *testing.T) {
	locks := newThreadLocks()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("th1")
			unlock()
		}()
	}
	wg.Wait()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.locks) != 0 {
		t.Errorf("Expected the lock map to be empty after release, got %d entries", len(locks.locks))
	}
}
