package delivery

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyMutexSerializesSameKey(t *testing.T) {
	km := newKeyMutex()
	var concurrent atomic.Int32
	var maxConcurrent atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("same-key")
			defer unlock()

			n := concurrent.Add(1)
			for {
				max := maxConcurrent.Load()
				if n <= max || maxConcurrent.CompareAndSwap(max, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			concurrent.Add(-1)
		}()
	}
	wg.Wait()

	if maxConcurrent.Load() != 1 {
		t.Errorf("expected at most 1 concurrent holder for the same key, observed %d", maxConcurrent.Load())
	}
}

func TestKeyMutexAllowsDifferentKeysConcurrently(t *testing.T) {
	km := newKeyMutex()
	var concurrent atomic.Int32
	var maxConcurrent atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(string(rune('a' + i)))
			defer unlock()

			n := concurrent.Add(1)
			for {
				max := maxConcurrent.Load()
				if n <= max || maxConcurrent.CompareAndSwap(max, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			concurrent.Add(-1)
		}()
	}
	wg.Wait()

	if maxConcurrent.Load() <= 1 {
		t.Errorf("expected multiple distinct keys to proceed concurrently, observed max %d", maxConcurrent.Load())
	}
}
