package syncutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestZeroValuesUsable(t *testing.T) {
	t.Parallel()

	var mu Mutex
	counter := 0
	done := make(chan struct{})
	for range 4 {
		go func() {
			mu.Lock()
			counter++
			mu.Unlock()
			done <- struct{}{}
		}()
	}
	for range 4 {
		<-done
	}
	mu.Lock()
	assert.Equal(t, 4, counter)
	mu.Unlock()

	var rw RWMutex
	rw.RLock()
	rw.RLock()
	rw.RUnlock()
	rw.RUnlock()
	rw.Lock()
	rw.Unlock()
}

func TestRWMutexExcludesWriters(t *testing.T) {
	t.Parallel()

	var rw RWMutex
	rw.RLock()

	acquired := make(chan struct{})
	go func() {
		rw.Lock()
		close(acquired)
		rw.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("writer acquired the lock while a reader held it")
	case <-time.After(20 * time.Millisecond):
	}
	rw.RUnlock()
	<-acquired
}
